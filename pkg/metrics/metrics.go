package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rate limiter metrics
	RateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_ratelimit_decisions_total",
		Help: "Total number of rate limit checks grouped by category and decision",
	}, []string{"category", "decision"})
	RateLimitStoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_ratelimit_store_errors_total",
		Help: "Total number of rate limit store failures (requests are allowed when the store fails)",
	}, []string{"store", "operation"})
	RateLimitSweptEntries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitegate_ratelimit_swept_entries_total",
		Help: "Total number of expired rate limit entries removed by the sweeper",
	})

	// Suspicious activity / block list metrics
	SuspiciousActivityMarked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitegate_suspicious_activity_marked_total",
		Help: "Total number of suspicious activity detections",
	})
	BlockedIPs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitegate_blocked_ips",
		Help: "Number of client IPs currently in the block list",
	})
	IPBlockChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_ip_block_changes_total",
		Help: "Total number of block list changes grouped by action (block/unblock)",
	}, []string{"action"})

	// Security middleware metrics. Path is intentionally not a label to keep
	// cardinality bounded under path-scanning traffic.
	SecurityDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_security_decisions_total",
		Help: "Total number of security middleware decisions grouped by outcome",
	}, []string{"decision"})

	// Auth metrics
	AdminLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_admin_logins_total",
		Help: "Total number of admin login attempts grouped by result",
	}, []string{"result"})

	// Lead capture and CMS metrics
	ContactSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_contact_submissions_total",
		Help: "Total number of contact form submissions grouped by result",
	}, []string{"result"})
	ContentUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_content_updates_total",
		Help: "Total number of CMS section updates",
	}, []string{"slug"})

	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
	MailQueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_mail_queued_total",
		Help: "Total number of mails accepted into the send queue",
	}, []string{"host"})
	MailQueueDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_mail_queue_dropped_total",
		Help: "Total number of mails dropped because the queue was full or stopping",
	}, []string{"host"})
	MailRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_mail_retry_scheduled_total",
		Help: "Total number of mail send retries scheduled",
	}, []string{"host"})
	MailFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_mail_failed_total",
		Help: "Total number of mails that failed after all retries",
	}, []string{"host"})

	// Audit metrics
	AuditEventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitegate_audit_events_processed_total",
		Help: "Total number of audit events written to sinks",
	})
	AuditEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitegate_audit_events_dropped_total",
		Help: "Total number of audit events dropped because the queue was full",
	})
	AuditSinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitegate_audit_sink_errors_total",
		Help: "Total number of audit sink write failures",
	}, []string{"sink", "error_type"})
	AuditSinkLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitegate_audit_sink_latency_seconds",
		Help:    "Latency of audit sink writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
	AuditSinkConnected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sitegate_audit_sink_connected",
		Help: "Whether the audit sink is currently connected (1) or not (0)",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(RateLimitDecisions)
	prometheus.MustRegister(RateLimitStoreErrors)
	prometheus.MustRegister(RateLimitSweptEntries)
	prometheus.MustRegister(SuspiciousActivityMarked)
	prometheus.MustRegister(BlockedIPs)
	prometheus.MustRegister(IPBlockChanges)
	prometheus.MustRegister(SecurityDecisions)
	prometheus.MustRegister(AdminLogins)
	prometheus.MustRegister(ContactSubmissions)
	prometheus.MustRegister(ContentUpdates)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailQueued)
	prometheus.MustRegister(MailQueueDropped)
	prometheus.MustRegister(MailRetryScheduled)
	prometheus.MustRegister(MailFailed)
	prometheus.MustRegister(AuditEventsProcessed)
	prometheus.MustRegister(AuditEventsDropped)
	prometheus.MustRegister(AuditSinkErrors)
	prometheus.MustRegister(AuditSinkLatency)
	prometheus.MustRegister(AuditSinkConnected)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
