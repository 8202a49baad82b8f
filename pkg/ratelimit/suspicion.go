package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

const (
	// DefaultSuspicionThreshold is the number of marks that blocks an IP.
	DefaultSuspicionThreshold = 10
	// DefaultSuspicionDecay is how long a suspicion counter survives without new marks.
	DefaultSuspicionDecay = time.Hour
)

// SuspicionConfig configures the tracker.
type SuspicionConfig struct {
	Threshold int
	Decay     time.Duration
	Now       func() time.Time
}

// SuspicionTracker counts suspicious events per IP and moves repeat offenders
// into the blocked set. Blocks are permanent until Unblock is called. It is
// independent of the request counters: exhausting a rate limit never blocks.
type SuspicionTracker struct {
	store     Store
	threshold int
	decay     time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewSuspicionTracker creates a tracker backed by store.
func NewSuspicionTracker(store Store, cfg SuspicionConfig, log *zap.SugaredLogger) *SuspicionTracker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultSuspicionThreshold
	}
	if cfg.Decay <= 0 {
		cfg.Decay = DefaultSuspicionDecay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SuspicionTracker{
		store:     store,
		threshold: cfg.Threshold,
		decay:     cfg.Decay,
		now:       cfg.Now,
		log:       log.Named("suspicion"),
	}
}

// Mark records one suspicious event for ip and returns whether the IP is now blocked.
func (t *SuspicionTracker) Mark(ctx context.Context, ip string) bool {
	count, err := t.store.RecordSuspicion(ctx, ip, t.now(), t.decay)
	if err != nil {
		t.log.Warnw("Failed to record suspicious activity", "ip", ip, "error", err)
		metrics.RateLimitStoreErrors.WithLabelValues(t.store.Name(), "record_suspicion").Inc()
		return false
	}
	metrics.SuspiciousActivityMarked.Inc()
	t.log.Debugw("Suspicious activity recorded", "ip", ip, "count", count)

	if count < t.threshold {
		return false
	}
	if err := t.Block(ctx, ip); err != nil {
		return false
	}
	t.log.Warnw("IP blocked after repeated suspicious activity", "ip", ip, "count", count)
	return true
}

// Block adds ip to the blocked set directly.
func (t *SuspicionTracker) Block(ctx context.Context, ip string) error {
	if err := t.store.Block(ctx, ip); err != nil {
		t.log.Errorw("Failed to block IP", "ip", ip, "error", err)
		metrics.RateLimitStoreErrors.WithLabelValues(t.store.Name(), "block").Inc()
		return err
	}
	metrics.IPBlockChanges.WithLabelValues("block").Inc()
	t.refreshGauge(ctx)
	return nil
}

// Unblock removes ip from the blocked set and forgets its suspicion history.
func (t *SuspicionTracker) Unblock(ctx context.Context, ip string) error {
	if err := t.store.Unblock(ctx, ip); err != nil {
		t.log.Errorw("Failed to unblock IP", "ip", ip, "error", err)
		metrics.RateLimitStoreErrors.WithLabelValues(t.store.Name(), "unblock").Inc()
		return err
	}
	metrics.IPBlockChanges.WithLabelValues("unblock").Inc()
	t.refreshGauge(ctx)
	t.log.Infow("IP unblocked", "ip", ip)
	return nil
}

// IsBlocked reports whether ip is in the blocked set. Store failures report
// false so that an unavailable store does not lock every visitor out.
func (t *SuspicionTracker) IsBlocked(ctx context.Context, ip string) bool {
	blocked, err := t.store.IsBlocked(ctx, ip)
	if err != nil {
		t.log.Warnw("Failed to check blocked IP set", "ip", ip, "error", err)
		metrics.RateLimitStoreErrors.WithLabelValues(t.store.Name(), "is_blocked").Inc()
		return false
	}
	return blocked
}

// Blocked lists the blocked set.
func (t *SuspicionTracker) Blocked(ctx context.Context) ([]string, error) {
	return t.store.Blocked(ctx)
}

func (t *SuspicionTracker) refreshGauge(ctx context.Context) {
	if ips, err := t.store.Blocked(ctx); err == nil {
		metrics.BlockedIPs.Set(float64(len(ips)))
	}
}
