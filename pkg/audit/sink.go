// SPDX-FileCopyrightText: 2025 Northbeam AI
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

const (
	// SignatureHeader carries "sha256=<hex hmac of the body>" on webhook deliveries.
	SignatureHeader = "X-Sitegate-Signature"
	// EventTypeHeader lets receivers route deliveries without parsing the body.
	EventTypeHeader = "X-Sitegate-Event"

	defaultWebhookTimeout = 5 * time.Second
)

// Sink is a destination for audit events.
type Sink interface {
	Write(ctx context.Context, event *Event) error
	Close() error
	Name() string
}

// LogSink writes every event to the structured log. Security events and
// anything above info are logged at WARN so they survive a production log level.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := make([]zap.Field, 0, 10)
	fields = append(fields,
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", event.Timestamp),
		zap.String("target_kind", event.Target.Kind),
		zap.String("target_name", event.Target.Name),
	)
	for key, value := range map[string]string{
		"actor_user":       event.Actor.User,
		"actor_ip":         event.Actor.SourceIP,
		"actor_user_agent": event.Actor.UserAgent,
		"correlation_id":   event.CorrelationID,
	} {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	if len(event.Details) > 0 {
		if raw, err := json.Marshal(event.Details); err == nil {
			fields = append(fields, zap.String("details", string(raw)))
		}
	}

	if event.Severity == SeverityInfo && !IsSecurityEvent(event.Type) {
		s.logger.Info("audit_event", fields...)
	} else {
		s.logger.Warn("audit_event", fields...)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }

// WebhookSinkConfig configures a WebhookSink.
type WebhookSinkConfig struct {
	Name    string
	URL     string
	Headers map[string]string
	// Secret, when set, signs each body with HMAC-SHA256 (see SignatureHeader).
	Secret  string
	Timeout time.Duration
}

// WebhookSink posts each event as JSON to an HTTP collector such as a SIEM
// intake or a chat alerting bridge.
type WebhookSink struct {
	name    string
	url     string
	headers map[string]string
	secret  []byte
	client  *http.Client
	logger  *zap.Logger

	written atomic.Int64
	failed  atomic.Int64
}

func NewWebhookSink(cfg WebhookSinkConfig, logger *zap.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWebhookTimeout
	}
	if cfg.Name == "" {
		cfg.Name = "webhook"
	}

	s := &WebhookSink{
		name:    cfg.Name,
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.Named("webhook-sink"),
	}
	if cfg.Secret != "" {
		s.secret = []byte(cfg.Secret)
	}
	s.logger.Info("Webhook audit sink created",
		zap.String("name", s.name),
		zap.String("url", s.url),
		zap.Bool("signed", s.secret != nil),
		zap.Duration("timeout", cfg.Timeout))
	return s, nil
}

// Sign returns the SignatureHeader value for body under secret. Receivers
// compare it with hmac.Equal.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (s *WebhookSink) Write(ctx context.Context, event *Event) error {
	start := time.Now()
	defer func() {
		metrics.AuditSinkLatency.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(event)
	if err != nil {
		return s.fail("serialization", fmt.Errorf("marshal audit event: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return s.fail("request", fmt.Errorf("build webhook request: %w", err))
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, string(event.Type))
	if s.secret != nil {
		req.Header.Set(SignatureHeader, Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("Webhook delivery failed", zap.String("event_id", event.ID), zap.Error(err))
		return s.fail("network", fmt.Errorf("deliver audit event to %s: %w", s.url, err))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		return s.fail("status", fmt.Errorf("webhook %s answered %d", s.url, resp.StatusCode))
	}
	s.written.Add(1)
	return nil
}

func (s *WebhookSink) fail(kind string, err error) error {
	s.failed.Add(1)
	metrics.AuditSinkErrors.WithLabelValues(s.name, kind).Inc()
	return err
}

// Stats returns delivered and failed counts.
func (s *WebhookSink) Stats() (written, failed int64) {
	return s.written.Load(), s.failed.Load()
}

func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	s.logger.Info("Closing webhook audit sink",
		zap.String("name", s.name),
		zap.Int64("events_written", s.written.Load()),
		zap.Int64("events_failed", s.failed.Load()))
	return nil
}

func (s *WebhookSink) Name() string { return s.name }

// FilterSink forwards only events at or above a minimum severity. It keeps
// routine info events such as logins and content edits off external
// alerting channels while the log sink still records them.
type FilterSink struct {
	next Sink
	min  Severity
}

func NewFilterSink(next Sink, min Severity) *FilterSink {
	return &FilterSink{next: next, min: min}
}

func (s *FilterSink) Write(ctx context.Context, event *Event) error {
	if !event.Severity.AtLeast(s.min) {
		return nil
	}
	return s.next.Write(ctx, event)
}

func (s *FilterSink) Close() error { return s.next.Close() }

func (s *FilterSink) Name() string { return s.next.Name() }

// MultiSink fans an event out to every sink in order.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewMultiSink(sinks []Sink, logger *zap.Logger) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Write continues past failing sinks and returns their joined errors.
func (s *MultiSink) Write(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			s.logger.Warn("Audit sink write failed", zap.String("sink", sink.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) Name() string { return "multi" }
