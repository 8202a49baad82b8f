// SPDX-FileCopyrightText: 2025 Northbeam AI
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("audit sink is closed")

type KafkaSinkConfig struct {
	Name    string
	Brokers []string
	Topic   string
	// TLS uses the system trust store.
	TLS bool
	// SASLMechanism is "", "PLAIN", "SCRAM-SHA-256" or "SCRAM-SHA-512".
	SASLMechanism string
	Username      string
	Password      string
	// BatchTimeout defaults to 1s, WriteTimeout to 10s.
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// KafkaSink publishes events to a topic. Messages are keyed by the client
// address so the history of one visitor stays ordered within a partition.
type KafkaSink struct {
	name   string
	writer *kafka.Writer
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	written   atomic.Int64
	failed    atomic.Int64
	connected atomic.Bool
}

// NewKafkaSink validates cfg and builds the writer. Brokers are dialled on
// the first write.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	switch {
	case len(cfg.Brokers) == 0:
		return nil, errors.New("at least one Kafka broker is required")
	case cfg.Topic == "":
		return nil, errors.New("kafka topic is required")
	}

	transport := &kafka.Transport{}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.SASLMechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASLMechanism, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("kafka SASL: %w", err)
		}
		transport.SASL = mechanism
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "kafka"
	}

	s := &KafkaSink{
		name: cfg.Name,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Transport:    transport,
		},
		logger: logger.Named("kafka-audit"),
	}
	s.setConnected(true)

	s.logger.Info("Kafka audit sink created",
		zap.String("name", s.name),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls", cfg.TLS),
		zap.String("sasl", cfg.SASLMechanism))
	return s, nil
}

func buildSASLMechanism(mechanism, username, password string) (sasl.Mechanism, error) {
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, username, password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, username, password)
	}
	return nil, fmt.Errorf("unsupported SASL mechanism %q", mechanism)
}

// messageKey picks the partition key: client address, then target, then event id.
func messageKey(event *Event) []byte {
	for _, k := range []string{event.Actor.SourceIP, event.Target.Name, event.ID} {
		if k != "" {
			return []byte(k)
		}
	}
	return nil
}

func eventMessage(event *Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{
		Key:   messageKey(event),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "severity", Value: []byte(event.Severity)},
			{Key: "timestamp", Value: []byte(event.Timestamp.UTC().Format(time.RFC3339))},
		},
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "correlation-id", Value: []byte(event.CorrelationID)})
	}
	return msg, nil
}

// kafkaErrorKinds maps error text fragments to metric labels, first match wins.
var kafkaErrorKinds = []struct {
	kind      string
	fragments []string
}{
	{"auth", []string{"SASL", "authentication"}},
	{"network", []string{"connection refused", "no such host"}},
	{"broker", []string{"broker", "leader"}},
	{"topic", []string{"topic"}},
	{"tls", []string{"TLS", "certificate"}},
}

// classifyKafkaError buckets write errors for the sink error metric.
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	msg := err.Error()
	for _, k := range kafkaErrorKinds {
		for _, f := range k.fragments {
			if strings.Contains(msg, f) {
				return k.kind
			}
		}
	}
	return "other"
}

func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		metrics.AuditSinkErrors.WithLabelValues(s.name, "closed").Inc()
		return ErrSinkClosed
	}

	msg, err := eventMessage(event)
	if err != nil {
		s.failed.Add(1)
		metrics.AuditSinkErrors.WithLabelValues(s.name, "serialization").Inc()
		return fmt.Errorf("marshal audit event: %w", err)
	}

	start := time.Now()
	err = s.writer.WriteMessages(ctx, msg)
	elapsed := time.Since(start)
	metrics.AuditSinkLatency.WithLabelValues(s.name).Observe(elapsed.Seconds())

	if err != nil {
		kind := classifyKafkaError(err)
		s.failed.Add(1)
		metrics.AuditSinkErrors.WithLabelValues(s.name, kind).Inc()
		s.setConnected(false)

		fields := []zap.Field{
			zap.Error(err),
			zap.String("error_type", kind),
			zap.Duration("duration", elapsed),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		}
		if kind == "network" || kind == "timeout" || kind == "cancelled" {
			s.logger.Warn("Kafka unavailable, audit event dropped", fields...)
		} else {
			s.logger.Error("Kafka rejected audit event", fields...)
		}
		return fmt.Errorf("kafka write (%s): %w", kind, err)
	}

	s.written.Add(1)
	if s.setConnected(true) {
		s.logger.Info("Kafka audit sink reconnected", zap.String("name", s.name))
	}
	return nil
}

// setConnected records the broker state and reports whether it changed.
func (s *KafkaSink) setConnected(up bool) bool {
	if s.connected.Swap(up) == up {
		return false
	}
	v := 0.0
	if up {
		v = 1
	}
	metrics.AuditSinkConnected.WithLabelValues(s.name).Set(v)
	return true
}

func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.setConnected(false)

	s.logger.Info("Closing Kafka audit sink",
		zap.String("name", s.name),
		zap.Int64("messages_written", s.written.Load()),
		zap.Int64("messages_failed", s.failed.Load()))
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

func (s *KafkaSink) Name() string { return s.name }

// IsConnected reports whether the last write succeeded.
func (s *KafkaSink) IsConnected() bool { return s.connected.Load() }

// MessageStats returns written and failed counts.
func (s *KafkaSink) MessageStats() (written, failed int64) {
	return s.written.Load(), s.failed.Load()
}
