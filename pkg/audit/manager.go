// SPDX-FileCopyrightText: 2025 Northbeam AI
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

// Emitter is what request handlers and services depend on.
type Emitter interface {
	Emit(ctx context.Context, event *Event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *Event) {}

type ManagerConfig struct {
	// QueueSize bounds the number of events waiting for a worker. Default 1000.
	QueueSize int
	// WorkerCount defaults to 2.
	WorkerCount int
	// WriteTimeout bounds a single sink write. Default 5s.
	WriteTimeout time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{QueueSize: 1000, WorkerCount: 2, WriteTimeout: 5 * time.Second}
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// Manager hands events to a Sink from a pool of workers. Emit never blocks
// the request path and never panics: a full queue or a closed manager drops
// the event and counts it.
type Manager struct {
	sink   Sink
	cfg    ManagerConfig
	queue  chan *Event
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	queued    atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
}

// NewManager starts cfg.WorkerCount workers writing to sink.
func NewManager(sink Sink, cfg ManagerConfig, logger *zap.Logger) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		sink:   sink,
		cfg:    cfg,
		queue:  make(chan *Event, cfg.QueueSize),
		logger: logger.Named("audit-manager"),
	}
	m.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go m.worker(i)
	}
	m.logger.Info("Audit manager started",
		zap.String("sink", sink.Name()),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Int("workers", cfg.WorkerCount))
	return m
}

// prepare fills the id, timestamp and severity, and links the event to the
// active trace when ctx carries one.
func prepare(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityForEventType(event.Type)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		if event.Details == nil {
			event.Details = map[string]interface{}{}
		}
		if _, ok := event.Details["traceId"]; !ok {
			event.Details["traceId"] = sc.TraceID().String()
		}
	}
}

func (m *Manager) drop(event *Event, reason string) {
	m.dropped.Add(1)
	metrics.AuditEventsDropped.Inc()
	if event != nil {
		m.logger.Warn("Audit event dropped",
			zap.String("reason", reason),
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
	}
}

// Emit queues event for the workers.
func (m *Manager) Emit(ctx context.Context, event *Event) {
	if m == nil || event == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recovered panic while emitting audit event", zap.Any("panic", r))
			m.drop(nil, "panic")
		}
	}()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		m.dropped.Add(1)
		return
	}
	prepare(ctx, event)

	select {
	case m.queue <- event:
		m.queued.Add(1)
	default:
		m.drop(event, "queue full")
	}
}

// EmitSync writes event straight to the sink, bypassing the queue. It is
// used for startup and shutdown events that must not be lost.
func (m *Manager) EmitSync(ctx context.Context, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit sink %s panicked: %v", m.sink.Name(), r)
		}
	}()
	prepare(ctx, event)
	return m.sink.Write(ctx, event)
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for event := range m.queue {
		m.deliver(id, event)
	}
}

func (m *Manager) deliver(worker int, event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.AuditSinkErrors.WithLabelValues(m.sink.Name(), "panic").Inc()
			m.logger.Error("Audit sink panicked", zap.Int("worker", worker), zap.Any("panic", r))
		}
	}()

	if err := m.sink.Write(ctx, event); err != nil {
		m.logger.Error("Failed to write audit event",
			zap.Int("worker", worker),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return
	}
	m.processed.Add(1)
	metrics.AuditEventsProcessed.Inc()
}

// Close stops accepting events, drains the queue and closes the sink.
// Calling it again is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Audit manager stopped",
		zap.Int64("processed", m.processed.Load()),
		zap.Int64("dropped", m.dropped.Load()))
	return m.sink.Close()
}

type ManagerStats struct {
	QueuedEvents    int64
	ProcessedEvents int64
	DroppedEvents   int64
	QueueLength     int
	QueueCapacity   int
}

func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		QueuedEvents:    m.queued.Load(),
		ProcessedEvents: m.processed.Load(),
		DroppedEvents:   m.dropped.Load(),
		QueueLength:     len(m.queue),
		QueueCapacity:   cap(m.queue),
	}
}
