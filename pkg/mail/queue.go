/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

var (
	// ErrQueueFull is returned when the queue has no free slot.
	ErrQueueFull = errors.New("mail queue is full")
	// ErrQueueStopped is returned after Stop has been called.
	ErrQueueStopped = errors.New("mail queue is shutting down")
)

// QueueConfig tunes the queue. Zero values use the defaults.
type QueueConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Size           int
	// RatePerSecond throttles SMTP dials. Zero or negative disables throttling.
	RatePerSecond float64
}

// DefaultQueueConfig retries five times, starting at 10s and capping at 30m.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxRetries:     5,
		InitialBackoff: 10 * time.Second,
		MaxBackoff:     30 * time.Minute,
		Size:           1000,
		RatePerSecond:  2,
	}
}

// QueueItem represents a single email to be sent with retry information
type QueueItem struct {
	ID        string
	Message   Message
	Attempt   int
	CreatedAt time.Time
	NextRetry time.Time
	Succeeded bool
}

// Queue manages asynchronous mail sending with retries
type Queue struct {
	sender   Sender
	queue    chan *QueueItem
	log      *zap.SugaredLogger
	cfg      QueueConfig
	throttle *rate.Limiter
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewQueue creates a new mail queue for asynchronous sending
func NewQueue(sender Sender, cfg QueueConfig, log *zap.SugaredLogger) *Queue {
	def := DefaultQueueConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("mail-queue")

	throttle := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		throttle = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	log.Infow("Initializing mail queue",
		"maxRetries", cfg.MaxRetries,
		"initialBackoff", cfg.InitialBackoff,
		"size", cfg.Size,
		"ratePerSecond", cfg.RatePerSecond)

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		sender:   sender,
		queue:    make(chan *QueueItem, cfg.Size),
		log:      log,
		cfg:      cfg,
		throttle: throttle,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the background worker for processing emails
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
	q.log.Info("Mail queue worker started")
}

// Enqueue adds an email to the queue for sending. It never blocks.
func (q *Queue) Enqueue(id string, msg Message) error {
	host := q.sender.GetHost()
	if len(msg.To) == 0 {
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		return fmt.Errorf("enqueue %s: %w", id, ErrNoRecipients)
	}

	select {
	case <-q.ctx.Done():
		q.log.Errorw("Cannot enqueue, queue is shutting down", "id", id)
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		return ErrQueueStopped
	default:
	}

	now := time.Now()
	item := &QueueItem{
		ID:        id,
		Message:   msg,
		CreatedAt: now,
		NextRetry: now,
	}

	select {
	case q.queue <- item:
		metrics.MailQueued.WithLabelValues(host).Inc()
		q.log.Debugw("Email queued for sending", "id", id, "receivers", len(msg.To), "subject", msg.Subject)
		return nil
	default:
		metrics.MailQueueDropped.WithLabelValues(host).Inc()
		q.log.Errorw("Mail queue is full, dropping message", "id", id, "queueSize", q.cfg.Size)
		return fmt.Errorf("%w (capacity: %d)", ErrQueueFull, q.cfg.Size)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("panic in mail queue worker recovered", "panic", r)
			metrics.MailFailed.WithLabelValues(q.sender.GetHost()).Inc()
			q.wg.Add(1)
			go q.worker()
		}
	}()

	pending := make([]*QueueItem, 0)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			q.log.Info("Mail queue worker shutting down")
			q.drain(pending)
			return

		case item := <-q.queue:
			q.processItem(q.ctx, item)
			if q.retryable(item) {
				pending = append(pending, item)
			}

		case <-ticker.C:
			now := time.Now()
			remaining := pending[:0]
			for _, item := range pending {
				if now.After(item.NextRetry) {
					q.processItem(q.ctx, item)
				}
				if q.retryable(item) {
					remaining = append(remaining, item)
				}
			}
			pending = remaining
		}
	}
}

func (q *Queue) retryable(item *QueueItem) bool {
	return !item.Succeeded && item.Attempt < q.cfg.MaxRetries
}

// processItem attempts to send an email and schedules retry if needed
func (q *Queue) processItem(ctx context.Context, item *QueueItem) {
	if err := q.throttle.Wait(ctx); err != nil {
		// Shutting down; drain sends the item without waiting.
		return
	}
	item.Attempt++
	host := q.sender.GetHost()

	err := q.sender.Send(item.Message)
	if err == nil {
		q.log.Infow("Queued email sent", "id", item.ID, "attempt", item.Attempt, "subject", item.Message.Subject)
		item.Succeeded = true
		return
	}

	if item.Attempt < q.cfg.MaxRetries {
		backoff := q.backoff(item.Attempt)
		item.NextRetry = time.Now().Add(backoff)
		q.log.Warnw("Email send failed, scheduling retry",
			"id", item.ID,
			"attempt", item.Attempt,
			"error", err,
			"retryIn", backoff.String())
		metrics.MailRetryScheduled.WithLabelValues(host).Inc()
		return
	}

	q.log.Errorw("Email send failed after all retries",
		"id", item.ID,
		"attempts", item.Attempt,
		"error", err,
		"subject", item.Message.Subject)
	metrics.MailFailed.WithLabelValues(host).Inc()
}

// drain makes one last attempt for everything still queued or pending.
func (q *Queue) drain(pending []*QueueItem) {
collect:
	for {
		select {
		case item := <-q.queue:
			pending = append(pending, item)
		default:
			break collect
		}
	}
	q.log.Infow("Processing pending items on shutdown", "count", len(pending))
	for _, item := range pending {
		if q.retryable(item) {
			q.processItem(context.Background(), item)
		}
	}
}

// backoff doubles the initial backoff per attempt, capped at MaxBackoff.
func (q *Queue) backoff(attempt int) time.Duration {
	d := time.Duration(float64(q.cfg.InitialBackoff) * math.Pow(2, float64(attempt-1)))
	if d > q.cfg.MaxBackoff || d <= 0 {
		d = q.cfg.MaxBackoff
	}
	return d
}

// Stop gracefully shuts down the queue and waits for all items to be processed
func (q *Queue) Stop(ctx context.Context) error {
	q.log.Info("Stopping mail queue")
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.log.Info("Mail queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.log.Warn("Mail queue shutdown timeout, some items may not have been processed")
		return ctx.Err()
	}
}

// Length returns the current number of items in the queue
func (q *Queue) Length() int {
	return len(q.queue)
}
