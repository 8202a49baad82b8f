package contact

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/mail"
	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

// Notifier delivers the lead e-mails. *mail.Service implements it.
type Notifier interface {
	NotifyLead(ctx context.Context, p mail.LeadParams) error
}

// RequestMeta is what the HTTP layer knows about the submitter.
type RequestMeta struct {
	ClientIP      string
	UserAgent     string
	CorrelationID string
}

// Service handles contact submissions and lead administration.
type Service struct {
	store    Store
	notifier Notifier
	audit    audit.Emitter
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewService creates a Service. notifier and emitter may be nil.
func NewService(store Store, notifier Notifier, emitter audit.Emitter, log *zap.SugaredLogger) *Service {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		audit:    emitter,
		log:      log.Named("contact"),
		now:      time.Now,
	}
}

// Submit validates and stores a submission, then queues the notification
// mails. Mail failures are logged and do not fail the submission.
func (s *Service) Submit(ctx context.Context, sub Submission, meta RequestMeta) (Lead, error) {
	sub = sub.Normalize()
	if err := sub.Validate(); err != nil {
		metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		return Lead{}, err
	}

	lead := Lead{
		ID:        uuid.NewString(),
		Name:      sub.Name,
		Email:     sub.Email,
		Company:   sub.Company,
		Phone:     sub.Phone,
		Service:   sub.Service,
		Budget:    sub.Budget,
		Message:   sub.Message,
		Source:    sub.Source,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	}
	if lead.Source == "" {
		lead.Source = "website"
	}

	if err := s.store.Create(ctx, &lead); err != nil {
		if errors.Is(err, ErrDuplicate) {
			metrics.ContactSubmissions.WithLabelValues("duplicate").Inc()
			return Lead{}, err
		}
		metrics.ContactSubmissions.WithLabelValues("error").Inc()
		return Lead{}, err
	}
	metrics.ContactSubmissions.WithLabelValues("stored").Inc()
	s.log.Infow("Stored contact submission", "leadID", lead.ID, "service", lead.Service)

	if s.notifier != nil {
		err := s.notifier.NotifyLead(ctx, mail.LeadParams{
			LeadID:      lead.ID,
			Name:        lead.Name,
			Email:       lead.Email,
			Company:     lead.Company,
			Phone:       lead.Phone,
			Service:     lead.Service,
			Budget:      lead.Budget,
			Message:     lead.Message,
			Source:      lead.Source,
			SubmittedAt: lead.CreatedAt,
		})
		if err != nil {
			s.log.Warnw("Failed to queue lead notification", "leadID", lead.ID, "error", err)
		}
	}

	s.audit.Emit(ctx, &audit.Event{
		Type:          audit.EventContactSubmitted,
		Actor:         audit.Actor{SourceIP: meta.ClientIP, UserAgent: meta.UserAgent},
		Target:        audit.Target{Kind: "lead", Name: lead.ID},
		Details:       map[string]interface{}{"service": lead.Service, "source": lead.Source},
		CorrelationID: meta.CorrelationID,
	})
	return lead, nil
}

func (s *Service) Get(ctx context.Context, id string) (Lead, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, page Page) ([]Lead, int64, error) {
	return s.store.List(ctx, page)
}

// Delete removes a lead on behalf of an admin.
func (s *Service) Delete(ctx context.Context, id string, actor audit.Actor) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Infow("Deleted lead", "leadID", id, "user", actor.User)
	s.audit.Emit(ctx, &audit.Event{
		Type:   audit.EventContactDeleted,
		Actor:  actor,
		Target: audit.Target{Kind: "lead", Name: id},
	})
	return nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
