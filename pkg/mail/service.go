// SPDX-FileCopyrightText: 2025 Northbeam AI
// SPDX-License-Identifier: Apache-2.0

package mail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/config"
)

// Service renders lead mails and hands them to the queue.
type Service struct {
	queue            *Queue
	salesInbox       string
	sendConfirmation bool
	brandingName     string
	adminURL         string
	logger           *zap.SugaredLogger
}

// ServiceOptions carries the presentation settings that are not part of the SMTP config.
type ServiceOptions struct {
	BrandingName string
	// AdminURL is the base URL of the lead admin page; the lead ID is appended.
	AdminURL string
}

// NewService creates a Service that sends through the configured SMTP server.
// It returns nil when mail is disabled; a nil *Service drops every message.
func NewService(cfg config.Mail, opts ServiceOptions, logger *zap.SugaredLogger) *Service {
	if !cfg.Enabled() {
		if logger != nil {
			logger.Info("SMTP host not configured - mail notifications disabled")
		}
		return nil
	}
	return NewServiceWithSender(NewSender(cfg, logger), cfg, opts, logger)
}

// NewServiceWithSender is NewService with an explicit sender.
func NewServiceWithSender(sender Sender, cfg config.Mail, opts ServiceOptions, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.BrandingName == "" {
		opts.BrandingName = "Northbeam AI"
	}
	qcfg := DefaultQueueConfig()
	if cfg.QueueSize > 0 {
		qcfg.Size = cfg.QueueSize
	}
	if cfg.RatePerSecond > 0 {
		qcfg.RatePerSecond = cfg.RatePerSecond
	}
	return &Service{
		queue:            NewQueue(sender, qcfg, logger),
		salesInbox:       cfg.SalesInbox,
		sendConfirmation: cfg.SendConfirmation,
		brandingName:     opts.BrandingName,
		adminURL:         opts.AdminURL,
		logger:           logger.Named("mail-service"),
	}
}

// Start starts the queue worker.
func (s *Service) Start() {
	if s == nil {
		return
	}
	s.queue.Start()
}

// Enabled reports whether mails are actually sent.
func (s *Service) Enabled() bool {
	return s != nil
}

// NotifyLead queues the sales notification and, when configured, the
// confirmation to the submitter. Only queueing errors are returned.
func (s *Service) NotifyLead(_ context.Context, p LeadParams) error {
	if s == nil {
		return nil
	}
	p.BrandingName = s.brandingName
	if s.adminURL != "" && p.LeadID != "" {
		p.AdminURL = s.adminURL + "/" + p.LeadID
	}
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = time.Now()
	}

	body, err := RenderLeadNotification(p)
	if err != nil {
		return fmt.Errorf("render lead notification: %w", err)
	}
	subject := fmt.Sprintf("New contact request from %s", p.Name)
	if p.Company != "" {
		subject += " (" + p.Company + ")"
	}
	if err := s.queue.Enqueue("lead-"+p.LeadID, Message{
		To:      []string{s.salesInbox},
		ReplyTo: p.Email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return err
	}

	if !s.sendConfirmation {
		return nil
	}
	body, err = RenderLeadConfirmation(p)
	if err != nil {
		return fmt.Errorf("render lead confirmation: %w", err)
	}
	return s.queue.Enqueue("confirm-"+p.LeadID, Message{
		To:      []string{p.Email},
		Subject: "We received your message - " + s.brandingName,
		Body:    body,
	})
}

// Stop drains the queue.
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.queue.Stop(ctx)
}
