package mail

import (
	"crypto/tls"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/northbeam-ai/sitegate/pkg/config"
	"github.com/northbeam-ai/sitegate/pkg/metrics"
)

const (
	defaultRetryCount     = 3
	defaultRetryBackoffMs = 100
	maxRetryBackoffMs     = 32000
)

// ErrNoRecipients is returned for a message without receivers.
var ErrNoRecipients = errors.New("mail has no recipients")

// Message is a single HTML e-mail.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	Body    string
}

type Sender interface {
	Send(msg Message) error
	GetHost() string
}

// Dialer is the part of gomail.Dialer the sender uses.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type sender struct {
	dialer         Dialer
	host           string
	from           string
	retryCount     int
	retryBackoffMs int
	sleep          func(time.Duration)
	log            *zap.SugaredLogger
}

// NewSender creates an SMTP sender from the mail configuration.
func NewSender(cfg config.Mail, log *zap.SugaredLogger) Sender {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("mail")
	log.Infow("Initializing mail sender", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warn("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	return newSender(d, cfg, log)
}

func newSender(d Dialer, cfg config.Mail, log *zap.SugaredLogger) *sender {
	from := cfg.From
	if from == "" {
		from = "noreply@" + cfg.Host
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	return &sender{
		dialer:         d,
		host:           cfg.Host,
		from:           from,
		retryCount:     retryCount,
		retryBackoffMs: defaultRetryBackoffMs,
		sleep:          time.Sleep,
		log:            log,
	}
}

func (s *sender) Send(msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	var lastErr error
	backoffMs := s.retryBackoffMs
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(m)
		if err == nil {
			s.log.Debugw("Mail sent", "receivers", len(msg.To), "attempt", attempt+1)
			metrics.MailSendSuccess.WithLabelValues(s.host).Inc()
			return nil
		}
		lastErr = err
		if attempt < s.retryCount {
			s.log.Warnw("Mail send attempt failed", "attempt", attempt+1, "error", err, "retryInMs", backoffMs)
			s.sleep(time.Duration(backoffMs) * time.Millisecond)
			backoffMs = int(math.Min(float64(backoffMs)*2, maxRetryBackoffMs))
		}
	}

	s.log.Errorw("Failed to send mail", "attempts", s.retryCount+1, "error", lastErr)
	metrics.MailSendFailure.WithLabelValues(s.host).Inc()
	return lastErr
}

func (s *sender) GetHost() string {
	return s.host
}
