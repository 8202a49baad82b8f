package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/api"
	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/auth"
	"github.com/northbeam-ai/sitegate/pkg/config"
	"github.com/northbeam-ai/sitegate/pkg/contact"
	"github.com/northbeam-ai/sitegate/pkg/content"
	"github.com/northbeam-ai/sitegate/pkg/mail"
	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
	"github.com/northbeam-ai/sitegate/pkg/security"
	"github.com/northbeam-ai/sitegate/pkg/telemetry"
	"github.com/northbeam-ai/sitegate/pkg/version"
)

const (
	defaultSweepInterval = time.Minute
	componentStopTimeout = 10 * time.Second
)

// closer releases one component during shutdown.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// App is the fully wired server with its background components.
type App struct {
	Server *api.Server
	log    *zap.SugaredLogger
	// closers run in reverse registration order.
	closers []closer
}

// NewApp wires every component described by cfg. On error the components
// created so far are released.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	log := logger.Sugar()
	app := &App{log: log}
	defer func() {
		if err != nil {
			app.shutdown()
		}
	}()

	_, shutdownTracing, err := telemetry.Init(ctx, telemetry.OptionsFromConfig(cfg.Telemetry, version.GetBuildInfo().Version, log))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	app.onClose("telemetry", shutdownTracing)

	store, err := newRateStore(cfg.Redis, log)
	if err != nil {
		return nil, err
	}
	if rs, ok := store.(*ratelimit.RedisStore); ok {
		app.onClose("redis", func(context.Context) error { return rs.Close() })
	}

	limiter := ratelimit.New(store, ratelimit.Config{
		Rules:         rulesFromConfig(cfg.RateLimit),
		SweepInterval: config.ParseDurationOrDefault(cfg.RateLimit.SweepInterval, defaultSweepInterval),
	}, log)
	app.onClose("ratelimit", func(context.Context) error { limiter.Stop(); return nil })

	suspicion := ratelimit.NewSuspicionTracker(store, ratelimit.SuspicionConfig{
		Threshold: cfg.Security.SuspicionThreshold,
		Decay:     config.ParseDurationOrDefault(cfg.Security.SuspicionDecay, ratelimit.DefaultSuspicionDecay),
	}, log)

	sink, err := newAuditSink(cfg.Audit, logger)
	if err != nil {
		return nil, err
	}
	auditor := audit.NewManager(sink, audit.ManagerConfig{
		QueueSize:   cfg.Audit.QueueSize,
		WorkerCount: cfg.Audit.Workers,
	}, logger)
	app.onClose("audit", func(context.Context) error { return auditor.Close() })

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, config.ParseDurationOrDefault(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	accounts := make([]auth.Account, 0, len(cfg.Auth.Admins))
	for _, a := range cfg.Auth.Admins {
		accounts = append(accounts, auth.Account{Username: a.Username, Email: a.Email, PasswordHash: a.PasswordHash})
	}
	if len(accounts) == 0 {
		log.Warn("No admin accounts configured; the admin area cannot be used")
	}
	authenticator := auth.NewAuthenticator(accounts, auth.NewPasswordHasher(auth.DefaultHasherConfig()), log)

	leads, err := app.newLeadStore(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	mailer := mail.NewService(cfg.Mail, mail.ServiceOptions{
		BrandingName: cfg.Mail.BrandingName,
		AdminURL:     cfg.Mail.AdminURL,
	}, log)
	var notifier contact.Notifier
	if mailer.Enabled() {
		mailer.Start()
		notifier = mailer
		app.onClose("mail", mailer.Stop)
	}
	contacts := contact.NewService(leads, notifier, auditor, log)

	seed, err := content.LoadSeed(cfg.Content.SeedFile)
	if err != nil {
		return nil, err
	}
	sections, err := content.NewStore(seed, auditor, log)
	if err != nil {
		return nil, err
	}

	policy := security.DefaultPolicy()
	policy.EscalateProbes = cfg.Security.ProbesEscalate()
	guard := security.NewGuard(security.Options{
		Policy:    policy,
		Limiter:   limiter,
		Suspicion: suspicion,
		Tokens:    tokens,
		Audit:     auditor,
		Logger:    log,
	})

	server := api.NewServer(logger, cfg, guard)
	server.RegisterOps()
	server.AddReadinessCheck("ratelimit", store.Ping)
	server.AddReadinessCheck("contacts", contacts.Ping)
	if err := server.RegisterAll([]api.APIController{
		api.NewAuthController(authenticator, tokens, cfg.Auth.SecureCookie(), auditor, log),
		api.NewContactController(contacts, limiter, log),
		api.NewContentController(sections),
		api.NewAdminController(api.AdminDeps{
			Tokens:    tokens,
			Contacts:  contacts,
			Content:   sections,
			Suspicion: suspicion,
			Audit:     auditor,
		}, log),
	}); err != nil {
		return nil, err
	}
	app.Server = server

	log.Infow("sitegate wired",
		"rateStore", store.Name(),
		"database", cfg.Database.Driver,
		"mail", mailer.Enabled(),
		"auditSink", sink.Name(),
		"telemetry", cfg.Telemetry.Exporter,
		"admins", len(accounts))
	return app, nil
}

// Run serves until ctx is cancelled and then releases every component.
func (a *App) Run(ctx context.Context) error {
	err := a.Server.Run(ctx)
	a.shutdown()
	return err
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		ctx, cancel := context.WithTimeout(context.Background(), componentStopTimeout)
		if err := c.fn(ctx); err != nil {
			a.log.Warnw("Component did not stop cleanly", "component", c.name, "error", err)
		}
		cancel()
	}
	a.closers = nil
}

func newRateStore(cfg config.Redis, log *zap.SugaredLogger) (ratelimit.Store, error) {
	if cfg.URL == "" {
		log.Info("Using in-memory rate limit store; counters are per instance")
		return ratelimit.NewMemoryStore(), nil
	}
	store, err := ratelimit.NewRedisStoreFromURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Info("Using redis rate limit store")
	return store, nil
}

func rulesFromConfig(cfg config.RateLimit) map[ratelimit.Category]ratelimit.Rule {
	rule := func(r config.RateRule) ratelimit.Rule {
		return ratelimit.Rule{Window: r.Window(), MaxRequests: r.MaxRequests}
	}
	return map[ratelimit.Category]ratelimit.Rule{
		ratelimit.CategoryAPI:     rule(cfg.API),
		ratelimit.CategoryContact: rule(cfg.Contact),
		ratelimit.CategoryAdmin:   rule(cfg.Admin),
		ratelimit.CategoryLogin:   rule(cfg.Login),
	}
}

// newAuditSink always logs every event and fans out to the optional webhook
// and kafka sinks, which only see events at or above cfg.ForwardSeverity.
func newAuditSink(cfg config.Audit, logger *zap.Logger) (audit.Sink, error) {
	minSeverity, err := audit.ParseSeverity(cfg.ForwardSeverity)
	if err != nil {
		return nil, err
	}
	var forwarded []audit.Sink
	if cfg.Webhook.URL != "" {
		wh, err := audit.NewWebhookSink(audit.WebhookSinkConfig{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Secret:  cfg.Webhook.Secret,
			Timeout: config.ParseDurationOrDefault(cfg.Webhook.Timeout, 5*time.Second),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("audit webhook sink: %w", err)
		}
		forwarded = append(forwarded, wh)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := audit.NewKafkaSink(audit.KafkaSinkConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			TLS:           cfg.Kafka.TLS,
			SASLMechanism: cfg.Kafka.SASLMechanism,
			Username:      cfg.Kafka.Username,
			Password:      cfg.Kafka.Password,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("audit kafka sink: %w", err)
		}
		forwarded = append(forwarded, ks)
	}

	logSink := audit.NewLogSink(logger)
	if len(forwarded) == 0 {
		return logSink, nil
	}
	sinks := []audit.Sink{logSink}
	for _, s := range forwarded {
		if minSeverity != audit.SeverityInfo {
			s = audit.NewFilterSink(s, minSeverity)
		}
		sinks = append(sinks, s)
	}
	return audit.NewMultiSink(sinks, logger), nil
}

func (a *App) newLeadStore(ctx context.Context, cfg config.Database, log *zap.SugaredLogger) (contact.Store, error) {
	if cfg.Driver == "memory" || cfg.Driver == "" {
		log.Warn("Using in-memory lead store; contact requests are lost on restart")
		return contact.NewMemoryStore(), nil
	}
	db, err := contact.OpenDB(cfg, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	a.onClose("database", func(context.Context) error { return sqlDB.Close() })

	store, err := contact.NewGormStore(ctx, db)
	if err != nil {
		return nil, err
	}
	return store, nil
}
