package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/apiresponses"
	"github.com/northbeam-ai/sitegate/pkg/config"
	"github.com/northbeam-ai/sitegate/pkg/security"
	"github.com/northbeam-ai/sitegate/pkg/system"
	"github.com/northbeam-ai/sitegate/pkg/telemetry"
)

const (
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	gin    *gin.Engine
	config config.Config
	log    *zap.SugaredLogger
	checks map[string]ReadinessCheck
}

// NewServer builds the engine. guard may be nil in tests that exercise
// controllers in isolation.
func NewServer(log *zap.Logger, cfg config.Config, guard *security.Guard) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		telemetry.Middleware(),
		system.RequestLogger(log.Sugar()),
	)

	if cfg.Server.Debug {
		engine.Use(
			cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
				AllowMethods:     []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", system.RequestIDHeader},
				ExposeHeaders:    []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}),
		)
	}
	if guard != nil {
		engine.Use(guard.Handler())
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = "./frontend/dist"
	}
	spa := ServeSPA("/", staticDir)
	engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			apiresponses.RespondNotFound(c, "route", c.Request.URL.Path)
			return
		}
		spa(c)
	})

	return &Server{
		gin:    engine,
		config: cfg,
		log:    log.Sugar().Named("server"),
		checks: map[string]ReadinessCheck{},
	}
}

// AddReadinessCheck registers a named check for /readyz.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.checks[name] = check
}

func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return fmt.Errorf("register %s: %w", c.BasePath(), err)
		}
	}
	return nil
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.gin
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Server.ListenAddress,
		Handler:           s.gin,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       config.ParseDurationOrDefault(s.config.Server.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      config.ParseDurationOrDefault(s.config.Server.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.httpServer()
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("HTTP server listening", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := config.ParseDurationOrDefault(s.config.Server.ShutdownTimeout, defaultShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Infow("Shutting down HTTP server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
