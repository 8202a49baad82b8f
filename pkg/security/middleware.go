package security

import (
	"context"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/auth"
	"github.com/northbeam-ai/sitegate/pkg/metrics"
	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
	"github.com/northbeam-ai/sitegate/pkg/system"
)

const accessDenied = "Access Denied"

// Decision names recorded as metric label and span attribute.
const (
	DecisionStatic        = "static"
	DecisionLoginBypass   = "login_bypass"
	DecisionSensitive     = "sensitive_blocked"
	DecisionIPBlocked     = "ip_blocked"
	DecisionRateLimited   = "rate_limited"
	DecisionLoginRedirect = "login_redirect"
	DecisionAdminAccess   = "admin_access"
	DecisionAllowed       = "allowed"
)

// TokenVerifier validates an admin session token.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// Options wires the guard to its collaborators. Limiter, Suspicion and Tokens
// are required; Audit and Logger default to no-ops.
type Options struct {
	Policy    Policy
	Headers   HeaderSet
	Admin     HeaderSet
	Limiter   *ratelimit.Limiter
	Suspicion *ratelimit.SuspicionTracker
	Tokens    TokenVerifier
	Audit     audit.Emitter
	Logger    *zap.SugaredLogger
}

// Guard is the security middleware.
type Guard struct {
	policy    Policy
	headers   HeaderSet
	admin     HeaderSet
	limiter   *ratelimit.Limiter
	suspicion *ratelimit.SuspicionTracker
	tokens    TokenVerifier
	audit     audit.Emitter
	log       *zap.SugaredLogger
	tracer    trace.Tracer
}

// NewGuard builds a Guard. Zero-valued header sets use DefaultHeaders and AdminHeaders.
func NewGuard(opts Options) *Guard {
	g := &Guard{
		policy:    opts.Policy,
		headers:   opts.Headers,
		admin:     opts.Admin,
		limiter:   opts.Limiter,
		suspicion: opts.Suspicion,
		tokens:    opts.Tokens,
		audit:     opts.Audit,
		log:       opts.Logger,
		tracer:    otel.Tracer("github.com/northbeam-ai/sitegate/pkg/security"),
	}
	if g.headers.values == nil {
		g.headers = DefaultHeaders()
	}
	if g.admin.values == nil {
		g.admin = AdminHeaders()
	}
	if g.audit == nil {
		g.audit = audit.NopEmitter{}
	}
	if g.log == nil {
		g.log = zap.NewNop().Sugar()
	}
	g.log = g.log.Named("security")
	return g
}

// Handler returns the gin middleware. Every rejection aborts the chain and is
// one of: 403 plain text, 429 JSON or a 302 redirect to the login page.
func (g *Guard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Normalize(c.Request.URL.Path)
		if g.policy.IsStatic(p) {
			metrics.SecurityDecisions.WithLabelValues(DecisionStatic).Inc()
			c.Next()
			return
		}

		ctx, span := g.tracer.Start(c.Request.Context(), "security.guard",
			trace.WithAttributes(attribute.String("url.path", p)))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		decision := g.decide(ctx, c, p)
		span.SetAttributes(attribute.String("security.decision", decision))
		if c.IsAborted() {
			span.SetStatus(codes.Error, decision)
		}
		metrics.SecurityDecisions.WithLabelValues(decision).Inc()

		if !c.IsAborted() {
			c.Next()
		}
	}
}

func (g *Guard) decide(ctx context.Context, c *gin.Context, p string) string {
	if g.policy.IsAdminArea(p) {
		g.admin.Apply(c.Writer.Header())
	} else {
		g.headers.Apply(c.Writer.Header())
	}

	if g.policy.IsLogin(p) {
		return DecisionLoginBypass
	}

	clientID := ratelimit.ClientID(c.Request)
	log := system.GetReqLogger(c, g.log)

	if g.policy.IsSensitive(p) {
		log.Warnw("Blocked request for sensitive path", "clientID", clientID)
		g.emit(ctx, c, audit.EventSensitivePathBlocked, clientID, "path", p, nil)
		if g.policy.EscalateProbes && clientID != ratelimit.UnknownClient {
			if g.suspicion.Mark(ctx, clientID) {
				g.emit(ctx, c, audit.EventIPBlocked, clientID, "ip", clientID,
					map[string]interface{}{"reason": "repeated sensitive path probes"})
			}
		}
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.AbortWithStatus(http.StatusForbidden)
		_, _ = c.Writer.WriteString(accessDenied)
		return DecisionSensitive
	}

	if g.suspicion.IsBlocked(ctx, clientID) {
		log.Infow("Rejected request from blocked IP", "clientID", clientID)
		g.emit(ctx, c, audit.EventBlockedIPRequest, clientID, "path", p, nil)
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.AbortWithStatus(http.StatusForbidden)
		_, _ = c.Writer.WriteString(accessDenied)
		return DecisionIPBlocked
	}

	if cat, ok := g.policy.RateCategory(p); ok {
		res := g.limiter.Check(ctx, clientID, cat)
		if !res.Allowed {
			log.Infow("Rate limit exceeded", "clientID", clientID, "category", cat)
			g.emit(ctx, c, audit.EventRateLimited, clientID, "path", p,
				map[string]interface{}{"category": string(cat), "limit": res.Limit})
			g.limiter.Reject(c, res)
			return DecisionRateLimited
		}
		ratelimit.SetHeaders(c.Writer.Header(), res)
	}

	if g.policy.IsAdminUI(p) {
		return g.checkAdmin(ctx, c, p, clientID)
	}
	return DecisionAllowed
}

func (g *Guard) checkAdmin(ctx context.Context, c *gin.Context, p, clientID string) string {
	token, err := c.Cookie(g.policy.AuthCookie)
	if err != nil || token == "" {
		g.redirectToLogin(c, p)
		return DecisionLoginRedirect
	}

	claims, err := g.tokens.Parse(token)
	if err != nil || !claims.IsAdmin() {
		reason := "insufficient role"
		if err != nil {
			reason = err.Error()
		}
		system.GetReqLogger(c, g.log).Warnw("Invalid admin session", "clientID", clientID, "reason", reason)
		g.emit(ctx, c, audit.EventAdminAccessDenied, clientID, "path", p,
			map[string]interface{}{"reason": reason})
		g.redirectToLogin(c, p)
		return DecisionLoginRedirect
	}

	auth.SetContext(c, claims)
	ev := g.event(c, audit.EventAdminAccess, clientID, "path", p, nil)
	ev.Actor.User = claims.Username
	g.audit.Emit(ctx, ev)
	return DecisionAdminAccess
}

func (g *Guard) redirectToLogin(c *gin.Context, from string) {
	target := g.policy.LoginPath + "?" + url.Values{"redirect": {from}}.Encode()
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

func (g *Guard) event(c *gin.Context, typ audit.EventType, clientID, kind, name string, details map[string]interface{}) *audit.Event {
	return &audit.Event{
		Type:          typ,
		Actor:         audit.Actor{SourceIP: clientID, UserAgent: c.Request.UserAgent()},
		Target:        audit.Target{Kind: kind, Name: name},
		Details:       details,
		CorrelationID: c.Writer.Header().Get(system.RequestIDHeader),
	}
}

func (g *Guard) emit(ctx context.Context, c *gin.Context, typ audit.EventType, clientID, kind, name string, details map[string]interface{}) {
	g.audit.Emit(ctx, g.event(c, typ, clientID, kind, name, details))
}
