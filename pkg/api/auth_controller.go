package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/apiresponses"
	"github.com/northbeam-ai/sitegate/pkg/audit"
	"github.com/northbeam-ai/sitegate/pkg/auth"
	"github.com/northbeam-ai/sitegate/pkg/metrics"
	"github.com/northbeam-ai/sitegate/pkg/system"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	User      auth.User `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthController serves /api/auth: login, logout and the current session.
type AuthController struct {
	authenticator *auth.Authenticator
	tokens        *auth.TokenManager
	secureCookie  bool
	audit         audit.Emitter
	log           *zap.SugaredLogger
}

func NewAuthController(authenticator *auth.Authenticator, tokens *auth.TokenManager, secureCookie bool, emitter audit.Emitter, log *zap.SugaredLogger) *AuthController {
	return &AuthController{
		authenticator: authenticator,
		tokens:        tokens,
		secureCookie:  secureCookie,
		audit:         emitterOrNop(emitter),
		log:           log.Named("auth"),
	}
}

func (a *AuthController) BasePath() string { return "auth" }

func (a *AuthController) Handlers() []gin.HandlerFunc { return nil }

func (a *AuthController) Register(rg *gin.RouterGroup) error {
	rg.POST("login", a.login)
	rg.POST("logout", a.logout)
	rg.GET("session", a.session)
	return nil
}

func (a *AuthController) login(c *gin.Context) {
	log := system.GetReqLogger(c, a.log)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequest(c, "username and password are required")
		return
	}

	user, err := a.authenticator.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		metrics.AdminLogins.WithLabelValues("failure").Inc()
		log.Infow("Admin login failed", "username", req.Username)
		ev := &audit.Event{
			Type:          audit.EventAuthFailure,
			Actor:         actor(c),
			Target:        audit.Target{Kind: "user", Name: req.Username},
			CorrelationID: requestID(c),
		}
		a.audit.Emit(c.Request.Context(), ev)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			apiresponses.RespondUnauthorizedWithMessage(c, "invalid username or password")
			return
		}
		apiresponses.RespondInternalError(c, "authenticate", err, log)
		return
	}

	token, expiresAt, err := a.tokens.Issue(user)
	if err != nil {
		apiresponses.RespondInternalError(c, "issue token", err, log)
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, token, int(a.tokens.TTL().Seconds()), "/", "", a.secureCookie, true)

	metrics.AdminLogins.WithLabelValues("success").Inc()
	ev := &audit.Event{
		Type:          audit.EventAuthSuccess,
		Actor:         actor(c),
		Target:        audit.Target{Kind: "user", Name: user.Username},
		CorrelationID: requestID(c),
	}
	ev.Actor.User = user.Username
	a.audit.Emit(c.Request.Context(), ev)
	log.Infow("Admin logged in", "username", user.Username)

	apiresponses.RespondOK(c, gin.H{
		"user":      user,
		"token":     token,
		"expiresAt": expiresAt,
	})
}

func (a *AuthController) logout(c *gin.Context) {
	username := ""
	if claims, err := a.tokens.Parse(auth.TokenFromRequest(c)); err == nil {
		username = claims.Username
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", a.secureCookie, true)

	if username != "" {
		ev := &audit.Event{
			Type:          audit.EventAuthLogout,
			Actor:         actor(c),
			Target:        audit.Target{Kind: "user", Name: username},
			CorrelationID: requestID(c),
		}
		ev.Actor.User = username
		a.audit.Emit(c.Request.Context(), ev)
	}
	apiresponses.RespondNoContent(c)
}

func (a *AuthController) session(c *gin.Context) {
	token := auth.TokenFromRequest(c)
	if token == "" {
		apiresponses.RespondUnauthorized(c)
		return
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		apiresponses.RespondUnauthorizedWithMessage(c, "invalid or expired session")
		return
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	apiresponses.RespondOK(c, sessionResponse{User: claims.User(), ExpiresAt: expiresAt})
}
