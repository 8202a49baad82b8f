package auth

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/northbeam-ai/sitegate/pkg/apiresponses"
)

const (
	AuthHeaderKey = "Authorization"

	// ClaimsKey is the gin context key holding *Claims after a successful check.
	ClaimsKey = "claims"
)

// TokenFromRequest extracts the session token from the auth cookie or a Bearer header.
func TokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(CookieName); err == nil && cookie != "" {
		return cookie
	}
	if h := c.GetHeader(AuthHeaderKey); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}

// SetContext stores the claims in the gin context under the keys used by the
// request logger.
func SetContext(c *gin.Context, claims *Claims) {
	c.Set(ClaimsKey, claims)
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("email", claims.Email)
	c.Set("role", claims.Role)
}

// ClaimsFromContext returns the claims stored by RequireAdmin.
func ClaimsFromContext(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

// RequireAdmin rejects requests without a valid admin token: 401 for a
// missing or invalid token, 403 for a valid token without the admin role.
func (m *TokenManager) RequireAdmin(log *zap.SugaredLogger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			apiresponses.RespondUnauthorized(c)
			c.Abort()
			return
		}
		claims, err := m.Parse(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "token expired"
			}
			log.Debugw("Rejected admin API token", "path", c.Request.URL.Path, "error", err)
			apiresponses.RespondUnauthorizedWithMessage(c, msg)
			c.Abort()
			return
		}
		if !claims.IsAdmin() {
			apiresponses.RespondForbidden(c, "admin role required")
			c.Abort()
			return
		}
		SetContext(c, claims)
		c.Next()
	}
}
