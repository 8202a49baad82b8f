package security

import (
	"path"
	"strings"

	"github.com/northbeam-ai/sitegate/pkg/auth"
	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
)

// Policy describes which paths the guard treats specially.
type Policy struct {
	LoginPath      string
	AdminPrefix    string
	APIPrefix      string
	AuthAPIPrefix  string
	AdminAPIPrefix string

	// ProtectedPrefixes are rejected with 403 by plain prefix match.
	ProtectedPrefixes []string
	// SensitiveExtensions are rejected with 403 by case-insensitive suffix match.
	SensitiveExtensions []string
	// StaticPrefixes bypass the guard entirely.
	StaticPrefixes []string

	AuthCookie string
	// EscalateProbes counts sensitive path probes as suspicious activity.
	EscalateProbes bool
}

// DefaultPolicy returns the policy for the public marketing site.
func DefaultPolicy() Policy {
	return Policy{
		LoginPath:      "/admin/login",
		AdminPrefix:    "/admin",
		APIPrefix:      "/api",
		AuthAPIPrefix:  "/api/auth",
		AdminAPIPrefix: "/api/admin",
		ProtectedPrefixes: []string{
			"/api/internal/",
			"/.next/",
			"/build/",
			"/.env",
			"/.git/",
			"/src/",
			"/config/",
			"/lib/",
			"/node_modules/",
		},
		SensitiveExtensions: []string{
			".env", ".json", ".ts", ".tsx", ".sql", ".log", ".bak",
			".config", ".yml", ".yaml", ".key", ".pem",
		},
		StaticPrefixes: []string{
			"/_next/static/",
			"/_next/image",
			"/assets/",
			"/favicon.ico",
		},
		AuthCookie:     auth.CookieName,
		EscalateProbes: true,
	}
}

// Normalize cleans p so that "//.env" or "/assets/../.env" match like "/.env".
func Normalize(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// underPrefix matches prefix as a whole path segment: "/admin" matches
// "/admin" and "/admin/x" but not "/administrator".
func underPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// IsStatic reports whether p is a static asset excluded from the guard.
func (pol Policy) IsStatic(p string) bool {
	for _, prefix := range pol.StaticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// IsLogin reports whether p is the admin login page.
func (pol Policy) IsLogin(p string) bool {
	return p == strings.TrimSuffix(pol.LoginPath, "/")
}

// IsSensitive reports whether p is a protected route or a sensitive file type.
func (pol Policy) IsSensitive(p string) bool {
	for _, prefix := range pol.ProtectedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	lower := strings.ToLower(p)
	for _, ext := range pol.SensitiveExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// IsAdminArea reports whether p belongs to the admin UI or the admin API.
// Responses for these paths get the admin header variant.
func (pol Policy) IsAdminArea(p string) bool {
	return underPrefix(p, pol.AdminPrefix) || underPrefix(p, pol.AdminAPIPrefix)
}

// IsAdminUI reports whether p is an admin page that requires a session cookie.
func (pol Policy) IsAdminUI(p string) bool {
	return underPrefix(p, pol.AdminPrefix) && !pol.IsLogin(p)
}

// RateCategory returns the rate limit category of an API path.
func (pol Policy) RateCategory(p string) (ratelimit.Category, bool) {
	switch {
	case !underPrefix(p, pol.APIPrefix):
		return "", false
	case underPrefix(p, pol.AuthAPIPrefix):
		return ratelimit.CategoryLogin, true
	case underPrefix(p, pol.AdminAPIPrefix):
		return ratelimit.CategoryAdmin, true
	default:
		return ratelimit.CategoryAPI, true
	}
}
