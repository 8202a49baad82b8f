package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northbeam-ai/sitegate/pkg/ratelimit"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":                  "/",
		"/":                 "/",
		"//.env":            "/.env",
		"/assets/../.env":   "/.env",
		"/admin/":           "/admin",
		"admin/login":       "/admin/login",
		"/api/./contact//x": "/api/contact/x",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestPolicyIsSensitive(t *testing.T) {
	pol := DefaultPolicy()
	blocked := []string{
		"/.env", "/.env.local", "/.git/config", "/api/internal/x", "/node_modules/a/b.js",
		"/src/app.tsx", "/package.json", "/backup.SQL", "/server.pem", "/deploy.yaml",
		"/.next/server/pages", "/config/db",
	}
	for _, p := range blocked {
		assert.True(t, pol.IsSensitive(p), p)
	}
	allowed := []string{"/", "/about", "/api/contact", "/admin", "/api/internal", "/sources", "/blog/environment"}
	for _, p := range allowed {
		assert.False(t, pol.IsSensitive(p), p)
	}
}

func TestPolicyIsStatic(t *testing.T) {
	pol := DefaultPolicy()
	assert.True(t, pol.IsStatic("/_next/static/chunks/main.js"))
	assert.True(t, pol.IsStatic("/_next/image"))
	assert.True(t, pol.IsStatic("/assets/logo.svg"))
	assert.True(t, pol.IsStatic("/favicon.ico"))
	assert.False(t, pol.IsStatic("/api/contact"))
	assert.False(t, pol.IsStatic("/_next/data"))
}

func TestPolicyAdminMatching(t *testing.T) {
	pol := DefaultPolicy()

	assert.True(t, pol.IsLogin("/admin/login"))
	assert.False(t, pol.IsLogin("/admin/login/extra"))

	assert.True(t, pol.IsAdminArea("/admin"))
	assert.True(t, pol.IsAdminArea("/admin/leads"))
	assert.True(t, pol.IsAdminArea("/api/admin/contacts"))
	assert.False(t, pol.IsAdminArea("/administrator"))
	assert.False(t, pol.IsAdminArea("/api/administer"))

	assert.True(t, pol.IsAdminUI("/admin"))
	assert.True(t, pol.IsAdminUI("/admin/leads"))
	assert.False(t, pol.IsAdminUI("/admin/login"))
	assert.False(t, pol.IsAdminUI("/api/admin/contacts"))
}

func TestPolicyRateCategory(t *testing.T) {
	pol := DefaultPolicy()
	tests := []struct {
		path string
		cat  ratelimit.Category
		ok   bool
	}{
		{"/api/contact", ratelimit.CategoryAPI, true},
		{"/api/content/hero", ratelimit.CategoryAPI, true},
		{"/api/auth/login", ratelimit.CategoryLogin, true},
		{"/api/admin/contacts", ratelimit.CategoryAdmin, true},
		{"/api", ratelimit.CategoryAPI, true},
		{"/apis", "", false},
		{"/about", "", false},
		{"/admin", "", false},
	}
	for _, tt := range tests {
		cat, ok := pol.RateCategory(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.cat, cat, tt.path)
	}
}
