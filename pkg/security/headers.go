package security

import (
	"net/http"
	"sort"
)

// ContentSecurityPolicy allows the Calendly embed and Microsoft Graph calls
// used by the booking widget.
const ContentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://assets.calendly.com; " +
	"style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data: https:; " +
	"font-src 'self' data:; " +
	"connect-src 'self' https://graph.microsoft.com; " +
	"frame-src https://calendly.com; " +
	"frame-ancestors 'none'"

// HeaderSet is an immutable set of response headers.
type HeaderSet struct {
	values map[string]string
}

// NewHeaderSet copies values into a new set. Names are canonicalized.
func NewHeaderSet(values map[string]string) HeaderSet {
	hs := HeaderSet{values: make(map[string]string, len(values))}
	for k, v := range values {
		hs.values[http.CanonicalHeaderKey(k)] = v
	}
	return hs
}

// With returns a copy of the set with overrides applied.
func (h HeaderSet) With(overrides map[string]string) HeaderSet {
	merged := make(map[string]string, len(h.values)+len(overrides))
	for k, v := range h.values {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[http.CanonicalHeaderKey(k)] = v
	}
	return HeaderSet{values: merged}
}

// Get returns the value of name, or "" when unset.
func (h HeaderSet) Get(name string) string {
	return h.values[http.CanonicalHeaderKey(name)]
}

// Names lists the header names in sorted order.
func (h HeaderSet) Names() []string {
	names := make([]string, 0, len(h.values))
	for k := range h.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply sets every header of the set on dst, replacing existing values.
func (h HeaderSet) Apply(dst http.Header) {
	for k, v := range h.values {
		dst.Set(k, v)
	}
}

// DefaultHeaders is stamped on every guarded response.
func DefaultHeaders() HeaderSet {
	return NewHeaderSet(map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Content-Security-Policy":   ContentSecurityPolicy,
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Permissions-Policy":        "camera=(), microphone=(), geolocation=(), interest-cohort=()",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains; preload",
		"Cache-Control":             "no-store, no-cache, must-revalidate, proxy-revalidate",
		"Pragma":                    "no-cache",
		"Expires":                   "0",
	})
}

// AdminHeaders adds no-index and private caching to DefaultHeaders.
func AdminHeaders() HeaderSet {
	return DefaultHeaders().With(map[string]string{
		"X-Robots-Tag":  "noindex, nofollow, nosnippet, noarchive",
		"Cache-Control": "no-store, no-cache, must-revalidate, private, max-age=0",
	})
}
