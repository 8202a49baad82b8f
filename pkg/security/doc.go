// Package security implements the request guard applied to every route: it
// stamps security headers, rejects probes for sensitive files, refuses
// blocked IPs, applies per-category rate limits to the API and sends
// unauthenticated visitors of the admin area back to the login page.
package security
