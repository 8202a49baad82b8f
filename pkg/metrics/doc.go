// Package metrics defines Prometheus metrics for sitegate, covering rate-limit
// decisions, security middleware outcomes, suspicious activity, admin logins,
// lead capture, content edits, mail delivery and the audit pipeline.
package metrics
