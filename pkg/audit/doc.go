// Package audit records security and administrative events (blocked probes,
// admin logins, lead submissions, content edits) and forwards them to log,
// webhook and Kafka sinks through a non-blocking queue.
package audit
