// Package ratelimit implements fixed-window request accounting per client and
// category, the gin middleware that enforces it, and the suspicious-activity
// tracker that maintains the blocked IP set. State lives behind the Store
// interface so a single process can use MemoryStore and a fleet can share a
// RedisStore.
package ratelimit
