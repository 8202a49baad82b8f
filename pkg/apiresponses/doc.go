// Package apiresponses provides the JSON error envelope and response helpers
// shared by the HTTP handlers and the auth middleware.
package apiresponses
