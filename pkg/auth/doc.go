// Package auth issues and verifies the signed admin session tokens, hashes
// admin passwords with argon2id and provides the gin middleware guarding the
// admin API.
package auth
