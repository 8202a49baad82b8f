// Package cli defines the sitegate command tree (serve, hash-password,
// generate-jwt-secret, version) and wires the server components from the
// loaded configuration.
package cli
