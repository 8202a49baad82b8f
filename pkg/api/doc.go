// Package api wires the sitegate HTTP server: the gin engine with logging,
// recovery and the security guard, the public and admin JSON controllers,
// health and metrics endpoints, and the single-page site bundle.
package api
