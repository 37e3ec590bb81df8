// Package gateway serves guest tokens for embedded dashboards over HTTP.
//
// # Overview
//
// The Gateway wires configuration to the guest token service. At startup it
// builds the upstream client used by remote mode and reads the signing key
// used by local mode, then exposes both through a small set of routes.
//
// # HTTP API
//
//   - GET /guest-token?auth_type=api|pem - Issue a guest token (JSON string)
//   - GET /pem-key - Issue a locally signed guest token
//   - GET /embed-config?auth_type=api|pem - Dashboard id and domain for the SDK
//   - GET /health - Liveness check
//
// Failures are returned as {"error": "..."} with 400 for configuration
// problems and 500 for upstream or signing failures. Upstream response
// bodies are logged, never returned.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Run listens on server.http_addr and shuts down gracefully within
// server.shutdown_timeout once the context is canceled.
package gateway
