// Package upstream is the HTTP client for the remote embedding API.
//
// Two endpoints are used, always in this order and never retried:
//
//	POST <base>/v1/auth/                                               {name, secret}      -> payload.access_token
//	POST <base>/v1/teams/{team}/workspaces/{slug}/guest-token/  Bearer  {user, resources, rls} -> payload.token
//
// Each call is bounded by Config.Timeout (default 7s). A timeout is reported
// with Retryable set. Non-2xx bodies are kept in Error.Detail for logging.
package upstream
