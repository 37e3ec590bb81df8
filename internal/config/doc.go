// Package config handles configuration loading for embed-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, or, when no file exists, from environment variables alone.
// The resulting Config is built once at startup and never mutated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from EMBED_GATEWAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/embed-gateway/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are decoded with BurntSushi/toml; anything else is
// decoded as YAML.
//
// # Environment Variable Expansion
//
//	credentials:
//	  api_token: "${API_TOKEN}"
//	  api_secret: "${API_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  shutdown_timeout: "5s"
//
//	upstream:
//	  base_url: "https://api.app.preset.io/"
//	  timeout: "7s"                 # per outbound call
//
//	embed:
//	  dashboard_id: "${DASHBOARD_ID}"
//	  superset_domain: "${SUPERSET_DOMAIN}"
//	  team: "${PRESET_TEAM}"
//	  workspace_slug: "${WORKSPACE_SLUG}"
//	  guest_user:                   # optional, placeholder identity otherwise
//	    username: "viewer"
//	  rls:                          # optional, defaults to no rules
//	    - dataset: 12
//	      clause: "region = 'emea'"
//	    - clause: "tenant = 'acme'" # applies to every dataset
//
//	keys:
//	  private_key_path: "keys/embedded-example-private-key.pem"
//	  key_id: "${KEY_ID}"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates URLs, enum values, durations and RLS clauses. Credentials
// and key material are optional here; their absence surfaces as a
// configuration error when a token is requested in the mode that needs them.
package config
