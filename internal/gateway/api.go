// ABOUTME: HTTP API handlers for guest token issuance
// ABOUTME: GET /guest-token, /pem-key, /embed-config with JSON bodies and {"error"} failures

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/2389/embed-gateway/internal/guesttoken"
)

// EmbedConfigResponse is the JSON response for GET /embed-config.
// The front-end uses it to initialise the embedded SDK.
type EmbedConfigResponse struct {
	DashboardID    string `json:"dashboard_id"`
	SupersetDomain string `json:"superset_domain"`
	AuthType       string `json:"auth_type"`
}

// handleGuestToken handles GET /guest-token?auth_type=api|pem.
// The token is returned as a JSON string.
func (g *Gateway) handleGuestToken(w http.ResponseWriter, r *http.Request) {
	g.issue(w, r, guesttoken.ParseMode(r.URL.Query().Get("auth_type")))
}

// handlePEMKey handles GET /pem-key, always signing locally.
func (g *Gateway) handlePEMKey(w http.ResponseWriter, r *http.Request) {
	g.issue(w, r, guesttoken.ModePEM)
}

func (g *Gateway) issue(w http.ResponseWriter, r *http.Request, mode guesttoken.Mode) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token, err := g.IssueToken(r.Context(), mode)
	if err != nil {
		g.sendJSONError(w, guesttoken.HTTPStatus(err), guesttoken.PublicMessage(err))
		return
	}

	g.sendJSON(w, http.StatusOK, token)
}

// handleEmbedConfig handles GET /embed-config?auth_type=api|pem.
func (g *Gateway) handleEmbedConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	mode := guesttoken.ParseMode(r.URL.Query().Get("auth_type"))
	if mode == guesttoken.ModePEM {
		if len(g.keys.PrivateKeyPEM) == 0 {
			g.sendJSONError(w, http.StatusBadRequest, "PEM key files not found.")
			return
		}
		if g.keys.KeyID == "" {
			g.sendJSONError(w, http.StatusBadRequest, "Key ID not defined in configuration.")
			return
		}
	}

	g.sendJSON(w, http.StatusOK, EmbedConfigResponse{
		DashboardID:    g.config.Embed.DashboardID,
		SupersetDomain: g.config.Embed.SupersetDomain,
		AuthType:       string(mode),
	})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to write response", "error", err)
	}
}

// sendJSONError writes {"error": message}. Upstream details are never included.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
