// ABOUTME: Guest token request: exchanges a session token for a scoped guest token
// ABOUTME: POST /v1/teams/{team}/workspaces/{slug}/guest-token/; expects payload.token

package upstream

import (
	"context"
	"fmt"

	"github.com/2389/embed-gateway/internal/guesttoken"
)

const guestTokenFailedMessage = "Unable to generate a Guest token. Please make sure the API key has admin access and the payload is correct."

// RequestGuestToken asks the remote API for a guest token scoped to
// target's dashboard and the given RLS rules. It does not re-authenticate
// on failure.
func (c *Client) RequestGuestToken(ctx context.Context, sessionToken string, target guesttoken.Target, rules []guesttoken.RLSRule) (string, error) {
	switch {
	case sessionToken == "":
		return "", guesttoken.ConfigurationError("request_guest_token", "Session token is required.")
	case target.DashboardID == "":
		return "", guesttoken.ConfigurationError("request_guest_token", "Dashboard ID must be configured.")
	case target.Team == "":
		return "", guesttoken.ConfigurationError("request_guest_token", "Team must be configured.")
	case target.WorkspaceSlug == "":
		return "", guesttoken.ConfigurationError("request_guest_token", "Workspace slug must be configured.")
	}

	endpoint, err := c.endpoint("v1", "teams", target.Team, "workspaces", target.WorkspaceSlug, "guest-token")
	if err != nil {
		return "", guesttoken.ConfigurationError("request_guest_token", "Team and workspace slug must be plain path segments.")
	}

	data, err := c.post(ctx, call{
		op:       "request_guest_token",
		kind:     guesttoken.KindUpstreamToken,
		message:  guestTokenFailedMessage,
		endpoint: endpoint,
		bearer:   sessionToken,
		body:     guesttoken.NewRequest(target, rules),
	})
	if err != nil {
		return "", err
	}

	token, err := c.extractString(data, []string{"payload", "token"})
	if err != nil {
		return "", &guesttoken.Error{
			Kind:    guesttoken.KindUpstreamToken,
			Op:      "request_guest_token",
			Message: guestTokenFailedMessage,
			Err:     fmt.Errorf("payload.token: %w", err),
		}
	}
	return token, nil
}
