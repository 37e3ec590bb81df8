// ABOUTME: Session authentication: exchanges API credentials for a bearer session token
// ABOUTME: POST /v1/auth/ with {name, secret}; expects payload.access_token

package upstream

import (
	"context"
	"fmt"

	"github.com/2389/embed-gateway/internal/guesttoken"
)

const authFailedMessage = "Unable to generate a JWT token. Please make sure your API key is enabled."

type authRequest struct {
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

// Authenticate exchanges creds for a session token. Missing credentials
// fail before any network call. The token is not cached.
func (c *Client) Authenticate(ctx context.Context, creds guesttoken.Credentials) (string, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return "", guesttoken.ConfigurationError("authenticate", "API token and secret must be configured.")
	}

	endpoint, err := c.endpoint("v1", "auth")
	if err != nil {
		return "", &guesttoken.Error{Kind: guesttoken.KindUpstreamAuth, Op: "authenticate", Message: authFailedMessage, Err: err}
	}

	data, err := c.post(ctx, call{
		op:       "authenticate",
		kind:     guesttoken.KindUpstreamAuth,
		message:  authFailedMessage,
		endpoint: endpoint,
		body:     authRequest{Name: creds.APIKey, Secret: creds.APISecret},
	})
	if err != nil {
		return "", err
	}

	token, err := c.extractString(data,
		[]string{"payload", "access_token"},
		[]string{"payload", "accessToken"},
	)
	if err != nil {
		return "", &guesttoken.Error{
			Kind:    guesttoken.KindUpstreamAuth,
			Op:      "authenticate",
			Message: authFailedMessage,
			Err:     fmt.Errorf("payload.access_token: %w", err),
		}
	}

	c.logger.Debug("session token obtained", "api_key", creds.APIKey)
	return token, nil
}
