// ABOUTME: Guest token service selecting between remote exchange and local signing
// ABOUTME: Each mode is an Issuer strategy; no caching and no cross-mode fallback

package guesttoken

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects how a guest token is produced.
type Mode string

const (
	// ModeAPI exchanges API credentials for a session token, then a guest token.
	ModeAPI Mode = "api"
	// ModePEM signs a guest token locally with a private key.
	ModePEM Mode = "pem"
)

// ParseMode maps an auth_type value to a Mode. Anything other than "pem"
// selects the remote exchange.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModePEM)) {
		return ModePEM
	}
	return ModeAPI
}

// Issuer produces a guest token for a target.
type Issuer interface {
	Issue(ctx context.Context, target Target, rules []RLSRule) (string, error)
}

// Authenticator exchanges credentials for a session token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// Requester exchanges a session token for a guest token.
type Requester interface {
	RequestGuestToken(ctx context.Context, sessionToken string, target Target, rules []RLSRule) (string, error)
}

// RemoteIssuer runs the two-step server-to-server exchange.
type RemoteIssuer struct {
	Credentials   Credentials
	Authenticator Authenticator
	Requester     Requester
}

// Issue authenticates, then requests the guest token. The session token is
// used once and dropped. An incomplete target fails before credentials are
// sent anywhere.
func (r *RemoteIssuer) Issue(ctx context.Context, target Target, rules []RLSRule) (string, error) {
	if err := target.Validate(ModeAPI); err != nil {
		return "", err
	}
	sessionToken, err := r.Authenticator.Authenticate(ctx, r.Credentials)
	if err != nil {
		return "", err
	}
	return r.Requester.RequestGuestToken(ctx, sessionToken, target, rules)
}

// KeyMaterial is the signing key for local mode. The private key never
// leaves the process.
type KeyMaterial struct {
	PrivateKeyPEM []byte
	KeyID         string
}

// Present reports whether both halves needed for signing are available.
func (k KeyMaterial) Present() bool {
	return len(k.PrivateKeyPEM) > 0 && k.KeyID != ""
}

// SignFunc signs claims with a PEM private key, putting keyID in the header.
type SignFunc func(privateKeyPEM []byte, keyID string, claims Claims) (string, error)

// LocalIssuer mints guest tokens without network access.
type LocalIssuer struct {
	Keys KeyMaterial
	Sign SignFunc
}

// Issue fails closed when key material is missing, before any signing.
func (l *LocalIssuer) Issue(_ context.Context, target Target, rules []RLSRule) (string, error) {
	if len(l.Keys.PrivateKeyPEM) == 0 {
		return "", ConfigurationError("sign", "PEM key files not found.")
	}
	if l.Keys.KeyID == "" {
		return "", ConfigurationError("sign", "Key ID not defined in configuration.")
	}
	if err := target.Validate(ModePEM); err != nil {
		return "", err
	}
	return l.Sign(l.Keys.PrivateKeyPEM, l.Keys.KeyID, NewClaims(target, rules))
}

// Service is the single entry point for issuing guest tokens.
type Service struct {
	issuers map[Mode]Issuer
	logger  *slog.Logger
}

// NewService creates a Service. Either issuer may be nil, in which case
// requests for that mode fail with a configuration error.
func NewService(remote, local Issuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	issuers := make(map[Mode]Issuer, 2)
	if remote != nil {
		issuers[ModeAPI] = remote
	}
	if local != nil {
		issuers[ModePEM] = local
	}
	return &Service{issuers: issuers, logger: logger}
}

// Issue produces a guest token using exactly one mode. Any mode other than
// ModePEM, including the zero value, selects the remote exchange.
func (s *Service) Issue(ctx context.Context, mode Mode, target Target, rules []RLSRule) (string, error) {
	mode = ParseMode(string(mode))
	requestID := uuid.NewString()
	logger := s.logger.With("request_id", requestID, "mode", string(mode), "dashboard_id", target.DashboardID)

	issuer, ok := s.issuers[mode]
	if !ok {
		err := ConfigurationError("issue", "Auth mode "+string(mode)+" is not configured.")
		logger.Warn("guest token mode unavailable")
		return "", err
	}

	start := time.Now()
	token, err := issuer.Issue(ctx, target, NormalizeRules(rules))
	if err != nil {
		s.logFailure(logger, err)
		return "", err
	}
	if token == "" {
		err = &Error{Kind: kindForMode(mode), Op: "issue", Message: "Issued token is empty.", Err: ErrMalformedResponse}
		s.logFailure(logger, err)
		return "", err
	}

	logger.Info("guest token issued", "rls_rules", len(rules), "duration", time.Since(start))
	return token, nil
}

func (s *Service) logFailure(logger *slog.Logger, err error) {
	var e *Error
	if errors.As(err, &e) {
		attrs := []any{"kind", e.Kind.String(), "op", e.Op, "retryable", e.Retryable}
		if e.StatusCode != 0 {
			attrs = append(attrs, "status", e.StatusCode)
		}
		if e.Detail != "" {
			attrs = append(attrs, "detail", e.Detail)
		}
		if e.Err != nil {
			attrs = append(attrs, "error", e.Err)
		}
		logger.Error("guest token issuance failed", attrs...)
		return
	}
	logger.Error("guest token issuance failed", "error", err)
}

func kindForMode(mode Mode) Kind {
	if mode == ModePEM {
		return KindSigning
	}
	return KindUpstreamToken
}
