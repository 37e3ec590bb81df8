// ABOUTME: Error taxonomy for guest token issuance
// ABOUTME: Typed Error with Kind, predicates, and HTTP status mapping

package guesttoken

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse marks an upstream 2xx response that lacks the
// expected token field.
var ErrMalformedResponse = errors.New("malformed upstream response")

// Kind classifies an issuance failure.
type Kind int

const (
	// KindConfiguration means required configuration or key material is missing.
	KindConfiguration Kind = iota + 1
	// KindUpstreamAuth means the session endpoint call failed.
	KindUpstreamAuth
	// KindUpstreamToken means the guest-token endpoint call failed.
	KindUpstreamToken
	// KindSigning means local signing failed.
	KindSigning
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindUpstreamAuth:
		return "upstream_auth"
	case KindUpstreamToken:
		return "upstream_token"
	case KindSigning:
		return "signing"
	default:
		return "unknown"
	}
}

// Error is returned by every issuance component.
type Error struct {
	Kind Kind

	// Op names the failing operation, e.g. "authenticate".
	Op string

	// Message is safe to show to untrusted clients.
	Message string

	// Detail carries diagnostics such as the raw upstream body. It is
	// logged, never returned to clients.
	Detail string

	// StatusCode is the upstream HTTP status, zero when no response arrived.
	StatusCode int

	// Retryable hints that the caller may try again (timeouts).
	Retryable bool

	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationError reports missing configuration or key material.
func ConfigurationError(op, message string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message}
}

// SigningError reports a failed local signing operation.
func SigningError(op string, err error) *Error {
	return &Error{
		Kind:    KindSigning,
		Op:      op,
		Message: "Unable to sign a guest token.",
		Err:     err,
	}
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool { return kindOf(err) == KindConfiguration }

// IsUpstreamAuth reports whether err is a session endpoint failure.
func IsUpstreamAuth(err error) bool { return kindOf(err) == KindUpstreamAuth }

// IsUpstreamToken reports whether err is a guest-token endpoint failure.
func IsUpstreamToken(err error) bool { return kindOf(err) == KindUpstreamToken }

// IsSigning reports whether err is a local signing failure.
func IsSigning(err error) bool { return kindOf(err) == KindSigning }

// IsRetryable reports whether err carries a retry hint.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// HTTPStatus maps err to the status the route layer responds with.
func HTTPStatus(err error) int {
	if IsConfiguration(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-safe text for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
