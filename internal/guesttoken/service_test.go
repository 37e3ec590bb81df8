// ABOUTME: Tests for the guest token service and its issuer strategies
// ABOUTME: Covers mode selection, failure propagation, and fail-closed local mode

package guesttoken

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuthenticator struct {
	token string
	err   error
	calls int
	creds Credentials
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, creds Credentials) (string, error) {
	f.calls++
	f.creds = creds
	return f.token, f.err
}

type fakeRequester struct {
	token   string
	err     error
	calls   int
	session string
	target  Target
	rules   []RLSRule
}

func (f *fakeRequester) RequestGuestToken(_ context.Context, sessionToken string, target Target, rules []RLSRule) (string, error) {
	f.calls++
	f.session = sessionToken
	f.target = target
	f.rules = rules
	return f.token, f.err
}

type fakeSigner struct {
	calls  int
	keyID  string
	claims Claims
	token  string
	err    error
}

func (f *fakeSigner) sign(_ []byte, keyID string, claims Claims) (string, error) {
	f.calls++
	f.keyID = keyID
	f.claims = claims
	return f.token, f.err
}

var target = Target{DashboardID: "dash1", Team: "team1", WorkspaceSlug: "ws1"}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":      ModeAPI,
		"api":   ModeAPI,
		"pem":   ModePEM,
		"PEM":   ModePEM,
		" pem ": ModePEM,
		"other": ModeAPI,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMode(in), "ParseMode(%q)", in)
	}
}

func TestService_RemoteSuccess(t *testing.T) {
	auth := &fakeAuthenticator{token: "tok1"}
	req := &fakeRequester{token: "guest1"}
	remote := &RemoteIssuer{Credentials: Credentials{APIKey: "k", APISecret: "s"}, Authenticator: auth, Requester: req}
	svc := NewService(remote, nil, discardLogger())

	token, err := svc.Issue(context.Background(), ModeAPI, target, nil)
	require.NoError(t, err)
	assert.Equal(t, "guest1", token)
	assert.Equal(t, "k", auth.creds.APIKey)
	assert.Equal(t, "tok1", req.session)
	assert.Equal(t, target, req.target)
	assert.NotNil(t, req.rules)
	assert.Empty(t, req.rules)
}

func TestService_NonPEMModesUseRemote(t *testing.T) {
	for _, mode := range []Mode{"", "API", "other"} {
		t.Run(string(mode), func(t *testing.T) {
			auth := &fakeAuthenticator{token: "tok1"}
			req := &fakeRequester{token: "guest1"}
			signer := &fakeSigner{token: "local"}
			svc := NewService(
				&RemoteIssuer{Credentials: Credentials{APIKey: "k", APISecret: "s"}, Authenticator: auth, Requester: req},
				&LocalIssuer{Keys: KeyMaterial{PrivateKeyPEM: []byte("pem"), KeyID: "kid1"}, Sign: signer.sign},
				discardLogger(),
			)

			token, err := svc.Issue(context.Background(), mode, target, nil)
			require.NoError(t, err)
			assert.Equal(t, "guest1", token)
			assert.Equal(t, 1, auth.calls)
			assert.Equal(t, 0, signer.calls)
		})
	}
}

func TestService_PEMModeIsCaseInsensitive(t *testing.T) {
	signer := &fakeSigner{token: "local"}
	auth := &fakeAuthenticator{token: "tok1"}
	svc := NewService(
		&RemoteIssuer{Authenticator: auth, Requester: &fakeRequester{token: "guest1"}},
		&LocalIssuer{Keys: KeyMaterial{PrivateKeyPEM: []byte("pem"), KeyID: "kid1"}, Sign: signer.sign},
		discardLogger(),
	)

	token, err := svc.Issue(context.Background(), Mode("PEM"), target, nil)
	require.NoError(t, err)
	assert.Equal(t, "local", token)
	assert.Equal(t, 0, auth.calls)
}

func TestService_RemoteIncompleteTargetMakesNoCalls(t *testing.T) {
	tests := []struct {
		name   string
		target Target
	}{
		{name: "dashboard", target: Target{Team: "team1", WorkspaceSlug: "ws1"}},
		{name: "team", target: Target{DashboardID: "dash1", WorkspaceSlug: "ws1"}},
		{name: "workspace", target: Target{DashboardID: "dash1", Team: "team1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuthenticator{token: "tok1"}
			req := &fakeRequester{token: "guest1"}
			svc := NewService(&RemoteIssuer{
				Credentials:   Credentials{APIKey: "k", APISecret: "s"},
				Authenticator: auth,
				Requester:     req,
			}, nil, discardLogger())

			_, err := svc.Issue(context.Background(), ModeAPI, tt.target, nil)
			require.Error(t, err)
			assert.True(t, IsConfiguration(err), "got %v", err)
			assert.Equal(t, 0, auth.calls, "credentials must not be sent for an incomplete target")
			assert.Equal(t, 0, req.calls)
		})
	}
}

func TestTarget_Validate(t *testing.T) {
	assert.NoError(t, target.Validate(ModeAPI))
	assert.NoError(t, target.Validate(ModePEM))

	noTeam := Target{DashboardID: "dash1", WorkspaceSlug: "ws1"}
	assert.NoError(t, noTeam.Validate(ModePEM))
	assert.True(t, IsConfiguration(noTeam.Validate(ModeAPI)))

	assert.True(t, IsConfiguration(Target{WorkspaceSlug: "ws1"}.Validate(ModePEM)))
	assert.True(t, IsConfiguration(Target{DashboardID: "dash1"}.Validate(ModePEM)))
}

func TestService_AuthFailureSkipsRequester(t *testing.T) {
	auth := &fakeAuthenticator{err: &Error{Kind: KindUpstreamAuth, Op: "authenticate", StatusCode: 401}}
	req := &fakeRequester{token: "guest1"}
	svc := NewService(&RemoteIssuer{Authenticator: auth, Requester: req}, nil, discardLogger())

	_, err := svc.Issue(context.Background(), ModeAPI, target, nil)
	require.Error(t, err)
	assert.True(t, IsUpstreamAuth(err))
	assert.Equal(t, 0, req.calls)
}

func TestService_RequesterFailureDoesNotReauthenticate(t *testing.T) {
	auth := &fakeAuthenticator{token: "tok1"}
	req := &fakeRequester{err: &Error{Kind: KindUpstreamToken, Op: "request_guest_token", StatusCode: 500}}
	signer := &fakeSigner{token: "local"}
	svc := NewService(
		&RemoteIssuer{Authenticator: auth, Requester: req},
		&LocalIssuer{Keys: KeyMaterial{PrivateKeyPEM: []byte("pem"), KeyID: "kid1"}, Sign: signer.sign},
		discardLogger(),
	)

	_, err := svc.Issue(context.Background(), ModeAPI, target, nil)
	require.Error(t, err)
	assert.True(t, IsUpstreamToken(err))
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, 1, req.calls)
	assert.Equal(t, 0, signer.calls, "remote failure must not fall back to local signing")
}

func TestService_LocalSuccess(t *testing.T) {
	signer := &fakeSigner{token: "signed"}
	auth := &fakeAuthenticator{token: "tok1"}
	svc := NewService(
		&RemoteIssuer{Authenticator: auth, Requester: &fakeRequester{}},
		&LocalIssuer{Keys: KeyMaterial{PrivateKeyPEM: []byte("pem"), KeyID: "kid1"}, Sign: signer.sign},
		discardLogger(),
	)

	rules := []RLSRule{{Clause: "a = 1"}}
	token, err := svc.Issue(context.Background(), ModePEM, target, rules)
	require.NoError(t, err)
	assert.Equal(t, "signed", token)
	assert.Equal(t, "kid1", signer.keyID)
	assert.Equal(t, "ws1", signer.claims.Audience)
	assert.Equal(t, TokenTypeGuest, signer.claims.Type)
	assert.Equal(t, rules, signer.claims.RLSRules)
	assert.Equal(t, 0, auth.calls)
}

func TestService_LocalMissingKeyMaterial(t *testing.T) {
	tests := []struct {
		name string
		keys KeyMaterial
	}{
		{name: "no private key", keys: KeyMaterial{KeyID: "kid1"}},
		{name: "no key id", keys: KeyMaterial{PrivateKeyPEM: []byte("pem")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := &fakeSigner{token: "signed"}
			auth := &fakeAuthenticator{token: "tok1"}
			svc := NewService(
				&RemoteIssuer{Authenticator: auth, Requester: &fakeRequester{token: "guest1"}},
				&LocalIssuer{Keys: tt.keys, Sign: signer.sign},
				discardLogger(),
			)

			_, err := svc.Issue(context.Background(), ModePEM, target, nil)
			require.Error(t, err)
			assert.True(t, IsConfiguration(err))
			assert.Equal(t, 0, signer.calls)
			assert.Equal(t, 0, auth.calls, "local failure must not fall back to remote")
		})
	}
}

func TestService_UnconfiguredMode(t *testing.T) {
	svc := NewService(nil, nil, discardLogger())

	_, err := svc.Issue(context.Background(), ModePEM, target, nil)
	assert.True(t, IsConfiguration(err))
	_, err = svc.Issue(context.Background(), ModeAPI, target, nil)
	assert.True(t, IsConfiguration(err))
}

func TestService_EmptyTokenIsError(t *testing.T) {
	svc := NewService(&RemoteIssuer{
		Authenticator: &fakeAuthenticator{token: "tok1"},
		Requester:     &fakeRequester{token: ""},
	}, nil, discardLogger())

	_, err := svc.Issue(context.Background(), ModeAPI, target, nil)
	require.Error(t, err)
	assert.True(t, IsUpstreamToken(err))
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestService_PlainErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&RemoteIssuer{
		Authenticator: &fakeAuthenticator{err: boom},
		Requester:     &fakeRequester{},
	}, nil, discardLogger())

	_, err := svc.Issue(context.Background(), ModeAPI, target, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 500, HTTPStatus(err))
	assert.Equal(t, "internal error", PublicMessage(err))
}

func TestNewClaims_UsesConfiguredUser(t *testing.T) {
	custom := User{Username: "viewer", FirstName: "Ada", LastName: "L"}
	tgt := target
	tgt.User = custom

	claims := NewClaims(tgt, nil)
	assert.Equal(t, custom, claims.User)
	assert.Equal(t, custom, NewRequest(tgt, nil).User)

	assert.Equal(t, DefaultLocalUser, NewClaims(target, nil).User)
	assert.Equal(t, DefaultRemoteUser, NewRequest(target, nil).User)
}
