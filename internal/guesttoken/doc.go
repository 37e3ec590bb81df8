// Package guesttoken issues short-lived, scoped guest tokens for embedded
// dashboards.
//
// # Modes
//
// Two mutually exclusive strategies implement the Issuer interface:
//
//   - ModeAPI (RemoteIssuer): exchange API credentials for a session token,
//     then exchange the session token for a guest token. Two sequential
//     network calls, no retries.
//
//   - ModePEM (LocalIssuer): build the claim set locally and sign it with an
//     RSA private key. No network access.
//
// A failure in one mode never falls back to the other.
//
// # Errors
//
// Every component returns *Error, classified by Kind:
//
//	KindConfiguration   missing credentials, target fields or key material (HTTP 400)
//	KindUpstreamAuth    session endpoint failure (HTTP 500)
//	KindUpstreamToken   guest-token endpoint failure (HTTP 500)
//	KindSigning         local signing failure (HTTP 500)
//
// Error.Message is safe for clients; Error.Detail holds upstream bodies and
// is only logged.
//
// # Usage
//
//	svc := guesttoken.NewService(remote, local, logger)
//	token, err := svc.Issue(ctx, guesttoken.ParseMode(r.URL.Query().Get("auth_type")), target, rules)
//	if err != nil {
//	    http.Error(w, guesttoken.PublicMessage(err), guesttoken.HTTPStatus(err))
//	}
package guesttoken
