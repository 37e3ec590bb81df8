// ABOUTME: Local RS256 signing of guest tokens with a kid header
// ABOUTME: Key material is read once at startup; signing needs no network access

package signer

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/embed-gateway/internal/guesttoken"
)

// Sign builds the guest claim set for dashboardID and workspaceSlug and
// signs it with privateKeyPEM, embedding keyID in the header.
func Sign(privateKeyPEM []byte, keyID, dashboardID, workspaceSlug string, rules []guesttoken.RLSRule) (string, error) {
	if dashboardID == "" || workspaceSlug == "" {
		return "", guesttoken.ConfigurationError("sign", "Dashboard ID and workspace slug are required.")
	}
	target := guesttoken.Target{DashboardID: dashboardID, WorkspaceSlug: workspaceSlug}
	return SignClaims(privateKeyPEM, keyID, guesttoken.NewClaims(target, rules))
}

// SignClaims signs an already built claim set. It satisfies
// guesttoken.SignFunc.
func SignClaims(privateKeyPEM []byte, keyID string, claims guesttoken.Claims) (string, error) {
	if len(privateKeyPEM) == 0 {
		return "", guesttoken.ConfigurationError("sign", "PEM key files not found.")
	}
	if keyID == "" {
		return "", guesttoken.ConfigurationError("sign", "Key ID not defined in configuration.")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", guesttoken.SigningError("sign", fmt.Errorf("parsing private key: %w", err))
	}

	mapClaims, err := toMapClaims(claims)
	if err != nil {
		return "", guesttoken.SigningError("sign", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", guesttoken.SigningError("sign", err)
	}
	return signed, nil
}

// toMapClaims round-trips claims through JSON so the token carries exactly
// the struct's wire names.
func toMapClaims(claims guesttoken.Claims) (jwt.MapClaims, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("encoding claims: %w", err)
	}
	var m jwt.MapClaims
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding claims: %w", err)
	}
	return m, nil
}

// LoadKeyMaterial reads the private key at path. A missing file or an empty
// path yields material without a key, so local mode fails closed at
// issuance instead of at startup. Other read errors are returned.
func LoadKeyMaterial(path, keyID string) (guesttoken.KeyMaterial, error) {
	km := guesttoken.KeyMaterial{KeyID: keyID}
	if path == "" {
		return km, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return km, nil
		}
		return km, fmt.Errorf("reading private key: %w", err)
	}
	km.PrivateKeyPEM = data
	return km, nil
}

// Verify checks an RS256 guest token against publicKeyPEM and returns its
// claims and kid. When audience is non-empty the aud claim must match.
func Verify(tokenString string, publicKeyPEM []byte, audience string) (*guesttoken.Claims, string, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, "", fmt.Errorf("parsing public key: %w", err)
	}
	return VerifyWithKey(tokenString, pub, audience)
}

// VerifyWithKey is Verify with an already parsed key.
func VerifyWithKey(tokenString string, pub *rsa.PublicKey, audience string) (*guesttoken.Claims, string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return pub, nil
	}, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("verifying token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", errors.New("unexpected claims type")
	}
	data, err := json.Marshal(mapClaims)
	if err != nil {
		return nil, "", fmt.Errorf("encoding claims: %w", err)
	}
	var claims guesttoken.Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, "", fmt.Errorf("decoding claims: %w", err)
	}
	if claims.Type != guesttoken.TokenTypeGuest {
		return nil, "", fmt.Errorf("unexpected token type %q", claims.Type)
	}

	kid, _ := token.Header["kid"].(string)
	return &claims, kid, nil
}
