// Package auth provides the pluggable credential hook checked before a
// connection upgrade completes. Policy beyond verification (who may
// talk to whom) is out of scope.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

var ErrUnauthorized = fmt.Errorf("unauthorized")

// Verifier validates the credential on an upgrade request and resolves
// the identity the connection will be registered under.
type Verifier interface {
	Verify(r *http.Request) (string, error)
}

// Insecure trusts the userId query parameter. Development mode only.
type Insecure struct{}

func (Insecure) Verify(r *http.Request) (string, error) {
	identity := r.URL.Query().Get("userId")
	if identity == "" {
		return "", fmt.Errorf("missing userId: %w", ErrUnauthorized)
	}
	return identity, nil
}

// APIKey compares the apiKey query parameter against a shared secret.
type APIKey struct {
	Key string
}

func (a APIKey) Verify(r *http.Request) (string, error) {
	key := r.URL.Query().Get("apiKey")
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.Key)) != 1 {
		return "", fmt.Errorf("invalid api key: %w", ErrUnauthorized)
	}
	identity := r.URL.Query().Get("userId")
	if identity == "" {
		return "", fmt.Errorf("missing userId: %w", ErrUnauthorized)
	}
	return identity, nil
}

// Token validates a signed JWT and takes the identity from its claims,
// ignoring whatever the client put in the query string.
type Token struct {
	Secret []byte
}

func (t Token) Verify(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if raw == "" {
		return "", fmt.Errorf("missing token: %w", ErrUnauthorized)
	}
	claims, err := ValidateToken(t.Secret, raw)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", ErrUnauthorized)
	}
	return claims.UserID, nil
}
