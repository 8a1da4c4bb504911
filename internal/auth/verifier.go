package auth

import (
	"errors"
	"strings"
)

// Identity is the authenticated owner behind a request
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// TokenVerifier validates an owner session token
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}

var ErrNoVerifier = errors.New("authentication not configured")

// Chain tries each verifier in order and returns the first success. It
// lets OIDC tokens and locally issued HMAC tokens coexist.
type Chain []TokenVerifier

func (c Chain) Verify(token string) (*Identity, error) {
	if len(c) == 0 {
		return nil, ErrNoVerifier
	}
	var lastErr error
	for _, v := range c {
		id, err := v.Verify(token)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
