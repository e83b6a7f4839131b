package server

import (
	"net/http"
	"strings"

	"github.com/recipebox/recipebox/errors"
)

// Authenticator resolves the calling user. Identity-provider integration
// lives behind this interface.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (string, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (string, error) { return f(r) }

// BearerAuth accepts "Authorization: Bearer <user id>". It trusts the token
// as issued by the fronting identity proxy and performs no verification.
type BearerAuth struct{}

func (BearerAuth) Authenticate(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.Wrap(errors.ErrUnauthorized, "missing bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.Wrap(errors.ErrUnauthorized, "empty bearer token")
	}
	return token, nil
}
