package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"cuentas.dev/internal/account"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var errMissingToken = errors.New("missing token")

// extractToken reads the bearer token from the Authorization header. Both a
// raw token value and the "Bearer " prefixed form are accepted; deployed
// clients send the raw value.
func extractToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		header = strings.TrimSpace(header[len(bearer):])
	}
	if header == "" {
		return "", errMissingToken
	}
	return header, nil
}

// authenticate verifies the request's bearer token and returns the caller's
// principal. Missing and invalid tokens are both reported; the caller maps
// them onto 401 responses.
func (a *API) authenticate(r *http.Request) (account.Principal, error) {
	token, err := extractToken(r.Header.Get(authHeader))
	if err != nil {
		return account.Principal{}, err
	}
	claims, err := a.accounts.VerifyToken(token)
	if err != nil {
		return account.Principal{}, err
	}
	return account.Principal{
		AccountID: claims.Subject,
		Roles:     claims.Roles,
		Permisos:  claims.Permisos,
	}, nil
}
