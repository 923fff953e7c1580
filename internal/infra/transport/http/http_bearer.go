package http

import (
	"net/http"
	"strings"
)

// AuthorizationHeader carries the bearer credential.
const AuthorizationHeader = "Authorization"

const bearerScheme = "bearer"

// BearerToken returns the credential of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively. ok is false when no bearer credential
// is presented at all; "Bearer" with an empty credential yields ok with an empty token.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(AuthorizationHeader))
	if header == "" {
		return "", false
	}

	scheme, credential, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}

	return strings.TrimSpace(credential), true
}
