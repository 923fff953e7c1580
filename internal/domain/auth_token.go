package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAuthToken is the common cause of every token validation failure.
	ErrInvalidAuthToken = errors.New("expired or invalid JWT token")
	// ErrTokenBlank is returned when an empty token is presented.
	ErrTokenBlank = fmt.Errorf("%w: blank", ErrInvalidAuthToken)
	// ErrTokenExpired is returned when the token is used outside its validity window.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidAuthToken)
	// ErrTokenInvalidSignature is returned when the signature does not verify.
	ErrTokenInvalidSignature = fmt.Errorf("%w: invalid signature", ErrInvalidAuthToken)
	// ErrTokenMalformed is returned when the token cannot be decoded or lacks required claims.
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidAuthToken)

	// ErrUnauthenticated is returned when a protected operation is reached without an identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the identity lacks every required role.
	ErrForbidden = errors.New("access denied")
	// ErrRateLimited is returned when a client exceeds the request rate.
	ErrRateLimited = errors.New("too many requests")
)

// Claims are the fields carried inside a signed token.
type Claims struct {
	Subject   string
	Roles     RoleSet
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity is the request-scoped answer to "who is making this call".
type Identity struct {
	Subject string
	Roles   RoleSet
}

// IdentityResponse is the wire form of an Identity.
type IdentityResponse struct {
	Subject string `json:"subject"`
	Roles   []Role `json:"roles"`
}

// Response projects the identity onto its wire form.
func (id Identity) Response() IdentityResponse {
	return IdentityResponse{
		Subject: id.Subject,
		Roles:   id.Roles.Slice(),
	}
}
