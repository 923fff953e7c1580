// Package authclient validates bearer tokens against a remote authsvc instance.
package authclient

import (
	"context"

	"github.com/mkrupp/tokenauth/internal/domain"
)

// AuthClient defines the interface for validating authentication tokens.
type AuthClient interface {
	// Validate returns the identity carried by token.
	// Rejected tokens fail with an error wrapping domain.ErrInvalidAuthToken.
	Validate(ctx context.Context, token string) (domain.Identity, error)
}
