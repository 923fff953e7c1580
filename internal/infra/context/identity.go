package context

import (
	"context"

	"github.com/mkrupp/tokenauth/internal/domain"
)

// IdentityFromContext returns the authenticated identity of the request.
// The second result is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(contextKeyIdentity).(*domain.Identity)
	if !ok || identity == nil {
		return domain.Identity{}, false
	}

	return *identity, true
}

// WithIdentity attaches a validated identity to the context.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, &identity)
}

// WithAnonymous marks the request as carrying no identity, shadowing any
// identity attached further up the chain.
func WithAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, (*domain.Identity)(nil))
}
