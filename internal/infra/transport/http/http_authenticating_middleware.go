package http

import (
	"net/http"

	"github.com/mkrupp/tokenauth/internal/domain"
	context_ "github.com/mkrupp/tokenauth/internal/infra/context"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

// Authenticator resolves the identity behind a request.
type Authenticator interface {
	// Authenticate returns the caller's identity and true for a valid credential,
	// false with a nil error when no credential is presented, and an error when
	// a presented credential is rejected.
	Authenticate(r *http.Request) (domain.Identity, bool, error)
}

// AuthenticatingMiddleware creates middleware that attaches the caller's identity to the request context.
// Requests without a credential continue anonymously. Requests with a rejected credential are
// answered with the mapped error status and never reach next.
func AuthenticatingMiddleware(
	next http.Handler,
	authenticator Authenticator,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok, err := authenticator.Authenticate(r)
		if err != nil {
			log.WarnContext(r.Context(), "authentication failed", "error", err)
			WriteError(r.Context(), w, err, log)

			return
		}

		ctx := context_.WithAnonymous(r.Context())
		if ok {
			ctx = context_.WithIdentity(r.Context(), identity)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
