package authsvc

import (
	"net/http"

	"github.com/mkrupp/tokenauth/internal/domain"
	context_ "github.com/mkrupp/tokenauth/internal/infra/context"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	"github.com/mkrupp/tokenauth/internal/infra/metrics"
	http_ "github.com/mkrupp/tokenauth/internal/infra/transport/http"
)

// Rejection reasons recorded on the guard_rejections_total counter.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonForbidden       = "forbidden"
)

// Rule is the access requirement of one operation.
type Rule struct {
	anonymous bool
	roles     domain.RoleSet
}

// AllowAnonymous admits every request, with or without identity.
func AllowAnonymous() Rule {
	return Rule{anonymous: true}
}

// Authenticated admits any request carrying an identity, regardless of roles.
func Authenticated() Rule {
	return Rule{}
}

// RequireAnyRole admits identities holding at least one of roles.
// Without roles it is equivalent to Authenticated.
func RequireAnyRole(roles ...domain.Role) Rule {
	return Rule{roles: domain.NewRoleSet(roles...)}
}

// Check evaluates the rule against an identity; present is false for anonymous requests.
// Fails with domain.ErrUnauthenticated or domain.ErrForbidden.
func (rule Rule) Check(identity domain.Identity, present bool) error {
	if rule.anonymous {
		return nil
	}

	if !present {
		return domain.ErrUnauthenticated
	}

	if len(rule.roles) > 0 && !identity.Roles.Intersects(rule.roles) {
		return domain.ErrForbidden
	}

	return nil
}

// RequireRoles checks that identity is present and holds at least one of roles.
func RequireRoles(identity domain.Identity, present bool, roles ...domain.Role) error {
	return RequireAnyRole(roles...).Check(identity, present)
}

// Guard enforces Rules on HTTP routes using the identity attached by the authenticating middleware.
type Guard struct {
	metrics *metrics.AuthMetrics
	log     logging.Logger
}

// NewGuard creates a Guard; nil metrics are discarded.
func NewGuard(authMetrics *metrics.AuthMetrics) *Guard {
	if authMetrics == nil {
		authMetrics = metrics.NewNopAuthMetrics()
	}

	return &Guard{
		metrics: authMetrics,
		log:     logging.GetLogger("svc.authsvc.guard"),
	}
}

// Require returns middleware rejecting requests that fail rule before next runs.
func (g *Guard) Require(rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, present := context_.IdentityFromContext(r.Context())

			if err := rule.Check(identity, present); err != nil {
				reason := ReasonForbidden
				if !present {
					reason = ReasonUnauthenticated
				}

				g.metrics.GuardRejections.With(metrics.LabelReason, reason).Add(1)
				g.log.WarnContext(r.Context(), "access rejected",
					"reason", reason,
					logging.Group("http", "method", r.Method, "uri", r.RequestURI),
				)
				http_.WriteError(r.Context(), w, err, g.log)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
