package authsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/tokenauth/internal/domain"
	context_ "github.com/mkrupp/tokenauth/internal/infra/context"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	http_ "github.com/mkrupp/tokenauth/internal/infra/transport/http"
)

const (
	maxRequestBodyBytes = 1 << 20
	rateLimiterTTL      = 10 * time.Minute
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// HTTPTransport handles HTTP requests for the authentication service.
type HTTPTransport struct {
	authSvc *AuthService
	router  chi.Router
	log     logging.Logger
	cfg     HTTPTransportConfig
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport instance with the given configuration.
// Fails when a configured trusted proxy cannot be parsed.
func NewHTTPTransport(authSvc *AuthService, cfg HTTPTransportConfig) (*HTTPTransport, error) {
	resolver, err := http_.NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("client ip resolver: %w", err)
	}

	ht := &HTTPTransport{
		authSvc: authSvc,
		log:     logging.GetLogger("svc.authsvc.http_transport"),
		cfg:     cfg,
	}

	ht.router = ht.routes(resolver)

	return ht, nil
}

// routes sets up the endpoints:
// - POST   /users/signup      anonymous, rate limited
// - POST   /users/signin      anonymous, rate limited
// - GET    /users/me          ADMIN or CLIENT
// - GET    /users/refresh     ADMIN or CLIENT
// - POST   /users/validate    authenticated
// - GET    /users/{username}  ADMIN
// - DELETE /users/{username}  ADMIN.
func (ht *HTTPTransport) routes(resolver *http_.ClientIPResolver) chi.Router {
	guard := ht.authSvc.Guard
	limiter := http_.NewRateLimiter(ht.cfg.RateLimit, ht.cfg.RateBurst, rateLimiterTTL)
	anyRole := guard.Require(RequireAnyRole(domain.RoleAdmin, domain.RoleClient))
	adminOnly := guard.Require(RequireAnyRole(domain.RoleAdmin))

	router := chi.NewRouter()
	router.Get("/healthz", ht.HandleHealth)

	router.Route("/users", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http_.AuthenticatingMiddleware(next, ht.authSvc.Tokens, ht.log)
		})

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http_.RateLimitingMiddleware(next, limiter, resolver, ht.log)
			})
			r.Use(guard.Require(AllowAnonymous()))
			r.Post("/signup", ht.HandleSignup)
			r.Post("/signin", ht.HandleSignin)
		})

		r.With(anyRole).Get("/me", ht.HandleWhoami)
		r.With(anyRole).Get("/refresh", ht.HandleRefresh)
		r.With(guard.Require(Authenticated())).Post("/validate", ht.HandleValidate)
		r.With(adminOnly).Get("/{username}", ht.HandleSearch)
		r.With(adminOnly).Delete("/{username}", ht.HandleDelete)
	})

	return router
}

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.router.ServeHTTP(w, r)
}

// HandleHealth reports liveness.
func (ht *HTTPTransport) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = http_.WriteJSON(w, http.StatusOK, domain.OK(nil))
}

// HandleSignup processes account registration requests.
// Expects a JSON body {username, email, password, roles} and returns a token.
func (ht *HTTPTransport) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "signup", ht.handleSignup)
}

func (ht *HTTPTransport) handleSignup(r *http.Request) (any, error) {
	var req domain.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	token, err := ht.authSvc.Accounts.Signup(r.Context(), req)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	return token, nil
}

// HandleSignin processes login requests.
// Accepts a JSON body {username, password} or the equivalent form parameters and returns a token.
func (ht *HTTPTransport) HandleSignin(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "signin", ht.handleSignin)
}

func (ht *HTTPTransport) handleSignin(r *http.Request) (any, error) {
	req, err := decodeSignin(r)
	if err != nil {
		return nil, err
	}

	token, err := ht.authSvc.Accounts.Signin(r.Context(), req.Username, req.Password)
	if err != nil {
		return nil, fmt.Errorf("signin: %w", err)
	}

	return token, nil
}

// HandleWhoami returns the caller's account as currently persisted.
func (ht *HTTPTransport) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "whoami", func(r *http.Request) (any, error) {
		found, err := ht.authSvc.Accounts.Whoami(r.Context(), r)
		if err != nil {
			return nil, fmt.Errorf("whoami: %w", err)
		}

		return found.Response(), nil
	})
}

// HandleRefresh returns a new token for the caller with their current roles.
func (ht *HTTPTransport) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "refresh", func(r *http.Request) (any, error) {
		identity, ok := context_.IdentityFromContext(r.Context())
		if !ok {
			return nil, domain.ErrUnauthenticated
		}

		token, err := ht.authSvc.Accounts.Refresh(r.Context(), identity.Subject)
		if err != nil {
			return nil, fmt.Errorf("refresh: %w", err)
		}

		return token, nil
	})
}

// HandleValidate returns the identity of the caller's token.
// Used by remote services through authclient.
func (ht *HTTPTransport) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "validate", func(r *http.Request) (any, error) {
		identity, ok := context_.IdentityFromContext(r.Context())
		if !ok {
			return nil, domain.ErrUnauthenticated
		}

		return identity.Response(), nil
	})
}

// HandleSearch returns the account named in the path.
func (ht *HTTPTransport) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "search", func(r *http.Request) (any, error) {
		found, err := ht.authSvc.Accounts.Search(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}

		return found.Response(), nil
	})
}

// HandleDelete removes the account named in the path.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ht.respond(w, r, "delete", func(r *http.Request) (any, error) {
		username := chi.URLParam(r, "username")
		if err := ht.authSvc.Accounts.Delete(r.Context(), username); err != nil {
			return nil, fmt.Errorf("delete: %w", err)
		}

		return username, nil
	})
}

// respond runs handle and writes its result in the response envelope, mapping errors to statuses.
func (ht *HTTPTransport) respond(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	handle func(r *http.Request) (any, error),
) {
	log := ht.log.With(logging.Group("http", "op", op, "method", r.Method, "url", r.URL.String()))

	var err error

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "request failed", "error", err)
		} else {
			log.DebugContext(ctx, "request handled")
		}
	}(r.Context())

	body, err := handle(r)
	if err != nil {
		http_.WriteError(r.Context(), w, err, log)

		return
	}

	err = http_.WriteJSON(w, http.StatusOK, domain.OK(body))
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err) //nolint:errorlint
	}

	return nil
}

func decodeSignin(r *http.Request) (domain.SigninRequest, error) {
	var req domain.SigninRequest

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			return domain.SigninRequest{}, err
		}

		return req, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		return domain.SigninRequest{}, fmt.Errorf("%w: parse form: %v", domain.ErrInvalidInput, err) //nolint:errorlint
	}

	req.Username = r.FormValue("username")
	req.Password = r.FormValue("password")

	return req, nil
}
