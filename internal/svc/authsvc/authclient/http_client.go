package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mkrupp/tokenauth/internal/domain"
	context_ "github.com/mkrupp/tokenauth/internal/infra/context"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	http_ "github.com/mkrupp/tokenauth/internal/infra/transport/http"
)

// ErrUnexpectedResponse is returned when the auth service answers with an unmapped status.
var ErrUnexpectedResponse = errors.New("unexpected auth service response")

// HTTPClientConfig holds configuration for the HTTP auth client.
type HTTPClientConfig struct {
	// AuthURL is the endpoint for token validation requests
	AuthURL string `env:"AUTH_URL" default:"http://localhost:8080/users/validate"`
}

// HTTPClient implements AuthClient using HTTP requests to validate tokens.
// It also implements http_.Authenticator so that a downstream service can mount
// http_.AuthenticatingMiddleware without holding the signing key.
type HTTPClient struct {
	httpClient *http.Client
	log        logging.Logger
	cfg        HTTPClientConfig
}

var (
	_ AuthClient          = (*HTTPClient)(nil)
	_ http_.Authenticator = (*HTTPClient)(nil)
)

// NewHTTPClient creates a new HTTPClient with the given configuration.
// If httpClient is nil, http.DefaultClient will be used.
func NewHTTPClient(
	cfg HTTPClientConfig,
	httpClient *http.Client,
) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPClient{
		httpClient: httpClient,
		log:        logging.GetLogger("svc.authsvc.authclient.http_client"),
		cfg:        cfg,
	}
}

// Authenticate implements http_.Authenticator by forwarding the request's bearer token.
func (c *HTTPClient) Authenticate(r *http.Request) (domain.Identity, bool, error) {
	token, present := http_.BearerToken(r)
	if !present {
		return domain.Identity{}, false, nil
	}

	identity, err := c.Validate(r.Context(), token)
	if err != nil {
		return domain.Identity{}, false, err
	}

	return identity, true, nil
}

// Validate implements AuthClient.Validate by making an HTTP request to the configured
// auth service endpoint. The token is sent in the Authorization header.
func (c *HTTPClient) Validate(ctx context.Context, token string) (_ domain.Identity, err error) {
	defer func() {
		if err != nil {
			c.log.DebugContext(ctx, "remote validation failed", "error", err)
		}
	}()

	if token == "" {
		return domain.Identity{}, domain.ErrTokenBlank
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("new request: %w", err)
	}

	req.Header.Set(http_.AuthorizationHeader, "Bearer "+token)

	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		req.Header.Set(http_.TraceIDHeader, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Message string                  `json:"message"`
		Body    domain.IdentityResponse `json:"body"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Identity{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return domain.Identity{
			Subject: body.Body.Subject,
			Roles:   domain.NewRoleSet(body.Body.Roles...),
		}, nil
	case http.StatusUnauthorized:
		return domain.Identity{}, fmt.Errorf("%w: %s", domain.ErrInvalidAuthToken, body.Message)
	case http.StatusTooManyRequests:
		return domain.Identity{}, domain.ErrRateLimited
	default:
		return domain.Identity{}, fmt.Errorf("%w: status %d: %s", ErrUnexpectedResponse, resp.StatusCode, body.Message)
	}
}
