package authclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/thejerf/abtime"

	"github.com/mkrupp/tokenauth/internal/crypto/password"
	"github.com/mkrupp/tokenauth/internal/domain"
	context_ "github.com/mkrupp/tokenauth/internal/infra/context"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	http_ "github.com/mkrupp/tokenauth/internal/infra/transport/http"
	"github.com/mkrupp/tokenauth/internal/svc/authsvc"
	"github.com/mkrupp/tokenauth/internal/svc/authsvc/authclient"
)

func stubServer(t *testing.T, status int, body string, seen chan<- *http.Request) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen <- r.Clone(context.Background())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestHTTPClient_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		want       domain.Identity
		wantErr    error
		wantAnyErr bool
	}{
		{
			name:   "valid token",
			status: http.StatusOK,
			body:   `{"message":"Success","body":{"subject":"client","roles":["CLIENT"]}}`,
			want:   domain.Identity{Subject: "client", Roles: domain.NewRoleSet(domain.RoleClient)},
		},
		{
			name:    "invalid token",
			status:  http.StatusUnauthorized,
			body:    `{"message":"expired or invalid JWT token"}`,
			wantErr: domain.ErrInvalidAuthToken,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"message":"too many requests"}`,
			wantErr: domain.ErrRateLimited,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `{"message":"Internal Server Error"}`,
			wantErr: authclient.ErrUnexpectedResponse,
		},
		{
			name:       "unknown role",
			status:     http.StatusOK,
			body:       `{"message":"Success","body":{"subject":"client","roles":["ROOT"]}}`,
			wantAnyErr: true,
		},
		{
			name:       "not json",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantAnyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			seen := make(chan *http.Request, 1)
			srv := stubServer(t, tt.status, tt.body, seen)
			client := authclient.NewHTTPClient(authclient.HTTPClientConfig{AuthURL: srv.URL}, srv.Client())

			ctx := context_.WithTraceID(context.Background(), "trace-1")

			got, err := client.Validate(ctx, "token-1")

			req := <-seen
			if req.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", req.Method)
			}

			if h := req.Header.Get(http_.AuthorizationHeader); h != "Bearer token-1" {
				t.Errorf("Authorization = %q, want %q", h, "Bearer token-1")
			}

			if h := req.Header.Get(http_.TraceIDHeader); h != "trace-1" {
				t.Errorf("%s = %q, want %q", http_.TraceIDHeader, h, "trace-1")
			}

			wantErr := tt.wantErr != nil || tt.wantAnyErr
			if (err != nil) != wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, wantErr)
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}

			if err != nil {
				return
			}

			if diff := deep.Equal(got, tt.want); diff != nil {
				t.Errorf("Validate() mismatch: %v", diff)
			}
		})
	}
}

func TestHTTPClient_ValidateBlankSkipsRequest(t *testing.T) {
	t.Parallel()

	srv := stubServer(t, http.StatusOK, `{}`, nil)
	srv.Close()

	client := authclient.NewHTTPClient(authclient.HTTPClientConfig{AuthURL: srv.URL}, nil)

	if _, err := client.Validate(context.Background(), ""); !errors.Is(err, domain.ErrTokenBlank) {
		t.Errorf("Validate() error = %v, want ErrTokenBlank", err)
	}

	if _, err := client.Validate(context.Background(), "token"); err == nil {
		t.Error("Validate() against closed server succeeded")
	}
}

// TestHTTPClient_AgainstAuthService validates tokens through a real authsvc transport.
func TestHTTPClient_AgainstAuthService(t *testing.T) {
	t.Parallel()

	key, err := authsvc.GeneratePrivateKey(2048)
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error = %v", err)
	}

	clock := abtime.NewManualAtTime(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	tokens := authsvc.NewTokenService(authsvc.NewJWTCodec(key), clock, time.Hour, nil)
	authSvc := &authsvc.AuthService{
		Tokens:   tokens,
		Accounts: authsvc.NewAccountService(nil, tokens, password.NewBcryptHasher(4), clock, nil),
		Guard:    authsvc.NewGuard(nil),
	}

	cfg := authsvc.HTTPTransportConfig{
		HTTPTransportConfig: http_.HTTPTransportConfig{RateLimit: 100, RateBurst: 100},
	}

	transport, err := authsvc.NewHTTPTransport(authSvc, cfg)
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}

	srv := httptest.NewServer(transport)
	t.Cleanup(srv.Close)

	client := authclient.NewHTTPClient(authclient.HTTPClientConfig{AuthURL: srv.URL + "/users/validate"}, srv.Client())
	ctx := context.Background()

	token, err := tokens.Issue(ctx, "admin", domain.NewRoleSet(domain.RoleAdmin, domain.RoleClient))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	identity, err := client.Validate(ctx, token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := domain.Identity{Subject: "admin", Roles: domain.NewRoleSet(domain.RoleAdmin, domain.RoleClient)}
	if diff := deep.Equal(identity, want); diff != nil {
		t.Errorf("Validate() mismatch: %v", diff)
	}

	if _, err := client.Validate(ctx, token+"x"); !errors.Is(err, domain.ErrInvalidAuthToken) {
		t.Errorf("Validate() tampered token error = %v, want ErrInvalidAuthToken", err)
	}

	clock.Advance(2 * time.Hour)

	if _, err := client.Validate(ctx, token); !errors.Is(err, domain.ErrInvalidAuthToken) {
		t.Errorf("Validate() expired token error = %v, want ErrInvalidAuthToken", err)
	}

	// Downstream services mount the client as their authenticator.
	protected := http_.AuthenticatingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := context_.IdentityFromContext(r.Context()); ok {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		w.WriteHeader(http.StatusAccepted)
	}), client, logging.NewNopLogger())

	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("anonymous request status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}
