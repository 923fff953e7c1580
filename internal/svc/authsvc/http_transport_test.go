package authsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/mkrupp/tokenauth/internal/domain"
	http_ "github.com/mkrupp/tokenauth/internal/infra/transport/http"
	"github.com/mkrupp/tokenauth/internal/svc/authsvc"
)

type envelope struct {
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}

type transportFixture struct {
	*testServices
	transport *authsvc.HTTPTransport
}

func setupTransport(t *testing.T, rateLimit float64, rateBurst int, trustedProxies ...string) *transportFixture {
	t.Helper()

	svc := setupTestServices(t, nil)

	authSvc := &authsvc.AuthService{
		Tokens:   svc.tokens,
		Accounts: svc.accounts,
		Guard:    authsvc.NewGuard(nil),
	}

	cfg := authsvc.HTTPTransportConfig{
		HTTPTransportConfig: http_.HTTPTransportConfig{
			RateLimit:      rateLimit,
			RateBurst:      rateBurst,
			TrustedProxies: trustedProxies,
		},
	}

	transport, err := authsvc.NewHTTPTransport(authSvc, cfg)
	if err != nil {
		t.Fatalf("NewHTTPTransport() error = %v", err)
	}

	return &transportFixture{
		testServices: svc,
		transport:    transport,
	}
}

func (f *transportFixture) do(t *testing.T, method, target, token string, body io.Reader, contentType string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	f.transport.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: failed to decode response %q: %v", method, target, rec.Body.String(), err)
	}

	return rec.Code, env
}

func (f *transportFixture) doJSON(t *testing.T, method, target, token string, payload any) (int, envelope) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode payload: %v", err)
	}

	return f.do(t, method, target, token, strings.NewReader(string(data)), "application/json")
}

func decodeBody[T any](t *testing.T, env envelope) T {
	t.Helper()

	var body T
	if err := json.Unmarshal(env.Body, &body); err != nil {
		t.Fatalf("failed to decode body %q: %v", env.Body, err)
	}

	return body
}

func TestHTTPTransport_SignupSignin(t *testing.T) {
	t.Parallel()

	f := setupTransport(t, 100, 100)

	status, env := f.doJSON(t, http.MethodPost, "/users/signup", "", domain.SignupRequest{
		Username: "client",
		Password: "client",
		Roles:    []string{"CLIENT"},
	})
	if status != http.StatusOK {
		t.Fatalf("signup status = %d (%s), want 200", status, env.Message)
	}

	if env.Message != domain.ResponseMessageSuccess {
		t.Errorf("signup message = %q, want %q", env.Message, domain.ResponseMessageSuccess)
	}

	token := decodeBody[string](t, env)
	if _, err := f.tokens.Validate(context.Background(), token); err != nil {
		t.Errorf("signup returned invalid token: %v", err)
	}

	status, env = f.doJSON(t, http.MethodPost, "/users/signup", "", domain.SignupRequest{
		Username: "client",
		Password: "other",
		Roles:    []string{"ADMIN"},
	})
	if status != http.StatusUnprocessableEntity || env.Message != domain.ErrDuplicateUsername.Error() {
		t.Errorf("duplicate signup = %d %q, want 422 %q", status, env.Message, domain.ErrDuplicateUsername)
	}

	status, env = f.doJSON(t, http.MethodPost, "/users/signup", "", domain.SignupRequest{
		Username: "longpass",
		Password: strings.Repeat("p", 73),
		Roles:    []string{"CLIENT"},
	})
	if status != http.StatusBadRequest {
		t.Errorf("long password signup = %d %q, want 400", status, env.Message)
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{"json", `{"username":"client","password":"client"}`, "application/json", http.StatusOK},
		{"form", url.Values{"username": {"client"}, "password": {"client"}}.Encode(), "application/x-www-form-urlencoded", http.StatusOK},
		{"wrong password", `{"username":"client","password":"nope"}`, "application/json", http.StatusUnprocessableEntity},
		{"unknown user", `{"username":"ghost","password":"ghost"}`, "application/json", http.StatusUnprocessableEntity},
		{"unknown field", `{"username":"client","password":"client","admin":true}`, "application/json", http.StatusBadRequest},
		{"missing password", `{"username":"client"}`, "application/json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := f.do(t, http.MethodPost, "/users/signin", "", strings.NewReader(tt.body), tt.contentType)
			if status != tt.wantStatus {
				t.Errorf("signin status = %d (%s), want %d", status, env.Message, tt.wantStatus)
			}
		})
	}
}

func TestHTTPTransport_Authorization(t *testing.T) {
	t.Parallel()

	f := setupTransport(t, 100, 100)
	ctx := context.Background()

	if _, err := f.accounts.Signup(ctx, signupRequest("client", "CLIENT")); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	clientToken, err := f.accounts.Signin(ctx, "client", "client")
	if err != nil {
		t.Fatalf("Signin() error = %v", err)
	}

	adminToken, err := f.tokens.Issue(ctx, "root", domain.NewRoleSet(domain.RoleAdmin))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	roleless, err := f.codec.Encode(domain.Claims{
		Subject:   "nobody",
		Roles:     domain.NewRoleSet(),
		IssuedAt:  testEpoch,
		ExpiresAt: testEpoch.Add(testLifetime),
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		wantStatus int
	}{
		{"anonymous whoami", http.MethodGet, "/users/me", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/users/me", "garbage", http.StatusUnauthorized},
		{"client whoami", http.MethodGet, "/users/me", clientToken, http.StatusOK},
		{"roleless whoami", http.MethodGet, "/users/me", roleless, http.StatusForbidden},
		{"client refresh", http.MethodGet, "/users/refresh", clientToken, http.StatusOK},
		{"client search", http.MethodGet, "/users/client", clientToken, http.StatusForbidden},
		{"admin search", http.MethodGet, "/users/client", adminToken, http.StatusOK},
		{"admin search missing", http.MethodGet, "/users/ghost", adminToken, http.StatusNotFound},
		{"anonymous validate", http.MethodPost, "/users/validate", "", http.StatusUnauthorized},
		{"roleless validate", http.MethodPost, "/users/validate", roleless, http.StatusOK},
		{"client delete", http.MethodDelete, "/users/client", clientToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := f.do(t, tt.method, tt.target, tt.token, nil, "")
			if status != tt.wantStatus {
				t.Errorf("%s %s status = %d (%s), want %d", tt.method, tt.target, status, env.Message, tt.wantStatus)
			}
		})
	}
}

func TestHTTPTransport_AccountLifecycle(t *testing.T) {
	t.Parallel()

	f := setupTransport(t, 100, 100)
	ctx := context.Background()

	adminToken, err := f.tokens.Issue(ctx, "root", domain.NewRoleSet(domain.RoleAdmin))
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	status, env := f.doJSON(t, http.MethodPost, "/users/signup", "", signupRequest("client", "CLIENT"))
	if status != http.StatusOK {
		t.Fatalf("signup status = %d (%s), want 200", status, env.Message)
	}

	clientToken := decodeBody[string](t, env)

	status, env = f.do(t, http.MethodGet, "/users/me", clientToken, nil, "")
	if status != http.StatusOK {
		t.Fatalf("whoami status = %d (%s), want 200", status, env.Message)
	}

	me := decodeBody[domain.AccountResponse](t, env)
	if diff := deep.Equal(me, domain.AccountResponse{
		ID:       me.ID,
		Username: "client",
		Email:    "client@example.com",
		Roles:    []domain.Role{domain.RoleClient},
	}); diff != nil {
		t.Errorf("whoami mismatch: %v", diff)
	}

	status, env = f.do(t, http.MethodPost, "/users/validate", clientToken, nil, "")
	if status != http.StatusOK {
		t.Fatalf("validate status = %d (%s), want 200", status, env.Message)
	}

	if diff := deep.Equal(decodeBody[domain.IdentityResponse](t, env), domain.IdentityResponse{
		Subject: "client",
		Roles:   []domain.Role{domain.RoleClient},
	}); diff != nil {
		t.Errorf("validate mismatch: %v", diff)
	}

	status, env = f.do(t, http.MethodDelete, "/users/client", adminToken, nil, "")
	if status != http.StatusOK || decodeBody[string](t, env) != "client" {
		t.Fatalf("delete = %d %s, want 200 \"client\"", status, env.Body)
	}

	status, env = f.do(t, http.MethodGet, "/users/refresh", clientToken, nil, "")
	if status != http.StatusNotFound || env.Message != domain.ErrAccountNotFound.Error() {
		t.Errorf("refresh after delete = %d %q, want 404 %q", status, env.Message, domain.ErrAccountNotFound)
	}
}

func TestHTTPTransport_RateLimit(t *testing.T) {
	t.Parallel()

	f := setupTransport(t, 0.001, 2)
	body := `{"username":"ghost","password":"ghost"}`

	for i, want := range []int{http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, http.StatusTooManyRequests} {
		status, env := f.do(t, http.MethodPost, "/users/signin", "", strings.NewReader(body), "application/json")
		if status != want {
			t.Errorf("request %d status = %d (%s), want %d", i, status, env.Message, want)
		}
	}

	status, _ := f.do(t, http.MethodGet, "/healthz", "", nil, "")
	if status != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", status)
	}
}

func TestHTTPTransport_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	t.Parallel()

	f := setupTransport(t, 0.001, 2, "10.0.0.0/8")
	body := `{"username":"ghost","password":"ghost"}`
	limited := 0

	for i := range 20 {
		req := httptest.NewRequest(http.MethodPost, "/users/signin", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))

		rec := httptest.NewRecorder()
		f.transport.ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	if limited != 18 {
		t.Errorf("rate-limited signins = %d, want 18", limited)
	}
}

func TestNewHTTPTransportRejectsInvalidTrustedProxy(t *testing.T) {
	t.Parallel()

	svc := setupTestServices(t, nil)
	authSvc := &authsvc.AuthService{Tokens: svc.tokens, Accounts: svc.accounts, Guard: authsvc.NewGuard(nil)}
	cfg := authsvc.HTTPTransportConfig{
		HTTPTransportConfig: http_.HTTPTransportConfig{TrustedProxies: []string{"proxy.internal"}},
	}

	if _, err := authsvc.NewHTTPTransport(authSvc, cfg); !errors.Is(err, http_.ErrInvalidTrustedProxy) {
		t.Errorf("NewHTTPTransport() error = %v, want ErrInvalidTrustedProxy", err)
	}
}

func TestHTTPTransport_MetricsNotServed(t *testing.T) {
	t.Parallel()

	f := setupTransport(t, 100, 100)

	rec := httptest.NewRecorder()
	f.transport.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("metrics on public router status = %d, want 404", rec.Code)
	}
}
