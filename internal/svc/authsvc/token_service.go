package authsvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/thejerf/abtime"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	"github.com/mkrupp/tokenauth/internal/infra/metrics"
	http_ "github.com/mkrupp/tokenauth/internal/infra/transport/http"
)

// Validation outcomes recorded on the token_validations_total counter.
const (
	OutcomeOK               = "ok"
	OutcomeBlank            = "blank"
	OutcomeExpired          = "expired"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeMalformed        = "malformed"
)

// MinTokenLifetime is the shortest lifetime a token can carry, given the
// one-second resolution of the iat and exp claims.
const MinTokenLifetime = time.Second

// ErrInvalidTokenLifetime is returned for a configured lifetime below MinTokenLifetime.
var ErrInvalidTokenLifetime = errors.New("token lifetime must be at least one second")

// TokenService issues and validates tokens against a clock.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	codec    Codec
	clock    abtime.AbstractTime
	lifetime time.Duration
	metrics  *metrics.AuthMetrics
	log      logging.Logger
}

var _ http_.Authenticator = (*TokenService)(nil)

// NewTokenService creates a TokenService issuing tokens valid for lifetime.
// A nil clock selects the wall clock, nil metrics are discarded.
// Lifetimes below MinTokenLifetime are raised to it.
func NewTokenService(
	codec Codec,
	clock abtime.AbstractTime,
	lifetime time.Duration,
	authMetrics *metrics.AuthMetrics,
) *TokenService {
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	if authMetrics == nil {
		authMetrics = metrics.NewNopAuthMetrics()
	}

	lifetime = max(lifetime, MinTokenLifetime)

	return &TokenService{
		codec:    codec,
		clock:    clock,
		lifetime: lifetime,
		metrics:  authMetrics,
		log:      logging.GetLogger("svc.authsvc.token_service"),
	}
}

// Issue signs a token for subject valid from now until now plus the configured lifetime.
// Issue time is taken at whole-second precision, matching the encoded claims.
func (s *TokenService) Issue(ctx context.Context, subject string, roles domain.RoleSet) (_ string, err error) {
	now := s.clock.Now().Truncate(time.Second)
	claims := domain.Claims{
		Subject:   subject,
		Roles:     roles,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.lifetime),
	}

	log := s.log.With(logging.Group("token",
		"sub", subject,
		"roles", roles.Strings(),
		"exp", claims.ExpiresAt.UTC().Format(time.RFC3339),
	))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "issue token failed", "error", err)
		} else {
			log.DebugContext(ctx, "token issued")
		}
	}()

	token, err := s.codec.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}

	return token, nil
}

// Validate decodes token and checks that the current time lies within [iat, exp).
// Fails with domain.ErrTokenBlank, domain.ErrTokenExpired,
// domain.ErrTokenInvalidSignature or domain.ErrTokenMalformed.
func (s *TokenService) Validate(ctx context.Context, token string) (claims domain.Claims, err error) {
	defer func() {
		outcome := ValidationOutcome(err)
		s.metrics.TokenValidations.With(metrics.LabelOutcome, outcome).Add(1)

		if err != nil {
			s.log.WarnContext(ctx, "token rejected", "reason", outcome, "error", err)
		} else {
			s.log.DebugContext(ctx, "token validated", logging.Group("token",
				"sub", claims.Subject,
				"exp", claims.ExpiresAt.UTC().Format(time.RFC3339),
			))
		}
	}()

	if strings.TrimSpace(token) == "" {
		return domain.Claims{}, domain.ErrTokenBlank
	}

	claims, err = s.codec.Decode(token)
	if err != nil {
		return domain.Claims{}, err
	}

	now := s.clock.Now()
	if !now.Before(claims.ExpiresAt) {
		return domain.Claims{}, fmt.Errorf("%w: at %s", domain.ErrTokenExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if now.Before(claims.IssuedAt) {
		return domain.Claims{}, fmt.Errorf("%w: not valid before %s", domain.ErrTokenExpired, claims.IssuedAt.UTC().Format(time.RFC3339))
	}

	return claims, nil
}

// ResolveFromRequest extracts the bearer token from the Authorization header.
// ok is false when no bearer credential is presented at all; a "Bearer" scheme
// with an empty credential is reported as present with an empty token.
func (s *TokenService) ResolveFromRequest(r *http.Request) (string, bool) {
	return http_.BearerToken(r)
}

// IdentityOf projects validated claims onto an Identity.
func (s *TokenService) IdentityOf(claims domain.Claims) domain.Identity {
	return domain.Identity{
		Subject: claims.Subject,
		Roles:   claims.Roles,
	}
}

// Authenticate implements http_.Authenticator.
// ok is false for anonymous requests; err is set when a presented token is rejected.
func (s *TokenService) Authenticate(r *http.Request) (domain.Identity, bool, error) {
	token, present := s.ResolveFromRequest(r)
	if !present {
		return domain.Identity{}, false, nil
	}

	claims, err := s.Validate(r.Context(), token)
	if err != nil {
		return domain.Identity{}, false, err
	}

	return s.IdentityOf(claims), true, nil
}

// ValidationOutcome names the metric outcome for a Validate error.
func ValidationOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrTokenBlank):
		return OutcomeBlank
	case errors.Is(err, domain.ErrTokenExpired):
		return OutcomeExpired
	case errors.Is(err, domain.ErrTokenInvalidSignature):
		return OutcomeInvalidSignature
	default:
		return OutcomeMalformed
	}
}
