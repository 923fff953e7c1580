package authsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/abtime"

	"github.com/mkrupp/tokenauth/internal/crypto/password"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	"github.com/mkrupp/tokenauth/internal/infra/metrics"
	"github.com/mkrupp/tokenauth/internal/repo/account"
)

// AuthConfig contains configuration parameters for the authentication service.
type AuthConfig struct {
	// SigningKeyFile is the path to the RSA private key file
	SigningKeyFile string `env:"SIGNING_KEY_FILE" default:"var/storage/authsvc.key"`

	// TokenLifetime is the validity duration of issued tokens
	TokenLifetime time.Duration `env:"TOKEN_LIFETIME" default:"1h"`

	// Hasher selects the password hash algorithm
	Hasher password.HasherConfig

	// SeedFile is an optional YAML file of accounts created at startup
	SeedFile string `env:"SEED_FILE" default:""`
}

// AuthService wires the token, account and guard components around one credential store.
type AuthService struct {
	Tokens   *TokenService
	Accounts *AccountService
	Guard    *Guard

	repo account.Repository
	log  logging.Logger
}

// NewAuthService loads the signing key, opens the account repository and builds the services.
func NewAuthService(
	ctx context.Context,
	repoFactory account.RepositoryFactory,
	cfg AuthConfig,
	authMetrics *metrics.AuthMetrics,
) (*AuthService, error) {
	log := logging.GetLogger("svc.authsvc.auth_service")

	if cfg.TokenLifetime < MinTokenLifetime {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTokenLifetime, cfg.TokenLifetime)
	}

	signingKey, err := GetPrivateKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("get private key: %w", err)
	}

	hasher, err := password.New(cfg.Hasher)
	if err != nil {
		return nil, fmt.Errorf("new password hasher: %w", err)
	}

	repo, err := repoFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new account repo: %w", err)
	}

	clock := abtime.NewRealTime()
	tokens := NewTokenService(NewJWTCodec(signingKey), clock, cfg.TokenLifetime, authMetrics)

	log.DebugContext(ctx, "auth service created", logging.Group("config",
		"signingKeyFile", cfg.SigningKeyFile,
		"tokenLifetime", cfg.TokenLifetime,
		"passwordHasher", cfg.Hasher.Algorithm,
	))

	return &AuthService{
		Tokens:   tokens,
		Accounts: NewAccountService(repo, tokens, hasher, clock, authMetrics),
		Guard:    NewGuard(authMetrics),
		repo:     repo,
		log:      log,
	}, nil
}

// Close releases resources held by the service, such as database connections.
func (s *AuthService) Close() error {
	if err := s.repo.Close(); err != nil {
		return fmt.Errorf("close account repo: %w", err)
	}

	return nil
}
