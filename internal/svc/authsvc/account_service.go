package authsvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"github.com/mkrupp/tokenauth/internal/crypto/password"
	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
	"github.com/mkrupp/tokenauth/internal/infra/metrics"
	"github.com/mkrupp/tokenauth/internal/repo/account"
)

// Signin and signup outcomes recorded on their counters.
const (
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeDuplicate          = "duplicate"
	OutcomeInvalidInput       = "invalid_input"
	OutcomeError              = "error"
)

// decoyPassword is hashed once to give unknown-user signins the same cost as known ones.
const decoyPassword = "decoy-password-for-unknown-accounts"

// AccountService orchestrates signup, signin and account lookups on top of
// the credential store, the password hasher and the token service.
type AccountService struct {
	accounts account.Repository
	tokens   *TokenService
	hasher   password.Hasher
	clock    abtime.AbstractTime
	metrics  *metrics.AuthMetrics
	log      logging.Logger

	decoyOnce sync.Once
	decoyHash string
}

// NewAccountService creates an AccountService. A nil clock selects the wall clock,
// nil metrics are discarded.
func NewAccountService(
	accounts account.Repository,
	tokens *TokenService,
	hasher password.Hasher,
	clock abtime.AbstractTime,
	authMetrics *metrics.AuthMetrics,
) *AccountService {
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	if authMetrics == nil {
		authMetrics = metrics.NewNopAuthMetrics()
	}

	return &AccountService{
		accounts: accounts,
		tokens:   tokens,
		hasher:   hasher,
		clock:    clock,
		metrics:  authMetrics,
		log:      logging.GetLogger("svc.authsvc.account_service"),
	}
}

// Signup creates an account and returns a token for it.
// Fails with domain.ErrInvalidInput or domain.ErrDuplicateUsername; a duplicate performs no write.
func (s *AccountService) Signup(ctx context.Context, req domain.SignupRequest) (_ string, err error) {
	log := s.log.With(logging.Group("user", "username", req.Username))

	defer func() {
		s.metrics.Signups.With(metrics.LabelOutcome, signupOutcome(err)).Add(1)

		if err != nil {
			log.ErrorContext(ctx, "signup failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed up")
		}
	}()

	roles, err := validateSignup(req)
	if err != nil {
		return "", err
	}

	exists, err := s.accounts.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return "", fmt.Errorf("check username: %w", err)
	} else if exists {
		return "", domain.ErrDuplicateUsername
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	saved, err := s.accounts.Save(ctx, &domain.Account{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    s.clock.Now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("save account: %w", err)
	}

	token, err := s.tokens.Issue(ctx, saved.Username, saved.Roles)
	if err != nil {
		err = fmt.Errorf("issue token: %w", err)

		// Roll back so that a retry is not rejected as a duplicate.
		if derr := s.accounts.DeleteByUsername(ctx, saved.Username); derr != nil {
			err = errors.Join(err, fmt.Errorf("roll back account: %w", derr))
		}

		return "", err
	}

	return token, nil
}

// Signin verifies the credentials and returns a token carrying the account's persisted roles.
// Unknown usernames and wrong passwords both fail with domain.ErrInvalidCredentials.
func (s *AccountService) Signin(ctx context.Context, username, plainPassword string) (_ string, err error) {
	log := s.log.With(logging.Group("user", "username", username))

	defer func() {
		s.metrics.Signins.With(metrics.LabelOutcome, signinOutcome(err)).Add(1)

		if err != nil {
			log.ErrorContext(ctx, "signin failed", "error", err)
		} else {
			log.DebugContext(ctx, "user signed in")
		}
	}()

	if username == "" || plainPassword == "" {
		return "", fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}

	found, ok, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("find account: %w", err)
	}

	if !ok {
		s.hasher.Verify(plainPassword, s.decoy())

		return "", domain.ErrInvalidCredentials
	}

	if !s.hasher.Verify(plainPassword, found.PasswordHash) {
		return "", domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, found.Username, found.Roles)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	return token, nil
}

// Delete removes the account; deleting an absent account succeeds.
func (s *AccountService) Delete(ctx context.Context, username string) (err error) {
	log := s.log.With(logging.Group("user", "username", username))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete account failed", "error", err)
		} else {
			log.DebugContext(ctx, "account deleted")
		}
	}()

	if err := s.accounts.DeleteByUsername(ctx, username); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	return nil
}

// Search returns the account with the given username or domain.ErrAccountNotFound.
func (s *AccountService) Search(ctx context.Context, username string) (*domain.Account, error) {
	found, ok, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	} else if !ok {
		return nil, domain.ErrAccountNotFound
	}

	return found, nil
}

// Whoami validates the request's bearer token and re-reads the subject's account,
// so the result reflects the persisted state rather than the token's claims.
func (s *AccountService) Whoami(ctx context.Context, r *http.Request) (_ *domain.Account, err error) {
	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "whoami failed", "error", err)
		}
	}()

	token, present := s.tokens.ResolveFromRequest(r)
	if !present {
		return nil, domain.ErrUnauthenticated
	}

	claims, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}

	return s.Search(ctx, claims.Subject)
}

// Refresh issues a new token for subject with the account's current roles.
// Fails with domain.ErrAccountNotFound if the account no longer exists.
func (s *AccountService) Refresh(ctx context.Context, subject string) (_ string, err error) {
	log := s.log.With(logging.Group("user", "username", subject))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "refresh failed", "error", err)
		} else {
			log.DebugContext(ctx, "token refreshed")
		}
	}()

	found, err := s.Search(ctx, subject)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(ctx, found.Username, found.Roles)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	return token, nil
}

func (s *AccountService) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(decoyPassword)
		if err != nil {
			s.log.Error("hash decoy password failed", "error", err)

			return
		}

		s.decoyHash = hash
	})

	return s.decoyHash
}

func validateSignup(req domain.SignupRequest) (domain.RoleSet, error) {
	switch {
	case req.Username == "":
		return nil, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	case req.Password == "":
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	case len(req.Roles) == 0:
		return nil, fmt.Errorf("%w: at least one role is required", domain.ErrInvalidInput)
	}

	return domain.ParseRoleSet(req.Roles)
}

func signupOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrDuplicateUsername):
		return OutcomeDuplicate
	case errors.Is(err, domain.ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}

func signinOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrInvalidCredentials):
		return OutcomeInvalidCredentials
	case errors.Is(err, domain.ErrInvalidInput):
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}
