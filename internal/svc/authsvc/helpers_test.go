package authsvc_test

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/abtime"

	"github.com/mkrupp/tokenauth/internal/crypto/password"
	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/metrics"
	"github.com/mkrupp/tokenauth/internal/svc/authsvc"
)

var ErrRepoError = errors.New("repository error")

//nolint:gochecknoglobals
var (
	signingKeyOnce sync.Once
	signingKey     *rsa.PrivateKey
	signingKeyErr  error

	testEpoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
)

const testLifetime = time.Hour

func testSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	signingKeyOnce.Do(func() {
		signingKey, signingKeyErr = authsvc.GeneratePrivateKey(2048)
	})

	if signingKeyErr != nil {
		t.Fatalf("failed to generate signing key: %v", signingKeyErr)
	}

	return signingKey
}

// mockAccountRepository implements account.Repository for testing.
type mockAccountRepository struct {
	accounts map[string]*domain.Account
	err      error
	saves    int
	m        sync.Mutex
}

func newMockAccountRepo() *mockAccountRepository {
	return &mockAccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

func (m *mockAccountRepository) ExistsByUsername(_ context.Context, username string) (bool, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return false, m.err
	}

	_, exists := m.accounts[username]

	return exists, nil
}

func (m *mockAccountRepository) FindByUsername(_ context.Context, username string) (*domain.Account, bool, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return nil, false, m.err
	}

	account, exists := m.accounts[username]
	if !exists {
		return nil, false, nil
	}

	found := *account

	return &found, true, nil
}

func (m *mockAccountRepository) Save(_ context.Context, account *domain.Account) (*domain.Account, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	if _, exists := m.accounts[account.Username]; exists {
		return nil, domain.ErrDuplicateUsername
	}

	stored := *account
	m.accounts[account.Username] = &stored
	m.saves++

	return account, nil
}

func (m *mockAccountRepository) DeleteByUsername(_ context.Context, username string) error {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return m.err
	}

	delete(m.accounts, username)

	return nil
}

func (m *mockAccountRepository) Close() error {
	return nil
}

func (m *mockAccountRepository) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()

	m.err = err
}

func (m *mockAccountRepository) setRoles(username string, roles ...domain.Role) {
	m.m.Lock()
	defer m.m.Unlock()

	m.accounts[username].Roles = domain.NewRoleSet(roles...)
}

func (m *mockAccountRepository) count() (accounts, saves int) {
	m.m.Lock()
	defer m.m.Unlock()

	return len(m.accounts), m.saves
}

type testServices struct {
	clock    *abtime.ManualTime
	codec    *authsvc.JWTCodec
	tokens   *authsvc.TokenService
	accounts *authsvc.AccountService
	repo     *mockAccountRepository
}

func setupTestServices(t *testing.T, authMetrics *metrics.AuthMetrics) *testServices {
	t.Helper()

	clock := abtime.NewManualAtTime(testEpoch)
	codec := authsvc.NewJWTCodec(testSigningKey(t))
	tokens := authsvc.NewTokenService(codec, clock, testLifetime, authMetrics)
	repo := newMockAccountRepo()
	accounts := authsvc.NewAccountService(repo, tokens, password.NewBcryptHasher(4), clock, authMetrics)

	return &testServices{
		clock:    clock,
		codec:    codec,
		tokens:   tokens,
		accounts: accounts,
		repo:     repo,
	}
}
