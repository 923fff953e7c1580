package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mkrupp/tokenauth/internal/domain"
)

// ErrUnknownBackend is returned by NewRepositoryFactory for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown account repository backend")

// Backend names accepted in RepositoryConfig.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
)

// Repository defines the interface for account persistence.
type Repository interface {
	// ExistsByUsername reports whether an account with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// FindByUsername retrieves an account by username.
	// Returns the account and true if found, or nil and false if not found.
	// Returns an error only if the operation fails.
	FindByUsername(ctx context.Context, username string) (*domain.Account, bool, error)

	// Save stores a new account and returns the stored record.
	// Returns domain.ErrDuplicateUsername if the username is already taken.
	Save(ctx context.Context, account *domain.Account) (*domain.Account, error)

	// DeleteByUsername removes the account with the given username.
	// Deleting an absent account is not an error.
	DeleteByUsername(ctx context.Context, username string) error

	// Close releases any resources held by the repository.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
type RepositoryFactory func(ctx context.Context) (Repository, error)

// RepositoryConfig selects the storage backend and carries the settings of each.
type RepositoryConfig struct {
	// Backend is one of "sqlite", "postgres", "redis" or "mongo"
	Backend string `env:"BACKEND" default:"sqlite"`

	SQLite   SQLiteAccountRepositoryConfig   `envPrefix:"SQLITE_"`
	Postgres PostgresAccountRepositoryConfig `envPrefix:"POSTGRES_"`
	Redis    RedisAccountRepositoryConfig    `envPrefix:"REDIS_"`
	Mongo    MongoAccountRepositoryConfig    `envPrefix:"MONGO_"`
}

// NewRepositoryFactory returns the factory of the backend selected by cfg.
func NewRepositoryFactory(cfg RepositoryConfig) (RepositoryFactory, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendSQLite:
		return SQLiteAccountRepositoryFactory(cfg.SQLite), nil
	case BackendPostgres:
		return PostgresAccountRepositoryFactory(cfg.Postgres), nil
	case BackendRedis:
		return RedisAccountRepositoryFactory(cfg.Redis), nil
	case BackendMongo:
		return MongoAccountRepositoryFactory(cfg.Mongo), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// accountRecord is the document form of an account used by the key-value and document backends.
type accountRecord struct {
	ID           string   `json:"id" bson:"_id"`
	Username     string   `json:"username" bson:"username"`
	Email        string   `json:"email,omitempty" bson:"email,omitempty"`
	PasswordHash string   `json:"password_hash" bson:"password_hash"`
	Roles        []string `json:"roles" bson:"roles"`
	CreatedAt    int64    `json:"created_at" bson:"created_at"`
}

func newAccountRecord(account *domain.Account) accountRecord {
	return accountRecord{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Roles:        account.Roles.Strings(),
		CreatedAt:    account.CreatedAt,
	}
}

func (r accountRecord) account() (*domain.Account, error) {
	roles, err := domain.ParseRoleSet(r.Roles)
	if err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}

	return &domain.Account{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Roles:        roles,
		CreatedAt:    r.CreatedAt,
	}, nil
}

// joinRoles encodes roles for single-column storage.
func joinRoles(roles domain.RoleSet) string {
	return strings.Join(roles.Strings(), ",")
}

func splitRoles(value string) (domain.RoleSet, error) {
	if value == "" {
		return domain.NewRoleSet(), nil
	}

	roles, err := domain.ParseRoleSet(strings.Split(value, ","))
	if err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}

	return roles, nil
}
