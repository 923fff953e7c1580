package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

// SQLiteAccountRepositoryConfig holds configuration for the SQLite account repository.
type SQLiteAccountRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/authsvc.db"`
}

// SQLiteAccountRepository implements Repository using SQLite as the storage backend.
type SQLiteAccountRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteAccountRepository)(nil)

// SQLiteAccountRepositoryFactory creates a factory function that returns a new SQLiteAccountRepository.
func SQLiteAccountRepositoryFactory(cfg SQLiteAccountRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewSQLiteAccountRepository(ctx, cfg)
	}
}

// NewSQLiteAccountRepository creates a new SQLiteAccountRepository with the given configuration.
// It initializes the database connection and creates the schema if needed.
func NewSQLiteAccountRepository(ctx context.Context, cfg SQLiteAccountRepositoryConfig) (*SQLiteAccountRepository, error) {
	log := logging.GetLogger("repo.account.sqlite_account_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := prepareDB(ctx, db); err != nil {
		_ = db.Close()

		return nil, err
	}

	log.DebugContext(ctx, "account repository opened")

	return &SQLiteAccountRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func prepareDB(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(ctx, db); err != nil {
		return fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	return nil
}

func initializeDB(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT    PRIMARY KEY,
			username      TEXT    UNIQUE NOT NULL,
			email         TEXT    NOT NULL DEFAULT '',
			password_hash TEXT    NOT NULL,
			roles         TEXT    NOT NULL,
			created_at    INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// ExistsByUsername implements Repository.ExistsByUsername using SQLite.
func (r *SQLiteAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM accounts WHERE username = ?)",
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query account exists: %w", err)
	}

	return exists, nil
}

// FindByUsername implements Repository.FindByUsername using SQLite.
func (r *SQLiteAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, bool, error) {
	var (
		account domain.Account
		roles   string
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, roles, created_at FROM accounts WHERE username = ?",
		username,
	).Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash, &roles, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("query account: %w", err)
	}

	if account.Roles, err = splitRoles(roles); err != nil {
		return nil, false, err
	}

	return &account, true, nil
}

// Save implements Repository.Save using SQLite.
func (r *SQLiteAccountRepository) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO accounts (id, username, email, password_hash, roles, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		joinRoles(account.Roles),
		account.CreatedAt,
	)
	if err != nil {
		var liteErr *sqlite.Error
		if errors.As(err, &liteErr) {
			switch liteErr.Code() {
			case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
				fallthrough
			case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				err = errors.Join(domain.ErrDuplicateUsername, err)
			default:
				break
			}
		}

		return nil, fmt.Errorf("insert account: %w", err)
	}

	saved := *account

	return &saved, nil
}

// DeleteByUsername implements Repository.DeleteByUsername using SQLite.
func (r *SQLiteAccountRepository) DeleteByUsername(ctx context.Context, username string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE username = ?", username); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	return nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteAccountRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
