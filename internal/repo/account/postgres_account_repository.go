package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

// PostgresAccountRepositoryConfig holds configuration for the PostgreSQL account repository.
type PostgresAccountRepositoryConfig struct {
	// DSN is the PostgreSQL connection string
	DSN string `env:"DSN" default:"postgres://localhost:5432/tokenauth?sslmode=disable"`

	// MaxConns caps the connection pool, 0 keeps the driver default
	MaxConns int `env:"MAX_CONNS" default:"10"`
}

// accountModel is the gorm mapping of the accounts table.
type accountModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	Email        string `gorm:"not null;default:''"`
	PasswordHash string `gorm:"not null"`
	Roles        string `gorm:"not null"`
	CreatedAt    int64  `gorm:"not null"`
}

func (accountModel) TableName() string {
	return "accounts"
}

// PostgresAccountRepository implements Repository on PostgreSQL through gorm.
type PostgresAccountRepository struct {
	db  *gorm.DB
	log logging.Logger
}

var _ Repository = (*PostgresAccountRepository)(nil)

// PostgresAccountRepositoryFactory creates a factory function that returns a new PostgresAccountRepository.
func PostgresAccountRepositoryFactory(cfg PostgresAccountRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewPostgresAccountRepository(ctx, cfg)
	}
}

// NewPostgresAccountRepository connects to PostgreSQL and migrates the accounts table.
func NewPostgresAccountRepository(ctx context.Context, cfg PostgresAccountRepositoryConfig) (*PostgresAccountRepository, error) {
	log := logging.GetLogger("repo.account.postgres_account_repository")

	//nolint:exhaustruct
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger: gormlogger.New(logging.GetLogLogger(log, logging.LevelDebug), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(max(cfg.MaxConns/2, 1))
	}

	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&accountModel{}); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.DebugContext(ctx, "account repository opened")

	return &PostgresAccountRepository{db: db, log: log}, nil
}

// ExistsByUsername implements Repository.ExistsByUsername.
func (r *PostgresAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64

	err := r.db.WithContext(ctx).Model(&accountModel{}).Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}

	return count > 0, nil
}

// FindByUsername implements Repository.FindByUsername.
func (r *PostgresAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, bool, error) {
	var row accountModel

	err := r.db.WithContext(ctx).Where("username = ?", username).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("query account: %w", err)
	}

	roles, err := splitRoles(row.Roles)
	if err != nil {
		return nil, false, err
	}

	return &domain.Account{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Roles:        roles,
		CreatedAt:    row.CreatedAt,
	}, true, nil
}

// Save implements Repository.Save.
func (r *PostgresAccountRepository) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	row := accountModel{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		Roles:        joinRoles(account.Roles),
		CreatedAt:    account.CreatedAt,
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = errors.Join(domain.ErrDuplicateUsername, err)
		}

		return nil, fmt.Errorf("insert account: %w", err)
	}

	saved := *account

	return &saved, nil
}

// DeleteByUsername implements Repository.DeleteByUsername.
func (r *PostgresAccountRepository) DeleteByUsername(ctx context.Context, username string) error {
	if err := r.db.WithContext(ctx).Where("username = ?", username).Delete(&accountModel{}).Error; err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	return nil
}

// Close implements Repository.Close.
func (r *PostgresAccountRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
