package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

// RedisAccountRepositoryConfig holds configuration for the Redis account repository.
type RedisAccountRepositoryConfig struct {
	// URL is a redis:// URL or a plain host:port address
	URL string `env:"URL" default:"redis://localhost:6379/0"`

	// KeyPrefix is prepended to the username to form the record key
	KeyPrefix string `env:"KEY_PREFIX" default:"tokenauth:account:"`
}

// RedisAccountRepository implements Repository storing one JSON document per username key.
// Uniqueness is enforced atomically with SETNX.
type RedisAccountRepository struct {
	client *redis.Client
	prefix string
	log    logging.Logger
}

var _ Repository = (*RedisAccountRepository)(nil)

// RedisAccountRepositoryFactory creates a factory function that returns a new RedisAccountRepository.
func RedisAccountRepositoryFactory(cfg RedisAccountRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewRedisAccountRepository(ctx, cfg)
	}
}

// NewRedisAccountRepository connects to Redis and verifies the connection.
func NewRedisAccountRepository(ctx context.Context, cfg RedisAccountRepositoryConfig) (*RedisAccountRepository, error) {
	log := logging.GetLogger("repo.account.redis_account_repository")

	var opts *redis.Options

	if strings.HasPrefix(cfg.URL, "redis://") || strings.HasPrefix(cfg.URL, "rediss://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}

		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.URL} //nolint:exhaustruct
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.DebugContext(ctx, "account repository opened", "addr", opts.Addr)

	return &RedisAccountRepository{client: client, prefix: cfg.KeyPrefix, log: log}, nil
}

func (r *RedisAccountRepository) key(username string) string {
	return r.prefix + username
}

// ExistsByUsername implements Repository.ExistsByUsername.
func (r *RedisAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}

	return n > 0, nil
}

// FindByUsername implements Repository.FindByUsername.
func (r *RedisAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, bool, error) {
	raw, err := r.client.Get(ctx, r.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("get: %w", err)
	}

	var record accountRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fmt.Errorf("unmarshal account: %w", err)
	}

	account, err := record.account()
	if err != nil {
		return nil, false, err
	}

	return account, true, nil
}

// Save implements Repository.Save.
func (r *RedisAccountRepository) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	raw, err := json.Marshal(newAccountRecord(account))
	if err != nil {
		return nil, fmt.Errorf("marshal account: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.key(account.Username), raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx: %w", err)
	}

	if !created {
		return nil, fmt.Errorf("insert account: %w", domain.ErrDuplicateUsername)
	}

	saved := *account

	return &saved, nil
}

// DeleteByUsername implements Repository.DeleteByUsername.
func (r *RedisAccountRepository) DeleteByUsername(ctx context.Context, username string) error {
	if err := r.client.Del(ctx, r.key(username)).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}

	return nil
}

// Close implements Repository.Close.
func (r *RedisAccountRepository) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}

	return nil
}
