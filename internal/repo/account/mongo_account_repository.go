package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mkrupp/tokenauth/internal/domain"
	"github.com/mkrupp/tokenauth/internal/infra/logging"
)

const mongoTimeout = 15 * time.Second

// MongoAccountRepositoryConfig holds configuration for the MongoDB account repository.
type MongoAccountRepositoryConfig struct {
	// URI is the MongoDB connection string
	URI string `env:"URI" default:"mongodb://localhost:27017"`

	// Database holds the accounts collection
	Database string `env:"DATABASE" default:"tokenauth"`

	// Collection stores one document per account
	Collection string `env:"COLLECTION" default:"accounts"`
}

// MongoAccountRepository implements Repository on a MongoDB collection with a unique username index.
type MongoAccountRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    logging.Logger
}

var _ Repository = (*MongoAccountRepository)(nil)

// MongoAccountRepositoryFactory creates a factory function that returns a new MongoAccountRepository.
func MongoAccountRepositoryFactory(cfg MongoAccountRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewMongoAccountRepository(ctx, cfg)
	}
}

// NewMongoAccountRepository connects to MongoDB and ensures the unique username index.
func NewMongoAccountRepository(ctx context.Context, cfg MongoAccountRepositoryConfig) (*MongoAccountRepository, error) {
	log := logging.GetLogger("repo.account.mongo_account_repository").With(
		logging.Group("db", "database", cfg.Database, "collection", cfg.Collection),
	)

	dialCtx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))

		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)

	//nolint:exhaustruct
	if _, err := coll.Indexes().CreateOne(dialCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))

		return nil, fmt.Errorf("create username index: %w", err)
	}

	log.DebugContext(ctx, "account repository opened")

	return &MongoAccountRepository{client: client, coll: coll, log: log}, nil
}

// ExistsByUsername implements Repository.ExistsByUsername.
func (r *MongoAccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"username": username}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}

	return n > 0, nil
}

// FindByUsername implements Repository.FindByUsername.
func (r *MongoAccountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, bool, error) {
	var record accountRecord

	err := r.coll.FindOne(ctx, bson.M{"username": username}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("find account: %w", err)
	}

	account, err := record.account()
	if err != nil {
		return nil, false, err
	}

	return account, true, nil
}

// Save implements Repository.Save.
func (r *MongoAccountRepository) Save(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if _, err := r.coll.InsertOne(ctx, newAccountRecord(account)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			err = errors.Join(domain.ErrDuplicateUsername, err)
		}

		return nil, fmt.Errorf("insert account: %w", err)
	}

	saved := *account

	return &saved, nil
}

// DeleteByUsername implements Repository.DeleteByUsername.
func (r *MongoAccountRepository) DeleteByUsername(ctx context.Context, username string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"username": username}); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	return nil
}

// Close implements Repository.Close.
func (r *MongoAccountRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()

	if err := r.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}

	return nil
}
