package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"moneymate/internal/amqp"
	"moneymate/internal/docstore"
	"moneymate/internal/docstore/broadcast"
	"moneymate/internal/docstore/memory"
	"moneymate/internal/docstore/mongo"
	"moneymate/internal/docstore/postgres"
	"moneymate/internal/session"
	"moneymate/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MongoBackend:
		return f.createMongoBackend(ctx, config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.New()
	f.logger.Info("Initialized memory backend")
	return &BackendResult{
		Store: store,
		KV:    session.NewMemoryKV(),
		Cleanup: func(context.Context) error {
			store.Close()
			return nil
		},
	}, nil
}

// createSQLiteBackend stores documents in the device database. SQLite only
// notifies subscribers in the writing process, so when AMQP is configured the
// store is wrapped to announce and receive changes across processes.
func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := &BackendResult{
		Store:   repo,
		KV:      repo,
		Health:  repo,
		Cleanup: func(context.Context) error { return repo.Close() },
	}

	if config.AMQPURL == "" {
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath, "broadcast", false)
		return result, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without cross-process updates", "error", err)
		return result, nil
	}

	bs := broadcast.New(repo, client)
	result.Store = bs
	result.Background = bs.Run
	result.Cleanup = func(context.Context) error {
		bs.Close()
		return errors.Join(client.Close(), repo.Close())
	}
	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"broadcast", true,
		"exchange", config.AMQPExchange,
		"origin", bs.Origin())
	return result, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := mongo.Connect(ctx, config.MongoURI, config.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	kv, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	f.warnUnusedBroadcast(config)
	f.logger.Info("Initialized MongoDB backend", "database", config.MongoDB)

	return &BackendResult{
		Store:  store,
		KV:     kv,
		Health: store,
		Cleanup: func(ctx context.Context) error {
			return errors.Join(store.Close(ctx), kv.Close())
		},
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.Open(ctx, config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	kv, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	f.warnUnusedBroadcast(config)
	f.logger.Info("Initialized Postgres backend")

	return &BackendResult{
		Store:  store,
		KV:     kv,
		Health: store,
		Cleanup: func(context.Context) error {
			store.Close()
			return kv.Close()
		},
	}, nil
}

func (f *DefaultFactory) warnUnusedBroadcast(config Config) {
	if config.AMQPURL != "" {
		f.logger.Warn("AMQP_URL ignored, backend has a native change feed", "backend", config.Type)
	}
}

var _ docstore.Store = (*broadcast.Store)(nil)
