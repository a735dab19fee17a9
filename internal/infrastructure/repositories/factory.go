package repositories

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bintunet/internal/core/ports"
	"bintunet/internal/infrastructure/repositories/dynamo"
	"bintunet/internal/infrastructure/repositories/file"
	"bintunet/internal/infrastructure/repositories/memory"
	redisrepo "bintunet/internal/infrastructure/repositories/redis"
	"bintunet/pkg/config"
)

// RepositoryFactory builds the configured stream and session stores and owns
// the connections behind them.
type RepositoryFactory struct {
	backend     string
	cfg         *config.Config
	clock       clockwork.Clock
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when the storage backend or the
// event publisher needs it. An unreachable Redis is an error.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		backend: cfg.Storage.Backend,
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
	}

	if cfg.UsesRedis() {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.ClientConfig{
			Address:    cfg.Storage.Redis.Address,
			Password:   cfg.Storage.Redis.Password,
			DB:         cfg.Storage.Redis.DB,
			PoolSize:   cfg.Storage.Redis.PoolSize,
			StreamsKey: cfg.Storage.Redis.Key,
		}, logger)
		if err != nil {
			return nil, err
		}
		factory.redisClient = client
	}

	logger.Infow("using stream storage backend", "backend", factory.backend)
	return factory, nil
}

// CreateStreamStore returns the durable stream collection for the configured backend.
func (f *RepositoryFactory) CreateStreamStore(ctx context.Context) (ports.StreamStore, error) {
	switch f.backend {
	case "memory":
		return memory.NewMemoryStreamRepository(), nil
	case "file":
		return file.NewFileStreamRepository(f.cfg.Storage.File.Path)
	case "redis":
		return redisrepo.NewRedisStreamRepository(f.redisClient, f.cfg.Storage.Redis.Key), nil
	case "dynamodb":
		client, err := dynamo.NewClient(ctx, f.cfg.Storage.DynamoDB.Region, f.cfg.Storage.DynamoDB.Endpoint)
		if err != nil {
			return nil, err
		}
		return dynamo.NewDynamoStreamRepository(client, f.cfg.Storage.DynamoDB.Table), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", f.backend)
}

// CreateSessionStore returns a Redis session store when Redis is connected,
// otherwise an in-process one.
func (f *RepositoryFactory) CreateSessionStore() ports.SessionStore {
	if f.redisClient != nil {
		return redisrepo.NewRedisSessionRepository(f.redisClient)
	}
	return memory.NewMemorySessionRepository(f.clock)
}

// RedisClient returns the shared client, or nil when Redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
