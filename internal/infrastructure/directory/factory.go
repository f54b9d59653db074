package directory

import (
	"context"

	"desklink/internal/core/ports"
	"desklink/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory selects the directory backend: Redis when enabled and
// reachable, process memory otherwise.
type Factory struct {
	useRedis    bool
	redisClient *redis.Client
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	factory := &Factory{
		useRedis: cfg.Redis.Enabled,
		cfg:      cfg,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory directory",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis session directory")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory session directory")
	}

	return factory, nil
}

// CreateDirectory builds the selected SessionDirectory implementation.
func (f *Factory) CreateDirectory() ports.SessionDirectory {
	if f.useRedis && f.redisClient != nil {
		return NewRedisDirectory(f.redisClient, f.cfg.Redis.SessionTTL)
	}
	return NewMemoryDirectory()
}

// RedisClient exposes the shared client for the host-claim lock. Nil in
// memory mode.
func (f *Factory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes the Redis connection if one was opened.
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis when it backs the directory.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
