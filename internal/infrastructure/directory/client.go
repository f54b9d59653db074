package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = "desklink:schema:version"
	currentSchemaVersion = 1
)

// NewRedisClient creates a new Redis client with connection pooling
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if err := migrate(ctx, client, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", address,
			"db", db,
			"pool_size", poolSize,
		)
	}

	return client, nil
}

// CloseRedisClient closes the Redis client connection
func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

type migration struct {
	version int
	up      func(ctx context.Context, client *redis.Client) error
}

// migrate brings the key schema up to the current version.
func migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	version, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		version = 0
	} else if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if version >= currentSchemaVersion {
		return nil
	}

	for _, m := range migrations() {
		if m.version <= version {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", m.version)
		}
		if err := m.up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

func migrations() []migration {
	return []migration{
		{
			version: 1,
			up: func(ctx context.Context, client *redis.Client) error {
				// Seed the active sessions index so SMEMBERS never has
				// to distinguish missing from empty.
				exists, err := client.Exists(ctx, activeSessionsKey).Result()
				if err != nil {
					return err
				}
				if exists == 0 {
					if err := client.SAdd(ctx, activeSessionsKey, "").Err(); err != nil {
						return err
					}
					client.SRem(ctx, activeSessionsKey, "")
				}
				return nil
			},
		},
	}
}
