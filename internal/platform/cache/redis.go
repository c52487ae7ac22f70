package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a connected client, or nil when addr is empty
// (Redis backed features are then disabled by the callers).
func NewRedisClient(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*redis.Client, error) {
	if addr == "" {
		logger.Info("Redis address not configured, redis backed features disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis", "addr", addr, "db", db)
	return client, nil
}
