package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// New creates a Redis client and checks it once. Redis only backs caches and
// the job queue here, so an unreachable server is logged, not fatal; callers
// degrade per request.
func New(ctx context.Context, addr string, logger *slog.Logger) *redis.Client {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  pingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.String("addr", addr), slog.Any("error", err))
	}
	return client
}

// Close closes client and logs a failure.
func Close(client *redis.Client, logger *slog.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && logger != nil {
		logger.Warn("redis close", slog.Any("error", err))
	}
}
