package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/redis"
)

// RedisLimiter is a fixed window limiter shared by every gateway replica.
// Redis errors let the request through.
type RedisLimiter struct {
	client  *redis.Client
	limit   int
	window  time.Duration
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		prefix:  "visiongate:ratelimit:",
		timeout: 250 * time.Millisecond,
		logger:  logger,
	}
}

// Window is the fixed window length
func (rl *RedisLimiter) Window() time.Duration {
	return rl.window
}

func (rl *RedisLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	count, err := rl.client.IncrWindow(ctx, rl.prefix+key, rl.window)
	if err != nil {
		rl.logger.Error("redis rate limiter error", slog.String("error", err.Error()))
		return true
	}
	return count <= int64(rl.limit)
}
