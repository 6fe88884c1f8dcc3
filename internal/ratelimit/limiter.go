// Package ratelimit provides a redis-backed fixed-window throttle applied
// per client IP in front of the credential verifier. It is independent of
// the per-account brute-force guard.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter errors
var (
	ErrLimited     = errors.New("too many requests")
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Limiter counts requests per key in a fixed window backed by redis.
type Limiter struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

// NewLimiter creates a new Limiter instance
func NewLimiter(client *redis.Client, prefix string, max int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		prefix: prefix,
		max:    max,
		window: window,
	}
}

// Allow counts one request for the key. Returns ErrLimited once the window
// budget is exhausted, and ErrUnavailable when redis cannot be reached so
// the caller can decide whether to fail open.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(l.max) {
		return ErrLimited
	}

	return nil
}

// Reset clears the counter for a key. Intended for tests and operator use.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}
