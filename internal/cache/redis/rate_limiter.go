package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements domain.RateLimiter with a fixed-window counter per
// key. The counter key carries the window's expiry, so idle keys clean
// themselves up.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

func rateLimitKey(key string, window time.Duration) string {
	bucket := time.Now().UnixNano() / int64(window)
	return fmt.Sprintf("ratelimit:%s:%d", key, bucket)
}

// Allow counts a request against the key's current window and reports
// whether it stays within limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := rateLimitKey(key, window)

	pipe := rl.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(limit), nil
}
