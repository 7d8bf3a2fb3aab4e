package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a sliding-window rate limit backed by Redis sorted
// sets. Each key holds one member per request, scored by its Unix microsecond
// timestamp; expired members are trimmed on every check.
type RateLimiter struct {
	rdb *redis.Client
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying()}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks whether a request for the given key is permitted under the
// sliding window rate limit. It returns true if the request is allowed (and
// the request is counted), or false if the limit has been reached.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := rateLimitKey(key)
	now := time.Now().UnixMicro()
	cutoff := now - window.Microseconds()

	pipe := rl.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", strconv.FormatInt(cutoff, 10))
	count := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}

	if count.Val() >= int64(limit) {
		return false, nil
	}

	pipe = rl.rdb.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return true, nil
}
