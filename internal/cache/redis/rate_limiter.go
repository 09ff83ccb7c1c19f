package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// minWaitPoll and maxWaitPoll bound the sleep between Wait retries.
const (
	minWaitPoll = 10 * time.Millisecond
	maxWaitPoll = 5 * time.Second
)

// RateLimiter implements domain.RateLimiter using a sliding window backed by
// Redis sorted sets and an atomic Lua script.
type RateLimiter struct {
	rdb           *redis.Client
	ns            string
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		ns:            c.ns,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func (rl *RateLimiter) key(key string) string {
	return namespaced(rl.ns, "ratelimit:"+key)
}

// Allow reports whether a request for key is permitted under the sliding
// window limit. An allowed request is counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := rl.try(ctx, key, limit, window)
	return allowed, err
}

// Wait blocks until a request for key is allowed under limit per window,
// sleeping for the retry-after the script reports.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		allowed, retry, err := rl.try(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(clampPoll(retry))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (rl *RateLimiter) try(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rl.key(key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, 0, fmt.Errorf("redis: rate limit %s: unexpected result length %d", key, len(result))
	}
	return result[0] == 1, time.Duration(result[1]) * time.Microsecond, nil
}

func clampPoll(d time.Duration) time.Duration {
	switch {
	case d < minWaitPoll:
		return minWaitPoll
	case d > maxWaitPoll:
		return maxWaitPoll
	default:
		return d
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
