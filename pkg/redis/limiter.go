package redis

import (
	"context"
	"strconv"
	"time"
)

// RateLimiter counts requests per scope in fixed, clock-aligned windows.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// FixedWindowAllow increments the counter for the current window and
// reports whether it is still within limit. The TTL is (re)applied with NX
// on every hit so a counter never outlives its window, even if the process
// died between INCR and EXPIRE on an earlier call.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c == nil || c.cmd == nil {
		return false, 0, errNotInitialized
	}
	if window <= 0 {
		window = time.Minute
	}
	bucket := c.clock().UnixNano() / int64(window)
	key := c.RateLimitKey(scope, strconv.FormatInt(bucket, 10))

	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if err := c.cmd.ExpireNX(ctx, key, window).Err(); err != nil {
		return false, count, err
	}
	return count <= limit, count, nil
}
