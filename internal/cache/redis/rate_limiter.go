package redis

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/security-alliance/uniswapx-service/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// RateLimiter implements domain.RateLimiter as a sliding window over a
// sorted set, evaluated atomically in Lua.
type RateLimiter struct {
	c      *Client
	now    func() time.Time
	logger *slog.Logger
}

// NewRateLimiter creates a RateLimiter on c. A nil logger discards.
func NewRateLimiter(c *Client, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RateLimiter{c: c, now: time.Now, logger: logger}
}

// windowKey wraps key in a hash tag so a cluster keeps each window on one
// slot.
func (rl *RateLimiter) windowKey(key string) string {
	return rl.c.key("ratelimit", "{"+key+"}")
}

// Allow counts one hit against key and reports whether it fits within
// limit hits per window. A rejected hit is not counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	now := rl.now()
	res, err := slidingWindow.Run(ctx, rl.c.rdb,
		[]string{rl.windowKey(key)},
		now.UnixMicro(), window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply %v", key, res)
	}
	if res[0] == 1 {
		return true, nil
	}

	resetIn := time.UnixMicro(res[1]).Add(window).Sub(now)
	rl.logger.DebugContext(ctx, "redis: rate limit hit",
		slog.String("key", key),
		slog.Int("limit", limit),
		slog.Duration("reset_in", resetIn),
	)
	return false, nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
