package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

// incrScript counts one hit in the current window and arms its expiry on first use.
var incrScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// RedisLimiter is a fixed-window counter shared by every orchestrator instance.
type RedisLimiter struct {
	client    redis.Cmdable
	clock     clock.Clock
	keyPrefix string
	limit     int
	window    time.Duration
}

func NewRedisLimiter(client redis.Cmdable, keyPrefix string, limit int, window time.Duration, clk clock.Clock) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:    client,
		clock:     clk,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

func (r *RedisLimiter) windowKey(key string) string {
	slot := r.clock.Now().UnixMilli() / r.window.Milliseconds()
	return r.keyPrefix + key + ":" + strconv.FormatInt(slot, 10)
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := incrScript.Run(ctx, r.client, []string{r.windowKey(key)}, r.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis script execution failed: %w", err)
	}
	return n <= r.limit, nil
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.windowKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
