package distributed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// popDueScript atomically removes every timer whose deadline is <= ARGV[1]
// and returns their payloads in deadline order.
var popDueScript = redis.NewScript(`
	local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
	local out = {}
	for i, id in ipairs(ids) do
		local payload = redis.call('HGET', KEYS[2], id)
		redis.call('ZREM', KEYS[1], id)
		redis.call('HDEL', KEYS[2], id)
		if payload then
			table.insert(out, payload)
		end
	end
	return out
`)

// scheduleScript replaces any existing timer for the id in one step.
var scheduleScript = redis.NewScript(`
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
	return 1
`)

// RedisTimers is a durable table of one-shot timers keyed by id. A sorted set
// orders ids by deadline and a hash carries each timer's payload, so any
// instance polling PopDue can fire timers started by another.
type RedisTimers struct {
	client      redis.Cmdable
	scheduleKey string
	payloadKey  string
}

// NewRedisTimers creates a timer set stored under name.
func NewRedisTimers(client redis.Cmdable, name string) *RedisTimers {
	return &RedisTimers{
		client:      client,
		scheduleKey: fmt.Sprintf("timers:%s", name),
		payloadKey:  fmt.Sprintf("timers:%s:payload", name),
	}
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Schedule starts or replaces the timer for id.
func (t *RedisTimers) Schedule(ctx context.Context, id string, deadline time.Time, payload []byte) error {
	keys := []string{t.scheduleKey, t.payloadKey}
	if err := scheduleScript.Run(ctx, t.client, keys, id, score(deadline), string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to schedule timer: %w", err)
	}
	return nil
}

// Cancel removes the timer for id and reports whether one existed.
func (t *RedisTimers) Cancel(ctx context.Context, id string) (bool, error) {
	pipe := t.client.TxPipeline()
	removed := pipe.ZRem(ctx, t.scheduleKey, id)
	pipe.HDel(ctx, t.payloadKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to cancel timer: %w", err)
	}
	return removed.Val() > 0, nil
}

// Get returns the payload of a pending timer, or nil.
func (t *RedisTimers) Get(ctx context.Context, id string) ([]byte, error) {
	payload, err := t.client.HGet(ctx, t.payloadKey, id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read timer: %w", err)
	}
	return payload, nil
}

// PopDue removes and returns the payloads of all timers due at now.
func (t *RedisTimers) PopDue(ctx context.Context, now time.Time) ([][]byte, error) {
	res, err := popDueScript.Run(ctx, t.client, []string{t.scheduleKey, t.payloadKey}, score(now)).StringSlice()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop due timers: %w", err)
	}

	out := make([][]byte, len(res))
	for i, p := range res {
		out[i] = []byte(p)
	}
	return out, nil
}

func (t *RedisTimers) Len(ctx context.Context) (int64, error) {
	n, err := t.client.ZCard(ctx, t.scheduleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count timers: %w", err)
	}
	return n, nil
}
