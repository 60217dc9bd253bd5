package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

func TestMemoryLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(5, time.Minute, clk)

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "p1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, _ := limiter.Allow(ctx, "p1")
	assert.False(t, ok, "6th request should be denied")

	ok, _ = limiter.Allow(ctx, "p2")
	assert.True(t, ok, "other keys have their own bucket")

	// one token refills every 12s
	clk.Advance(13 * time.Second)
	ok, _ = limiter.Allow(ctx, "p1")
	assert.True(t, ok)
	ok, _ = limiter.Allow(ctx, "p1")
	assert.False(t, ok)
}

func TestMemoryLimiter_Reset(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(1, time.Minute, clk)

	ok, _ := limiter.Allow(ctx, "p1")
	require.True(t, ok)
	ok, _ = limiter.Allow(ctx, "p1")
	require.False(t, ok)

	limiter.Reset("p1")
	ok, _ = limiter.Allow(ctx, "p1")
	assert.True(t, ok)
}

func TestMemoryLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter := NewMemoryLimiter(2, time.Minute, clk)

	_, _ = limiter.Allow(ctx, "idle")
	clk.Advance(11 * time.Minute)
	_, _ = limiter.Allow(ctx, "active")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.buckets, "idle")
	assert.Contains(t, limiter.buckets, "active")
}
