package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

// Limiter decides whether one more action by key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket refills continuously up to capacity.
type TokenBucket struct {
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, perSecond float64, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		perSecond:  perSecond,
		lastRefill: now,
	}
}

func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.perSecond
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

func (tb *TokenBucket) take(now time.Time) bool {
	tb.refill(now)
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *TokenBucket) full() bool {
	return tb.tokens >= tb.capacity
}

// MemoryLimiter keeps one token bucket per key in process memory. It is the
// fallback when no Redis is configured.
type MemoryLimiter struct {
	mu              sync.Mutex
	clock           clock.Clock
	buckets         map[string]*TokenBucket
	capacity        int
	perSecond       float64
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

// NewMemoryLimiter allows limit actions per window per key.
func NewMemoryLimiter(limit int, window time.Duration, clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		clock:           clk,
		buckets:         make(map[string]*TokenBucket),
		capacity:        limit,
		perSecond:       float64(limit) / window.Seconds(),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     clk.Now(),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanup(now)
	}

	bucket, ok := l.buckets[key]
	if !ok {
		bucket = newTokenBucket(l.capacity, l.perSecond, now)
		l.buckets[key] = bucket
	}
	return bucket.take(now), nil
}

// cleanup drops buckets that have refilled completely.
func (l *MemoryLimiter) cleanup(now time.Time) {
	for key, bucket := range l.buckets {
		bucket.refill(now)
		if bucket.full() {
			delete(l.buckets, key)
		}
	}
	l.lastCleanup = now
}

func (l *MemoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
