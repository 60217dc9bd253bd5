package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/pkg/distributed"
	"go.uber.org/zap"
)

// PendingTable holds at most one grace timer per player.
type PendingTable interface {
	// Start arms a timer, replacing any existing one for the same player.
	Start(ctx context.Context, pd models.PendingDisconnect) error
	// Cancel disarms the player's timer and reports whether one was armed.
	Cancel(ctx context.Context, playerID string) (bool, error)
	Get(ctx context.Context, playerID string) (*models.PendingDisconnect, error)
	// Due removes and returns every timer whose deadline has passed, earliest first.
	Due(ctx context.Context, now time.Time) ([]models.PendingDisconnect, error)
	Len(ctx context.Context) (int, error)
}

// MemoryPendingTable is the single-process table.
type MemoryPendingTable struct {
	mu      sync.Mutex
	pending map[string]models.PendingDisconnect
}

// NewMemoryPendingTable creates an empty in-process table.
func NewMemoryPendingTable() *MemoryPendingTable {
	return &MemoryPendingTable{pending: make(map[string]models.PendingDisconnect)}
}

func (t *MemoryPendingTable) Start(ctx context.Context, pd models.PendingDisconnect) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[pd.PlayerID] = pd
	return nil
}

func (t *MemoryPendingTable) Cancel(ctx context.Context, playerID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[playerID]
	delete(t.pending, playerID)
	return ok, nil
}

func (t *MemoryPendingTable) Get(ctx context.Context, playerID string) (*models.PendingDisconnect, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pd, ok := t.pending[playerID]
	if !ok {
		return nil, nil
	}
	return &pd, nil
}

func (t *MemoryPendingTable) Due(ctx context.Context, now time.Time) ([]models.PendingDisconnect, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var due []models.PendingDisconnect
	for id, pd := range t.pending {
		if !pd.Deadline.After(now) {
			due = append(due, pd)
			delete(t.pending, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })
	return due, nil
}

func (t *MemoryPendingTable) Len(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending), nil
}

// RedisPendingTable stores timers in Redis so they survive restarts and can
// fire on any orchestrator instance.
type RedisPendingTable struct {
	timers *distributed.RedisTimers
	logger *zap.Logger
}

// NewRedisPendingTable wraps timers; logger reports payloads that cannot be decoded.
func NewRedisPendingTable(timers *distributed.RedisTimers, logger *zap.Logger) *RedisPendingTable {
	return &RedisPendingTable{timers: timers, logger: logger}
}

func (t *RedisPendingTable) Start(ctx context.Context, pd models.PendingDisconnect) error {
	payload, err := json.Marshal(pd)
	if err != nil {
		return fmt.Errorf("failed to encode pending disconnect: %w", err)
	}
	return t.timers.Schedule(ctx, pd.PlayerID, pd.Deadline, payload)
}

func (t *RedisPendingTable) Cancel(ctx context.Context, playerID string) (bool, error) {
	return t.timers.Cancel(ctx, playerID)
}

func (t *RedisPendingTable) Get(ctx context.Context, playerID string) (*models.PendingDisconnect, error) {
	payload, err := t.timers.Get(ctx, playerID)
	if err != nil || payload == nil {
		return nil, err
	}
	var pd models.PendingDisconnect
	if err := json.Unmarshal(payload, &pd); err != nil {
		return nil, fmt.Errorf("failed to decode pending disconnect: %w", err)
	}
	return &pd, nil
}

func (t *RedisPendingTable) Due(ctx context.Context, now time.Time) ([]models.PendingDisconnect, error) {
	payloads, err := t.timers.PopDue(ctx, now)
	if err != nil {
		return nil, err
	}

	// The timers are already popped, so one bad payload must not drop the rest.
	due := make([]models.PendingDisconnect, 0, len(payloads))
	for _, p := range payloads {
		var pd models.PendingDisconnect
		if err := json.Unmarshal(p, &pd); err != nil {
			t.logger.Error("Dropping undecodable pending disconnect",
				zap.ByteString("payload", p), zap.Error(err))
			continue
		}
		due = append(due, pd)
	}
	return due, nil
}

func (t *RedisPendingTable) Len(ctx context.Context) (int, error) {
	n, err := t.timers.Len(ctx)
	return int(n), err
}
