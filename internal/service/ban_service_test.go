package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository/memory"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

func TestBanDuration(t *testing.T) {
	tests := []struct {
		reason models.BanReason
		prior  int
		want   time.Duration
	}{
		{models.BanReasonAFK, 0, 15 * time.Minute},
		{models.BanReasonAFK, 1, 30 * time.Minute},
		{models.BanReasonAFK, 2, time.Hour},
		{models.BanReasonNoJoin, 0, 30 * time.Minute},
		{models.BanReasonRageQuit, 0, time.Hour},
		{models.BanReasonRageQuit, 3, 8 * time.Hour},
		{models.BanReasonNoRejoin, 1, time.Hour},
		{models.BanReasonRageQuit, 20, MaxBanDuration},
		{models.BanReasonAFK, 1000, MaxBanDuration},
		{models.BanReasonManual, 0, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BanDuration(tt.reason, tt.prior), "%s with %d prior", tt.reason, tt.prior)
	}
}

func TestIssueAutomatic_Escalates(t *testing.T) {
	h := newHarness(t, 2)

	first, err := h.bans.IssueAutomatic(h.ctx, "p1", models.BanReasonRageQuit, "m1")
	require.NoError(t, err)
	second, err := h.bans.IssueAutomatic(h.ctx, "p1", models.BanReasonRageQuit, "m2")
	require.NoError(t, err)
	other, err := h.bans.IssueAutomatic(h.ctx, "p1", models.BanReasonAFK, "m3")
	require.NoError(t, err)

	now := h.clock.Now()
	assert.Equal(t, now.Add(time.Hour), *first.ExpiresAt)
	assert.Equal(t, now.Add(2*time.Hour), *second.ExpiresAt)
	assert.Equal(t, now.Add(15*time.Minute), *other.ExpiresAt, "escalation is per reason")
	assert.Equal(t, models.IssuerSystem, first.IssuedBy)
	assert.Equal(t, "m1", *first.MatchID)
	assert.Len(t, h.notifier.ofType(NotifyPlayerBanned), 3)
}

type flakyBanStore struct {
	*memory.Store
	failures int
	calls    int
}

func (s *flakyBanStore) CreateBan(ctx context.Context, b *models.Ban) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("connection refused")
	}
	return s.Store.CreateBan(ctx, b)
}

func TestIssueAutomatic_RetriesOnce(t *testing.T) {
	clk := clock.NewMock(time.Now())

	store := &flakyBanStore{Store: memory.New(), failures: 1}
	svc := NewBanService(store, clk, NopNotifier, zap.NewNop())
	svc.retryDelay = time.Millisecond

	ban, err := svc.IssueAutomatic(context.Background(), "p1", models.BanReasonNoJoin, "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.True(t, ban.Active)

	store = &flakyBanStore{Store: memory.New(), failures: 2}
	svc = NewBanService(store, clk, NopNotifier, zap.NewNop())
	svc.retryDelay = time.Millisecond

	_, err = svc.IssueAutomatic(context.Background(), "p1", models.BanReasonNoJoin, "m1")
	require.Error(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestActiveBan_LazyExpiry(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.bans.IssueAutomatic(h.ctx, "p1", models.BanReasonAFK, "m1")
	require.NoError(t, err)

	ban, err := h.bans.ActiveBan(h.ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, ban)

	h.clock.Advance(16 * time.Minute)
	ban, err = h.bans.ActiveBan(h.ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, ban)
	assert.Empty(t, h.activeBans(t, "p1"), "expired ban is deactivated")

	count, err := h.store.CountBans(h.ctx, "p1", models.BanReasonAFK)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "expired bans still count toward escalation")
}

func TestActiveBan_PrefersLongest(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.bans.IssueAutomatic(h.ctx, "p1", models.BanReasonAFK, "m1")
	require.NoError(t, err)
	permanent, err := h.bans.IssueManual(h.ctx, models.CreateBanRequest{PlayerID: "p1", Note: "cheating"}, "admin")
	require.NoError(t, err)

	ban, err := h.bans.ActiveBan(h.ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, permanent.ID, ban.ID)
	assert.Nil(t, ban.ExpiresAt)
}

func TestIssueManual_Validation(t *testing.T) {
	h := newHarness(t, 2)

	_, err := h.bans.IssueManual(h.ctx, models.CreateBanRequest{}, "admin")
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = h.bans.IssueManual(h.ctx, models.CreateBanRequest{PlayerID: "p1", DurationMinutes: intPtr(0)}, "admin")
	assert.Equal(t, CodeValidation, CodeOf(err))

	ban, err := h.bans.IssueManual(h.ctx, models.CreateBanRequest{PlayerID: "p1", DurationMinutes: intPtr(90)}, "admin")
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Add(90*time.Minute), *ban.ExpiresAt)
	assert.Equal(t, models.BanReasonManual, ban.Reason)
}

func TestRevoke(t *testing.T) {
	h := newHarness(t, 2)

	ban, err := h.bans.IssueAutomatic(h.ctx, "p1", models.BanReasonRageQuit, "m1")
	require.NoError(t, err)

	revoked, err := h.bans.Revoke(h.ctx, ban.ID)
	require.NoError(t, err)
	assert.False(t, revoked.Active)
	assert.NotNil(t, revoked.RevokedAt)

	_, err = h.bans.Revoke(h.ctx, ban.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	_, err = h.bans.Revoke(h.ctx, "missing")
	assert.ErrorIs(t, err, ErrBanNotFound)

	active, err := h.bans.ActiveBan(h.ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, active)
}
