package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlayerEvent(t *testing.T) {
	tests := []struct {
		name string
		typ  string
		want PlayerEvent
	}{
		{"disconnect", EventPlayerDisconnect, NewPlayerDisconnected("p1", "m1", "quit")},
		{"crash", EventPlayerCrash, NewPlayerCrashed("p1", "m1", "quit")},
		{"connect", EventPlayerConnect, NewPlayerConnected("p1", "m1")},
		{"no join", EventNoJoinTimeout, NewPlayerNoJoinTimeout("p1", "m1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParsePlayerEvent(PlayerEventRequest{Type: tt.typ, PlayerID: "p1", MatchID: "m1", Reason: "quit"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
			assert.Equal(t, "p1", ev.Player())
			assert.Equal(t, "m1", ev.Match())
		})
	}

	_, err := ParsePlayerEvent(PlayerEventRequest{Type: "PLAYER_DANCE", PlayerID: "p1"})
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestMatchStatusOrdering(t *testing.T) {
	assert.True(t, MatchStatusVeto.After(MatchStatusReadyCheck))
	assert.False(t, MatchStatusReady.After(MatchStatusReady))
	assert.True(t, MatchStatusCancelled.Terminal())
	assert.False(t, MatchStatusInProgress.Terminal())
	assert.NotContains(t, ActiveMatchStatuses, MatchStatusCompleted)
}

func TestMatch_StartingAverage(t *testing.T) {
	m := &Match{Players: []MatchPlayer{
		{PlayerID: "a1", Team: TeamA, RatingStart: 1200},
		{PlayerID: "a2", Team: TeamA, RatingStart: 1000},
		{PlayerID: "b1", Team: TeamB, RatingStart: 900, IsBot: true},
	}}

	assert.Equal(t, 1100.0, m.StartingAverage(TeamA))
	assert.Equal(t, 900.0, m.StartingAverage(TeamB))
	assert.Equal(t, []string{"a1", "a2"}, m.HumanPlayerIDs())
	assert.Nil(t, m.Player("missing"))
	assert.Equal(t, TeamB, TeamA.Opponent())
}

func TestPlayer_ApplyOutcome(t *testing.T) {
	p := &Player{}
	p.ApplyOutcome(OutcomeWin)
	p.ApplyOutcome(OutcomeLoss)
	p.ApplyOutcome(OutcomeDraw)
	p.ApplyOutcome(OutcomeWin)

	assert.Equal(t, 2, p.Wins)
	assert.Equal(t, 4, p.MatchesPlayed)
	assert.InDelta(t, 0.5, p.WinRate, 1e-9)
}

func TestBan_InForce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	assert.True(t, (&Ban{Active: true}).InForce(now), "permanent")
	assert.True(t, (&Ban{Active: true, ExpiresAt: &later}).InForce(now))
	assert.False(t, (&Ban{Active: true, ExpiresAt: &later}).InForce(later))
	assert.False(t, (&Ban{Active: false}).InForce(now))
}

func TestCallbackKey(t *testing.T) {
	hash, err := HashCallbackKey("0123456789abcdef")
	require.NoError(t, err)

	srv := &GameServer{CallbackKeyHash: hash}
	assert.True(t, srv.CheckCallbackKey("0123456789abcdef"))
	assert.False(t, srv.CheckCallbackKey("wrong"))
	assert.False(t, (&GameServer{}).CheckCallbackKey(""))
}
