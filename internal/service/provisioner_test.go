package service

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

// ready drives a two-player match to READY without starting provisioning.
func (h *harness) ready(t *testing.T) *models.Match {
	t.Helper()
	h.matches.SetProvisioner(nil)
	m := h.formed(t)
	h.acceptAll(t, m)
	for _, id := range m.HumanPlayerIDs() {
		_, err := h.matches.CastVote(h.ctx, m.ID, id, testMapPool[0])
		require.NoError(t, err)
	}
	h.matches.SetProvisioner(h.provisioner)

	m = h.match(t, m.ID)
	require.Equal(t, models.MatchStatusReady, m.Status)
	return m
}

func TestProvision_Success(t *testing.T) {
	h := newHarness(t, 2)
	h.addServer(t, "s1", "10.0.0.1:27015")
	h.addServer(t, "s2", "10.0.0.2:27015")
	m := h.ready(t)

	require.NoError(t, h.provisioner.Provision(h.ctx, m.ID))

	got := h.match(t, m.ID)
	assert.Equal(t, models.MatchStatusWaitingForPlayers, got.Status)
	assert.Equal(t, "s1", *got.ServerID, "first registered server is claimed")
	assert.Equal(t, "10.0.0.1:27015", *got.ServerAddress)
	require.NotNil(t, got.JoinPassword)
	assert.Len(t, *got.JoinPassword, 12)
	assert.NotNil(t, got.WaitingSince)

	srv := h.server(t, "s1")
	assert.Equal(t, models.ServerStatusInUse, srv.Status)
	assert.Equal(t, m.ID, *srv.MatchID)
	assert.Equal(t, models.ServerStatusAvailable, h.server(t, "s2").Status)

	assert.Equal(t, []string{"changelevel c1m1_hotel"}, h.console.sent("changelevel"))
	assert.Equal(t, 1, h.console.reconnects, "session is re-established after the map load")
	assert.Equal(t, []string{`sm_cvar ranked_callback_url "http://orchestrator:8080"`}, h.console.sent("sm_cvar ranked_callback_url"))
	assert.Equal(t, []string{`sm_cvar ranked_match_id "` + m.ID + `"`}, h.console.sent("sm_cvar ranked_match_id"))

	whitelist := h.console.sent("sm_cvar ranked_whitelist")
	require.Len(t, whitelist, 1)
	for _, id := range m.HumanPlayerIDs() {
		assert.Contains(t, whitelist[0], id)
	}
	assert.Equal(t, []string{`sv_password "` + *got.JoinPassword + `"`}, h.console.sent("sv_password"))
	assert.Equal(t, []string{"sv_tags hidden"}, h.console.sent("sv_tags"))
	assert.True(t, h.console.closed)

	connect := h.notifier.ofType(NotifyMatchConnect)
	require.Len(t, connect, 1)
	info := connect[0].Payload.(models.ConnectInfo)
	assert.Equal(t, "10.0.0.1:27015", info.Address)
	assert.Equal(t, *got.JoinPassword, info.Password)
}

func TestProvision_NoServerAvailable(t *testing.T) {
	h := newHarness(t, 2)
	m := h.ready(t)

	err := h.provisioner.Provision(h.ctx, m.ID)
	require.Error(t, err)

	got := h.match(t, m.ID)
	assert.Equal(t, models.MatchStatusCancelled, got.Status)
	assert.Equal(t, models.CancelReasonNoServer, *got.CancelReason)
}

func TestProvision_RetriesTransientFailures(t *testing.T) {
	h := newHarness(t, 2)
	h.addServer(t, "s1", "10.0.0.1:27015")
	m := h.ready(t)

	h.console.failOn("sm_cvar ranked_whitelist", 2)

	require.NoError(t, h.provisioner.Provision(h.ctx, m.ID))
	assert.Equal(t, models.MatchStatusWaitingForPlayers, h.match(t, m.ID).Status)
	assert.Len(t, h.console.sent("sm_cvar ranked_whitelist"), 3)
}

func TestProvision_MatchIDFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, 2)
	h.addServer(t, "s1", "10.0.0.1:27015")
	m := h.ready(t)

	h.console.failOn("sm_cvar ranked_match_id", -1)

	require.NoError(t, h.provisioner.Provision(h.ctx, m.ID))
	assert.Equal(t, models.MatchStatusWaitingForPlayers, h.match(t, m.ID).Status)
	assert.Len(t, h.console.sent("sm_cvar ranked_match_id"), 3)
}

func TestProvision_FatalStepReleasesServer(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		step   string
	}{
		{"whitelist", "sm_cvar ranked_whitelist", "push whitelist"},
		{"callback", "sm_cvar ranked_callback_url", "push callback url"},
		{"password", "sv_password", "set join password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 2)
			h.addServer(t, "s1", "10.0.0.1:27015")
			m := h.ready(t)

			h.console.failOn(tt.prefix, -1)

			err := h.provisioner.Provision(h.ctx, m.ID)
			require.Error(t, err)
			assert.Equal(t, CodeExternalFailure, CodeOf(err))
			assert.Len(t, h.console.sent(tt.prefix), 3)

			got := h.match(t, m.ID)
			assert.Equal(t, models.MatchStatusCancelled, got.Status)
			assert.Equal(t, models.CancelReasonProvisioningFailed, *got.CancelReason)
			assert.Contains(t, *got.CancelDetail, tt.step)

			srv := h.server(t, "s1")
			assert.Equal(t, models.ServerStatusAvailable, srv.Status)
			assert.Nil(t, srv.MatchID)

			assert.Empty(t, h.console.sent("sv_tags"), "sequence stops at the failed step")
		})
	}
}

func TestProvision_StopsWhenMatchLeavesProvisioning(t *testing.T) {
	tests := []struct {
		name   string
		reason models.CancelReason
		abort  func(h *harness, matchID string) error
	}{
		{
			name:   "admin cancel",
			reason: models.CancelReasonAdmin,
			abort: func(h *harness, matchID string) error {
				_, err := h.matches.Cancel(h.ctx, matchID, models.CancelReasonAdmin, "operator")
				return err
			},
		},
		{
			name:   "force release",
			reason: models.CancelReasonServerReleased,
			abort: func(h *harness, matchID string) error {
				_, err := h.matches.ForceReleaseServer(h.ctx, "s1")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 2)
			h.addServer(t, "s1", "10.0.0.1:27015")
			m := h.ready(t)

			var abortErr error
			h.console.afterExec = func(command string) {
				if strings.HasPrefix(command, "changelevel") {
					abortErr = tt.abort(h, m.ID)
				}
			}

			err := h.provisioner.Provision(h.ctx, m.ID)
			require.NoError(t, abortErr)
			assert.ErrorIs(t, err, ErrAlreadyProcessed)

			got := h.match(t, m.ID)
			assert.Equal(t, models.MatchStatusCancelled, got.Status)
			assert.Equal(t, tt.reason, *got.CancelReason)
			assert.Equal(t, models.ServerStatusAvailable, h.server(t, "s1").Status)

			assert.Zero(t, h.console.reconnects)
			assert.Empty(t, h.console.sent("sm_cvar"))
			assert.Empty(t, h.console.sent("sv_password"))
			assert.Empty(t, h.console.sent("sv_tags"))
			assert.Empty(t, h.notifier.ofType(NotifyMatchConnect))
		})
	}
}

func TestProvision_ConcurrentClaimsSingleServer(t *testing.T) {
	h := newHarness(t, 2)
	h.addServer(t, "s1", "10.0.0.1:27015")
	h.matches.SetProvisioner(nil)

	h.enqueue(t, 1000, 1000, 1000, 1000)
	var ready []*models.Match
	for i := 0; i < 2; i++ {
		m, err := h.queue.TryFormMatch(h.ctx, FormOptions{})
		require.NoError(t, err)
		h.acceptAll(t, m)
		for _, id := range m.HumanPlayerIDs() {
			_, err := h.matches.CastVote(h.ctx, m.ID, id, testMapPool[0])
			require.NoError(t, err)
		}
		ready = append(ready, m)
	}

	errs := make([]error, len(ready))
	var wg sync.WaitGroup
	for i, m := range ready {
		wg.Add(1)
		go func(i int, matchID string) {
			defer wg.Done()
			errs[i] = h.provisioner.Provision(h.ctx, matchID)
		}(i, m.ID)
	}
	wg.Wait()

	var waiting, noServer int
	for i, m := range ready {
		got := h.match(t, m.ID)
		switch got.Status {
		case models.MatchStatusWaitingForPlayers:
			waiting++
			assert.NoError(t, errs[i])
			assert.Equal(t, m.ID, *h.server(t, "s1").MatchID)
		case models.MatchStatusCancelled:
			noServer++
			assert.Error(t, errs[i])
			assert.Equal(t, models.CancelReasonNoServer, *got.CancelReason)
		default:
			t.Fatalf("match %s ended in %s", m.ID, got.Status)
		}
	}
	assert.Equal(t, 1, waiting, "exactly one match gets the server")
	assert.Equal(t, 1, noServer)
	assert.Equal(t, models.ServerStatusInUse, h.server(t, "s1").Status)
}

func TestProvision_DialFailure(t *testing.T) {
	h := newHarness(t, 2)
	h.addServer(t, "s1", "10.0.0.1:27015")
	m := h.ready(t)
	h.dialErr = errors.New("connection refused")

	require.Error(t, h.provisioner.Provision(h.ctx, m.ID))

	assert.Equal(t, models.MatchStatusCancelled, h.match(t, m.ID).Status)
	assert.Equal(t, models.ServerStatusAvailable, h.server(t, "s1").Status)
}

func TestProvision_NotReady(t *testing.T) {
	h := newHarness(t, 2)
	h.addServer(t, "s1", "10.0.0.1:27015")
	m := h.formed(t)

	err := h.provisioner.Provision(h.ctx, m.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.ServerStatusAvailable, h.server(t, "s1").Status)
}
