package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository/memory"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

var testMapPool = []string{"c1m1_hotel", "c2m1_highway", "c5m1_waterfront"}

type notification struct {
	PlayerIDs []string
	Type      string
	Payload   interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) Notify(playerIDs []string, eventType string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{PlayerIDs: playerIDs, Type: eventType, Payload: payload})
}

func (n *recordingNotifier) ofType(eventType string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var errConsole = errors.New("connection reset by peer")

// fakeConsole records commands. failures maps a command prefix to how many
// times it fails; -1 fails forever.
type fakeConsole struct {
	mu         sync.Mutex
	commands   []string
	failures   map[string]int
	reconnects int
	closed     bool
	// afterExec runs outside the lock once a command has been accepted.
	afterExec func(command string)
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{failures: make(map[string]int)}
}

func (c *fakeConsole) failOn(prefix string, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[prefix] = times
}

func (c *fakeConsole) Execute(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	c.commands = append(c.commands, command)
	for prefix, n := range c.failures {
		if !strings.HasPrefix(command, prefix) || n == 0 {
			continue
		}
		if n > 0 {
			c.failures[prefix] = n - 1
		}
		c.mu.Unlock()
		return "", errConsole
	}
	after := c.afterExec
	c.mu.Unlock()

	if after != nil {
		after(command)
	}
	return "", nil
}

func (c *fakeConsole) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
	return nil
}

func (c *fakeConsole) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConsole) sent(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			out = append(out, cmd)
		}
	}
	return out
}

type harness struct {
	ctx         context.Context
	store       *memory.Store
	clock       *clock.Mock
	notifier    *recordingNotifier
	console     *fakeConsole
	dialErr     error
	pending     *MemoryPendingTable
	bans        *BanService
	queue       *QueueService
	matches     *MatchService
	provisioner *Provisioner
	results     *ResultService
	supervisor  *Supervisor
}

func newHarness(t *testing.T, minPlayers int) *harness {
	t.Helper()

	h := &harness{
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		console:  newFakeConsole(),
		pending:  NewMemoryPendingTable(),
	}
	logger := zap.NewNop()

	h.bans = NewBanService(h.store, h.clock, h.notifier, logger)
	h.bans.retryDelay = time.Millisecond

	h.queue = NewQueueService(h.store, h.bans, h.clock, h.notifier, logger, QueueConfig{
		MinPlayers:    minPlayers,
		MaxPlayers:    8,
		TTL:           30 * time.Minute,
		Interval:      time.Hour,
		DefaultRating: models.DefaultRating,
	})

	h.matches = NewMatchService(h.store, h.bans, h.clock, h.notifier, logger, MatchConfig{
		MapPool:            testMapPool,
		ReadyCheckTimeout:  30 * time.Second,
		VetoTimeout:        time.Minute,
		StuckAfter:         2 * time.Hour,
		RequeueOnAFKCancel: true,
		CallbackBaseURL:    "http://orchestrator:8080",
	})
	h.matches.SetQueueService(h.queue)
	h.matches.SetPendingTable(h.pending)

	dialer := ConsoleDialerFunc(func(ctx context.Context, address, password string) (RemoteConsole, error) {
		if h.dialErr != nil {
			return nil, h.dialErr
		}
		return h.console, nil
	})
	h.provisioner = NewProvisioner(h.store, h.matches, dialer, h.clock, h.notifier, logger, ProvisionerConfig{
		Attempts:        3,
		RetryDelay:      time.Millisecond,
		CallbackBaseURL: "http://orchestrator:8080",
	})
	h.provisioner.sleep = func(context.Context, time.Duration) error { return nil }
	h.matches.SetProvisioner(h.provisioner)

	h.results = NewResultService(h.store, NewELOService(DefaultKFactor), h.clock, h.notifier, logger)
	h.results.SetPendingTable(h.pending)

	h.supervisor = NewSupervisor(h.store, h.pending, h.matches, h.results, h.bans, h.clock, logger, SupervisorConfig{
		DisconnectGrace: 3 * time.Minute,
		CrashGrace:      5 * time.Minute,
		JoinTimeout:     5 * time.Minute,
		Interval:        time.Hour,
	})
	return h
}

func intPtr(v int) *int { return &v }

// enqueue queues players p0..pn-1 with the given ratings, one second apart.
func (h *harness) enqueue(t *testing.T, ratings ...int) []string {
	t.Helper()
	ids := make([]string, len(ratings))
	for i, r := range ratings {
		ids[i] = fmt.Sprintf("p%d", i)
		_, err := h.queue.Enqueue(h.ctx, models.Identity{
			PlayerID:    ids[i],
			DisplayName: fmt.Sprintf("Player %d", i),
			Rating:      intPtr(r),
		})
		require.NoError(t, err)
		h.clock.Advance(time.Second)
	}
	return ids
}

func (h *harness) addServer(t *testing.T, id, address string) *models.GameServer {
	t.Helper()
	srv := &models.GameServer{
		ID:           id,
		Name:         id,
		Address:      address,
		RconPassword: "rcon-secret",
		Active:       true,
		Status:       models.ServerStatusAvailable,
		CreatedAt:    h.clock.Now(),
		UpdatedAt:    h.clock.Now(),
	}
	require.NoError(t, h.store.CreateServer(h.ctx, srv))
	return srv
}

func (h *harness) match(t *testing.T, id string) *models.Match {
	t.Helper()
	m, err := h.store.GetMatch(h.ctx, id)
	require.NoError(t, err)
	return m
}

func (h *harness) server(t *testing.T, id string) *models.GameServer {
	t.Helper()
	srv, err := h.store.GetServer(h.ctx, id)
	require.NoError(t, err)
	return srv
}

// formed queues two players rated 1000 and forms a match.
func (h *harness) formed(t *testing.T) *models.Match {
	t.Helper()
	h.enqueue(t, 1000, 1000)
	m, err := h.queue.TryFormMatch(h.ctx, FormOptions{})
	require.NoError(t, err)
	return m
}

func (h *harness) acceptAll(t *testing.T, m *models.Match) {
	t.Helper()
	for _, id := range m.HumanPlayerIDs() {
		_, err := h.matches.Accept(h.ctx, m.ID, id)
		require.NoError(t, err)
	}
}

// waiting drives a two-player match to WAITING_FOR_PLAYERS on server s1.
func (h *harness) waiting(t *testing.T) *models.Match {
	t.Helper()
	h.addServer(t, "s1", "10.0.0.1:27015")
	m := h.formed(t)
	h.acceptAll(t, m)
	for _, id := range m.HumanPlayerIDs() {
		_, err := h.matches.CastVote(h.ctx, m.ID, id, testMapPool[1])
		require.NoError(t, err)
	}
	h.matches.Wait()

	m = h.match(t, m.ID)
	require.Equal(t, models.MatchStatusWaitingForPlayers, m.Status)
	return m
}

// live drives a two-player match to IN_PROGRESS with every player connected.
func (h *harness) live(t *testing.T) *models.Match {
	t.Helper()
	m := h.waiting(t)
	for _, id := range m.HumanPlayerIDs() {
		require.NoError(t, h.supervisor.HandleEvent(h.ctx, "s1", models.NewPlayerConnected(id, m.ID)))
	}
	_, err := h.matches.MarkLive(h.ctx, "s1", m.ID)
	require.NoError(t, err)
	return h.match(t, m.ID)
}

func (h *harness) activeBans(t *testing.T, playerID string) []models.Ban {
	t.Helper()
	bans, err := h.store.ListActiveBans(h.ctx, playerID)
	require.NoError(t, err)
	return bans
}
