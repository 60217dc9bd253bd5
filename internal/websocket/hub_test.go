package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/pkg/distributed"
)

type recordingRelay struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingRelay) Publish(ctx context.Context, playerIDs []string, eventType string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("player"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server, playerID string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?player=" + playerID
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Connected(playerID) }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *gorilla.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_NotifyTargetsPlayers(t *testing.T) {
	hub, srv := startHub(t)
	alice := dial(t, hub, srv, "alice")
	bob := dial(t, hub, srv, "bob")

	hub.Notify([]string{"alice"}, "match_found", map[string]string{"matchId": "m1"})
	hub.Notify([]string{"alice", "bob"}, "match_cancelled", map[string]string{"matchId": "m1"})

	first := readMessage(t, alice)
	assert.JSONEq(t, `"match_found"`, string(first["type"]))
	assert.JSONEq(t, `{"matchId":"m1"}`, string(first["payload"]))
	assert.JSONEq(t, `"match_cancelled"`, string(readMessage(t, alice)["type"]))

	assert.JSONEq(t, `"match_cancelled"`, string(readMessage(t, bob)["type"]), "bob only sees the shared event")
}

func TestHub_RelaysAndDeliversRelayed(t *testing.T) {
	hub, srv := startHub(t)
	relay := &recordingRelay{}
	hub.SetRelay(relay)
	conn := dial(t, hub, srv, "carol")

	hub.Notify([]string{"dave"}, "match_live", nil)
	relay.mu.Lock()
	assert.Equal(t, []string{"match_live"}, relay.types)
	relay.mu.Unlock()

	hub.DeliverRelayed(distributed.Envelope{
		PlayerIDs: []string{"carol"},
		Type:      "match_connect",
		Payload:   json.RawMessage(`{"address":"10.0.0.1:27015"}`),
	})

	msg := readMessage(t, conn)
	assert.JSONEq(t, `"match_connect"`, string(msg["type"]))
	assert.JSONEq(t, `{"address":"10.0.0.1:27015"}`, string(msg["payload"]))
}

func TestHub_SecondConnectionReplacesFirst(t *testing.T) {
	hub, srv := startHub(t)
	first := dial(t, hub, srv, "erin")
	second := dial(t, hub, srv, "erin")

	// The hub closes the first socket when the second registers.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	hub.Notify([]string{"erin"}, "match_found", nil)
	assert.JSONEq(t, `"match_found"`, string(readMessage(t, second)["type"]))
}
