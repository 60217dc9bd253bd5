package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/pkg/distributed"
)

// Hub keeps one socket per player and delivers match notifications to them.
type Hub struct {
	// playerID -> *Client
	clients map[string]*Client
	mu      sync.RWMutex

	deliver    chan *Message
	register   chan *Client
	unregister chan *Client

	relay  Relay
	logger *zap.Logger
}

// Message is one notification as written to the socket.
type Message struct {
	PlayerIDs []string    `json:"-"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
}

// Relay forwards notifications to the other orchestrator instances.
type Relay interface {
	Publish(ctx context.Context, playerIDs []string, eventType string, payload interface{}) error
}

// NewHub creates a new hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		deliver:    make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// SetRelay enables cross-instance delivery.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Run serves registrations and deliveries until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.deliver:
			h.deliverMessage(message)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A second tab replaces the first.
	if old, exists := h.clients[client.playerID]; exists {
		close(old.send)
		h.logger.Info("Replaced existing WebSocket connection",
			zap.String("playerId", client.playerID))
	}

	h.clients[client.playerID] = client
	h.logger.Info("WebSocket client registered",
		zap.String("playerId", client.playerID),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.playerID]; exists && current == client {
		delete(h.clients, client.playerID)
		close(client.send)
		h.logger.Info("WebSocket client unregistered",
			zap.String("playerId", client.playerID),
			zap.Int("totalClients", len(h.clients)))
	}
}

func (h *Hub) deliverMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, playerID := range message.PlayerIDs {
		client, exists := h.clients[playerID]
		if !exists {
			continue
		}
		select {
		case client.send <- message:
		default:
			h.logger.Warn("Client send channel full, dropping notification",
				zap.String("playerId", playerID),
				zap.String("type", message.Type))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// Connected reports whether playerID has a socket on this instance.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[playerID]
	return ok
}

// Notify delivers to local sockets and, with a relay configured, to the
// other instances. It never blocks the caller.
func (h *Hub) Notify(playerIDs []string, eventType string, payload interface{}) {
	if len(playerIDs) == 0 {
		return
	}
	h.enqueue(&Message{PlayerIDs: playerIDs, Type: eventType, Payload: payload})

	if h.relay == nil {
		return
	}
	if err := h.relay.Publish(context.Background(), playerIDs, eventType, payload); err != nil {
		h.logger.Warn("Failed to relay notification",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// DeliverRelayed hands an envelope from another instance to local sockets.
func (h *Hub) DeliverRelayed(env distributed.Envelope) {
	h.enqueue(&Message{PlayerIDs: env.PlayerIDs, Type: env.Type, Payload: env.Payload})
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.deliver <- message:
	default:
		h.logger.Warn("Hub delivery queue full, dropping notification",
			zap.String("type", message.Type))
	}
}
