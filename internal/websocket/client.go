package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one player's socket.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan *Message
	playerID string
	logger   *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, playerID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *Message, 64),
		playerID: playerID,
		logger:   hub.logger.With(zap.String("playerId", playerID)),
	}
}

// readPump only keeps the connection alive; players never send commands here.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and attaches the socket to playerID.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, playerID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := newClient(hub, conn, playerID)
	hub.register <- client

	go client.writePump()
	go client.readPump()
}
