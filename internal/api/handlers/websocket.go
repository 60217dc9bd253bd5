package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
	"github.com/rl-arena/ranked-orchestrator/internal/websocket"
)

type WebSocketHandler struct {
	hub *websocket.Hub
}

// NewWebSocketHandler creates a new websocket handler.
func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket attaches the caller's push channel.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		middleware.AbortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "Unauthorized")
		return
	}

	websocket.ServeWs(h.hub, c.Writer, c.Request, id.PlayerID)
}
