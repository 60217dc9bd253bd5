package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
)

type QueueHandler struct {
	queue *service.QueueService
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(queue *service.QueueService) *QueueHandler {
	return &QueueHandler{
		queue: queue,
	}
}

// Join POST /api/v1/queue
func (h *QueueHandler) Join(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	entry, err := h.queue.Enqueue(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"entry": entry,
	})
}

// Leave DELETE /api/v1/queue
func (h *QueueHandler) Leave(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	if err := h.queue.Dequeue(c.Request.Context(), id.PlayerID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Status GET /api/v1/queue
func (h *QueueHandler) Status(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	entry, err := h.queue.GetEntry(c.Request.Context(), id.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry": entry,
	})
}
