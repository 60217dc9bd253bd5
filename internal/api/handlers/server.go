package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
)

// ServerHandler receives callbacks from hosting instances. Every route runs
// behind middleware.ServerAuth.
type ServerHandler struct {
	matches    *service.MatchService
	results    *service.ResultService
	supervisor *service.Supervisor
}

// NewServerHandler creates a handler for game server callbacks.
func NewServerHandler(matches *service.MatchService, results *service.ResultService, supervisor *service.Supervisor) *ServerHandler {
	return &ServerHandler{
		matches:    matches,
		results:    results,
		supervisor: supervisor,
	}
}

func serverID(c *gin.Context) string {
	srv, _ := middleware.GetServer(c)
	return srv.ID
}

// Assignment GET /api/v1/server/assignment
func (h *ServerHandler) Assignment(c *gin.Context) {
	a, err := h.matches.Assignment(c.Request.Context(), serverID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assignment": a,
	})
}

// Live POST /api/v1/server/matches/:id/live
func (h *ServerHandler) Live(c *gin.Context) {
	m, err := h.matches.MarkLive(c.Request.Context(), serverID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": m.Status,
	})
}

// Round POST /api/v1/server/matches/:id/rounds
func (h *ServerHandler) Round(c *gin.Context) {
	var req models.RoundReport
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	round, err := h.results.ReportRound(c.Request.Context(), serverID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"round": round,
	})
}

// Complete POST /api/v1/server/matches/:id/complete
func (h *ServerHandler) Complete(c *gin.Context) {
	var req models.CompletionReport
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.results.ReportCompletion(c.Request.Context(), serverID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": m,
	})
}

// Cancel POST /api/v1/server/matches/:id/cancel
func (h *ServerHandler) Cancel(c *gin.Context) {
	var req models.CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.matches.ServerRequestCancel(c.Request.Context(), serverID(c), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": m.Status,
	})
}

// Event POST /api/v1/server/events
func (h *ServerHandler) Event(c *gin.Context) {
	var req models.PlayerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ev, err := models.ParsePlayerEvent(req)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.supervisor.HandleEvent(c.Request.Context(), serverID(c), ev); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
	})
}
