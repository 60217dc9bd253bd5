package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
)

// MatchHandler serves the player-facing match endpoints.
type MatchHandler struct {
	matches *service.MatchService
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(matches *service.MatchService) *MatchHandler {
	return &MatchHandler{
		matches: matches,
	}
}

// GetMatch GET /api/v1/matches/:id
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	m, err := h.matches.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": viewFor(m, id.PlayerID),
	})
}

// Accept POST /api/v1/matches/:id/accept
func (h *MatchHandler) Accept(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	m, err := h.matches.Accept(c.Request.Context(), c.Param("id"), id.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": viewFor(m, id.PlayerID),
	})
}

// Vote POST /api/v1/matches/:id/vote
func (h *MatchHandler) Vote(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.matches.CastVote(c.Request.Context(), c.Param("id"), id.PlayerID, req.Map)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": viewFor(m, id.PlayerID),
	})
}

// viewFor hides the join password from anyone outside the match.
func viewFor(m *models.Match, playerID string) *models.Match {
	if m.Player(playerID) != nil {
		return m
	}
	view := *m
	view.JoinPassword = nil
	return &view
}
