package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
)

// AdminHandler serves operator endpoints. Capability checks happen in the
// router via middleware.Require.
type AdminHandler struct {
	queue   *service.QueueService
	matches *service.MatchService
	servers *service.ServerService
	bans    *service.BanService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	queue *service.QueueService,
	matches *service.MatchService,
	servers *service.ServerService,
	bans *service.BanService,
) *AdminHandler {
	return &AdminHandler{
		queue:   queue,
		matches: matches,
		servers: servers,
		bans:    bans,
	}
}

// FormMatch POST /api/v1/admin/matches/form
func (h *AdminHandler) FormMatch(c *gin.Context) {
	var req models.FormMatchRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.queue.TryFormMatch(c.Request.Context(), service.FormOptions{Force: true, FillBots: req.FillBots})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"match": m,
	})
}

// CancelMatch POST /api/v1/admin/matches/:id/cancel
func (h *AdminHandler) CancelMatch(c *gin.Context) {
	var req models.CancelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		badRequest(c, err)
		return
	}

	m, err := h.matches.Cancel(c.Request.Context(), c.Param("id"), models.CancelReasonAdmin, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": m,
	})
}

// ListMatches GET /api/v1/admin/matches?stuck=true
func (h *AdminHandler) ListMatches(c *gin.Context) {
	matches, err := h.matches.ListActive(c.Request.Context(), c.Query("stuck") == "true")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"total":   len(matches),
	})
}

// CreateServer POST /api/v1/admin/servers
func (h *AdminHandler) CreateServer(c *gin.Context) {
	var req models.CreateServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	srv, err := h.servers.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"server": srv,
	})
}

// ListServers GET /api/v1/admin/servers
func (h *AdminHandler) ListServers(c *gin.Context) {
	servers, err := h.servers.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"servers": servers,
		"total":   len(servers),
	})
}

// ReleaseServer POST /api/v1/admin/servers/:id/release
func (h *AdminHandler) ReleaseServer(c *gin.Context) {
	srv, err := h.matches.ForceReleaseServer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server": srv,
	})
}

// CreateBan POST /api/v1/admin/bans
func (h *AdminHandler) CreateBan(c *gin.Context) {
	id, _ := middleware.GetIdentity(c)

	var req models.CreateBanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ban, err := h.bans.IssueManual(c.Request.Context(), req, id.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ban": ban,
	})
}

// RevokeBan POST /api/v1/admin/bans/:id/revoke
func (h *AdminHandler) RevokeBan(c *gin.Context) {
	ban, err := h.bans.Revoke(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ban": ban,
	})
}
