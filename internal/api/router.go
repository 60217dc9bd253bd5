package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl-arena/ranked-orchestrator/internal/api/handlers"
	"github.com/rl-arena/ranked-orchestrator/internal/api/middleware"
	"github.com/rl-arena/ranked-orchestrator/internal/authz"
	"github.com/rl-arena/ranked-orchestrator/internal/config"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
	"github.com/rl-arena/ranked-orchestrator/internal/websocket"
	jwtutil "github.com/rl-arena/ranked-orchestrator/pkg/jwt"
	"github.com/rl-arena/ranked-orchestrator/pkg/ratelimit"
)

// Dependencies are the wired services the router exposes.
type Dependencies struct {
	Queue      *service.QueueService
	Matches    *service.MatchService
	Results    *service.ResultService
	Supervisor *service.Supervisor
	Bans       *service.BanService
	Servers    *service.ServerService
	Hub        *websocket.Hub
	Authorizer authz.Authorizer
	JWT        *jwtutil.JWTManager
	// Limiter throttles player actions; nil disables throttling.
	Limiter ratelimit.Limiter
}

// SetupRouter builds the HTTP surface.
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	queueHandler := handlers.NewQueueHandler(deps.Queue)
	matchHandler := handlers.NewMatchHandler(deps.Matches)
	serverHandler := handlers.NewServerHandler(deps.Matches, deps.Results, deps.Supervisor)
	adminHandler := handlers.NewAdminHandler(deps.Queue, deps.Matches, deps.Servers, deps.Bans)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	throttle := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		throttle = middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: deps.Limiter,
			Limit:   cfg.RateLimitPerMinute,
			Window:  time.Minute,
			KeyFunc: middleware.PlayerKeyFunc,
		})
	}

	v1 := router.Group("/api/v1")

	player := v1.Group("")
	player.Use(middleware.Auth(deps.JWT))
	{
		player.POST("/queue", throttle, queueHandler.Join)
		player.DELETE("/queue", queueHandler.Leave)
		player.GET("/queue", queueHandler.Status)

		player.GET("/matches/:id", matchHandler.GetMatch)
		player.POST("/matches/:id/accept", throttle, matchHandler.Accept)
		player.POST("/matches/:id/vote", throttle, matchHandler.Vote)

		player.GET("/ws", wsHandler.HandleWebSocket)
	}

	server := v1.Group("/server")
	server.Use(middleware.ServerAuth(deps.Servers))
	{
		server.GET("/assignment", serverHandler.Assignment)
		server.POST("/matches/:id/live", serverHandler.Live)
		server.POST("/matches/:id/rounds", serverHandler.Round)
		server.POST("/matches/:id/complete", serverHandler.Complete)
		server.POST("/matches/:id/cancel", serverHandler.Cancel)
		server.POST("/events", serverHandler.Event)
	}

	can := func(c authz.Capability) gin.HandlerFunc {
		return middleware.Require(deps.Authorizer, c)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.Auth(deps.JWT))
	{
		admin.POST("/matches/form", can(authz.CapForceFormation), adminHandler.FormMatch)
		admin.POST("/matches/:id/cancel", can(authz.CapCancelMatch), adminHandler.CancelMatch)
		admin.GET("/matches", can(authz.CapListMatches), adminHandler.ListMatches)

		admin.POST("/servers", can(authz.CapManageServers), adminHandler.CreateServer)
		admin.GET("/servers", can(authz.CapManageServers), adminHandler.ListServers)
		admin.POST("/servers/:id/release", can(authz.CapReleaseServer), adminHandler.ReleaseServer)

		admin.POST("/bans", can(authz.CapManageBans), adminHandler.CreateBan)
		admin.POST("/bans/:id/revoke", can(authz.CapManageBans), adminHandler.RevokeBan)
	}

	return router
}
