// Package app wires the orchestrator's services, background loops and HTTP
// router from a Config.
package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/api"
	"github.com/rl-arena/ranked-orchestrator/internal/authz"
	"github.com/rl-arena/ranked-orchestrator/internal/config"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
	"github.com/rl-arena/ranked-orchestrator/internal/websocket"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
	"github.com/rl-arena/ranked-orchestrator/pkg/distributed"
	jwtutil "github.com/rl-arena/ranked-orchestrator/pkg/jwt"
	"github.com/rl-arena/ranked-orchestrator/pkg/ratelimit"
	"github.com/rl-arena/ranked-orchestrator/pkg/rcon"
)

const (
	formationLockTTL = 30 * time.Second
	relayChannel     = "ranked:notifications"
)

type Options struct {
	Clock clock.Clock
	// Dialer defaults to gorcon with the configured timeout.
	Dialer service.ConsoleDialer
	// Redis enables the formation lock, durable grace timers, the
	// notification relay and shared rate limits.
	Redis *redis.Client
}

type App struct {
	Hub         *websocket.Hub
	Bans        *service.BanService
	Queue       *service.QueueService
	Matches     *service.MatchService
	Provisioner *service.Provisioner
	Results     *service.ResultService
	Supervisor  *service.Supervisor
	Servers     *service.ServerService
	Router      *gin.Engine

	relay  *distributed.EventRelay
	logger *zap.Logger
	cancel context.CancelFunc
}

// RconDialer adapts the gorcon-backed dialer to the provisioner.
func RconDialer(d *rcon.Dialer) service.ConsoleDialer {
	return service.ConsoleDialerFunc(func(ctx context.Context, address, password string) (service.RemoteConsole, error) {
		client, err := d.Open(ctx, address, password)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}

// New wires services, handlers and routes over store.
func New(cfg *config.Config, store repository.Store, logger *zap.Logger, opts Options) *App {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = RconDialer(rcon.NewDialer(cfg.RconTimeout, logger.Named("rcon")))
	}

	a := &App{logger: logger}
	a.Hub = websocket.NewHub(logger.Named("websocket"))

	var pending service.PendingTable = service.NewMemoryPendingTable()
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute, clk)
	if opts.Redis != nil {
		pending = service.NewRedisPendingTable(distributed.NewRedisTimers(opts.Redis, "pending_disconnects"), logger.Named("pending"))
		limiter = ratelimit.NewRedisLimiter(opts.Redis, "ranked:ratelimit", cfg.RateLimitPerMinute, time.Minute, clk)
		a.relay = distributed.NewEventRelay(opts.Redis, relayChannel, logger.Named("relay"))
		a.Hub.SetRelay(a.relay)
	}

	a.Bans = service.NewBanService(store, clk, a.Hub, logger.Named("bans"))

	a.Queue = service.NewQueueService(store, a.Bans, clk, a.Hub, logger.Named("queue"), service.QueueConfig{
		MinPlayers:    cfg.MinPlayers,
		MaxPlayers:    cfg.MaxPlayers,
		TTL:           cfg.QueueTTL,
		Interval:      cfg.MatchmakingInterval,
		DefaultRating: cfg.DefaultRating,
	})

	a.Matches = service.NewMatchService(store, a.Bans, clk, a.Hub, logger.Named("matches"), service.MatchConfig{
		MapPool:            cfg.MapPool,
		ReadyCheckTimeout:  cfg.ReadyCheckTimeout,
		VetoTimeout:        cfg.VetoTimeout,
		StuckAfter:         cfg.StuckMatchAfter,
		RequeueOnAFKCancel: cfg.RequeueOnAFKCancel,
		CallbackBaseURL:    cfg.CallbackBaseURL,
	})
	a.Matches.SetQueueService(a.Queue)
	a.Matches.SetPendingTable(pending)

	a.Provisioner = service.NewProvisioner(store, a.Matches, dialer, clk, a.Hub, logger.Named("provisioner"), service.ProvisionerConfig{
		Attempts:        cfg.RconAttempts,
		RetryDelay:      cfg.RconRetryDelay,
		SettleDelay:     cfg.MapSettleDelay,
		CallbackBaseURL: cfg.CallbackBaseURL,
	})
	a.Matches.SetProvisioner(a.Provisioner)

	a.Results = service.NewResultService(store, service.NewELOService(cfg.KFactor), clk, a.Hub, logger.Named("results"))
	a.Results.SetPendingTable(pending)

	a.Supervisor = service.NewSupervisor(store, pending, a.Matches, a.Results, a.Bans, clk, logger.Named("supervisor"), service.SupervisorConfig{
		DisconnectGrace: cfg.DisconnectGrace,
		CrashGrace:      cfg.CrashGrace,
		JoinTimeout:     cfg.JoinTimeout,
		Interval:        cfg.SupervisorInterval,
	})

	a.Servers = service.NewServerService(store, clk, logger.Named("servers"))

	if opts.Redis != nil {
		locks := distributed.NewRedisLockManager(opts.Redis, "ranked:lock")
		a.Queue.SetFormationLock(locks.NewMutex("formation", a.relay.InstanceID(), formationLockTTL))
	}

	a.Router = api.SetupRouter(cfg, api.Dependencies{
		Queue:      a.Queue,
		Matches:    a.Matches,
		Results:    a.Results,
		Supervisor: a.Supervisor,
		Bans:       a.Bans,
		Servers:    a.Servers,
		Hub:        a.Hub,
		Authorizer: authz.NewRoleAuthorizer(cfg.AdminPlayerIDs),
		JWT:        jwtutil.NewJWTManager(cfg.JWTSecret, 24*time.Hour),
		Limiter:    limiter,
	})
	return a
}

// Start launches the hub, the relay subscriber and both background loops.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.Hub.Run(ctx)
	if a.relay != nil {
		go func() {
			if err := a.relay.Run(ctx, a.Hub.DeliverRelayed); err != nil {
				a.logger.Error("Event relay stopped", zap.Error(err))
			}
		}()
	}

	a.Queue.Start()
	a.Supervisor.Start()
}

// Stop halts the loops and waits for in-flight provisioning.
func (a *App) Stop() {
	a.Queue.Stop()
	a.Supervisor.Stop()
	a.Matches.Wait()
	if a.cancel != nil {
		a.cancel()
	}
}
