package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string `env:"PORT" envDefault:"8080"`
	Env      string `env:"ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage: "postgres" or "memory"
	Store       string `env:"STORE" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis is optional; empty disables the lock, durable timers, relay and shared rate limits.
	RedisURL string `env:"REDIS_URL"`

	// Identity
	JWTSecret      string   `env:"JWT_SECRET" envDefault:"change-me"`
	AdminPlayerIDs []string `env:"ADMIN_PLAYER_IDS" envSeparator:","`

	// CallbackBaseURL is pushed to hosting instances so they know where to report.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL" envDefault:"http://localhost:8080"`

	// Queue
	MinPlayers          int           `env:"MIN_PLAYERS" envDefault:"8"`
	MaxPlayers          int           `env:"MAX_PLAYERS" envDefault:"8"`
	QueueTTL            time.Duration `env:"QUEUE_TTL" envDefault:"30m"`
	MatchmakingInterval time.Duration `env:"MATCHMAKING_INTERVAL" envDefault:"5s"`

	// Match lifecycle
	ReadyCheckTimeout  time.Duration `env:"READY_CHECK_TIMEOUT" envDefault:"30s"`
	VetoTimeout        time.Duration `env:"VETO_TIMEOUT" envDefault:"60s"`
	JoinTimeout        time.Duration `env:"JOIN_TIMEOUT" envDefault:"5m"`
	StuckMatchAfter    time.Duration `env:"STUCK_MATCH_AFTER" envDefault:"2h"`
	MapPool            []string      `env:"MAP_POOL" envSeparator:"," envDefault:"c1m1_hotel,c2m1_highway,c3m1_plankcountry,c4m1_milltown_a,c5m1_waterfront,c8m1_apartment"`
	RequeueOnAFKCancel bool          `env:"REQUEUE_ON_AFK_CANCEL" envDefault:"true"`

	// Disconnect supervisor
	DisconnectGrace    time.Duration `env:"DISCONNECT_GRACE" envDefault:"3m"`
	CrashGrace         time.Duration `env:"CRASH_GRACE" envDefault:"5m"`
	SupervisorInterval time.Duration `env:"SUPERVISOR_INTERVAL" envDefault:"1s"`

	// Remote administration
	RconTimeout    time.Duration `env:"RCON_TIMEOUT" envDefault:"5s"`
	RconAttempts   int           `env:"RCON_ATTEMPTS" envDefault:"3"`
	RconRetryDelay time.Duration `env:"RCON_RETRY_DELAY" envDefault:"2s"`
	MapSettleDelay time.Duration `env:"MAP_SETTLE_DELAY" envDefault:"10s"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	// Rating
	KFactor       float64 `env:"K_FACTOR" envDefault:"32"`
	DefaultRating int     `env:"DEFAULT_RATING" envDefault:"1000"`
}

// Load reads configuration from the environment, loading .env first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}

	if c.MinPlayers < 2 || c.MinPlayers%2 != 0 {
		return fmt.Errorf("MIN_PLAYERS must be an even number >= 2, got %d", c.MinPlayers)
	}
	if c.MaxPlayers < c.MinPlayers || c.MaxPlayers > 8 {
		return fmt.Errorf("MAX_PLAYERS must be between MIN_PLAYERS and 8, got %d", c.MaxPlayers)
	}
	if len(c.MapPool) == 0 {
		return fmt.Errorf("MAP_POOL must list at least one map")
	}
	if c.RconAttempts < 1 {
		return fmt.Errorf("RCON_ATTEMPTS must be at least 1")
	}
	return nil
}
