package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl-arena/ranked-orchestrator/internal/app"
	"github.com/rl-arena/ranked-orchestrator/internal/config"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/internal/repository/memory"
	"github.com/rl-arena/ranked-orchestrator/internal/repository/postgres"
	"github.com/rl-arena/ranked-orchestrator/pkg/database"
	"github.com/rl-arena/ranked-orchestrator/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl := logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting ranked orchestrator",
		"port", cfg.Port,
		"env", cfg.Env,
		"store", cfg.Store,
	)

	var store repository.Store
	switch cfg.Store {
	case "postgres":
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to migrate database", "error", err)
		}
		store = postgres.NewStore(db)
	default:
		logger.Warn("Using in-memory store; state is lost on restart")
		store = memory.New()
	}

	opts := app.Options{}
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		logger.Info("Redis connection established")
		opts.Redis = client
	}

	a := app.New(cfg, store, zl, opts)
	a.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	a.Stop()

	logger.Info("Server exited")
}
