package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

// ServerService registers hosting instances and authenticates their callbacks.
type ServerService struct {
	store  repository.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewServerService creates a new server service.
func NewServerService(store repository.Store, clk clock.Clock, logger *zap.Logger) *ServerService {
	return &ServerService{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// Register stores a new AVAILABLE hosting instance. Only the bcrypt hash of
// the callback key is kept.
func (s *ServerService) Register(ctx context.Context, req models.CreateServerRequest) (*models.GameServer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" || req.Address == "" || req.RconPassword == "" || len(req.CallbackKey) < 16 {
		return nil, newError(CodeValidation, ErrInvalidInput, "name, address, rconPassword and a callbackKey of at least 16 characters are required")
	}

	hash, err := models.HashCallbackKey(req.CallbackKey)
	if err != nil {
		return nil, fmt.Errorf("failed to hash callback key: %w", err)
	}

	now := s.clock.Now()
	srv := &models.GameServer{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Address:         req.Address,
		RconPassword:    req.RconPassword,
		CallbackKeyHash: hash,
		Active:          true,
		Status:          models.ServerStatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateServer(ctx, srv); err != nil {
		if errors.Is(err, repository.ErrServerExists) {
			return nil, ErrServerExists
		}
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	s.logger.Info("Game server registered",
		zap.String("serverId", srv.ID),
		zap.String("name", srv.Name),
		zap.String("address", srv.Address))
	return srv, nil
}

// List returns every registered server.
func (s *ServerService) List(ctx context.Context) ([]*models.GameServer, error) {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}

// Authenticate checks a hosting instance's credentials. Unknown ids and
// wrong keys are indistinguishable to the caller.
func (s *ServerService) Authenticate(ctx context.Context, serverID, key string) (*models.GameServer, error) {
	if serverID == "" || key == "" {
		return nil, ErrUnauthorized
	}
	srv, err := s.store.GetServer(ctx, serverID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	if !srv.Active || !srv.CheckCallbackKey(key) {
		return nil, ErrUnauthorized
	}
	return srv, nil
}
