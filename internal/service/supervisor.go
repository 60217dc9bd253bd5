package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/metrics"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

type SupervisorConfig struct {
	DisconnectGrace time.Duration
	CrashGrace      time.Duration
	JoinTimeout     time.Duration
	Interval        time.Duration
}

// Supervisor turns connection events from hosting instances into grace
// timers, forfeits, cancellations and bans.
type Supervisor struct {
	store   repository.Store
	pending PendingTable
	matches *MatchService
	results *ResultService
	bans    *BanService
	clock   clock.Clock
	logger  *zap.Logger
	cfg     SupervisorConfig
	loop    *ticker
}

// NewSupervisor creates a new supervisor.
func NewSupervisor(
	store repository.Store,
	pending PendingTable,
	matches *MatchService,
	results *ResultService,
	bans *BanService,
	clk clock.Clock,
	logger *zap.Logger,
	cfg SupervisorConfig,
) *Supervisor {
	s := &Supervisor{
		store:   store,
		pending: pending,
		matches: matches,
		results: results,
		bans:    bans,
		clock:   clk,
		logger:  logger,
		cfg:     cfg,
	}
	s.loop = newTicker("supervisor", cfg.Interval, logger, s.Sweep)
	return s
}

// Start runs the periodic timer sweep until Stop is called.
func (s *Supervisor) Start() { s.loop.Start() }
func (s *Supervisor) Stop()  { s.loop.Stop() }

// HandleEvent dispatches one connection event reported by serverID.
func (s *Supervisor) HandleEvent(ctx context.Context, serverID string, ev models.PlayerEvent) error {
	m, err := s.resolveMatch(ctx, serverID, ev)
	if err != nil {
		return err
	}

	switch e := ev.(type) {
	case models.PlayerDisconnected:
		return s.onDrop(ctx, m, e.Player(), models.DisconnectKindQuit, e.Reason)
	case models.PlayerCrashed:
		return s.onDrop(ctx, m, e.Player(), models.DisconnectKindCrash, e.Reason)
	case models.PlayerConnected:
		return s.onConnect(ctx, m, e.Player())
	case models.PlayerNoJoinTimeout:
		return s.onNoJoin(ctx, m, e.Player())
	default:
		return newError(CodeValidation, ErrUnknownEvent, "unhandled event %T", ev)
	}
}

// resolveMatch finds the match the event refers to and checks that the
// reporting server hosts it and that the player belongs to it.
func (s *Supervisor) resolveMatch(ctx context.Context, serverID string, ev models.PlayerEvent) (*models.Match, error) {
	var (
		m   *models.Match
		err error
	)
	if ev.Match() != "" {
		m, err = s.store.GetMatch(ctx, ev.Match())
	} else {
		m, err = s.store.FindActiveMatchForPlayer(ctx, ev.Player())
	}
	if err != nil {
		return nil, notFoundAs(err, ErrMatchNotFound)
	}

	if m.ServerID == nil || *m.ServerID != serverID {
		return nil, ErrServerMismatch
	}
	if m.Player(ev.Player()) == nil {
		return nil, ErrNotInMatch
	}
	if m.Status.Terminal() {
		return nil, ErrAlreadyProcessed
	}
	return m, nil
}

func (s *Supervisor) grace(kind models.DisconnectKind) time.Duration {
	if kind == models.DisconnectKindCrash {
		return s.cfg.CrashGrace
	}
	return s.cfg.DisconnectGrace
}

func (s *Supervisor) onDrop(ctx context.Context, m *models.Match, playerID string, kind models.DisconnectKind, reason string) error {
	now := s.clock.Now()
	var why *string
	if reason != "" {
		why = &reason
	}
	if err := s.store.SetConnection(ctx, m.ID, playerID, false, now, why); err != nil {
		return fmt.Errorf("failed to record disconnect: %w", err)
	}

	pd := models.PendingDisconnect{
		PlayerID:  playerID,
		MatchID:   m.ID,
		Kind:      kind,
		StartedAt: now,
		Deadline:  now.Add(s.grace(kind)),
	}
	if err := s.pending.Start(ctx, pd); err != nil {
		return fmt.Errorf("failed to start grace timer: %w", err)
	}
	s.updateGauge(ctx)

	s.logger.Info("Grace period started",
		zap.String("matchId", m.ID),
		zap.String("playerId", playerID),
		zap.String("kind", string(kind)),
		zap.Time("deadline", pd.Deadline))
	return nil
}

func (s *Supervisor) onConnect(ctx context.Context, m *models.Match, playerID string) error {
	if err := s.store.SetConnection(ctx, m.ID, playerID, true, s.clock.Now(), nil); err != nil {
		return fmt.Errorf("failed to record connect: %w", err)
	}

	cancelled, err := s.pending.Cancel(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to cancel grace timer: %w", err)
	}
	if cancelled {
		s.updateGauge(ctx)
		s.logger.Info("Player reconnected within grace", zap.String("matchId", m.ID), zap.String("playerId", playerID))
	}
	return nil
}

// onNoJoin cancels the match and bans the player regardless of any timer.
func (s *Supervisor) onNoJoin(ctx context.Context, m *models.Match, playerID string) error {
	_, err := s.matches.Cancel(ctx, m.ID, models.CancelReasonNoJoin, fmt.Sprintf("player %s never joined", playerID))
	if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		return err
	}
	if _, err := s.bans.IssueAutomatic(ctx, playerID, models.BanReasonNoJoin, m.ID); err != nil {
		return err
	}
	return nil
}

// Sweep fires expired grace timers, enforces the join timeout and runs the
// match timeouts.
func (s *Supervisor) Sweep(ctx context.Context) {
	s.expireGrace(ctx)
	s.enforceJoinTimeout(ctx)
	s.matches.RunTimeouts(ctx)
	s.updateGauge(ctx)
}

func (s *Supervisor) expireGrace(ctx context.Context) {
	due, err := s.pending.Due(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("Failed to read due grace timers", zap.Error(err))
		return
	}
	for _, pd := range due {
		if err := s.onGraceExpired(ctx, pd); err != nil {
			s.logger.Error("Failed to enforce grace expiry",
				zap.String("matchId", pd.MatchID),
				zap.String("playerId", pd.PlayerID),
				zap.Error(err))
		}
	}
}

// onGraceExpired forfeits a live match, or cancels one that never went live,
// then bans the player.
func (s *Supervisor) onGraceExpired(ctx context.Context, pd models.PendingDisconnect) error {
	m, err := s.store.GetMatch(ctx, pd.MatchID)
	if err != nil {
		return notFoundAs(err, ErrMatchNotFound)
	}
	if m.Status.Terminal() {
		s.logger.Debug("Grace expired after match ended", zap.String("matchId", m.ID), zap.String("playerId", pd.PlayerID))
		return nil
	}

	reason := models.BanReasonRageQuit
	if pd.Kind == models.DisconnectKindCrash {
		reason = models.BanReasonNoRejoin
	}
	s.logger.Info("Grace period expired",
		zap.String("matchId", m.ID),
		zap.String("playerId", pd.PlayerID),
		zap.String("kind", string(pd.Kind)))

	if m.Status == models.MatchStatusInProgress {
		_, err = s.results.Forfeit(ctx, m.ID, pd.PlayerID)
	} else {
		_, err = s.matches.Cancel(ctx, m.ID, models.CancelReasonAbandoned,
			fmt.Sprintf("player %s did not return", pd.PlayerID))
	}
	if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		s.logger.Error("Failed to end abandoned match", zap.String("matchId", m.ID), zap.Error(err))
	}

	_, err = s.bans.IssueAutomatic(ctx, pd.PlayerID, reason, m.ID)
	return err
}

// enforceJoinTimeout treats every never-connected human of a match stuck in
// WAITING_FOR_PLAYERS past the join timeout as a no-join.
func (s *Supervisor) enforceJoinTimeout(ctx context.Context) {
	matches, err := s.store.ListMatches(ctx, []models.MatchStatus{models.MatchStatusWaitingForPlayers})
	if err != nil {
		s.logger.Error("Failed to list waiting matches", zap.Error(err))
		return
	}

	now := s.clock.Now()
	for _, m := range matches {
		if m.WaitingSince == nil || now.Sub(*m.WaitingSince) < s.cfg.JoinTimeout {
			continue
		}
		for _, p := range m.Players {
			if p.IsBot || p.EverConnected {
				continue
			}
			if err := s.onNoJoin(ctx, m, p.PlayerID); err != nil {
				s.logger.Error("Failed to enforce join timeout",
					zap.String("matchId", m.ID),
					zap.String("playerId", p.PlayerID),
					zap.Error(err))
			}
		}
	}
}

func (s *Supervisor) updateGauge(ctx context.Context) {
	if n, err := s.pending.Len(ctx); err == nil {
		metrics.PendingDisconnects.Set(float64(n))
	}
}
