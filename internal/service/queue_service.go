package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/metrics"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

const maxFormationAttempts = 3

type QueueConfig struct {
	MinPlayers    int
	MaxPlayers    int
	TTL           time.Duration
	Interval      time.Duration
	DefaultRating int
}

// FormationLock lets a single orchestrator instance sweep the queue at a time.
// Holding it is an optimization; conditional commits keep formation correct without it.
type FormationLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

type FormOptions struct {
	// Force bypasses the minimum player count and takes up to MaxPlayers.
	Force bool
	// FillBots pads a forced pool with bots up to MinPlayers and to an even count.
	FillBots bool
}

type QueueService struct {
	store    repository.Store
	bans     *BanService
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
	cfg      QueueConfig
	lock     FormationLock
	loop     *ticker
}

// NewQueueService creates a new queue service.
func NewQueueService(
	store repository.Store,
	bans *BanService,
	clk clock.Clock,
	notifier Notifier,
	logger *zap.Logger,
	cfg QueueConfig,
) *QueueService {
	if cfg.DefaultRating == 0 {
		cfg.DefaultRating = models.DefaultRating
	}
	s := &QueueService{
		store:    store,
		bans:     bans,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
	s.loop = newTicker("matchmaking", cfg.Interval, logger, s.runMatchmaking)
	return s
}

// SetFormationLock installs a cross-instance lock for the matchmaking loop.
func (s *QueueService) SetFormationLock(lock FormationLock) {
	s.lock = lock
}

// Start runs the periodic formation loop until Stop is called.
func (s *QueueService) Start() { s.loop.Start() }
func (s *QueueService) Stop()  { s.loop.Stop() }

// Enqueue adds the player to the waiting pool. The identity's rating, when
// present, is the snapshot; otherwise the stored profile rating is used.
func (s *QueueService) Enqueue(ctx context.Context, id models.Identity) (*models.QueueEntry, error) {
	if id.PlayerID == "" {
		return nil, newError(CodeValidation, ErrInvalidInput, "player id is required")
	}

	ban, err := s.bans.ActiveBan(ctx, id.PlayerID)
	if err != nil {
		return nil, err
	}
	if ban != nil {
		until := "permanently"
		if ban.ExpiresAt != nil {
			until = "until " + ban.ExpiresAt.UTC().Format(time.RFC3339)
		}
		return nil, newError(CodeStateConflict, ErrBanned, "player is banned %s (%s)", until, ban.Reason)
	}

	if _, err := s.store.FindActiveMatchForPlayer(ctx, id.PlayerID); err == nil {
		return nil, ErrInActiveMatch
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check active match: %w", err)
	}

	initial := s.cfg.DefaultRating
	if id.Rating != nil {
		initial = *id.Rating
	}
	player, err := s.store.UpsertPlayer(ctx, id.PlayerID, id.DisplayName, initial)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}

	snapshot := player.Rating
	if id.Rating != nil {
		snapshot = *id.Rating
	}

	now := s.clock.Now()
	entry := &models.QueueEntry{
		ID:          uuid.New().String(),
		PlayerID:    id.PlayerID,
		DisplayName: player.DisplayName,
		Rating:      snapshot,
		Status:      models.QueueStatusWaiting,
		EnqueuedAt:  now,
		ExpiresAt:   now.Add(s.cfg.TTL),
	}
	if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrAlreadyQueued) {
			return nil, ErrAlreadyQueued
		}
		return nil, fmt.Errorf("failed to create queue entry: %w", err)
	}

	s.logger.Info("Player enqueued",
		zap.String("playerId", entry.PlayerID),
		zap.Int("rating", entry.Rating))

	s.loop.kick()
	return entry, nil
}

// Dequeue removes the player's waiting entry, or returns ErrNotQueued.
func (s *QueueService) Dequeue(ctx context.Context, playerID string) error {
	removed, err := s.store.DeleteWaitingEntry(ctx, playerID)
	if err != nil {
		return fmt.Errorf("failed to dequeue: %w", err)
	}
	if !removed {
		return ErrNotQueued
	}
	s.logger.Info("Player dequeued", zap.String("playerId", playerID))
	return nil
}

// Requeue puts players from a cancelled match back in the pool with the
// rating snapshot they were matched on. Bots and players already queued are skipped.
func (s *QueueService) Requeue(ctx context.Context, players []models.MatchPlayer) int {
	now := s.clock.Now()
	requeued := 0
	for _, p := range players {
		if p.IsBot {
			continue
		}
		entry := &models.QueueEntry{
			ID:          uuid.New().String(),
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Rating:      p.RatingStart,
			Status:      models.QueueStatusWaiting,
			EnqueuedAt:  now,
			ExpiresAt:   now.Add(s.cfg.TTL),
		}
		if err := s.store.CreateQueueEntry(ctx, entry); err != nil {
			if !errors.Is(err, repository.ErrAlreadyQueued) {
				s.logger.Error("Failed to requeue player", zap.String("playerId", p.PlayerID), zap.Error(err))
			}
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.loop.kick()
	}
	return requeued
}

// GetEntry returns the player's waiting entry, or ErrNotQueued.
func (s *QueueService) GetEntry(ctx context.Context, playerID string) (*models.QueueEntry, error) {
	entry, err := s.store.GetWaitingEntry(ctx, playerID)
	if err != nil {
		return nil, notFoundAs(err, ErrNotQueued)
	}
	return entry, nil
}

// TryFormMatch takes the oldest waiting entries, balances them and commits
// the match together with the entries' MATCHED flip. When another formation
// consumed one of the entries first, it retries against the remaining pool.
func (s *QueueService) TryFormMatch(ctx context.Context, opts FormOptions) (*models.Match, error) {
	for attempt := 1; attempt <= maxFormationAttempts; attempt++ {
		m, err := s.formOnce(ctx, opts)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrRaceLost) {
			return nil, err
		}
		s.logger.Warn("Match formation lost a race, retrying", zap.Int("attempt", attempt))
	}
	return nil, newError(CodeRaceLost, ErrRaceLost, "formation kept losing races after %d attempts", maxFormationAttempts)
}

func (s *QueueService) formOnce(ctx context.Context, opts FormOptions) (*models.Match, error) {
	now := s.clock.Now()
	entries, err := s.store.ListWaitingEntries(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	selected, err := s.selectEntries(entries, opts)
	if err != nil {
		return nil, err
	}

	pool := make([]Candidate, 0, s.cfg.MaxPlayers)
	for _, e := range selected {
		pool = append(pool, Candidate{PlayerID: e.PlayerID, DisplayName: e.DisplayName, Rating: e.Rating})
	}
	if opts.Force && opts.FillBots {
		pool = s.fillBots(pool)
	}
	if len(pool)%2 != 0 {
		return nil, newError(CodeStateConflict, ErrNotEnoughPlayers, "cannot form even teams from %d players", len(pool))
	}

	balance, err := BalanceTeams(pool)
	if err != nil {
		return nil, err
	}

	matchID := uuid.New().String()
	m := &models.Match{
		ID:        matchID,
		Status:    models.MatchStatusFormed,
		CreatedAt: now,
		UpdatedAt: now,
		Players:   balance.Players(matchID),
	}

	ids := make([]string, len(selected))
	for i, e := range selected {
		ids[i] = e.ID
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateMatch(ctx, m); err != nil {
			return err
		}
		n, err := tx.MarkEntriesMatched(ctx, ids, matchID, now)
		if err != nil {
			return err
		}
		if n != len(ids) {
			return ErrRaceLost
		}
		ok, err := tx.TransitionMatch(ctx, matchID,
			[]models.MatchStatus{models.MatchStatusFormed}, models.MatchStatusReadyCheck,
			repository.MatchPatch{}, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRaceLost
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRaceLost) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to commit match: %w", err)
	}
	m.Status = models.MatchStatusReadyCheck

	metrics.MatchesFormed.Inc()
	s.logger.Info("Match formed",
		zap.String("matchId", m.ID),
		zap.Int("players", len(m.Players)),
		zap.Float64("avgA", balance.AverageA),
		zap.Float64("avgB", balance.AverageB),
		zap.Float64("gap", balance.Gap))
	s.notifier.Notify(m.HumanPlayerIDs(), NotifyMatchFound, m)

	return m, nil
}

func (s *QueueService) selectEntries(entries []models.QueueEntry, opts FormOptions) ([]models.QueueEntry, error) {
	if !opts.Force {
		if len(entries) < s.cfg.MinPlayers {
			return nil, ErrNotEnoughPlayers
		}
		return entries[:s.cfg.MinPlayers], nil
	}

	n := len(entries)
	if n > s.cfg.MaxPlayers {
		n = s.cfg.MaxPlayers
	}
	if !opts.FillBots && n%2 != 0 {
		n--
	}
	if n == 0 || (!opts.FillBots && n < 2) {
		return nil, ErrNotEnoughPlayers
	}
	return entries[:n], nil
}

func (s *QueueService) fillBots(pool []Candidate) []Candidate {
	target := s.cfg.MinPlayers
	if len(pool) > target {
		target = len(pool)
	}
	if target%2 != 0 {
		target++
	}
	if target > s.cfg.MaxPlayers {
		target = s.cfg.MaxPlayers
	}
	for i := 1; len(pool) < target; i++ {
		pool = append(pool, Candidate{
			PlayerID:    fmt.Sprintf("BOT-%s-%d", uuid.New().String()[:8], i),
			DisplayName: fmt.Sprintf("Bot %d", i),
			Rating:      s.cfg.DefaultRating,
			IsBot:       true,
		})
	}
	return pool
}

// runMatchmaking expires stale entries and forms as many matches as the pool allows.
func (s *QueueService) runMatchmaking(ctx context.Context) {
	if s.lock != nil {
		release, ok, err := s.lock.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("Failed to acquire formation lock", zap.Error(err))
			return
		}
		if !ok {
			s.logger.Debug("Formation lock held by another instance")
			return
		}
		defer release()
	}

	now := s.clock.Now()
	if n, err := s.store.ExpireEntries(ctx, now); err != nil {
		s.logger.Error("Failed to expire queue entries", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Expired queue entries", zap.Int("count", n))
	}

	for ctx.Err() == nil {
		_, err := s.TryFormMatch(ctx, FormOptions{})
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotEnoughPlayers) {
			s.logger.Error("Failed to form match", zap.Error(err))
		}
		break
	}
}

// RunOnce performs one matchmaking tick synchronously.
func (s *QueueService) RunOnce(ctx context.Context) {
	s.runMatchmaking(ctx)
}
