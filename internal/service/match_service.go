package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/metrics"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

type MatchConfig struct {
	MapPool            []string
	ReadyCheckTimeout  time.Duration
	VetoTimeout        time.Duration
	StuckAfter         time.Duration
	RequeueOnAFKCancel bool
	CallbackBaseURL    string
}

// MatchService drives a match from READY_CHECK to READY and owns every
// cancellation path.
type MatchService struct {
	store    repository.Store
	bans     *BanService
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
	cfg      MatchConfig

	queue       *QueueService
	pending     PendingTable
	provisioner *Provisioner

	provisioning sync.WaitGroup
}

// NewMatchService creates a new match service.
func NewMatchService(
	store repository.Store,
	bans *BanService,
	clk clock.Clock,
	notifier Notifier,
	logger *zap.Logger,
	cfg MatchConfig,
) *MatchService {
	return &MatchService{
		store:    store,
		bans:     bans,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// SetQueueService enables automatic re-queueing after an AFK cancellation.
func (s *MatchService) SetQueueService(queue *QueueService) {
	s.queue = queue
}

// SetPendingTable lets cancellations disarm grace timers of the match's players.
func (s *MatchService) SetPendingTable(pending PendingTable) {
	s.pending = pending
}

// SetProvisioner sets the provisioner (to avoid circular dependency)
func (s *MatchService) SetProvisioner(p *Provisioner) {
	s.provisioner = p
}

// Wait blocks until every provisioning run started so far has finished.
func (s *MatchService) Wait() {
	s.provisioning.Wait()
}

// GetMatch returns the match with its participants, or a not-found error.
func (s *MatchService) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrMatchNotFound)
	}
	return m, nil
}

// ListActive returns non-terminal matches. With stuckOnly set, only those not
// updated for longer than StuckAfter are returned.
func (s *MatchService) ListActive(ctx context.Context, stuckOnly bool) ([]*models.Match, error) {
	matches, err := s.store.ListMatches(ctx, models.ActiveMatchStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	if !stuckOnly {
		return matches, nil
	}

	cutoff := s.clock.Now().Add(-s.cfg.StuckAfter)
	stuck := make([]*models.Match, 0)
	for _, m := range matches {
		if m.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, m)
		}
	}
	return stuck, nil
}

// guardStatus maps a status mismatch onto the idempotent outcome when the
// match has already moved past want.
func guardStatus(m *models.Match, want models.MatchStatus) error {
	if m.Status == want {
		return nil
	}
	if m.Status.After(want) {
		return ErrAlreadyProcessed
	}
	return newError(CodeStateConflict, ErrInvalidState, "match %s is %s, expected %s", m.ID, m.Status, want)
}

// Accept records the player's ready-check acceptance. The last acceptance
// moves the match to VETO.
func (s *MatchService) Accept(ctx context.Context, matchID, playerID string) (*models.Match, error) {
	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Player(playerID) == nil {
		return nil, ErrNotInMatch
	}
	if err := guardStatus(m, models.MatchStatusReadyCheck); err != nil {
		return nil, err
	}

	changed, err := s.store.SetAccepted(ctx, matchID, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to record acceptance: %w", err)
	}
	if !changed {
		return nil, ErrAlreadyProcessed
	}
	s.logger.Info("Player accepted", zap.String("matchId", matchID), zap.String("playerId", playerID))

	m, err = s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Players {
		if !p.Accepted {
			return m, nil
		}
	}

	now := s.clock.Now()
	ok, err := s.store.TransitionMatch(ctx, matchID,
		[]models.MatchStatus{models.MatchStatusReadyCheck}, models.MatchStatusVeto,
		repository.MatchPatch{VetoStartedAt: &now}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start veto: %w", err)
	}
	if ok {
		s.logger.Info("Ready check passed", zap.String("matchId", matchID))
		s.notifier.Notify(m.HumanPlayerIDs(), NotifyReadyCheckPassed, map[string]interface{}{
			"matchId": matchID,
			"mapPool": s.cfg.MapPool,
		})
	}
	return s.GetMatch(ctx, matchID)
}

// CastVote records a map vote. Once every human has voted the veto resolves.
func (s *MatchService) CastVote(ctx context.Context, matchID, playerID, mapName string) (*models.Match, error) {
	if !s.inPool(mapName) {
		return nil, newError(CodeValidation, ErrInvalidMap, "map %q is not in the pool", mapName)
	}

	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	p := m.Player(playerID)
	if p == nil {
		return nil, ErrNotInMatch
	}
	if err := guardStatus(m, models.MatchStatusVeto); err != nil {
		return nil, err
	}

	vote := &models.MapVote{MatchID: matchID, PlayerID: playerID, Map: mapName, CastAt: s.clock.Now()}
	if err := s.store.SaveVote(ctx, vote); err != nil {
		if errors.Is(err, repository.ErrDuplicateVote) {
			return nil, ErrAlreadyVoted
		}
		return nil, fmt.Errorf("failed to save vote: %w", err)
	}
	s.logger.Info("Map vote cast",
		zap.String("matchId", matchID),
		zap.String("playerId", playerID),
		zap.String("map", mapName))

	return s.resolveVeto(ctx, matchID, false)
}

func (s *MatchService) inPool(mapName string) bool {
	for _, m := range s.cfg.MapPool {
		if m == mapName {
			return true
		}
	}
	return false
}

// PluralityLeader returns the map with the most votes. Ties go to the map
// whose first vote came earliest. Without votes the first pool map leads.
func PluralityLeader(votes []models.MapVote, pool []string) string {
	counts := make(map[string]int)
	first := make(map[string]int64)
	for _, v := range votes {
		counts[v.Map]++
		if seq, ok := first[v.Map]; !ok || v.Seq < seq {
			first[v.Map] = v.Seq
		}
	}

	leader := ""
	for name, n := range counts {
		if leader == "" || n > counts[leader] || (n == counts[leader] && first[name] < first[leader]) {
			leader = name
		}
	}
	if leader == "" && len(pool) > 0 {
		return pool[0]
	}
	return leader
}

// resolveVeto finishes the veto once every human has voted, or
// unconditionally when timedOut. Bots, and on timeout the humans who never
// voted, vote for the plurality leader at the moment they vote.
func (s *MatchService) resolveVeto(ctx context.Context, matchID string, timedOut bool) (*models.Match, error) {
	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != models.MatchStatusVeto {
		return m, nil
	}

	voted := make(map[string]bool, len(m.Votes))
	for _, v := range m.Votes {
		voted[v.PlayerID] = true
	}
	var proxies []string
	for _, p := range m.Players {
		if voted[p.PlayerID] {
			continue
		}
		if !p.IsBot && !timedOut {
			return m, nil
		}
		proxies = append(proxies, p.PlayerID)
	}

	votes := m.Votes
	for _, playerID := range proxies {
		v := &models.MapVote{
			MatchID:  matchID,
			PlayerID: playerID,
			Map:      PluralityLeader(votes, s.cfg.MapPool),
			CastAt:   s.clock.Now(),
		}
		if err := s.store.SaveVote(ctx, v); err != nil {
			if errors.Is(err, repository.ErrDuplicateVote) {
				continue
			}
			return nil, fmt.Errorf("failed to save proxy vote: %w", err)
		}
		votes = append(votes, *v)
	}

	chosen := PluralityLeader(votes, s.cfg.MapPool)
	now := s.clock.Now()
	ok, err := s.store.TransitionMatch(ctx, matchID,
		[]models.MatchStatus{models.MatchStatusVeto}, models.MatchStatusReady,
		repository.MatchPatch{Map: &chosen}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve veto: %w", err)
	}
	if !ok {
		return s.GetMatch(ctx, matchID)
	}

	s.logger.Info("Veto resolved",
		zap.String("matchId", matchID),
		zap.String("map", chosen),
		zap.Bool("timedOut", timedOut))
	s.notifier.Notify(m.HumanPlayerIDs(), NotifyVetoResolved, map[string]string{
		"matchId": matchID,
		"map":     chosen,
	})

	s.dispatchProvisioning(matchID)
	return s.GetMatch(ctx, matchID)
}

func (s *MatchService) dispatchProvisioning(matchID string) {
	if s.provisioner == nil {
		s.logger.Warn("No provisioner configured, match stays READY", zap.String("matchId", matchID))
		return
	}

	s.provisioning.Add(1)
	go func() {
		defer s.provisioning.Done()
		if err := s.provisioner.Provision(context.Background(), matchID); err != nil &&
			!errors.Is(err, ErrAlreadyProcessed) {
			s.logger.Error("Provisioning failed", zap.String("matchId", matchID), zap.Error(err))
		}
	}()
}

// MarkLive handles the hosting instance's went-live callback.
func (s *MatchService) MarkLive(ctx context.Context, serverID, matchID string) (*models.Match, error) {
	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.ServerID == nil || *m.ServerID != serverID {
		return nil, ErrServerMismatch
	}
	if err := guardStatus(m, models.MatchStatusWaitingForPlayers); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ok, err := s.store.TransitionMatch(ctx, matchID,
		[]models.MatchStatus{models.MatchStatusWaitingForPlayers}, models.MatchStatusInProgress,
		repository.MatchPatch{StartedAt: &now}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark match live: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyProcessed
	}

	s.logger.Info("Match live", zap.String("matchId", matchID), zap.String("serverId", serverID))
	s.notifier.Notify(m.HumanPlayerIDs(), NotifyMatchLive, map[string]string{"matchId": matchID})
	return s.GetMatch(ctx, matchID)
}

// Cancel moves the match to CANCELLED from any non-terminal status.
func (s *MatchService) Cancel(ctx context.Context, matchID string, reason models.CancelReason, detail string) (*models.Match, error) {
	return s.cancelFrom(ctx, matchID, models.ActiveMatchStatuses, reason, detail)
}

func (s *MatchService) cancelFrom(
	ctx context.Context,
	matchID string,
	from []models.MatchStatus,
	reason models.CancelReason,
	detail string,
) (*models.Match, error) {
	var cancelled *models.Match
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		m, err := s.cancelTx(ctx, tx, matchID, from, reason, detail)
		cancelled = m
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil, err
		}
		return nil, notFoundAs(err, ErrMatchNotFound)
	}

	s.afterCancel(ctx, cancelled, reason, detail)
	return s.GetMatch(ctx, matchID)
}

// cancelTx applies the cancellation, frees the server and purges queue
// entries inside tx. It returns the match with its pre-cancel status and the
// participants as committed under the cancellation.
func (s *MatchService) cancelTx(
	ctx context.Context,
	tx repository.Store,
	matchID string,
	from []models.MatchStatus,
	reason models.CancelReason,
	detail string,
) (*models.Match, error) {
	m, err := tx.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status.Terminal() {
		return nil, ErrAlreadyProcessed
	}

	now := s.clock.Now()
	patch := repository.MatchPatch{CancelReason: &reason, CompletedAt: &now}
	if detail != "" {
		patch.CancelDetail = &detail
	}
	ok, err := tx.TransitionMatch(ctx, matchID, from, models.MatchStatusCancelled, patch, now)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel match: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyProcessed
	}

	// The read above can predate participant writes that committed before
	// the transition took the row.
	fresh, err := tx.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	m.Players = fresh.Players

	if m.ServerID != nil {
		if _, err := tx.ReleaseServer(ctx, *m.ServerID, matchID, now); err != nil {
			return nil, fmt.Errorf("failed to release server: %w", err)
		}
	}
	if _, err := tx.PurgeEntriesForMatch(ctx, matchID); err != nil {
		return nil, fmt.Errorf("failed to purge queue entries: %w", err)
	}
	return m, nil
}

func (s *MatchService) afterCancel(ctx context.Context, m *models.Match, reason models.CancelReason, detail string) {
	if s.pending != nil {
		for _, p := range m.Players {
			if _, err := s.pending.Cancel(ctx, p.PlayerID); err != nil {
				s.logger.Warn("Failed to clear pending disconnect",
					zap.String("playerId", p.PlayerID), zap.Error(err))
			}
		}
	}

	metrics.MatchesCancelled.WithLabelValues(string(reason)).Inc()
	s.logger.Info("Match cancelled",
		zap.String("matchId", m.ID),
		zap.String("from", string(m.Status)),
		zap.String("reason", string(reason)),
		zap.String("detail", detail))
	s.notifier.Notify(m.HumanPlayerIDs(), NotifyMatchCancelled, map[string]string{
		"matchId": m.ID,
		"reason":  string(reason),
		"detail":  detail,
	})
}

// ForceReleaseServer frees a hosting instance regardless of its state and
// cancels whatever match it held, in one transaction.
func (s *MatchService) ForceReleaseServer(ctx context.Context, serverID string) (*models.GameServer, error) {
	var cancelled *models.Match
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		prev, err := tx.ForceReleaseServer(ctx, serverID, s.clock.Now())
		if err != nil {
			return notFoundAs(err, ErrServerNotFound)
		}
		if prev == nil {
			return nil
		}
		m, err := s.cancelTx(ctx, tx, *prev, models.ActiveMatchStatuses, models.CancelReasonServerReleased, "server force-released")
		if err != nil && !errors.Is(err, ErrAlreadyProcessed) && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		cancelled = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Server force-released", zap.String("serverId", serverID))
	if cancelled != nil {
		s.afterCancel(ctx, cancelled, models.CancelReasonServerReleased, "server force-released")
	}

	srv, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, notFoundAs(err, ErrServerNotFound)
	}
	return srv, nil
}

// ServerRequestCancel handles a cancellation asked for by the hosting instance.
func (s *MatchService) ServerRequestCancel(ctx context.Context, serverID, matchID, reason string) (*models.Match, error) {
	m, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.ServerID == nil || *m.ServerID != serverID {
		return nil, ErrServerMismatch
	}
	return s.Cancel(ctx, matchID, models.CancelReasonServerRequest, reason)
}

// Assignment lets a hosting instance discover its match when the pushed
// match id never arrived.
func (s *MatchService) Assignment(ctx context.Context, serverID string) (*models.Assignment, error) {
	srv, err := s.store.GetServer(ctx, serverID)
	if err != nil {
		return nil, notFoundAs(err, ErrServerNotFound)
	}
	if srv.MatchID == nil {
		return nil, ErrNoAssignment
	}

	m, err := s.GetMatch(ctx, *srv.MatchID)
	if err != nil {
		return nil, err
	}
	a := &models.Assignment{
		MatchID:     m.ID,
		Status:      string(m.Status),
		Whitelist:   m.HumanPlayerIDs(),
		CallbackURL: s.cfg.CallbackBaseURL,
	}
	if m.Map != nil {
		a.Map = *m.Map
	}
	return a, nil
}

// RunTimeouts expires stale ready checks and resolves stalled vetoes.
func (s *MatchService) RunTimeouts(ctx context.Context) {
	matches, err := s.store.ListMatches(ctx, []models.MatchStatus{models.MatchStatusReadyCheck, models.MatchStatusVeto})
	if err != nil {
		s.logger.Error("Failed to list matches for timeouts", zap.Error(err))
		return
	}

	now := s.clock.Now()
	for _, m := range matches {
		switch m.Status {
		case models.MatchStatusReadyCheck:
			if now.Sub(m.CreatedAt) >= s.cfg.ReadyCheckTimeout {
				s.expireReadyCheck(ctx, m)
			}
		case models.MatchStatusVeto:
			if m.VetoStartedAt != nil && now.Sub(*m.VetoStartedAt) >= s.cfg.VetoTimeout {
				if _, err := s.resolveVeto(ctx, m.ID, true); err != nil {
					s.logger.Error("Failed to resolve timed-out veto", zap.String("matchId", m.ID), zap.Error(err))
				}
			}
		}
	}
}

// expireReadyCheck cancels the match, bans every human who had not accepted
// when the cancellation committed and, when enabled, puts the accepters back
// in the queue.
func (s *MatchService) expireReadyCheck(ctx context.Context, m *models.Match) {
	cancelled, err := s.cancelFrom(ctx, m.ID, []models.MatchStatus{models.MatchStatusReadyCheck},
		models.CancelReasonReadyCheckTimeout, "ready check timed out")
	if err != nil {
		if !errors.Is(err, ErrAlreadyProcessed) {
			s.logger.Error("Failed to cancel expired ready check", zap.String("matchId", m.ID), zap.Error(err))
		}
		return
	}

	var afk, accepted []models.MatchPlayer
	for _, p := range cancelled.Players {
		if p.IsBot {
			continue
		}
		if p.Accepted {
			accepted = append(accepted, p)
		} else {
			afk = append(afk, p)
		}
	}

	for _, p := range afk {
		if _, err := s.bans.IssueAutomatic(ctx, p.PlayerID, models.BanReasonAFK, m.ID); err != nil {
			s.logger.Error("AFK ban not issued", zap.String("playerId", p.PlayerID), zap.Error(err))
		}
	}

	if s.cfg.RequeueOnAFKCancel && s.queue != nil {
		n := s.queue.Requeue(ctx, accepted)
		s.logger.Info("Requeued accepters after ready-check timeout",
			zap.String("matchId", m.ID), zap.Int("count", n))
	}
}
