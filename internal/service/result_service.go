package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/metrics"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

// ResultService ingests round and completion reports. Both entry points
// tolerate repeated delivery.
type ResultService struct {
	store    repository.Store
	elo      *ELOService
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
	pending  PendingTable
}

// NewResultService creates a new result service.
func NewResultService(
	store repository.Store,
	elo *ELOService,
	clk clock.Clock,
	notifier Notifier,
	logger *zap.Logger,
) *ResultService {
	return &ResultService{
		store:    store,
		elo:      elo,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
	}
}

// SetPendingTable lets completion disarm leftover grace timers.
func (s *ResultService) SetPendingTable(pending PendingTable) {
	s.pending = pending
}

// ReportRound stores one round. A round number already recorded for the
// match is ErrAlreadyProcessed.
func (s *ResultService) ReportRound(ctx context.Context, serverID, matchID string, r models.RoundReport) (*models.Round, error) {
	if r.Number < 1 {
		return nil, newError(CodeValidation, ErrInvalidInput, "round number must be positive")
	}
	if r.TeamAScore < 0 || r.TeamBScore < 0 {
		return nil, newError(CodeValidation, ErrInvalidInput, "scores must not be negative")
	}

	m, err := s.authorize(ctx, serverID, matchID)
	if err != nil {
		return nil, err
	}
	if err := guardStatus(m, models.MatchStatusInProgress); err != nil {
		return nil, err
	}

	for _, st := range r.Stats {
		if m.Player(st.PlayerID) == nil {
			return nil, newError(CodeValidation, ErrNotInMatch, "stats for unknown player %s", st.PlayerID)
		}
	}
	var mvp *models.MatchPlayer
	if r.MVPPlayerID != nil {
		if mvp = m.Player(*r.MVPPlayerID); mvp == nil {
			return nil, newError(CodeValidation, ErrNotInMatch, "mvp %s is not in the match", *r.MVPPlayerID)
		}
	}

	round := &models.Round{
		MatchID:     matchID,
		Number:      r.Number,
		Map:         r.Map,
		TeamAScore:  r.TeamAScore,
		TeamBScore:  r.TeamBScore,
		MVPPlayerID: r.MVPPlayerID,
		CompletedAt: s.clock.Now(),
		Stats:       r.Stats,
	}
	if round.Map == "" && m.Map != nil {
		round.Map = *m.Map
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateRound(ctx, round); err != nil {
			return err
		}
		for _, st := range r.Stats {
			if err := tx.AddPlayerStats(ctx, matchID, st.PlayerID, st.PlayerStats); err != nil {
				return err
			}
		}
		if mvp != nil && !mvp.IsBot {
			if err := tx.IncrementMVP(ctx, mvp.PlayerID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRound) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("failed to record round: %w", err)
	}

	s.logger.Info("Round recorded",
		zap.String("matchId", matchID),
		zap.Int("round", r.Number),
		zap.Int("teamA", r.TeamAScore),
		zap.Int("teamB", r.TeamBScore))
	return round, nil
}

// ReportCompletion closes a match. Scores are summed from recorded rounds;
// the directly reported score is used only when no rounds exist.
func (s *ResultService) ReportCompletion(ctx context.Context, serverID, matchID string, r models.CompletionReport) (*models.Match, error) {
	m, err := s.authorize(ctx, serverID, matchID)
	if err != nil {
		return nil, err
	}
	if err := guardStatus(m, models.MatchStatusInProgress); err != nil {
		return nil, err
	}

	scoreA, scoreB := 0, 0
	if len(m.Rounds) > 0 {
		for _, round := range m.Rounds {
			scoreA += round.TeamAScore
			scoreB += round.TeamBScore
		}
	} else {
		if r.TeamAScore == nil || r.TeamBScore == nil {
			return nil, newError(CodeValidation, ErrInvalidInput, "no rounds recorded and no final score reported")
		}
		scoreA, scoreB = *r.TeamAScore, *r.TeamBScore
	}

	var winner *models.Team
	switch {
	case scoreA > scoreB:
		w := models.TeamA
		winner = &w
	case scoreB > scoreA:
		w := models.TeamB
		winner = &w
	}

	return s.complete(ctx, m, scoreA, scoreB, winner, true)
}

// Forfeit ends a live match against the offender's team. Opponents are
// credited a win and the offender's team a loss, without rating changes.
func (s *ResultService) Forfeit(ctx context.Context, matchID, offenderID string) (*models.Match, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, notFoundAs(err, ErrMatchNotFound)
	}
	offender := m.Player(offenderID)
	if offender == nil {
		return nil, ErrNotInMatch
	}
	if err := guardStatus(m, models.MatchStatusInProgress); err != nil {
		return nil, err
	}

	winner := offender.Team.Opponent()
	s.logger.Info("Match forfeited",
		zap.String("matchId", matchID),
		zap.String("offender", offenderID),
		zap.String("winner", string(winner)))

	scoreA, scoreB := 0, 0
	for _, round := range m.Rounds {
		scoreA += round.TeamAScore
		scoreB += round.TeamBScore
	}
	return s.complete(ctx, m, scoreA, scoreB, &winner, false)
}

// complete commits COMPLETED with the outcome, player records and server
// release in one transaction. rated selects whether Elo deltas are applied.
func (s *ResultService) complete(
	ctx context.Context,
	m *models.Match,
	scoreA, scoreB int,
	winner *models.Team,
	rated bool,
) (*models.Match, error) {
	var changes []RatingChange
	if rated {
		changes = s.elo.TeamChanges(m, winner)
	} else {
		changes = unratedOutcomes(m, winner)
	}

	now := s.clock.Now()
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ok, err := tx.TransitionMatch(ctx, m.ID,
			[]models.MatchStatus{models.MatchStatusInProgress}, models.MatchStatusCompleted,
			repository.MatchPatch{
				TeamAScore:  &scoreA,
				TeamBScore:  &scoreB,
				Winner:      winner,
				CompletedAt: &now,
			}, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}

		for _, c := range changes {
			if err := tx.SetPlayerRating(ctx, m.ID, c.PlayerID, c.End, c.Change); err != nil {
				return err
			}
			player, err := tx.GetPlayer(ctx, c.PlayerID)
			if err != nil {
				return fmt.Errorf("failed to load player %s: %w", c.PlayerID, err)
			}
			player.Rating += c.Change
			player.ApplyOutcome(c.Outcome)
			if err := tx.UpdatePlayerRecord(ctx, player); err != nil {
				return err
			}
		}

		if m.ServerID != nil {
			if _, err := tx.ReleaseServer(ctx, *m.ServerID, m.ID, now); err != nil {
				return fmt.Errorf("failed to release server: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to complete match: %w", err)
	}

	if s.pending != nil {
		for _, p := range m.Players {
			if _, err := s.pending.Cancel(ctx, p.PlayerID); err != nil {
				s.logger.Warn("Failed to clear pending disconnect", zap.String("playerId", p.PlayerID), zap.Error(err))
			}
		}
	}

	metrics.MatchesCompleted.Inc()
	done, err := s.store.GetMatch(ctx, m.ID)
	if err != nil {
		return nil, notFoundAs(err, ErrMatchNotFound)
	}

	w := "tie"
	if winner != nil {
		w = string(*winner)
	}
	s.logger.Info("Match completed",
		zap.String("matchId", m.ID),
		zap.Int("teamA", scoreA),
		zap.Int("teamB", scoreB),
		zap.String("winner", w),
		zap.Bool("rated", rated))
	s.notifier.Notify(m.HumanPlayerIDs(), NotifyMatchCompleted, done)
	return done, nil
}

// unratedOutcomes records win/loss without touching ratings.
func unratedOutcomes(m *models.Match, winner *models.Team) []RatingChange {
	var out []RatingChange
	for _, p := range m.Players {
		if p.IsBot {
			continue
		}
		outcome := models.OutcomeDraw
		if winner != nil {
			if *winner == p.Team {
				outcome = models.OutcomeWin
			} else {
				outcome = models.OutcomeLoss
			}
		}
		out = append(out, RatingChange{
			PlayerID: p.PlayerID,
			Team:     p.Team,
			Start:    p.RatingStart,
			End:      p.RatingStart,
			Outcome:  outcome,
		})
	}
	return out
}

func (s *ResultService) authorize(ctx context.Context, serverID, matchID string) (*models.Match, error) {
	m, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, notFoundAs(err, ErrMatchNotFound)
	}
	if m.ServerID == nil || *m.ServerID != serverID {
		return nil, ErrServerMismatch
	}
	return m, nil
}
