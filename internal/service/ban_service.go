package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/metrics"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

// MaxBanDuration caps escalation.
const MaxBanDuration = 7 * 24 * time.Hour

var banBaseDurations = map[models.BanReason]time.Duration{
	models.BanReasonAFK:      15 * time.Minute,
	models.BanReasonNoJoin:   30 * time.Minute,
	models.BanReasonRageQuit: time.Hour,
	models.BanReasonNoRejoin: 30 * time.Minute,
}

// BanDuration doubles the base duration for every prior ban with the same reason.
func BanDuration(reason models.BanReason, prior int) time.Duration {
	d := banBaseDurations[reason]
	for i := 0; i < prior && d < MaxBanDuration; i++ {
		d *= 2
	}
	if d > MaxBanDuration {
		d = MaxBanDuration
	}
	return d
}

type BanService struct {
	store      repository.Store
	clock      clock.Clock
	notifier   Notifier
	logger     *zap.Logger
	retryDelay time.Duration
}

// NewBanService creates a new ban service.
func NewBanService(store repository.Store, clk clock.Clock, notifier Notifier, logger *zap.Logger) *BanService {
	return &BanService{
		store:      store,
		clock:      clk,
		notifier:   notifier,
		logger:     logger,
		retryDelay: 500 * time.Millisecond,
	}
}

// IssueAutomatic creates an escalating system ban. Creation is retried once
// before the failure is surfaced.
func (s *BanService) IssueAutomatic(ctx context.Context, playerID string, reason models.BanReason, matchID string) (*models.Ban, error) {
	var ban *models.Ban
	op := func() error {
		prior, err := s.store.CountBans(ctx, playerID, reason)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		expires := now.Add(BanDuration(reason, prior))
		mid := matchID
		ban = &models.Ban{
			ID:        uuid.New().String(),
			PlayerID:  playerID,
			Reason:    reason,
			Active:    true,
			ExpiresAt: &expires,
			IssuedBy:  models.IssuerSystem,
			MatchID:   &mid,
			CreatedAt: now,
		}
		return s.store.CreateBan(ctx, ban)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryDelay), 1), ctx)
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Ban creation failed, retrying",
			zap.String("playerId", playerID),
			zap.String("reason", string(reason)),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		s.logger.Error("Failed to issue automatic ban",
			zap.String("playerId", playerID),
			zap.String("reason", string(reason)),
			zap.String("matchId", matchID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to issue ban: %w", err)
	}

	s.issued(ban)
	return ban, nil
}

// IssueManual records a ban from an administrator. A nil duration is permanent.
func (s *BanService) IssueManual(ctx context.Context, req models.CreateBanRequest, issuer string) (*models.Ban, error) {
	if req.PlayerID == "" {
		return nil, newError(CodeValidation, ErrInvalidInput, "playerId is required")
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return nil, newError(CodeValidation, ErrInvalidInput, "durationMinutes must be positive")
	}

	now := s.clock.Now()
	ban := &models.Ban{
		ID:        uuid.New().String(),
		PlayerID:  req.PlayerID,
		Reason:    models.BanReasonManual,
		Active:    true,
		IssuedBy:  issuer,
		Note:      req.Note,
		CreatedAt: now,
	}
	if req.DurationMinutes != nil {
		expires := now.Add(time.Duration(*req.DurationMinutes) * time.Minute)
		ban.ExpiresAt = &expires
	}

	if err := s.store.CreateBan(ctx, ban); err != nil {
		return nil, fmt.Errorf("failed to create ban: %w", err)
	}
	s.issued(ban)
	return ban, nil
}

func (s *BanService) issued(ban *models.Ban) {
	metrics.BansIssued.WithLabelValues(string(ban.Reason)).Inc()
	s.logger.Info("Ban issued",
		zap.String("banId", ban.ID),
		zap.String("playerId", ban.PlayerID),
		zap.String("reason", string(ban.Reason)),
		zap.String("issuedBy", ban.IssuedBy),
		zap.Timep("expiresAt", ban.ExpiresAt))
	s.notifier.Notify([]string{ban.PlayerID}, NotifyPlayerBanned, ban)
}

// Revoke deactivates a ban ahead of its expiry.
func (s *BanService) Revoke(ctx context.Context, banID string) (*models.Ban, error) {
	now := s.clock.Now()
	changed, err := s.store.DeactivateBan(ctx, banID, &now)
	if err != nil {
		return nil, notFoundAs(err, ErrBanNotFound)
	}
	if !changed {
		return nil, ErrAlreadyProcessed
	}

	ban, err := s.store.GetBan(ctx, banID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload ban: %w", err)
	}
	s.logger.Info("Ban revoked", zap.String("banId", banID), zap.String("playerId", ban.PlayerID))
	return ban, nil
}

// ActiveBan returns the ban currently blocking the player, or nil. Bans found
// past their expiry are deactivated on the way.
func (s *BanService) ActiveBan(ctx context.Context, playerID string) (*models.Ban, error) {
	bans, err := s.store.ListActiveBans(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}

	now := s.clock.Now()
	var blocking *models.Ban
	for i := range bans {
		b := &bans[i]
		if b.InForce(now) {
			if blocking == nil || laterExpiry(b, blocking) {
				blocking = b
			}
			continue
		}
		if _, err := s.store.DeactivateBan(ctx, b.ID, nil); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Failed to expire ban", zap.String("banId", b.ID), zap.Error(err))
		}
	}
	return blocking, nil
}

// laterExpiry reports whether a outlasts b. Permanent bans outlast everything.
func laterExpiry(a, b *models.Ban) bool {
	if a.ExpiresAt == nil {
		return b.ExpiresAt != nil
	}
	return b.ExpiresAt != nil && a.ExpiresAt.After(*b.ExpiresAt)
}
