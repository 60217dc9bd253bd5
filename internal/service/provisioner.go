package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/metrics"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/clock"
)

// RemoteConsole is an open remote administration session.
type RemoteConsole interface {
	Execute(ctx context.Context, command string) (string, error)
	Reconnect(ctx context.Context) error
	Close() error
}

type ConsoleDialer interface {
	Open(ctx context.Context, address, password string) (RemoteConsole, error)
}

// ConsoleDialerFunc adapts a function to ConsoleDialer.
type ConsoleDialerFunc func(ctx context.Context, address, password string) (RemoteConsole, error)

// Open calls f.
func (f ConsoleDialerFunc) Open(ctx context.Context, address, password string) (RemoteConsole, error) {
	return f(ctx, address, password)
}

// Console commands pushed during provisioning.
const (
	cmdChangeLevel = "changelevel %s"
	cmdCallbackURL = `sm_cvar ranked_callback_url "%s"`
	cmdMatchID     = `sm_cvar ranked_match_id "%s"`
	cmdWhitelist   = `sm_cvar ranked_whitelist "%s"`
	cmdPassword    = `sv_password "%s"`
	cmdHide        = "sv_tags hidden"
)

type ProvisionerConfig struct {
	Attempts        int
	RetryDelay      time.Duration
	SettleDelay     time.Duration
	CallbackBaseURL string
}

// Provisioner claims a hosting instance for a READY match and configures it
// over the remote console until it can accept the match's players.
type Provisioner struct {
	store    repository.Store
	matches  *MatchService
	dialer   ConsoleDialer
	clock    clock.Clock
	notifier Notifier
	logger   *zap.Logger
	cfg      ProvisionerConfig

	// sleep waits out the map settle delay.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProvisioner creates a provisioner that configures servers over dialer.
func NewProvisioner(
	store repository.Store,
	matches *MatchService,
	dialer ConsoleDialer,
	clk clock.Clock,
	notifier Notifier,
	logger *zap.Logger,
	cfg ProvisionerConfig,
) *Provisioner {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Provisioner{
		store:    store,
		matches:  matches,
		dialer:   dialer,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Provision runs the full sequence for one READY match. Every failure after
// the server is claimed cancels the match, which also frees the server.
func (p *Provisioner) Provision(ctx context.Context, matchID string) error {
	started := time.Now()

	m, srv, err := p.claim(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrNoServerAvailable) {
			p.logger.Warn("No hosting instance available", zap.String("matchId", matchID))
			p.cancel(ctx, matchID, models.CancelReasonNoServer, "no hosting instance available")
		}
		return err
	}

	log := p.logger.With(
		zap.String("matchId", matchID),
		zap.String("serverId", srv.ID),
		zap.String("address", srv.Address))
	log.Info("Server claimed, provisioning")

	password, err := p.configure(ctx, log, m, srv)
	if errors.Is(err, ErrAlreadyProcessed) {
		log.Warn("Match left PROVISIONING during provisioning, sequence stopped")
		return err
	}
	if err != nil {
		log.Error("Provisioning aborted", zap.Error(err))
		p.cancel(ctx, matchID, models.CancelReasonProvisioningFailed, err.Error())
		return newError(CodeExternalFailure, ErrRemoteConsole, "provisioning match %s failed: %v", matchID, err)
	}

	now := p.clock.Now()
	ok, err := p.store.TransitionMatch(ctx, matchID,
		[]models.MatchStatus{models.MatchStatusProvisioning}, models.MatchStatusWaitingForPlayers,
		repository.MatchPatch{JoinPassword: &password, WaitingSince: &now}, now)
	if err != nil {
		p.cancel(ctx, matchID, models.CancelReasonProvisioningFailed, "failed to record provisioned state")
		return fmt.Errorf("failed to finish provisioning: %w", err)
	}
	if !ok {
		// Cancelled while the console sequence ran; the cancellation already freed the server.
		log.Warn("Match left PROVISIONING during provisioning")
		return ErrAlreadyProcessed
	}

	metrics.ProvisioningSeconds.Observe(time.Since(started).Seconds())
	log.Info("Match waiting for players", zap.Duration("took", time.Since(started)))

	p.notifier.Notify(m.HumanPlayerIDs(), NotifyMatchConnect, models.ConnectInfo{
		MatchID:  matchID,
		Address:  srv.Address,
		Password: password,
		Map:      *m.Map,
	})
	return nil
}

// claim marks a server IN_USE and moves the match to PROVISIONING in one
// transaction, so a server is never claimed for a match that moved on.
func (p *Provisioner) claim(ctx context.Context, matchID string) (*models.Match, *models.GameServer, error) {
	var (
		m   *models.Match
		srv *models.GameServer
	)
	err := p.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		m, err = tx.GetMatch(ctx, matchID)
		if err != nil {
			return notFoundAs(err, ErrMatchNotFound)
		}
		if err := guardStatus(m, models.MatchStatusReady); err != nil {
			return err
		}

		now := p.clock.Now()
		srv, err = tx.ClaimServer(ctx, matchID, now)
		if err != nil {
			return err
		}

		ok, err := tx.TransitionMatch(ctx, matchID,
			[]models.MatchStatus{models.MatchStatusReady}, models.MatchStatusProvisioning,
			repository.MatchPatch{ServerID: &srv.ID, ServerAddress: &srv.Address}, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	m.Status = models.MatchStatusProvisioning
	m.ServerID = &srv.ID
	m.ServerAddress = &srv.Address
	return m, srv, nil
}

// configure drives the console sequence and returns the join password.
func (p *Provisioner) configure(ctx context.Context, log *zap.Logger, m *models.Match, srv *models.GameServer) (string, error) {
	if m.Map == nil {
		return "", errors.New("match has no map")
	}

	var console RemoteConsole
	err := p.retry(ctx, log, "connect", func() error {
		c, err := p.dialer.Open(ctx, srv.Address, srv.RconPassword)
		if err != nil {
			return err
		}
		console = c
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer console.Close()

	step := func(name, command string) error {
		if err := p.ensureAssigned(ctx, m.ID, srv.ID); err != nil {
			return err
		}
		return p.exec(ctx, log, console, name, command)
	}

	if err := step("change map", fmt.Sprintf(cmdChangeLevel, *m.Map)); err != nil {
		return "", err
	}

	// The map load drops the session.
	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return "", err
	}
	if err := p.ensureAssigned(ctx, m.ID, srv.ID); err != nil {
		return "", err
	}
	if err := p.retry(ctx, log, "reconnect", func() error { return console.Reconnect(ctx) }); err != nil {
		return "", fmt.Errorf("reconnect after map change: %w", err)
	}

	if err := step("push callback url", fmt.Sprintf(cmdCallbackURL, p.cfg.CallbackBaseURL)); err != nil {
		return "", err
	}

	// The instance can still poll its assignment, so a missing match id is survivable.
	if err := step("push match id", fmt.Sprintf(cmdMatchID, m.ID)); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			return "", err
		}
		log.Warn("Match id not pushed, instance must poll its assignment", zap.Error(err))
	}

	whitelist := strings.Join(m.HumanPlayerIDs(), ",")
	if err := step("push whitelist", fmt.Sprintf(cmdWhitelist, whitelist)); err != nil {
		return "", err
	}

	password := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	if err := step("set join password", fmt.Sprintf(cmdPassword, password)); err != nil {
		return "", err
	}

	if err := step("hide server", cmdHide); err != nil {
		return "", err
	}
	return password, nil
}

// ensureAssigned stops the console sequence once the match has left
// PROVISIONING or lost the server, since the server may already host
// another match.
func (p *Provisioner) ensureAssigned(ctx context.Context, matchID, serverID string) error {
	m, err := p.store.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to recheck match: %w", err)
	}
	if m.Status != models.MatchStatusProvisioning || m.ServerID == nil || *m.ServerID != serverID {
		return ErrAlreadyProcessed
	}
	return nil
}

func (p *Provisioner) exec(ctx context.Context, log *zap.Logger, console RemoteConsole, step, command string) error {
	err := p.retry(ctx, log, step, func() error {
		_, err := console.Execute(ctx, command)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	log.Info("Provisioning step done", zap.String("step", step))
	return nil
}

func (p *Provisioner) retry(ctx context.Context, log *zap.Logger, step string, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), uint64(p.cfg.Attempts-1)),
		ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		log.Warn("Provisioning step failed, retrying",
			zap.String("step", step),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

func (p *Provisioner) cancel(ctx context.Context, matchID string, reason models.CancelReason, detail string) {
	if _, err := p.matches.Cancel(ctx, matchID, reason, detail); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		p.logger.Error("Failed to cancel match after provisioning failure",
			zap.String("matchId", matchID), zap.Error(err))
	}
}
