// Package memory is an in-process Store used by tests and single-node dev runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

// Store serializes every call behind one mutex. Transactions hold the lock
// for their whole body and restore a snapshot when fn fails.
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	defer s.lock()()
	return s.st.getPlayer(id)
}

func (s *Store) UpsertPlayer(ctx context.Context, id, displayName string, rating int) (*models.Player, error) {
	defer s.lock()()
	return s.st.upsertPlayer(id, displayName, rating)
}

func (s *Store) UpdatePlayerRecord(ctx context.Context, p *models.Player) error {
	defer s.lock()()
	return s.st.updatePlayerRecord(p)
}

func (s *Store) IncrementMVP(ctx context.Context, id string) error {
	defer s.lock()()
	return s.st.incrementMVP(id)
}

func (s *Store) CreateQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	defer s.lock()()
	return s.st.createQueueEntry(e)
}

func (s *Store) GetWaitingEntry(ctx context.Context, playerID string) (*models.QueueEntry, error) {
	defer s.lock()()
	return s.st.getWaitingEntry(playerID)
}

func (s *Store) DeleteWaitingEntry(ctx context.Context, playerID string) (bool, error) {
	defer s.lock()()
	return s.st.deleteWaitingEntry(playerID)
}

func (s *Store) ListWaitingEntries(ctx context.Context, now time.Time) ([]models.QueueEntry, error) {
	defer s.lock()()
	return s.st.listWaitingEntries(now)
}

func (s *Store) MarkEntriesMatched(ctx context.Context, ids []string, matchID string, at time.Time) (int, error) {
	defer s.lock()()
	return s.st.markEntriesMatched(ids, matchID, at)
}

func (s *Store) ExpireEntries(ctx context.Context, now time.Time) (int, error) {
	defer s.lock()()
	return s.st.expireEntries(now)
}

func (s *Store) PurgeEntriesForMatch(ctx context.Context, matchID string) (int, error) {
	defer s.lock()()
	return s.st.purgeEntriesForMatch(matchID)
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	defer s.lock()()
	return s.st.createMatch(m)
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	defer s.lock()()
	return s.st.getMatch(id)
}

func (s *Store) ListMatches(ctx context.Context, statuses []models.MatchStatus) ([]*models.Match, error) {
	defer s.lock()()
	return s.st.listMatches(statuses)
}

func (s *Store) FindActiveMatchForPlayer(ctx context.Context, playerID string) (*models.Match, error) {
	defer s.lock()()
	return s.st.findActiveMatchForPlayer(playerID)
}

func (s *Store) TransitionMatch(ctx context.Context, id string, from []models.MatchStatus, to models.MatchStatus, patch repository.MatchPatch, at time.Time) (bool, error) {
	defer s.lock()()
	return s.st.transitionMatch(id, from, to, patch, at)
}

func (s *Store) SetAccepted(ctx context.Context, matchID, playerID string) (bool, error) {
	defer s.lock()()
	return s.st.setAccepted(matchID, playerID)
}

func (s *Store) SetConnection(ctx context.Context, matchID, playerID string, connected bool, at time.Time, reason *string) error {
	defer s.lock()()
	return s.st.setConnection(matchID, playerID, connected, at, reason)
}

func (s *Store) SaveVote(ctx context.Context, v *models.MapVote) error {
	defer s.lock()()
	return s.st.saveVote(v)
}

func (s *Store) SetPlayerRating(ctx context.Context, matchID, playerID string, ratingEnd, change int) error {
	defer s.lock()()
	return s.st.setPlayerRating(matchID, playerID, ratingEnd, change)
}

func (s *Store) AddPlayerStats(ctx context.Context, matchID, playerID string, stats models.PlayerStats) error {
	defer s.lock()()
	return s.st.addPlayerStats(matchID, playerID, stats)
}

func (s *Store) CreateRound(ctx context.Context, r *models.Round) error {
	defer s.lock()()
	return s.st.createRound(r)
}

func (s *Store) CreateServer(ctx context.Context, srv *models.GameServer) error {
	defer s.lock()()
	return s.st.createServer(srv)
}

func (s *Store) GetServer(ctx context.Context, id string) (*models.GameServer, error) {
	defer s.lock()()
	return s.st.getServer(id)
}

func (s *Store) ListServers(ctx context.Context) ([]*models.GameServer, error) {
	defer s.lock()()
	return s.st.listServers()
}

func (s *Store) ClaimServer(ctx context.Context, matchID string, at time.Time) (*models.GameServer, error) {
	defer s.lock()()
	return s.st.claimServer(matchID, at)
}

func (s *Store) ReleaseServer(ctx context.Context, serverID, matchID string, at time.Time) (bool, error) {
	defer s.lock()()
	return s.st.releaseServer(serverID, matchID, at)
}

func (s *Store) ForceReleaseServer(ctx context.Context, serverID string, at time.Time) (*string, error) {
	defer s.lock()()
	return s.st.forceReleaseServer(serverID, at)
}

func (s *Store) CreateBan(ctx context.Context, b *models.Ban) error {
	defer s.lock()()
	return s.st.createBan(b)
}

func (s *Store) GetBan(ctx context.Context, id string) (*models.Ban, error) {
	defer s.lock()()
	return s.st.getBan(id)
}

func (s *Store) ListActiveBans(ctx context.Context, playerID string) ([]models.Ban, error) {
	defer s.lock()()
	return s.st.listActiveBans(playerID)
}

func (s *Store) CountBans(ctx context.Context, playerID string, reason models.BanReason) (int, error) {
	defer s.lock()()
	return s.st.countBans(playerID, reason)
}

func (s *Store) DeactivateBan(ctx context.Context, id string, revokedAt *time.Time) (bool, error) {
	defer s.lock()()
	return s.st.deactivateBan(id, revokedAt)
}
