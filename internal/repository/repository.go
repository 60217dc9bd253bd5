package repository

import (
	"context"
	"time"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

type PlayerRepository interface {
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	// UpsertPlayer inserts the player with the given rating if unknown and
	// refreshes the display name otherwise. The stored row is returned.
	UpsertPlayer(ctx context.Context, id, displayName string, rating int) (*models.Player, error)
	UpdatePlayerRecord(ctx context.Context, p *models.Player) error
	IncrementMVP(ctx context.Context, id string) error
}

type QueueRepository interface {
	CreateQueueEntry(ctx context.Context, e *models.QueueEntry) error
	GetWaitingEntry(ctx context.Context, playerID string) (*models.QueueEntry, error)
	DeleteWaitingEntry(ctx context.Context, playerID string) (bool, error)
	// ListWaitingEntries returns unexpired WAITING entries, oldest first.
	ListWaitingEntries(ctx context.Context, now time.Time) ([]models.QueueEntry, error)
	// MarkEntriesMatched flips entries that are still WAITING and reports how many changed.
	MarkEntriesMatched(ctx context.Context, ids []string, matchID string, at time.Time) (int, error)
	ExpireEntries(ctx context.Context, now time.Time) (int, error)
	PurgeEntriesForMatch(ctx context.Context, matchID string) (int, error)
}

// MatchPatch carries the optional columns written alongside a status change.
type MatchPatch struct {
	ServerID      *string
	ServerAddress *string
	JoinPassword  *string
	Map           *string
	TeamAScore    *int
	TeamBScore    *int
	Winner        *models.Team
	CancelReason  *models.CancelReason
	CancelDetail  *string
	VetoStartedAt *time.Time
	WaitingSince  *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

type MatchRepository interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	// GetMatch loads the match with players, votes and rounds.
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	ListMatches(ctx context.Context, statuses []models.MatchStatus) ([]*models.Match, error)
	FindActiveMatchForPlayer(ctx context.Context, playerID string) (*models.Match, error)
	// TransitionMatch applies to and patch only if the match is currently in
	// one of from. It reports whether the row changed.
	TransitionMatch(ctx context.Context, id string, from []models.MatchStatus, to models.MatchStatus, patch MatchPatch, at time.Time) (bool, error)
	// SetAccepted flags the player's acceptance while the match is still in
	// READY_CHECK. It reports false when already accepted or the match moved on.
	SetAccepted(ctx context.Context, matchID, playerID string) (bool, error)
	SetConnection(ctx context.Context, matchID, playerID string, connected bool, at time.Time, reason *string) error
	SaveVote(ctx context.Context, v *models.MapVote) error
	SetPlayerRating(ctx context.Context, matchID, playerID string, ratingEnd, change int) error
	AddPlayerStats(ctx context.Context, matchID, playerID string, stats models.PlayerStats) error
	CreateRound(ctx context.Context, r *models.Round) error
}

type ServerRepository interface {
	CreateServer(ctx context.Context, s *models.GameServer) error
	GetServer(ctx context.Context, id string) (*models.GameServer, error)
	ListServers(ctx context.Context) ([]*models.GameServer, error)
	// ClaimServer atomically moves the first AVAILABLE active server to IN_USE for matchID.
	ClaimServer(ctx context.Context, matchID string, at time.Time) (*models.GameServer, error)
	// ReleaseServer frees the server only while it is still assigned to matchID.
	ReleaseServer(ctx context.Context, serverID, matchID string, at time.Time) (bool, error)
	// ForceReleaseServer frees the server unconditionally and returns the match it held.
	ForceReleaseServer(ctx context.Context, serverID string, at time.Time) (*string, error)
}

type BanRepository interface {
	CreateBan(ctx context.Context, b *models.Ban) error
	GetBan(ctx context.Context, id string) (*models.Ban, error)
	ListActiveBans(ctx context.Context, playerID string) ([]models.Ban, error)
	CountBans(ctx context.Context, playerID string, reason models.BanReason) (int, error)
	DeactivateBan(ctx context.Context, id string, revokedAt *time.Time) (bool, error)
}

// Store is the relational state of the orchestrator.
type Store interface {
	PlayerRepository
	QueueRepository
	MatchRepository
	ServerRepository
	BanRepository

	// InTx runs fn atomically. Nested calls join the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
