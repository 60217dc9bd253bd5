package models

import "time"

type MatchStatus string

const (
	MatchStatusFormed            MatchStatus = "FORMED"
	MatchStatusReadyCheck        MatchStatus = "READY_CHECK"
	MatchStatusVeto              MatchStatus = "VETO"
	MatchStatusReady             MatchStatus = "READY"
	MatchStatusProvisioning      MatchStatus = "PROVISIONING"
	MatchStatusWaitingForPlayers MatchStatus = "WAITING_FOR_PLAYERS"
	MatchStatusInProgress        MatchStatus = "IN_PROGRESS"
	MatchStatusCompleted         MatchStatus = "COMPLETED"
	MatchStatusCancelled         MatchStatus = "CANCELLED"
)

var matchStatusOrder = map[MatchStatus]int{
	MatchStatusFormed:            0,
	MatchStatusReadyCheck:        1,
	MatchStatusVeto:              2,
	MatchStatusReady:             3,
	MatchStatusProvisioning:      4,
	MatchStatusWaitingForPlayers: 5,
	MatchStatusInProgress:        6,
	MatchStatusCompleted:         7,
	MatchStatusCancelled:         7,
}

// Terminal reports whether no further transitions are possible.
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

// After reports whether s is strictly later in the lifecycle than other.
func (s MatchStatus) After(other MatchStatus) bool {
	return matchStatusOrder[s] > matchStatusOrder[other]
}

// ActiveMatchStatuses are all non-terminal statuses.
var ActiveMatchStatuses = []MatchStatus{
	MatchStatusFormed,
	MatchStatusReadyCheck,
	MatchStatusVeto,
	MatchStatusReady,
	MatchStatusProvisioning,
	MatchStatusWaitingForPlayers,
	MatchStatusInProgress,
}

type CancelReason string

const (
	CancelReasonAdmin              CancelReason = "ADMIN"
	CancelReasonServerReleased     CancelReason = "SERVER_RELEASED"
	CancelReasonServerRequest      CancelReason = "SERVER_REQUEST"
	CancelReasonReadyCheckTimeout  CancelReason = "READY_CHECK_TIMEOUT"
	CancelReasonProvisioningFailed CancelReason = "PROVISIONING_FAILED"
	CancelReasonNoServer           CancelReason = "NO_SERVER_AVAILABLE"
	CancelReasonNoJoin             CancelReason = "PLAYER_NO_JOIN"
	CancelReasonAbandoned          CancelReason = "PLAYER_ABANDONED"
)

type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// Opponent returns the other side.
func (t Team) Opponent() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

type Match struct {
	ID            string        `json:"id" db:"id"`
	Status        MatchStatus   `json:"status" db:"status"`
	ServerID      *string       `json:"serverId,omitempty" db:"server_id"`
	Map           *string       `json:"map,omitempty" db:"map"`
	ServerAddress *string       `json:"serverAddress,omitempty" db:"server_address"`
	JoinPassword  *string       `json:"joinPassword,omitempty" db:"join_password"`
	TeamAScore    int           `json:"teamAScore" db:"team_a_score"`
	TeamBScore    int           `json:"teamBScore" db:"team_b_score"`
	Winner        *Team         `json:"winner,omitempty" db:"winner"`
	CancelReason  *CancelReason `json:"cancelReason,omitempty" db:"cancel_reason"`
	CancelDetail  *string       `json:"cancelDetail,omitempty" db:"cancel_detail"`
	CreatedAt     time.Time     `json:"createdAt" db:"created_at"`
	VetoStartedAt *time.Time    `json:"vetoStartedAt,omitempty" db:"veto_started_at"`
	WaitingSince  *time.Time    `json:"waitingSince,omitempty" db:"waiting_since"`
	StartedAt     *time.Time    `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty" db:"completed_at"`
	UpdatedAt     time.Time     `json:"updatedAt" db:"updated_at"`

	Players []MatchPlayer `json:"players"`
	Rounds  []Round       `json:"rounds,omitempty"`
	Votes   []MapVote     `json:"votes,omitempty"`
}

// Player returns the participation row for playerID, or nil.
func (m *Match) Player(playerID string) *MatchPlayer {
	for i := range m.Players {
		if m.Players[i].PlayerID == playerID {
			return &m.Players[i]
		}
	}
	return nil
}

// TeamPlayers returns the members of one side.
func (m *Match) TeamPlayers(t Team) []MatchPlayer {
	var out []MatchPlayer
	for _, p := range m.Players {
		if p.Team == t {
			out = append(out, p)
		}
	}
	return out
}

// StartingAverage is the mean rating-at-start of one side.
func (m *Match) StartingAverage(t Team) float64 {
	members := m.TeamPlayers(t)
	if len(members) == 0 {
		return 0
	}
	sum := 0
	for _, p := range members {
		sum += p.RatingStart
	}
	return float64(sum) / float64(len(members))
}

// HumanPlayerIDs lists all non-bot participants.
func (m *Match) HumanPlayerIDs() []string {
	var ids []string
	for _, p := range m.Players {
		if !p.IsBot {
			ids = append(ids, p.PlayerID)
		}
	}
	return ids
}

type PlayerStats struct {
	Kills     int `json:"kills" db:"kills"`
	Deaths    int `json:"deaths" db:"deaths"`
	Assists   int `json:"assists" db:"assists"`
	Damage    int `json:"damage" db:"damage"`
	Headshots int `json:"headshots" db:"headshots"`
}

// Add accumulates other into s.
func (s *PlayerStats) Add(other PlayerStats) {
	s.Kills += other.Kills
	s.Deaths += other.Deaths
	s.Assists += other.Assists
	s.Damage += other.Damage
	s.Headshots += other.Headshots
}

type MatchPlayer struct {
	MatchID          string      `json:"matchId" db:"match_id"`
	PlayerID         string      `json:"playerId" db:"player_id"`
	DisplayName      string      `json:"displayName" db:"display_name"`
	Team             Team        `json:"team" db:"team"`
	IsBot            bool        `json:"isBot" db:"is_bot"`
	Accepted         bool        `json:"accepted" db:"accepted"`
	Connected        bool        `json:"connected" db:"connected"`
	EverConnected    bool        `json:"everConnected" db:"ever_connected"`
	DisconnectedAt   *time.Time  `json:"disconnectedAt,omitempty" db:"disconnected_at"`
	DisconnectReason *string     `json:"disconnectReason,omitempty" db:"disconnect_reason"`
	RatingStart      int         `json:"ratingStart" db:"rating_start"`
	RatingEnd        *int        `json:"ratingEnd,omitempty" db:"rating_end"`
	RatingChange     *int        `json:"ratingChange,omitempty" db:"rating_change"`
	Stats            PlayerStats `json:"stats"`
}

type MapVote struct {
	MatchID  string    `json:"matchId" db:"match_id"`
	PlayerID string    `json:"playerId" db:"player_id"`
	Map      string    `json:"map" db:"map"`
	CastAt   time.Time `json:"castAt" db:"cast_at"`
	Seq      int64     `json:"-" db:"seq"`
}

type Round struct {
	MatchID     string             `json:"matchId" db:"match_id"`
	Number      int                `json:"number" db:"number"`
	Map         string             `json:"map" db:"map"`
	TeamAScore  int                `json:"teamAScore" db:"team_a_score"`
	TeamBScore  int                `json:"teamBScore" db:"team_b_score"`
	MVPPlayerID *string            `json:"mvpPlayerId,omitempty" db:"mvp_player_id"`
	CompletedAt time.Time          `json:"completedAt" db:"completed_at"`
	Stats       []PlayerRoundStats `json:"stats,omitempty"`
}

type PlayerRoundStats struct {
	PlayerID string `json:"playerId" db:"player_id"`
	PlayerStats
}
