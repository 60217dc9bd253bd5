package models

import "time"

// DefaultRating is assigned to players the first time they are seen.
const DefaultRating = 1000

type Player struct {
	ID            string    `json:"id" db:"id"`
	DisplayName   string    `json:"displayName" db:"display_name"`
	Rating        int       `json:"rating" db:"rating"`
	Wins          int       `json:"wins" db:"wins"`
	Losses        int       `json:"losses" db:"losses"`
	Draws         int       `json:"draws" db:"draws"`
	MatchesPlayed int       `json:"matchesPlayed" db:"matches_played"`
	WinRate       float64   `json:"winRate" db:"win_rate"`
	MVPCount      int       `json:"mvpCount" db:"mvp_count"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// Outcome is a player's result in a finished match.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// ApplyOutcome updates the running counters and win rate.
func (p *Player) ApplyOutcome(o Outcome) {
	switch o {
	case OutcomeWin:
		p.Wins++
	case OutcomeLoss:
		p.Losses++
	case OutcomeDraw:
		p.Draws++
	}
	p.MatchesPlayed++
	p.WinRate = float64(p.Wins) / float64(p.MatchesPlayed)
}

// Identity is what the external session provider vouches for.
type Identity struct {
	PlayerID    string
	DisplayName string
	Rating      *int
	Roles       []string
}
