package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

const (
	minBalancePlayers = 2
	maxBalancePlayers = 8
)

// Candidate is a player handed to the balancer.
type Candidate struct {
	PlayerID    string
	DisplayName string
	Rating      int
	IsBot       bool
}

type Balance struct {
	TeamA    []Candidate
	TeamB    []Candidate
	AverageA float64
	AverageB float64
	Gap      float64
}

// BalanceTeams sorts players by rating, highest first, and snake-drafts them
// in pairs: pair r goes A,B when r is even and B,A when r is odd.
func BalanceTeams(players []Candidate) (*Balance, error) {
	if len(players) < minBalancePlayers || len(players) > maxBalancePlayers {
		return nil, newError(CodeValidation, ErrInvalidInput,
			"balancing needs %d-%d players, got %d", minBalancePlayers, maxBalancePlayers, len(players))
	}

	sorted := make([]Candidate, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

	b := &Balance{}
	for i, p := range sorted {
		round := i / 2
		first := i%2 == 0
		if (round%2 == 0) == first {
			b.TeamA = append(b.TeamA, p)
		} else {
			b.TeamB = append(b.TeamB, p)
		}
	}

	b.AverageA = average(b.TeamA)
	b.AverageB = average(b.TeamB)
	b.Gap = math.Abs(b.AverageA - b.AverageB)
	return b, nil
}

func average(team []Candidate) float64 {
	if len(team) == 0 {
		return 0
	}
	sum := 0
	for _, p := range team {
		sum += p.Rating
	}
	return float64(sum) / float64(len(team))
}

// Players converts the balanced sides into match participants.
func (b *Balance) Players(matchID string) []models.MatchPlayer {
	out := make([]models.MatchPlayer, 0, len(b.TeamA)+len(b.TeamB))
	add := func(team models.Team, members []Candidate) {
		for _, c := range members {
			out = append(out, models.MatchPlayer{
				MatchID:     matchID,
				PlayerID:    c.PlayerID,
				DisplayName: c.DisplayName,
				Team:        team,
				IsBot:       c.IsBot,
				Accepted:    c.IsBot,
				RatingStart: c.Rating,
			})
		}
	}
	add(models.TeamA, b.TeamA)
	add(models.TeamB, b.TeamB)
	return out
}

func (b *Balance) String() string {
	return fmt.Sprintf("A=%.1f B=%.1f gap=%.1f", b.AverageA, b.AverageB, b.Gap)
}
