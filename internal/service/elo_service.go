package service

import (
	"math"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

// DefaultKFactor is the rating volatility used in ranked versus.
const DefaultKFactor = 32

// ELOService computes Elo rating updates. It holds no state besides K.
type ELOService struct {
	kFactor float64
}

// NewELOService creates a rating calculator with the given K-factor.
func NewELOService(kFactor float64) *ELOService {
	if kFactor <= 0 {
		kFactor = DefaultKFactor
	}
	return &ELOService{kFactor: kFactor}
}

// ExpectedScore is the probability that a player rated a beats one rated b.
func (s *ELOService) ExpectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// NewRating returns round(current + K * (actual - expected)).
// actual is 1 for a win, 0.5 for a tie and 0 for a loss.
func (s *ELOService) NewRating(current int, opponent float64, actual float64) int {
	expected := s.ExpectedScore(float64(current), opponent)
	return int(math.Round(float64(current) + s.kFactor*(actual-expected)))
}

// RatingChange is one participant's rating outcome.
type RatingChange struct {
	PlayerID string
	Team     models.Team
	Start    int
	End      int
	Change   int
	Outcome  models.Outcome
}

// TeamChanges rates every human participant against the opposing side's
// average starting rating. A nil winner is a tie.
func (s *ELOService) TeamChanges(m *models.Match, winner *models.Team) []RatingChange {
	opponentAvg := map[models.Team]float64{
		models.TeamA: m.StartingAverage(models.TeamB),
		models.TeamB: m.StartingAverage(models.TeamA),
	}

	var changes []RatingChange
	for _, p := range m.Players {
		if p.IsBot {
			continue
		}

		actual, outcome := 0.5, models.OutcomeDraw
		if winner != nil {
			if *winner == p.Team {
				actual, outcome = 1, models.OutcomeWin
			} else {
				actual, outcome = 0, models.OutcomeLoss
			}
		}

		end := s.NewRating(p.RatingStart, opponentAvg[p.Team], actual)
		changes = append(changes, RatingChange{
			PlayerID: p.PlayerID,
			Team:     p.Team,
			Start:    p.RatingStart,
			End:      end,
			Change:   end - p.RatingStart,
			Outcome:  outcome,
		})
	}
	return changes
}
