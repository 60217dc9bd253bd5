package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

func TestELOService_ExpectedScore(t *testing.T) {
	eloService := NewELOService(32)

	tests := []struct {
		name     string
		a, b     float64
		expected float64
	}{
		{"equal ratings", 1000, 1000, 0.5},
		{"400 points stronger", 1400, 1000, 10.0 / 11.0},
		{"400 points weaker", 1000, 1400, 1.0 / 11.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eloService.ExpectedScore(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("ExpectedScore(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestELOService_NewRating(t *testing.T) {
	eloService := NewELOService(32)

	tests := []struct {
		name        string
		current     int
		opponent    float64
		actual      float64
		expected    int
		description string
	}{
		{
			name:        "loss against equal team",
			current:     1000,
			opponent:    1000,
			actual:      0,
			expected:    984,
			description: "expected 0.5, delta round(32*-0.5) = -16",
		},
		{
			name:        "win against equal team",
			current:     1000,
			opponent:    1000,
			actual:      1,
			expected:    1016,
			description: "symmetric to the loss",
		},
		{
			name:        "tie against equal team",
			current:     1200,
			opponent:    1200,
			actual:      0.5,
			expected:    1200,
			description: "a tie between equals changes nothing",
		},
		{
			name:        "upset win",
			current:     1000,
			opponent:    1400,
			actual:      1,
			expected:    1029,
			description: "32 * (1 - 1/11) = 29.09",
		},
		{
			name:        "expected win",
			current:     1400,
			opponent:    1000,
			actual:      1,
			expected:    1403,
			description: "32 * (1 - 10/11) = 2.91",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eloService.NewRating(tt.current, tt.opponent, tt.actual)
			if got != tt.expected {
				t.Errorf("NewRating(%d, %v, %v) = %d, want %d (%s)",
					tt.current, tt.opponent, tt.actual, got, tt.expected, tt.description)
			}
		})
	}
}

func TestELOService_TeamChanges(t *testing.T) {
	eloService := NewELOService(32)
	m := &models.Match{Players: []models.MatchPlayer{
		{PlayerID: "a1", Team: models.TeamA, RatingStart: 1000},
		{PlayerID: "a2", Team: models.TeamA, RatingStart: 1000},
		{PlayerID: "b1", Team: models.TeamB, RatingStart: 1100},
		{PlayerID: "bot", Team: models.TeamB, RatingStart: 900, IsBot: true},
	}}

	winner := models.TeamB
	changes := eloService.TeamChanges(m, &winner)
	require.Len(t, changes, 3, "bots are not rated")

	byID := map[string]RatingChange{}
	for _, c := range changes {
		byID[c.PlayerID] = c
	}

	// team B averages 1000 including the bot, so team A loses 16
	assert.Equal(t, 984, byID["a1"].End)
	assert.Equal(t, -16, byID["a1"].Change)
	assert.Equal(t, models.OutcomeLoss, byID["a1"].Outcome)

	assert.Equal(t, models.OutcomeWin, byID["b1"].Outcome)
	assert.Equal(t, eloService.NewRating(1100, 1000, 1), byID["b1"].End)

	tie := eloService.TeamChanges(m, nil)
	for _, c := range tie {
		assert.Equal(t, models.OutcomeDraw, c.Outcome)
	}
}
