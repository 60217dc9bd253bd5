package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

const playerColumns = `id, display_name, rating, wins, losses, draws,
	matches_played, win_rate, mvp_count, created_at, updated_at`

func scanPlayer(row interface{ Scan(...interface{}) error }) (*models.Player, error) {
	p := &models.Player{}
	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.Rating,
		&p.Wins,
		&p.Losses,
		&p.Draws,
		&p.MatchesPlayed,
		&p.WinRate,
		&p.MVPCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (s *Store) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find player: %w", err)
	}
	return p, nil
}

func (s *Store) UpsertPlayer(ctx context.Context, id, displayName string, rating int) (*models.Player, error) {
	query := `
		INSERT INTO players (id, display_name, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    updated_at = NOW()
		RETURNING ` + playerColumns

	p, err := scanPlayer(s.q.QueryRowContext(ctx, query, id, displayName, rating))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePlayerRecord(ctx context.Context, p *models.Player) error {
	query := `
		UPDATE players
		SET rating = $1,
		    wins = $2,
		    losses = $3,
		    draws = $4,
		    matches_played = $5,
		    win_rate = $6,
		    updated_at = NOW()
		WHERE id = $7
	`

	res, err := s.q.ExecContext(ctx, query,
		p.Rating,
		p.Wins,
		p.Losses,
		p.Draws,
		p.MatchesPlayed,
		p.WinRate,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player record: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementMVP(ctx context.Context, id string) error {
	query := `UPDATE players SET mvp_count = mvp_count + 1, updated_at = NOW() WHERE id = $1`

	res, err := s.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment mvp count: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
