package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

const banColumns = `id, player_id, reason, active, expires_at, issued_by,
	match_id, note, created_at, revoked_at`

func scanBan(row interface{ Scan(...interface{}) error }) (*models.Ban, error) {
	b := &models.Ban{}
	err := row.Scan(
		&b.ID,
		&b.PlayerID,
		&b.Reason,
		&b.Active,
		&b.ExpiresAt,
		&b.IssuedBy,
		&b.MatchID,
		&b.Note,
		&b.CreatedAt,
		&b.RevokedAt,
	)
	return b, err
}

func (s *Store) CreateBan(ctx context.Context, b *models.Ban) error {
	query := `
		INSERT INTO bans (id, player_id, reason, active, expires_at, issued_by, match_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.q.ExecContext(ctx, query,
		b.ID,
		b.PlayerID,
		b.Reason,
		b.Active,
		b.ExpiresAt,
		b.IssuedBy,
		b.MatchID,
		b.Note,
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ban: %w", err)
	}
	return nil
}

func (s *Store) GetBan(ctx context.Context, id string) (*models.Ban, error) {
	b, err := scanBan(s.q.QueryRowContext(ctx, `SELECT `+banColumns+` FROM bans WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ban: %w", err)
	}
	return b, nil
}

func (s *Store) ListActiveBans(ctx context.Context, playerID string) ([]models.Ban, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+banColumns+` FROM bans WHERE player_id = $1 AND active ORDER BY created_at`, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bans: %w", err)
	}
	defer rows.Close()

	var bans []models.Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ban: %w", err)
		}
		bans = append(bans, *b)
	}
	return bans, rows.Err()
}

func (s *Store) CountBans(ctx context.Context, playerID string, reason models.BanReason) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bans WHERE player_id = $1 AND reason = $2`, playerID, reason).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bans: %w", err)
	}
	return n, nil
}

func (s *Store) DeactivateBan(ctx context.Context, id string, revokedAt *time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE bans SET active = FALSE, revoked_at = $1 WHERE id = $2 AND active`, revokedAt, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate ban: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.GetBan(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}
