package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

const queueColumns = `id, player_id, display_name, rating, status, match_id,
	enqueued_at, expires_at, matched_at`

func scanQueueEntry(row interface{ Scan(...interface{}) error }) (*models.QueueEntry, error) {
	e := &models.QueueEntry{}
	err := row.Scan(
		&e.ID,
		&e.PlayerID,
		&e.DisplayName,
		&e.Rating,
		&e.Status,
		&e.MatchID,
		&e.EnqueuedAt,
		&e.ExpiresAt,
		&e.MatchedAt,
	)
	return e, err
}

func (s *Store) CreateQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, player_id, display_name, rating, status, enqueued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (player_id) WHERE status = 'WAITING' DO NOTHING
	`

	res, err := s.q.ExecContext(ctx, query,
		e.ID,
		e.PlayerID,
		e.DisplayName,
		e.Rating,
		e.Status,
		e.EnqueuedAt,
		e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrAlreadyQueued
	}
	return nil
}

func (s *Store) GetWaitingEntry(ctx context.Context, playerID string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE player_id = $1 AND status = 'WAITING'`

	e, err := scanQueueEntry(s.q.QueryRowContext(ctx, query, playerID))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}
	return e, nil
}

func (s *Store) DeleteWaitingEntry(ctx context.Context, playerID string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE player_id = $1 AND status = 'WAITING'`, playerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete queue entry: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *Store) ListWaitingEntries(ctx context.Context, now time.Time) ([]models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
		WHERE status = 'WAITING' AND expires_at > $1
		ORDER BY enqueued_at, id
	`

	rows, err := s.q.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) MarkEntriesMatched(ctx context.Context, ids []string, matchID string, at time.Time) (int, error) {
	query := `
		UPDATE queue_entries
		SET status = 'MATCHED', match_id = $1, matched_at = $2
		WHERE id = ANY($3) AND status = 'WAITING'
	`

	res, err := s.q.ExecContext(ctx, query, matchID, at, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to mark queue entries matched: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) ExpireEntries(ctx context.Context, now time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE queue_entries SET status = 'EXPIRED' WHERE status = 'WAITING' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire queue entries: %w", err)
	}
	return rowsAffected(res)
}

func (s *Store) PurgeEntriesForMatch(ctx context.Context, matchID string) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM queue_entries WHERE match_id = $1`, matchID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue entries: %w", err)
	}
	return rowsAffected(res)
}
