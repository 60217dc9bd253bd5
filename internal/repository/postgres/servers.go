package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

const serverColumns = `id, name, address, rcon_password, callback_key_hash,
	active, status, match_id, created_at, updated_at`

func scanServer(row interface{ Scan(...interface{}) error }) (*models.GameServer, error) {
	srv := &models.GameServer{}
	err := row.Scan(
		&srv.ID,
		&srv.Name,
		&srv.Address,
		&srv.RconPassword,
		&srv.CallbackKeyHash,
		&srv.Active,
		&srv.Status,
		&srv.MatchID,
		&srv.CreatedAt,
		&srv.UpdatedAt,
	)
	return srv, err
}

func (s *Store) CreateServer(ctx context.Context, srv *models.GameServer) error {
	query := `
		INSERT INTO game_servers (id, name, address, rcon_password, callback_key_hash, active, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.q.ExecContext(ctx, query,
		srv.ID,
		srv.Name,
		srv.Address,
		srv.RconPassword,
		srv.CallbackKeyHash,
		srv.Active,
		srv.Status,
		srv.CreatedAt,
		srv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrServerExists
	}
	if err != nil {
		return fmt.Errorf("failed to create game server: %w", err)
	}
	return nil
}

func (s *Store) GetServer(ctx context.Context, id string) (*models.GameServer, error) {
	query := `SELECT ` + serverColumns + ` FROM game_servers WHERE id = $1`

	srv, err := scanServer(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find game server: %w", err)
	}
	return srv, nil
}

func (s *Store) ListServers(ctx context.Context) ([]*models.GameServer, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+serverColumns+` FROM game_servers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list game servers: %w", err)
	}
	defer rows.Close()

	var servers []*models.GameServer
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game server: %w", err)
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

func (s *Store) ClaimServer(ctx context.Context, matchID string, at time.Time) (*models.GameServer, error) {
	query := `
		UPDATE game_servers
		SET status = 'IN_USE', match_id = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM game_servers
			WHERE status = 'AVAILABLE' AND active
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + serverColumns

	srv, err := scanServer(s.q.QueryRowContext(ctx, query, matchID, at))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNoServerAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim game server: %w", err)
	}
	return srv, nil
}

func (s *Store) ReleaseServer(ctx context.Context, serverID, matchID string, at time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE game_servers
		SET status = 'AVAILABLE', match_id = NULL, updated_at = $1
		WHERE id = $2 AND match_id = $3
	`, at, serverID, matchID)
	if err != nil {
		return false, fmt.Errorf("failed to release game server: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *Store) ForceReleaseServer(ctx context.Context, serverID string, at time.Time) (*string, error) {
	query := `
		UPDATE game_servers g
		SET status = 'AVAILABLE', match_id = NULL, updated_at = $1
		FROM (SELECT id, match_id FROM game_servers WHERE id = $2 FOR UPDATE) prev
		WHERE g.id = prev.id
		RETURNING prev.match_id
	`

	var matchID *string
	err := s.q.QueryRowContext(ctx, query, at, serverID).Scan(&matchID)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to force release game server: %w", err)
	}
	return matchID, nil
}
