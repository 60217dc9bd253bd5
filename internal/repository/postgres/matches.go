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

const matchColumns = `id, status, server_id, map, server_address, join_password,
	team_a_score, team_b_score, winner, cancel_reason, cancel_detail,
	created_at, veto_started_at, waiting_since, started_at, completed_at, updated_at`

const matchPlayerColumns = `match_id, player_id, display_name, team, is_bot,
	accepted, connected, ever_connected, disconnected_at, disconnect_reason,
	rating_start, rating_end, rating_change,
	kills, deaths, assists, damage, headshots`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.Status,
		&m.ServerID,
		&m.Map,
		&m.ServerAddress,
		&m.JoinPassword,
		&m.TeamAScore,
		&m.TeamBScore,
		&m.Winner,
		&m.CancelReason,
		&m.CancelDetail,
		&m.CreatedAt,
		&m.VetoStartedAt,
		&m.WaitingSince,
		&m.StartedAt,
		&m.CompletedAt,
		&m.UpdatedAt,
	)
	return m, err
}

func scanMatchPlayer(row interface{ Scan(...interface{}) error }) (*models.MatchPlayer, error) {
	p := &models.MatchPlayer{}
	err := row.Scan(
		&p.MatchID,
		&p.PlayerID,
		&p.DisplayName,
		&p.Team,
		&p.IsBot,
		&p.Accepted,
		&p.Connected,
		&p.EverConnected,
		&p.DisconnectedAt,
		&p.DisconnectReason,
		&p.RatingStart,
		&p.RatingEnd,
		&p.RatingChange,
		&p.Stats.Kills,
		&p.Stats.Deaths,
		&p.Stats.Assists,
		&p.Stats.Damage,
		&p.Stats.Headshots,
	)
	return p, err
}

func statusStrings(statuses []models.MatchStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	query := `
		INSERT INTO matches (id, status, map, created_at, veto_started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.q.ExecContext(ctx, query, m.ID, m.Status, m.Map, m.CreatedAt, m.VetoStartedAt, m.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}

	playerQuery := `
		INSERT INTO match_players (match_id, player_id, display_name, team, is_bot, accepted, rating_start)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, p := range m.Players {
		if _, err := s.q.ExecContext(ctx, playerQuery,
			m.ID,
			p.PlayerID,
			p.DisplayName,
			p.Team,
			p.IsBot,
			p.Accepted,
			p.RatingStart,
		); err != nil {
			return fmt.Errorf("failed to add match player: %w", err)
		}
	}
	return nil
}

func (s *Store) loadPlayers(ctx context.Context, m *models.Match) error {
	query := `SELECT ` + matchPlayerColumns + ` FROM match_players WHERE match_id = $1 ORDER BY team, rating_start DESC, player_id`

	rows, err := s.q.QueryContext(ctx, query, m.ID)
	if err != nil {
		return fmt.Errorf("failed to load match players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanMatchPlayer(rows)
		if err != nil {
			return fmt.Errorf("failed to scan match player: %w", err)
		}
		m.Players = append(m.Players, *p)
	}
	return rows.Err()
}

func (s *Store) loadVotes(ctx context.Context, m *models.Match) error {
	query := `SELECT match_id, player_id, map, cast_at, seq FROM map_votes WHERE match_id = $1 ORDER BY seq`

	rows, err := s.q.QueryContext(ctx, query, m.ID)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.MapVote
		if err := rows.Scan(&v.MatchID, &v.PlayerID, &v.Map, &v.CastAt, &v.Seq); err != nil {
			return fmt.Errorf("failed to scan vote: %w", err)
		}
		m.Votes = append(m.Votes, v)
	}
	return rows.Err()
}

func (s *Store) loadRounds(ctx context.Context, m *models.Match) error {
	query := `
		SELECT match_id, number, map, team_a_score, team_b_score, mvp_player_id, completed_at
		FROM rounds
		WHERE match_id = $1
		ORDER BY number
	`

	rows, err := s.q.QueryContext(ctx, query, m.ID)
	if err != nil {
		return fmt.Errorf("failed to load rounds: %w", err)
	}
	defer rows.Close()

	index := make(map[int]int)
	for rows.Next() {
		var r models.Round
		if err := rows.Scan(&r.MatchID, &r.Number, &r.Map, &r.TeamAScore, &r.TeamBScore, &r.MVPPlayerID, &r.CompletedAt); err != nil {
			return fmt.Errorf("failed to scan round: %w", err)
		}
		index[r.Number] = len(m.Rounds)
		m.Rounds = append(m.Rounds, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(m.Rounds) == 0 {
		return nil
	}

	statRows, err := s.q.QueryContext(ctx, `
		SELECT number, player_id, kills, deaths, assists, damage, headshots
		FROM player_round_stats
		WHERE match_id = $1
		ORDER BY number, player_id
	`, m.ID)
	if err != nil {
		return fmt.Errorf("failed to load round stats: %w", err)
	}
	defer statRows.Close()

	for statRows.Next() {
		var number int
		var st models.PlayerRoundStats
		if err := statRows.Scan(&number, &st.PlayerID, &st.Kills, &st.Deaths, &st.Assists, &st.Damage, &st.Headshots); err != nil {
			return fmt.Errorf("failed to scan round stats: %w", err)
		}
		if i, ok := index[number]; ok {
			m.Rounds[i].Stats = append(m.Rounds[i].Stats, st)
		}
	}
	return statRows.Err()
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(s.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	if err := s.loadPlayers(ctx, m); err != nil {
		return nil, err
	}
	if err := s.loadVotes(ctx, m); err != nil {
		return nil, err
	}
	if err := s.loadRounds(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMatches(ctx context.Context, statuses []models.MatchStatus) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE status = ANY($1) ORDER BY created_at`

	rows, err := s.q.QueryContext(ctx, query, pq.Array(statusStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range matches {
		if err := s.loadPlayers(ctx, m); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func (s *Store) FindActiveMatchForPlayer(ctx context.Context, playerID string) (*models.Match, error) {
	query := `
		SELECT m.id
		FROM matches m
		JOIN match_players mp ON mp.match_id = m.id
		WHERE mp.player_id = $1 AND m.status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY m.created_at DESC
		LIMIT 1
	`

	var id string
	err := s.q.QueryRowContext(ctx, query, playerID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active match: %w", err)
	}
	return s.GetMatch(ctx, id)
}

func (s *Store) TransitionMatch(ctx context.Context, id string, from []models.MatchStatus, to models.MatchStatus, p repository.MatchPatch, at time.Time) (bool, error) {
	query := `
		UPDATE matches
		SET status = $1,
		    updated_at = $2,
		    server_id = COALESCE($3, server_id),
		    server_address = COALESCE($4, server_address),
		    join_password = COALESCE($5, join_password),
		    map = COALESCE($6, map),
		    team_a_score = COALESCE($7, team_a_score),
		    team_b_score = COALESCE($8, team_b_score),
		    winner = COALESCE($9, winner),
		    cancel_reason = COALESCE($10, cancel_reason),
		    cancel_detail = COALESCE($11, cancel_detail),
		    veto_started_at = COALESCE($12, veto_started_at),
		    waiting_since = COALESCE($13, waiting_since),
		    started_at = COALESCE($14, started_at),
		    completed_at = COALESCE($15, completed_at)
		WHERE id = $16 AND status = ANY($17)
	`

	res, err := s.q.ExecContext(ctx, query,
		to,
		at,
		p.ServerID,
		p.ServerAddress,
		p.JoinPassword,
		p.Map,
		p.TeamAScore,
		p.TeamBScore,
		p.Winner,
		p.CancelReason,
		p.CancelDetail,
		p.VetoStartedAt,
		p.WaitingSince,
		p.StartedAt,
		p.CompletedAt,
		id,
		pq.Array(statusStrings(from)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition match: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check match: %w", err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (s *Store) SetAccepted(ctx context.Context, matchID, playerID string) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE match_players SET accepted = TRUE
		WHERE match_id = $1 AND player_id = $2 AND NOT accepted
		  AND EXISTS (
			SELECT 1 FROM matches WHERE id = $1 AND status = $3 FOR SHARE
		  )
	`, matchID, playerID, string(models.MatchStatusReadyCheck))
	if err != nil {
		return false, fmt.Errorf("failed to record acceptance: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *Store) SetConnection(ctx context.Context, matchID, playerID string, connected bool, at time.Time, reason *string) error {
	var query string
	var args []interface{}
	if connected {
		query = `
			UPDATE match_players
			SET connected = TRUE, ever_connected = TRUE, disconnected_at = NULL, disconnect_reason = NULL
			WHERE match_id = $1 AND player_id = $2
		`
		args = []interface{}{matchID, playerID}
	} else {
		query = `
			UPDATE match_players
			SET connected = FALSE, disconnected_at = $3, disconnect_reason = $4
			WHERE match_id = $1 AND player_id = $2
		`
		args = []interface{}{matchID, playerID, at, reason}
	}

	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update connection state: %w", err)
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

func (s *Store) SaveVote(ctx context.Context, v *models.MapVote) error {
	query := `
		INSERT INTO map_votes (match_id, player_id, map, cast_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, player_id) DO NOTHING
		RETURNING seq
	`

	err := s.q.QueryRowContext(ctx, query, v.MatchID, v.PlayerID, v.Map, v.CastAt).Scan(&v.Seq)
	if err == sql.ErrNoRows {
		return repository.ErrDuplicateVote
	}
	if err != nil {
		return fmt.Errorf("failed to save vote: %w", err)
	}
	return nil
}

func (s *Store) SetPlayerRating(ctx context.Context, matchID, playerID string, ratingEnd, change int) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE match_players SET rating_end = $1, rating_change = $2
		WHERE match_id = $3 AND player_id = $4
	`, ratingEnd, change, matchID, playerID)
	if err != nil {
		return fmt.Errorf("failed to set player rating: %w", err)
	}
	return nil
}

func (s *Store) AddPlayerStats(ctx context.Context, matchID, playerID string, st models.PlayerStats) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE match_players
		SET kills = kills + $1,
		    deaths = deaths + $2,
		    assists = assists + $3,
		    damage = damage + $4,
		    headshots = headshots + $5
		WHERE match_id = $6 AND player_id = $7
	`, st.Kills, st.Deaths, st.Assists, st.Damage, st.Headshots, matchID, playerID)
	if err != nil {
		return fmt.Errorf("failed to add player stats: %w", err)
	}
	return nil
}

func (s *Store) CreateRound(ctx context.Context, r *models.Round) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO rounds (match_id, number, map, team_a_score, team_b_score, mvp_player_id, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id, number) DO NOTHING
	`, r.MatchID, r.Number, r.Map, r.TeamAScore, r.TeamBScore, r.MVPPlayerID, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrDuplicateRound
	}

	for _, st := range r.Stats {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO player_round_stats (match_id, number, player_id, kills, deaths, assists, damage, headshots)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, r.MatchID, r.Number, st.PlayerID, st.Kills, st.Deaths, st.Assists, st.Damage, st.Headshots); err != nil {
			return fmt.Errorf("failed to record round stats: %w", err)
		}
	}
	return nil
}
