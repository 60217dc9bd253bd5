// Package postgres implements repository.Store on lib/pq with raw SQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/rl-arena/ranked-orchestrator/internal/repository"
	"github.com/rl-arena/ranked-orchestrator/pkg/database"
)

const uniqueViolation = "23505"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Store struct {
	db *database.DB
	q  querier
	tx bool
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *database.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx, tx: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}
