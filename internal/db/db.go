package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row lookup matches nothing.
var ErrNotFound = errors.New("db: not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("db: duplicate")

// Querier is the subset of pgx functionality the store needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same store methods run inside
// and outside transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store exposes persistence operations backed by PostgreSQL.
type Store struct {
	q    Querier
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool in a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// WithTx runs fn inside a transaction. The store passed to fn shares the
// transaction for every query it makes.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	if s.pool == nil {
		return errors.New("db: store is already transactional")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &Store{q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrapScan(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
