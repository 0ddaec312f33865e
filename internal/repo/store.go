// Package repo is the Postgres ledger store.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs every ledger transaction at SERIALIZABLE isolation.
type Store struct{ pool *pgxpool.Pool }

func NewStore(p *pgxpool.Pool) *Store { return &Store{pool: p} }

type tx struct {
	*Members
	*Accounts
	*Contributions
	*Debts
}

func newTx(q querier) *tx {
	return &tx{
		Members:       NewMembers(q),
		Accounts:      NewAccounts(q),
		Contributions: NewContributions(q),
		Debts:         NewDebts(q),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return conflict(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = pgTx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, newTx(pgTx)); err != nil {
		return conflict(err)
	}
	if err := pgTx.Commit(ctx); err != nil {
		return conflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// conflict marks serialization failures and deadlocks as retryable.
func conflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", ledger.ErrConflict, err)
		}
	}
	return err
}

// Numeric columns travel as text so that no precision is lost on the way.
func scanDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}
