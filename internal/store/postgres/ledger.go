package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyledger/ledgerd/internal/domain"
)

// querier is the query surface shared by pgxpool.Pool and pgx.Tx, so the
// entity stores can run both standalone and inside a unit of work.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements domain.Ledger on a pgx connection pool. Every unit of
// work maps to one database transaction; the service layer serializes
// concurrent writers to the same portfolio by locking the portfolio row
// through PortfolioStore.GetForUpdate before touching positions or cash.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// WithinTx runs fn inside one database transaction. Rollback on error is
// unconditional; unique violations and serialization/deadlock failures are
// surfaced as domain.ErrConflict so the caller can retry the whole unit.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	if err := fn(&ledgerTx{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return translateErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateErr(fmt.Errorf("postgres: commit: %w", err))
	}
	return nil
}

type ledgerTx struct {
	q querier
}

func (t *ledgerTx) Portfolios() domain.PortfolioStore     { return &PortfolioStore{q: t.q} }
func (t *ledgerTx) Positions() domain.PositionStore       { return &PositionStore{q: t.q} }
func (t *ledgerTx) Transactions() domain.TransactionStore { return &TransactionStore{q: t.q} }

// translateErr maps PostgreSQL error codes onto the domain error taxonomy.
// 23505 is unique_violation, 40001 serialization_failure, 40P01 deadlock.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case "40001", "40P01":
			return fmt.Errorf("%w: serialization failure", domain.ErrConflict)
		}
	}
	return err
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
