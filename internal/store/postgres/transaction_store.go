package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL. The
// transactions table is append-only; rows are never updated.
type TransactionStore struct {
	q querier
}

// NewTransactionStore creates a TransactionStore running outside any unit of
// work, suitable for read-only access.
func NewTransactionStore(q querier) *TransactionStore {
	return &TransactionStore{q: q}
}

const transactionSelectCols = `id, portfolio_id, COALESCE(position_id::TEXT, ''), type, asset_id,
	quantity::TEXT, price::TEXT, amount::TEXT, fee::TEXT,
	external_id, external_order_id, notes, created_at`

func scanTransactionRows(rows pgx.Rows) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var txnType string
		var quantity, price, amount, fee string

		if err := rows.Scan(
			&t.ID, &t.PortfolioID, &t.PositionID, &txnType, &t.AssetID,
			&quantity, &price, &amount, &fee,
			&t.ExternalID, &t.ExternalOrderID, &t.Notes, &t.CreatedAt,
		); err != nil {
			return nil, err
		}

		t.Type = domain.TransactionType(txnType)
		var err error
		if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if t.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Append inserts a new transaction record.
func (s *TransactionStore) Append(ctx context.Context, t domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, portfolio_id, position_id, type, asset_id,
			quantity, price, amount, fee,
			external_id, external_order_id, notes, created_at
		) VALUES (
			$1, $2, NULLIF($3, '')::UUID, $4, $5,
			$6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC,
			$10, $11, $12, $13
		)`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.PortfolioID, t.PositionID, string(t.Type), t.AssetID,
		t.Quantity.String(), t.Price.String(), t.Amount.String(), t.Fee.String(),
		t.ExternalID, t.ExternalOrderID, t.Notes, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append transaction %s: %w", t.ID, err)
	}
	return nil
}

// ListByPortfolio returns transactions for the given portfolio in chronological
// order with pagination and optional time filtering. Chronological order makes
// the result directly replayable.
func (s *TransactionStore) ListByPortfolio(ctx context.Context, portfolioID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionSelectCols + ` FROM transactions WHERE portfolio_id = $1`
	args := []any{portfolioID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at, id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions: %w", err)
	}
	defer rows.Close()

	txns, err := scanTransactionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txns, nil
}

// CountByPortfolio returns the number of transactions recorded for a portfolio.
func (s *TransactionStore) CountByPortfolio(ctx context.Context, portfolioID string) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE portfolio_id = $1`, portfolioID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count transactions: %w", err)
	}
	return n, nil
}

// DeleteByPortfolio removes every transaction of a portfolio. Only used by
// the explicit portfolio reset.
func (s *TransactionStore) DeleteByPortfolio(ctx context.Context, portfolioID string) error {
	if _, err := s.q.Exec(ctx,
		`DELETE FROM transactions WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("postgres: delete transactions for %s: %w", portfolioID, err)
	}
	return nil
}
