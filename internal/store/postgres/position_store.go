package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. A partial
// unique index on (portfolio_id, asset_id) WHERE status = 'open' enforces at
// most one open position per pair; racing inserts fail the unit of work with
// domain.ErrConflict.
type PositionStore struct {
	q querier
}

// NewPositionStore creates a PositionStore running outside any unit of work,
// suitable for read-only access.
func NewPositionStore(q querier) *PositionStore {
	return &PositionStore{q: q}
}

const positionSelectCols = `id, portfolio_id, asset_id, asset_name, market_id, side,
	quantity::TEXT, avg_entry_price::TEXT, current_price::TEXT, unrealized_pnl::TEXT,
	status, opened_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var quantity, avgEntry, currentPrice, unrealized string

	err := row.Scan(
		&p.ID, &p.PortfolioID, &p.AssetID, &p.AssetName, &p.MarketID, &side,
		&quantity, &avgEntry, &currentPrice, &unrealized,
		&status, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.Side = domain.PositionSide(side)
	p.Status = domain.PositionStatus(status)
	if p.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.Position{}, err
	}
	if p.AvgEntryPrice, err = decimal.NewFromString(avgEntry); err != nil {
		return domain.Position{}, err
	}
	if p.CurrentPrice, err = decimal.NewFromString(currentPrice); err != nil {
		return domain.Position{}, err
	}
	if p.UnrealizedPnL, err = decimal.NewFromString(unrealized); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, portfolio_id, asset_id, asset_name, market_id, side,
			quantity, avg_entry_price, current_price, unrealized_pnl,
			status, opened_at, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
			$11, $12, $13, NOW()
		)`

	_, err := s.q.Exec(ctx, query,
		p.ID, p.PortfolioID, p.AssetID, p.AssetName, p.MarketID, string(p.Side),
		p.Quantity.String(), p.AvgEntryPrice.String(),
		p.CurrentPrice.String(), p.UnrealizedPnL.String(),
		string(p.Status), p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			asset_name      = $2,
			market_id       = $3,
			side            = $4,
			quantity        = $5::NUMERIC,
			avg_entry_price = $6::NUMERIC,
			current_price   = $7::NUMERIC,
			unrealized_pnl  = $8::NUMERIC,
			status          = $9,
			closed_at       = $10,
			updated_at      = NOW()
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		p.ID, p.AssetName, p.MarketID, string(p.Side),
		p.Quantity.String(), p.AvgEntryPrice.String(),
		p.CurrentPrice.String(), p.UnrealizedPnL.String(),
		string(p.Status), p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position by its id.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetOpen returns the single open position for (portfolioID, assetID).
func (s *PositionStore) GetOpen(ctx context.Context, portfolioID, assetID string) (domain.Position, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE portfolio_id = $1 AND asset_id = $2 AND status = 'open'`,
		portfolioID, assetID)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get open position %s/%s: %w", portfolioID, assetID, err)
	}
	return p, nil
}

// ListOpen returns all open positions for the given portfolio, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context, portfolioID string) ([]domain.Position, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE portfolio_id = $1 AND status = 'open'
		 ORDER BY opened_at, id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListByPortfolio returns positions for the given portfolio with pagination
// and optional time filtering on the open timestamp.
func (s *PositionStore) ListByPortfolio(ctx context.Context, portfolioID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE portfolio_id = $1`
	args := []any{portfolioID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at, id"

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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// DeleteByPortfolio removes every position of a portfolio. Only used by the
// explicit portfolio reset.
func (s *PositionStore) DeleteByPortfolio(ctx context.Context, portfolioID string) error {
	if _, err := s.q.Exec(ctx,
		`DELETE FROM positions WHERE portfolio_id = $1`, portfolioID); err != nil {
		return fmt.Errorf("postgres: delete positions for %s: %w", portfolioID, err)
	}
	return nil
}
