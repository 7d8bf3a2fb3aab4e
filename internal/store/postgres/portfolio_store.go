package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
)

// PortfolioStore implements domain.PortfolioStore using PostgreSQL.
type PortfolioStore struct {
	q querier
}

// NewPortfolioStore creates a PortfolioStore running outside any unit of
// work, suitable for read-only access.
func NewPortfolioStore(q querier) *PortfolioStore {
	return &PortfolioStore{q: q}
}

const portfolioSelectCols = `id, name, market_type, exchange, account_id, wallet_address,
	currency, cash_balance::TEXT, total_value::TEXT, unrealized_pnl::TEXT,
	realized_pnl::TEXT, created_at, updated_at`

func scanPortfolioRow(row pgx.Row) (domain.Portfolio, error) {
	var p domain.Portfolio
	var marketType, cash, total, unrealized, realized string

	err := row.Scan(
		&p.ID, &p.Name, &marketType, &p.Exchange,
		&p.AccountID, &p.WalletAddress, &p.Currency,
		&cash, &total, &unrealized, &realized,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Portfolio{}, err
	}

	p.MarketType = domain.MarketType(marketType)
	if p.CashBalance, err = decimal.NewFromString(cash); err != nil {
		return domain.Portfolio{}, err
	}
	if p.TotalValue, err = decimal.NewFromString(total); err != nil {
		return domain.Portfolio{}, err
	}
	if p.UnrealizedPnL, err = decimal.NewFromString(unrealized); err != nil {
		return domain.Portfolio{}, err
	}
	if p.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
		return domain.Portfolio{}, err
	}
	return p, nil
}

// Create inserts a new portfolio. A duplicate name fails the enclosing unit
// of work with a unique violation, which surfaces as domain.ErrConflict.
func (s *PortfolioStore) Create(ctx context.Context, p domain.Portfolio) error {
	const query = `
		INSERT INTO portfolios (
			id, name, market_type, exchange, account_id, wallet_address,
			currency, cash_balance, total_value, unrealized_pnl, realized_pnl,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC,
			$12, $13
		)`

	_, err := s.q.Exec(ctx, query,
		p.ID, p.Name, string(p.MarketType), p.Exchange,
		p.AccountID, p.WalletAddress, p.Currency,
		p.CashBalance.String(), p.TotalValue.String(),
		p.UnrealizedPnL.String(), p.RealizedPnL.String(),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create portfolio %q: %w", p.Name, err)
	}
	return nil
}

// Get retrieves a portfolio by id.
func (s *PortfolioStore) Get(ctx context.Context, id string) (domain.Portfolio, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios WHERE id = $1`, id)
	return s.scanOne(row, id)
}

// GetForUpdate retrieves a portfolio by id with a row lock held until the
// enclosing unit of work ends. All mutating service operations go through
// this, so trades and funding events against one portfolio are serialized.
func (s *PortfolioStore) GetForUpdate(ctx context.Context, id string) (domain.Portfolio, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios WHERE id = $1 FOR UPDATE`, id)
	return s.scanOne(row, id)
}

// GetByName retrieves a portfolio by its unique name.
func (s *PortfolioStore) GetByName(ctx context.Context, name string) (domain.Portfolio, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+portfolioSelectCols+` FROM portfolios WHERE name = $1`, name)
	return s.scanOne(row, name)
}

func (s *PortfolioStore) scanOne(row pgx.Row, key string) (domain.Portfolio, error) {
	p, err := scanPortfolioRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Portfolio{}, domain.ErrNotFound
		}
		return domain.Portfolio{}, fmt.Errorf("postgres: get portfolio %q: %w", key, err)
	}
	return p, nil
}

// Update replaces all mutable fields of a portfolio.
func (s *PortfolioStore) Update(ctx context.Context, p domain.Portfolio) error {
	const query = `
		UPDATE portfolios SET
			market_type    = $2,
			exchange       = $3,
			account_id     = $4,
			wallet_address = $5,
			currency       = $6,
			cash_balance   = $7::NUMERIC,
			total_value    = $8::NUMERIC,
			unrealized_pnl = $9::NUMERIC,
			realized_pnl   = $10::NUMERIC,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.q.Exec(ctx, query,
		p.ID, string(p.MarketType), p.Exchange,
		p.AccountID, p.WalletAddress, p.Currency,
		p.CashBalance.String(), p.TotalValue.String(),
		p.UnrealizedPnL.String(), p.RealizedPnL.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: update portfolio %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
