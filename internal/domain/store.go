package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PortfolioStore persists portfolios.
type PortfolioStore interface {
	Create(ctx context.Context, p Portfolio) error
	// Get retrieves a portfolio by id.
	Get(ctx context.Context, id string) (Portfolio, error)
	// GetForUpdate retrieves a portfolio by id and locks it for the duration
	// of the enclosing unit of work, serializing concurrent mutations of the
	// same portfolio.
	GetForUpdate(ctx context.Context, id string) (Portfolio, error)
	GetByName(ctx context.Context, name string) (Portfolio, error)
	Update(ctx context.Context, p Portfolio) error
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// GetOpen returns the open position for (portfolioID, assetID), or
	// ErrNotFound when none exists. At most one open position per pair can
	// exist at a time.
	GetOpen(ctx context.Context, portfolioID, assetID string) (Position, error)
	ListOpen(ctx context.Context, portfolioID string) ([]Position, error)
	ListByPortfolio(ctx context.Context, portfolioID string, opts ListOpts) ([]Position, error)
	DeleteByPortfolio(ctx context.Context, portfolioID string) error
}

// TransactionStore persists the append-only transaction log. Transactions are
// never updated; DeleteByPortfolio exists only for explicit portfolio resets.
type TransactionStore interface {
	Append(ctx context.Context, txn Transaction) error
	ListByPortfolio(ctx context.Context, portfolioID string, opts ListOpts) ([]Transaction, error)
	CountByPortfolio(ctx context.Context, portfolioID string) (int64, error)
	DeleteByPortfolio(ctx context.Context, portfolioID string) error
}

// LedgerTx is the view of the ledger stores inside one unit of work. All
// reads and writes made through it either commit together or roll back
// together.
type LedgerTx interface {
	Portfolios() PortfolioStore
	Positions() PositionStore
	Transactions() TransactionStore
}

// Ledger provides atomic units of work over the three ledger stores.
type Ledger interface {
	// WithinTx runs fn inside one atomic unit of work. If fn returns an
	// error the unit of work rolls back and the error is returned; otherwise
	// it commits. Serialization failures surface as ErrConflict.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}
