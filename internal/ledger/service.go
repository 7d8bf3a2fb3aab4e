// Package ledger implements the portfolio service: the transactional
// operations that mutate portfolios, positions, and the transaction log.
// Every public operation runs inside one atomic unit of work against the
// ledger store; valuation math is delegated to the valuation package.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/valuation"
)

// DefaultMaxRetries bounds automatic retries of units of work that fail with
// domain.ErrConflict. Serialization conflicts are expected under concurrent
// same-asset trading; validation errors are never retried.
const DefaultMaxRetries = 3

// Service is the portfolio service. It is safe for concurrent use; the
// underlying ledger store serializes units of work that touch the same
// portfolio.
type Service struct {
	ledger     domain.Ledger
	logger     *slog.Logger
	scale      int32
	maxRetries int
}

// Option configures a Service.
type Option func(*Service)

// WithScale sets the decimal rounding scale for the weighted-average entry
// price division.
func WithScale(scale int32) Option {
	return func(s *Service) {
		if scale > 0 {
			s.scale = scale
		}
	}
}

// WithMaxRetries sets the number of automatic retries on conflicting units of
// work.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With(slog.String("component", "ledger"))
	}
}

// NewService creates a portfolio service on top of the given ledger store.
func NewService(ledger domain.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:     ledger,
		logger:     slog.Default().With(slog.String("component", "ledger")),
		scale:      valuation.DefaultScale,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withRetry runs fn as one unit of work, retrying the whole unit a bounded
// number of times when it fails with domain.ErrConflict. Each retry starts
// from a fresh read of the store, so the second committer of two racing
// trades never applies stale state.
func (s *Service) withRetry(ctx context.Context, op string, fn func(tx domain.LedgerTx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.ledger.WithinTx(ctx, fn)
		if err == nil || !errors.Is(err, domain.ErrConflict) || attempt >= s.maxRetries {
			return err
		}

		s.logger.WarnContext(ctx, "unit of work conflicted, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
}

// PortfolioParams describes a portfolio for EnsurePortfolio.
type PortfolioParams struct {
	Name          string
	MarketType    domain.MarketType
	Exchange      string
	AccountID     string
	WalletAddress string
	Currency      string
}

// EnsurePortfolio returns the portfolio with the given name, creating it with
// zero balances if it does not exist. The operation is idempotent; a second
// call with the same name returns the stored entity without mutation.
func (s *Service) EnsurePortfolio(ctx context.Context, params PortfolioParams) (domain.Portfolio, error) {
	if params.Name == "" {
		return domain.Portfolio{}, fmt.Errorf("ledger: portfolio name is required")
	}
	if !params.MarketType.Valid() {
		return domain.Portfolio{}, fmt.Errorf("ledger: unknown market type %q", params.MarketType)
	}
	if params.Currency == "" {
		params.Currency = "USD"
	}

	var out domain.Portfolio
	err := s.withRetry(ctx, "ensure_portfolio", func(tx domain.LedgerTx) error {
		existing, err := tx.Portfolios().GetByName(ctx, params.Name)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		p := domain.Portfolio{
			ID:            uuid.New().String(),
			Name:          params.Name,
			MarketType:    params.MarketType,
			Exchange:      params.Exchange,
			AccountID:     params.AccountID,
			WalletAddress: params.WalletAddress,
			Currency:      params.Currency,
			CashBalance:   decimal.Zero,
			TotalValue:    decimal.Zero,
			UnrealizedPnL: decimal.Zero,
			RealizedPnL:   decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		// A racing creator makes this insert conflict; the retry then finds
		// the winner's row.
		if err := tx.Portfolios().Create(ctx, p); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "portfolio created",
			slog.String("portfolio_id", p.ID),
			slog.String("name", p.Name),
			slog.String("market_type", string(p.MarketType)),
			slog.String("exchange", p.Exchange),
		)
		out = p
		return nil
	})
	if err != nil {
		return domain.Portfolio{}, err
	}
	return out, nil
}

// GetPortfolio retrieves a portfolio by id.
func (s *Service) GetPortfolio(ctx context.Context, portfolioID string) (domain.Portfolio, error) {
	var out domain.Portfolio
	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().Get(ctx, portfolioID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// GetPortfolioByName retrieves a portfolio by its unique name.
func (s *Service) GetPortfolioByName(ctx context.Context, name string) (domain.Portfolio, error) {
	var out domain.Portfolio
	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetByName(ctx, name)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// AddFunds deposits amount into the portfolio's cash balance and appends a
// deposit transaction. The amount must be positive.
func (s *Service) AddFunds(ctx context.Context, portfolioID string, amount decimal.Decimal, notes string) (domain.Transaction, error) {
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("ledger: deposit of %s: %w", amount, domain.ErrInvalidAmount)
	}

	var out domain.Transaction
	err := s.withRetry(ctx, "add_funds", func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, portfolioID)
		if err != nil {
			return err
		}

		p.CashBalance = p.CashBalance.Add(amount)
		if err := s.refreshAggregates(ctx, tx, &p); err != nil {
			return err
		}
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		txn := cashTransaction(p.ID, domain.TransactionTypeDeposit, amount, notes)
		if err := tx.Transactions().Append(ctx, txn); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "funds added",
			slog.String("portfolio_id", p.ID),
			slog.String("amount", amount.String()),
			slog.String("cash_balance", p.CashBalance.String()),
		)
		out = txn
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

// WithdrawFunds removes amount from the portfolio's cash balance and appends
// a withdrawal transaction. The amount must be positive and must not exceed
// the available cash.
func (s *Service) WithdrawFunds(ctx context.Context, portfolioID string, amount decimal.Decimal, notes string) (domain.Transaction, error) {
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("ledger: withdrawal of %s: %w", amount, domain.ErrInvalidAmount)
	}

	var out domain.Transaction
	err := s.withRetry(ctx, "withdraw_funds", func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, portfolioID)
		if err != nil {
			return err
		}
		if amount.GreaterThan(p.CashBalance) {
			return fmt.Errorf("ledger: withdraw %s with %s available: %w",
				amount, p.CashBalance, domain.ErrInsufficientFunds)
		}

		p.CashBalance = p.CashBalance.Sub(amount)
		if err := s.refreshAggregates(ctx, tx, &p); err != nil {
			return err
		}
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		txn := cashTransaction(p.ID, domain.TransactionTypeWithdrawal, amount, notes)
		if err := tx.Transactions().Append(ctx, txn); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "funds withdrawn",
			slog.String("portfolio_id", p.ID),
			slog.String("amount", amount.String()),
			slog.String("cash_balance", p.CashBalance.String()),
		)
		out = txn
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return out, nil
}

// TradeParams describes one trade fill for RecordTrade.
type TradeParams struct {
	PortfolioID string
	Type        domain.TransactionType // buy or sell
	AssetID     string
	AssetName   string
	MarketID    string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Fee         decimal.Decimal
	ExternalID  string
	OrderID     string
	Notes       string
}

func (p TradeParams) validate() error {
	if p.Type != domain.TransactionTypeBuy && p.Type != domain.TransactionTypeSell {
		return fmt.Errorf("ledger: transaction type %q is not a trade", p.Type)
	}
	if p.AssetID == "" {
		return fmt.Errorf("ledger: asset id is required")
	}
	if !p.Quantity.IsPositive() {
		return fmt.Errorf("ledger: trade quantity %s: %w", p.Quantity, domain.ErrInvalidQuantity)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("ledger: trade price %s: %w", p.Price, domain.ErrInvalidPrice)
	}
	if p.Fee.IsNegative() {
		return fmt.Errorf("ledger: trade fee %s: %w", p.Fee, domain.ErrInvalidAmount)
	}
	return nil
}

// direction maps the trade type onto the exposure direction it adds:
// a buy adds long exposure, a sell adds short exposure.
func (p TradeParams) direction() domain.PositionSide {
	if p.Type == domain.TransactionTypeBuy {
		return domain.SideLong
	}
	return domain.SideShort
}

// RecordTrade applies one trade fill to the portfolio: position lifecycle,
// cash movement, and the audit transaction, all in one unit of work.
//
// The effect on the position depends on the open position state, not on the
// trade type alone:
//
//   - no open position: a new position opens in the trade's direction at the
//     trade price;
//   - same direction: exposure increases and the average entry price moves to
//     the quantity-weighted mean;
//   - opposite direction: exposure is reduced, realizing P&L on the offset
//     quantity at an unchanged average entry price; reducing past zero closes
//     the record and opens a flipped position for the excess at the trade
//     price.
//
// Cash decreases by quantity*price + fee on a buy and increases by
// quantity*price - fee on a sell. A buy whose total cost exceeds the
// available cash fails with ErrInsufficientFunds before any mutation.
func (s *Service) RecordTrade(ctx context.Context, params TradeParams) (domain.Position, domain.Transaction, error) {
	if err := params.validate(); err != nil {
		return domain.Position{}, domain.Transaction{}, err
	}

	var (
		outPos domain.Position
		outTxn domain.Transaction
	)
	err := s.withRetry(ctx, "record_trade", func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, params.PortfolioID)
		if err != nil {
			return err
		}

		grossAmount := params.Quantity.Mul(params.Price)

		// Cash first: a buy that cannot be funded must fail before any
		// position mutation.
		if params.Type == domain.TransactionTypeBuy {
			totalCost := grossAmount.Add(params.Fee)
			if totalCost.GreaterThan(p.CashBalance) {
				return fmt.Errorf("ledger: buy costing %s with %s available: %w",
					totalCost, p.CashBalance, domain.ErrInsufficientFunds)
			}
			p.CashBalance = p.CashBalance.Sub(totalCost)
		} else {
			p.CashBalance = p.CashBalance.Add(grossAmount.Sub(params.Fee))
		}

		pos, err := s.applyTradeToPosition(ctx, tx, &p, params)
		if err != nil {
			return err
		}

		if err := s.refreshAggregates(ctx, tx, &p); err != nil {
			return err
		}
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		txn := domain.Transaction{
			ID:              uuid.New().String(),
			PortfolioID:     p.ID,
			PositionID:      pos.ID,
			Type:            params.Type,
			AssetID:         params.AssetID,
			Quantity:        params.Quantity,
			Price:           params.Price,
			Amount:          grossAmount,
			Fee:             params.Fee,
			ExternalID:      params.ExternalID,
			ExternalOrderID: params.OrderID,
			Notes:           params.Notes,
			CreatedAt:       time.Now().UTC(),
		}
		if err := tx.Transactions().Append(ctx, txn); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "trade recorded",
			slog.String("portfolio_id", p.ID),
			slog.String("position_id", pos.ID),
			slog.String("type", string(params.Type)),
			slog.String("asset_id", params.AssetID),
			slog.String("quantity", params.Quantity.String()),
			slog.String("price", params.Price.String()),
		)

		outPos = pos
		outTxn = txn
		return nil
	})
	if err != nil {
		return domain.Position{}, domain.Transaction{}, err
	}
	return outPos, outTxn, nil
}

// applyTradeToPosition runs the position state machine for one trade and
// returns the resulting open position (or the closed record when the trade
// exactly offsets it). Realized P&L lands on the portfolio.
func (s *Service) applyTradeToPosition(ctx context.Context, tx domain.LedgerTx, p *domain.Portfolio, params TradeParams) (domain.Position, error) {
	now := time.Now().UTC()
	tradeDir := params.direction()

	pos, err := tx.Positions().GetOpen(ctx, p.ID, params.AssetID)
	if errors.Is(err, domain.ErrNotFound) {
		// First trade for this asset: open fresh.
		pos = s.newPosition(p.ID, params, tradeDir, params.Quantity, now)
		if err := tx.Positions().Create(ctx, pos); err != nil {
			return domain.Position{}, err
		}
		return pos, nil
	}
	if err != nil {
		return domain.Position{}, err
	}

	if pos.Side == tradeDir {
		// Same direction: weighted-average the entry price, grow quantity.
		pos.AvgEntryPrice = valuation.WeightedAverageEntry(
			pos.Quantity, pos.AvgEntryPrice, params.Quantity, params.Price, s.scale)
		pos.Quantity = pos.Quantity.Add(params.Quantity)
		pos.CurrentPrice = params.Price
		pos.UnrealizedPnL = valuation.Mark(pos.Side, pos.Quantity, pos.AvgEntryPrice, pos.CurrentPrice)
		if err := tx.Positions().Update(ctx, pos); err != nil {
			return domain.Position{}, err
		}
		return pos, nil
	}

	// Opposite direction: realize P&L on the offset quantity. The average
	// entry price never moves on a reduction.
	closingQty := decimal.Min(params.Quantity, pos.Quantity)
	realized := valuation.Realize(pos.Side, pos.AvgEntryPrice, closingQty, params.Price)
	p.RealizedPnL = p.RealizedPnL.Add(realized)

	pos.Quantity = pos.Quantity.Sub(closingQty)
	pos.CurrentPrice = params.Price

	if pos.Quantity.IsZero() {
		pos.Status = domain.PositionStatusClosed
		pos.UnrealizedPnL = decimal.Zero
		pos.ClosedAt = &now
		if err := tx.Positions().Update(ctx, pos); err != nil {
			return domain.Position{}, err
		}

		s.logger.InfoContext(ctx, "position closed",
			slog.String("position_id", pos.ID),
			slog.String("asset_id", pos.AssetID),
			slog.String("realized_pnl", realized.String()),
		)

		// Overshoot: the remainder opens a new position in the opposite
		// direction at the trade price.
		if excess := params.Quantity.Sub(closingQty); excess.IsPositive() {
			flipped := s.newPosition(p.ID, params, tradeDir, excess, now)
			if err := tx.Positions().Create(ctx, flipped); err != nil {
				return domain.Position{}, err
			}
			return flipped, nil
		}
		return pos, nil
	}

	pos.UnrealizedPnL = valuation.Mark(pos.Side, pos.Quantity, pos.AvgEntryPrice, pos.CurrentPrice)
	if err := tx.Positions().Update(ctx, pos); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

func (s *Service) newPosition(portfolioID string, params TradeParams, side domain.PositionSide, quantity decimal.Decimal, now time.Time) domain.Position {
	assetName := params.AssetName
	if assetName == "" {
		assetName = params.AssetID
	}
	return domain.Position{
		ID:            uuid.New().String(),
		PortfolioID:   portfolioID,
		AssetID:       params.AssetID,
		AssetName:     assetName,
		MarketID:      params.MarketID,
		Side:          side,
		Quantity:      quantity,
		AvgEntryPrice: params.Price,
		CurrentPrice:  params.Price,
		UnrealizedPnL: decimal.Zero,
		Status:        domain.PositionStatusOpen,
		OpenedAt:      now,
	}
}

// UpdatePositionPrices re-marks every open position whose asset appears in
// prices and recomputes the portfolio aggregates. Positions without a quote
// keep their previous mark. An empty map is a no-op returning the portfolio
// unchanged.
func (s *Service) UpdatePositionPrices(ctx context.Context, portfolioID string, prices map[string]decimal.Decimal) (domain.Portfolio, error) {
	if len(prices) == 0 {
		return s.GetPortfolio(ctx, portfolioID)
	}

	var out domain.Portfolio
	err := s.withRetry(ctx, "update_position_prices", func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, portfolioID)
		if err != nil {
			return err
		}

		open, err := tx.Positions().ListOpen(ctx, p.ID)
		if err != nil {
			return err
		}

		for i := range open {
			price, ok := prices[open[i].AssetID]
			if !ok {
				continue
			}
			open[i].CurrentPrice = price
			open[i].UnrealizedPnL = valuation.Mark(open[i].Side, open[i].Quantity, open[i].AvgEntryPrice, price)
			if err := tx.Positions().Update(ctx, open[i]); err != nil {
				return err
			}

			s.logger.DebugContext(ctx, "position marked",
				slog.String("position_id", open[i].ID),
				slog.String("asset_id", open[i].AssetID),
				slog.String("price", price.String()),
				slog.String("unrealized_pnl", open[i].UnrealizedPnL.String()),
			)
		}

		summary := valuation.Summarize(p, open)
		p.TotalValue = summary.TotalValue
		p.UnrealizedPnL = summary.UnrealizedPnL
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "portfolio marked",
			slog.String("portfolio_id", p.ID),
			slog.String("total_value", p.TotalValue.String()),
			slog.String("unrealized_pnl", p.UnrealizedPnL.String()),
		)
		out = p
		return nil
	})
	if err != nil {
		return domain.Portfolio{}, err
	}
	return out, nil
}

// GetPortfolioSummary returns the aggregate view of one portfolio with its
// open positions and transaction count. It never mutates state.
func (s *Service) GetPortfolioSummary(ctx context.Context, portfolioID string) (valuation.Summary, error) {
	var out valuation.Summary
	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().Get(ctx, portfolioID)
		if err != nil {
			return err
		}
		open, err := tx.Positions().ListOpen(ctx, p.ID)
		if err != nil {
			return err
		}
		count, err := tx.Transactions().CountByPortfolio(ctx, p.ID)
		if err != nil {
			return err
		}

		out = valuation.Summarize(p, open)
		out.Transactions = count
		return nil
	})
	if err != nil {
		return valuation.Summary{}, err
	}
	return out, nil
}

// SettlementParams describes a market resolution for RecordSettlement.
type SettlementParams struct {
	PortfolioID string
	AssetID     string
	Payout      decimal.Decimal // settlement price per unit, >= 0
	Notes       string
}

// RecordSettlement settles the open position for an asset at its resolution
// payout: realized P&L is booked at the payout price, the position closes,
// and the liquidation value is credited to cash with a settlement
// transaction.
func (s *Service) RecordSettlement(ctx context.Context, params SettlementParams) (domain.Position, domain.Transaction, error) {
	if params.Payout.IsNegative() {
		return domain.Position{}, domain.Transaction{}, fmt.Errorf("ledger: settlement payout %s: %w", params.Payout, domain.ErrInvalidPrice)
	}

	var (
		outPos domain.Position
		outTxn domain.Transaction
	)
	err := s.withRetry(ctx, "record_settlement", func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, params.PortfolioID)
		if err != nil {
			return err
		}
		pos, err := tx.Positions().GetOpen(ctx, p.ID, params.AssetID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		realized := valuation.Realize(pos.Side, pos.AvgEntryPrice, pos.Quantity, params.Payout)
		// Liquidation value: entry collateral plus the realized outcome. For
		// a long this equals quantity*payout.
		credit := pos.Quantity.Mul(pos.AvgEntryPrice).Add(realized)

		p.RealizedPnL = p.RealizedPnL.Add(realized)
		p.CashBalance = p.CashBalance.Add(credit)

		settledQty := pos.Quantity
		pos.Quantity = decimal.Zero
		pos.CurrentPrice = params.Payout
		pos.UnrealizedPnL = decimal.Zero
		pos.Status = domain.PositionStatusClosed
		pos.ClosedAt = &now
		if err := tx.Positions().Update(ctx, pos); err != nil {
			return err
		}

		if err := s.refreshAggregates(ctx, tx, &p); err != nil {
			return err
		}
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		txn := domain.Transaction{
			ID:          uuid.New().String(),
			PortfolioID: p.ID,
			PositionID:  pos.ID,
			Type:        domain.TransactionTypeSettlement,
			AssetID:     params.AssetID,
			Quantity:    settledQty,
			Price:       params.Payout,
			Amount:      credit,
			Fee:         decimal.Zero,
			Notes:       params.Notes,
			CreatedAt:   now,
		}
		if err := tx.Transactions().Append(ctx, txn); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "position settled",
			slog.String("portfolio_id", p.ID),
			slog.String("position_id", pos.ID),
			slog.String("asset_id", params.AssetID),
			slog.String("payout", params.Payout.String()),
			slog.String("realized_pnl", realized.String()),
		)

		outPos = pos
		outTxn = txn
		return nil
	})
	if err != nil {
		return domain.Position{}, domain.Transaction{}, err
	}
	return outPos, outTxn, nil
}

// ListTransactions returns the audit trail for a portfolio in chronological
// order.
func (s *Service) ListTransactions(ctx context.Context, portfolioID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		if _, err := tx.Portfolios().Get(ctx, portfolioID); err != nil {
			return err
		}
		txns, err := tx.Transactions().ListByPortfolio(ctx, portfolioID, opts)
		if err != nil {
			return err
		}
		out = txns
		return nil
	})
	return out, err
}

// ResetPortfolio deletes all positions and transactions of a portfolio and
// zeroes its balances. The trading history is gone for good; this exists for
// paper-trading restarts.
func (s *Service) ResetPortfolio(ctx context.Context, portfolioID string) (domain.Portfolio, error) {
	var out domain.Portfolio
	err := s.withRetry(ctx, "reset_portfolio", func(tx domain.LedgerTx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, portfolioID)
		if err != nil {
			return err
		}

		if err := tx.Transactions().DeleteByPortfolio(ctx, p.ID); err != nil {
			return err
		}
		if err := tx.Positions().DeleteByPortfolio(ctx, p.ID); err != nil {
			return err
		}

		p.CashBalance = decimal.Zero
		p.TotalValue = decimal.Zero
		p.UnrealizedPnL = decimal.Zero
		p.RealizedPnL = decimal.Zero
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "portfolio reset",
			slog.String("portfolio_id", p.ID),
			slog.String("name", p.Name),
		)
		out = p
		return nil
	})
	if err != nil {
		return domain.Portfolio{}, err
	}
	return out, nil
}

// refreshAggregates recomputes the derived portfolio fields from the open
// positions so the total-value invariant holds after every mutation.
func (s *Service) refreshAggregates(ctx context.Context, tx domain.LedgerTx, p *domain.Portfolio) error {
	open, err := tx.Positions().ListOpen(ctx, p.ID)
	if err != nil {
		return err
	}
	summary := valuation.Summarize(*p, open)
	p.TotalValue = summary.TotalValue
	p.UnrealizedPnL = summary.UnrealizedPnL
	return nil
}

func cashTransaction(portfolioID string, txnType domain.TransactionType, amount decimal.Decimal, notes string) domain.Transaction {
	return domain.Transaction{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		Type:        txnType,
		AssetID:     domain.CashAssetID,
		Quantity:    amount,
		Price:       decimal.NewFromInt(1),
		Amount:      amount,
		Fee:         decimal.Zero,
		Notes:       notes,
		CreatedAt:   time.Now().UTC(),
	}
}
