package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashAssetID is the asset identifier recorded on pure cash transactions
// (deposits and withdrawals).
const CashAssetID = "CASH"

// TransactionType classifies a ledger-affecting event.
type TransactionType string

const (
	TransactionTypeBuy        TransactionType = "buy"
	TransactionTypeSell       TransactionType = "sell"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeFee        TransactionType = "fee"
	TransactionTypeSettlement TransactionType = "settlement"
)

// Transaction is the immutable audit record of one ledger-affecting event.
// Transactions are append-only: the full sequence for a portfolio lets an
// independent observer reconstruct cash balance and position quantity and
// cost basis by replay.
type Transaction struct {
	ID          string
	PortfolioID string
	PositionID  string // empty for pure cash events

	Type     TransactionType
	AssetID  string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Amount   decimal.Decimal // quantity * price
	Fee      decimal.Decimal

	ExternalID      string // exchange transaction id, optional
	ExternalOrderID string // originating order id, optional
	Notes           string

	CreatedAt time.Time
}
