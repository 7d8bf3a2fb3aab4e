package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
	"github.com/polyledger/ledgerd/internal/store/memory"
	"github.com/polyledger/ledgerd/internal/valuation"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// newTestEnv creates a Service backed by an in-memory ledger store.
func newTestEnv(t *testing.T) (*ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return ledger.NewService(store), store
}

// seedPortfolio creates the standard test portfolio with the given starting
// cash.
func seedPortfolio(t *testing.T, svc *ledger.Service, cash string) domain.Portfolio {
	t.Helper()
	ctx := context.Background()

	p, err := svc.EnsurePortfolio(ctx, ledger.PortfolioParams{
		Name:       "acct1",
		MarketType: domain.MarketTypePrediction,
		Exchange:   "polymarket",
	})
	if err != nil {
		t.Fatalf("ensure portfolio: %v", err)
	}
	if cash != "" {
		if _, err := svc.AddFunds(ctx, p.ID, d(cash), ""); err != nil {
			t.Fatalf("seed funds: %v", err)
		}
	}
	return p
}

func buy(t *testing.T, svc *ledger.Service, portfolioID, asset, qty, price, fee string) (domain.Position, domain.Transaction) {
	t.Helper()
	pos, txn, err := svc.RecordTrade(context.Background(), ledger.TradeParams{
		PortfolioID: portfolioID,
		Type:        domain.TransactionTypeBuy,
		AssetID:     asset,
		Quantity:    d(qty),
		Price:       d(price),
		Fee:         d(fee),
	})
	if err != nil {
		t.Fatalf("buy %s x%s @%s: %v", asset, qty, price, err)
	}
	return pos, txn
}

func sell(t *testing.T, svc *ledger.Service, portfolioID, asset, qty, price, fee string) (domain.Position, domain.Transaction) {
	t.Helper()
	pos, txn, err := svc.RecordTrade(context.Background(), ledger.TradeParams{
		PortfolioID: portfolioID,
		Type:        domain.TransactionTypeSell,
		AssetID:     asset,
		Quantity:    d(qty),
		Price:       d(price),
		Fee:         d(fee),
	})
	if err != nil {
		t.Fatalf("sell %s x%s @%s: %v", asset, qty, price, err)
	}
	return pos, txn
}

func getPortfolio(t *testing.T, svc *ledger.Service, id string) domain.Portfolio {
	t.Helper()
	p, err := svc.GetPortfolio(context.Background(), id)
	if err != nil {
		t.Fatalf("get portfolio: %v", err)
	}
	return p
}

func TestEnsurePortfolioIdempotent(t *testing.T) {
	svc, _ := newTestEnv(t)
	ctx := context.Background()

	params := ledger.PortfolioParams{
		Name:       "acct1",
		MarketType: domain.MarketTypePrediction,
		Exchange:   "polymarket",
	}

	first, err := svc.EnsurePortfolio(ctx, params)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected portfolio id")
	}
	if !first.CashBalance.IsZero() || !first.TotalValue.IsZero() {
		t.Errorf("new portfolio should have zero balances, got cash=%s total=%s",
			first.CashBalance, first.TotalValue)
	}

	if _, err := svc.AddFunds(ctx, first.ID, d("50"), ""); err != nil {
		t.Fatalf("add funds: %v", err)
	}

	second, err := svc.EnsurePortfolio(ctx, params)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second ensure returned different portfolio: %s vs %s", second.ID, first.ID)
	}
	if !second.CashBalance.Equal(d("50")) {
		t.Errorf("second ensure must not reset state, cash = %s", second.CashBalance)
	}
}

func TestEnsurePortfolioRejectsBadInput(t *testing.T) {
	svc, _ := newTestEnv(t)
	ctx := context.Background()

	if _, err := svc.EnsurePortfolio(ctx, ledger.PortfolioParams{MarketType: domain.MarketTypeCrypto}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := svc.EnsurePortfolio(ctx, ledger.PortfolioParams{Name: "x", MarketType: "bond"}); err == nil {
		t.Error("expected error for unknown market type")
	}
}

func TestAddFundsInvalidAmount(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "")

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.AddFunds(context.Background(), p.ID, d(amount), "")
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("AddFunds(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
	}

	if got := getPortfolio(t, svc, p.ID); !got.CashBalance.IsZero() {
		t.Errorf("failed deposits must not change cash, got %s", got.CashBalance)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "250.75")
	ctx := context.Background()

	if _, err := svc.AddFunds(ctx, p.ID, d("99.25"), ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.WithdrawFunds(ctx, p.ID, d("99.25"), ""); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	got := getPortfolio(t, svc, p.ID)
	if !got.CashBalance.Equal(d("250.75")) {
		t.Errorf("cash = %s, want 250.75", got.CashBalance)
	}
	if !got.TotalValue.Equal(d("250.75")) {
		t.Errorf("total value = %s, want 250.75", got.TotalValue)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "100")

	_, err := svc.WithdrawFunds(context.Background(), p.ID, d("100.01"), "")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	if got := getPortfolio(t, svc, p.ID); !got.CashBalance.Equal(d("100")) {
		t.Errorf("failed withdrawal must not change cash, got %s", got.CashBalance)
	}
}

func TestRecordTradeScenario(t *testing.T) {
	// ensure_portfolio -> add_funds(1000.00) -> buy 100 tok_yes @0.65 fee 0.50.
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000.00")

	pos, txn := buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0.50")

	if pos.Side != domain.SideLong {
		t.Errorf("side = %s, want long", pos.Side)
	}
	if !pos.Quantity.Equal(d("100")) {
		t.Errorf("quantity = %s, want 100", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.65")) {
		t.Errorf("avg entry = %s, want 0.65", pos.AvgEntryPrice)
	}
	if !pos.IsOpen() {
		t.Error("position should be open")
	}

	if txn.Type != domain.TransactionTypeBuy || !txn.Amount.Equal(d("65")) || !txn.Fee.Equal(d("0.50")) {
		t.Errorf("unexpected transaction: %+v", txn)
	}

	got := getPortfolio(t, svc, p.ID)
	if !got.CashBalance.Equal(d("934.50")) {
		t.Errorf("cash = %s, want 934.50", got.CashBalance)
	}
	// 934.50 cash + 100 * 0.65 position value.
	if !got.TotalValue.Equal(d("999.50")) {
		t.Errorf("total value = %s, want 999.50", got.TotalValue)
	}
}

func TestRecordTradeValidation(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")
	ctx := context.Background()

	tests := []struct {
		name    string
		params  ledger.TradeParams
		wantErr error
	}{
		{
			name: "zero quantity",
			params: ledger.TradeParams{
				PortfolioID: p.ID, Type: domain.TransactionTypeBuy,
				AssetID: "tok", Quantity: d("0"), Price: d("0.5"),
			},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name: "negative quantity",
			params: ledger.TradeParams{
				PortfolioID: p.ID, Type: domain.TransactionTypeSell,
				AssetID: "tok", Quantity: d("-1"), Price: d("0.5"),
			},
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name: "negative price",
			params: ledger.TradeParams{
				PortfolioID: p.ID, Type: domain.TransactionTypeBuy,
				AssetID: "tok", Quantity: d("1"), Price: d("-0.5"),
			},
			wantErr: domain.ErrInvalidPrice,
		},
		{
			name: "negative fee",
			params: ledger.TradeParams{
				PortfolioID: p.ID, Type: domain.TransactionTypeBuy,
				AssetID: "tok", Quantity: d("1"), Price: d("0.5"), Fee: d("-0.1"),
			},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.RecordTrade(ctx, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// A deposit is rejected outright.
	_, _, err := svc.RecordTrade(ctx, ledger.TradeParams{
		PortfolioID: p.ID, Type: domain.TransactionTypeDeposit,
		AssetID: "tok", Quantity: d("1"), Price: d("0.5"),
	})
	if err == nil {
		t.Error("expected error for non-trade transaction type")
	}

	got := getPortfolio(t, svc, p.ID)
	if !got.CashBalance.Equal(d("1000")) {
		t.Errorf("failed trades must not change cash, got %s", got.CashBalance)
	}
	summary, err := svc.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.OpenPositions != 0 {
		t.Errorf("failed trades must not open positions, got %d", summary.OpenPositions)
	}
}

func TestBuyInsufficientFunds(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "64")

	// 100 * 0.65 + 0.50 = 65.50 > 64.
	_, _, err := svc.RecordTrade(context.Background(), ledger.TradeParams{
		PortfolioID: p.ID, Type: domain.TransactionTypeBuy,
		AssetID: "tok_yes", Quantity: d("100"), Price: d("0.65"), Fee: d("0.50"),
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	if got := getPortfolio(t, svc, p.ID); !got.CashBalance.Equal(d("64")) {
		t.Errorf("failed buy must not change cash, got %s", got.CashBalance)
	}
}

func TestSameDirectionBuyWeightedAverage(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")

	buy(t, svc, p.ID, "tok_yes", "100", "0.60", "0")
	pos, _ := buy(t, svc, p.ID, "tok_yes", "50", "0.75", "0")

	if !pos.Quantity.Equal(d("150")) {
		t.Errorf("quantity = %s, want 150", pos.Quantity)
	}
	// (100*0.60 + 50*0.75) / 150 = 0.65.
	if !pos.AvgEntryPrice.Equal(d("0.65")) {
		t.Errorf("avg entry = %s, want 0.65", pos.AvgEntryPrice)
	}
}

func TestSellPartialKeepsAvgEntry(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")

	buy(t, svc, p.ID, "tok_yes", "100", "0.60", "0")
	pos, _ := sell(t, svc, p.ID, "tok_yes", "40", "0.80", "0")

	if !pos.IsOpen() {
		t.Fatal("partial sell must leave the position open")
	}
	if !pos.Quantity.Equal(d("60")) {
		t.Errorf("quantity = %s, want 60", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.60")) {
		t.Errorf("avg entry must not change on a reduction, got %s", pos.AvgEntryPrice)
	}

	got := getPortfolio(t, svc, p.ID)
	// Realized: 40 * (0.80 - 0.60) = 8.
	if !got.RealizedPnL.Equal(d("8")) {
		t.Errorf("realized pnl = %s, want 8", got.RealizedPnL)
	}
	// Cash: 1000 - 60 + 32 = 972.
	if !got.CashBalance.Equal(d("972")) {
		t.Errorf("cash = %s, want 972", got.CashBalance)
	}
}

func TestSellExactOffsetClosesPosition(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")

	buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0")
	pos, _ := sell(t, svc, p.ID, "tok_yes", "100", "0.80", "0")

	if pos.IsOpen() {
		t.Error("exact offset must close the position")
	}
	if !pos.Quantity.IsZero() {
		t.Errorf("quantity = %s, want 0", pos.Quantity)
	}
	if pos.ClosedAt == nil {
		t.Error("closed position must have a close timestamp")
	}

	got := getPortfolio(t, svc, p.ID)
	// Realized: 100 * (0.80 - 0.65) = 15.
	if !got.RealizedPnL.Equal(d("15")) {
		t.Errorf("realized pnl = %s, want 15", got.RealizedPnL)
	}
	if !got.UnrealizedPnL.IsZero() {
		t.Errorf("unrealized pnl = %s, want 0", got.UnrealizedPnL)
	}
	// Cash: 1000 - 65 + 80 = 1015 == total value (no open positions).
	if !got.CashBalance.Equal(d("1015")) || !got.TotalValue.Equal(d("1015")) {
		t.Errorf("cash/total = %s/%s, want 1015/1015", got.CashBalance, got.TotalValue)
	}
}

func TestSellOvershootFlipsToShort(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")

	long, _ := buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0")
	flipped, _ := sell(t, svc, p.ID, "tok_yes", "140", "0.70", "0")

	if flipped.ID == long.ID {
		t.Fatal("overshoot must open a fresh position record")
	}
	if flipped.Side != domain.SideShort {
		t.Errorf("side = %s, want short", flipped.Side)
	}
	if !flipped.Quantity.Equal(d("40")) {
		t.Errorf("quantity = %s, want 40", flipped.Quantity)
	}
	if !flipped.AvgEntryPrice.Equal(d("0.70")) {
		t.Errorf("avg entry = %s, want the trade price 0.70", flipped.AvgEntryPrice)
	}

	got := getPortfolio(t, svc, p.ID)
	// Realized on the closed long: 100 * (0.70 - 0.65) = 5.
	if !got.RealizedPnL.Equal(d("5")) {
		t.Errorf("realized pnl = %s, want 5", got.RealizedPnL)
	}

	summary, err := svc.GetPortfolioSummary(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.OpenPositions != 1 {
		t.Errorf("open positions = %d, want 1", summary.OpenPositions)
	}
}

func TestSellWithNoPositionOpensShort(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")

	pos, _ := sell(t, svc, p.ID, "tok_no", "50", "0.30", "0")

	if pos.Side != domain.SideShort {
		t.Errorf("side = %s, want short", pos.Side)
	}
	if !pos.Quantity.Equal(d("50")) || !pos.AvgEntryPrice.Equal(d("0.30")) {
		t.Errorf("position = %s @ %s, want 50 @ 0.30", pos.Quantity, pos.AvgEntryPrice)
	}

	// Sell proceeds: 1000 + 15 = 1015.
	if got := getPortfolio(t, svc, p.ID); !got.CashBalance.Equal(d("1015")) {
		t.Errorf("cash = %s, want 1015", got.CashBalance)
	}
}

func TestBuyAgainstShortReduces(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")

	sell(t, svc, p.ID, "tok_no", "50", "0.40", "0")
	pos, _ := buy(t, svc, p.ID, "tok_no", "20", "0.25", "0")

	if pos.Side != domain.SideShort || !pos.IsOpen() {
		t.Fatalf("expected reduced open short, got %s/%s", pos.Side, pos.Status)
	}
	if !pos.Quantity.Equal(d("30")) {
		t.Errorf("quantity = %s, want 30", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(d("0.40")) {
		t.Errorf("avg entry = %s, want 0.40", pos.AvgEntryPrice)
	}

	// Short realized: 20 * (0.40 - 0.25) = 3.
	if got := getPortfolio(t, svc, p.ID); !got.RealizedPnL.Equal(d("3")) {
		t.Errorf("realized pnl = %s, want 3", got.RealizedPnL)
	}
}

func TestUpdatePositionPrices(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")
	ctx := context.Background()

	buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0")
	buy(t, svc, p.ID, "tok_other", "10", "2.00", "0")

	updated, err := svc.UpdatePositionPrices(ctx, p.ID, map[string]decimal.Decimal{
		"tok_yes": d("0.72"),
		"unknown": d("9.99"), // no open position, ignored
	})
	if err != nil {
		t.Fatalf("update prices: %v", err)
	}

	// tok_yes unrealized: 100 * (0.72 - 0.65) = 7; tok_other unchanged at 0.
	if !updated.UnrealizedPnL.Equal(d("7")) {
		t.Errorf("unrealized pnl = %s, want 7", updated.UnrealizedPnL)
	}
	// Cash 915 + tok_yes 72 + tok_other 20 = 1007.
	if !updated.TotalValue.Equal(d("1007")) {
		t.Errorf("total value = %s, want 1007", updated.TotalValue)
	}

	summary, err := svc.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, ps := range summary.Positions {
		if ps.AssetID == "tok_other" && !ps.CurrentPrice.Equal(d("2.00")) {
			t.Errorf("unquoted position mark changed to %s", ps.CurrentPrice)
		}
	}
}

func TestUpdatePositionPricesEmptyMapIsNoOp(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "500")

	buy(t, svc, p.ID, "tok_yes", "10", "0.50", "0")
	before := getPortfolio(t, svc, p.ID)

	after, err := svc.UpdatePositionPrices(context.Background(), p.ID, nil)
	if err != nil {
		t.Fatalf("update prices: %v", err)
	}
	if !after.TotalValue.Equal(before.TotalValue) || !after.UnrealizedPnL.Equal(before.UnrealizedPnL) {
		t.Errorf("empty price map must not change the portfolio: %+v vs %+v", after, before)
	}
}

func TestGetPortfolioSummaryIsReadOnly(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")
	ctx := context.Background()

	buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0.50")
	before := getPortfolio(t, svc, p.ID)

	summary, err := svc.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.OpenPositions != 1 || len(summary.Positions) != 1 {
		t.Errorf("expected one open position, got %d", summary.OpenPositions)
	}
	if summary.Transactions != 2 { // deposit + buy
		t.Errorf("transactions = %d, want 2", summary.Transactions)
	}
	if !summary.TotalPnL.Equal(summary.UnrealizedPnL.Add(summary.RealizedPnL)) {
		t.Error("total pnl must equal unrealized + realized")
	}

	after := getPortfolio(t, svc, p.ID)
	if !after.CashBalance.Equal(before.CashBalance) ||
		!after.TotalValue.Equal(before.TotalValue) ||
		!after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("summary must never mutate state")
	}
}

func TestRecordSettlement(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")
	ctx := context.Background()

	buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0")

	pos, txn, err := svc.RecordSettlement(ctx, ledger.SettlementParams{
		PortfolioID: p.ID,
		AssetID:     "tok_yes",
		Payout:      d("1"),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if pos.IsOpen() || !pos.Quantity.IsZero() {
		t.Errorf("settled position must be closed with zero quantity, got %s/%s", pos.Status, pos.Quantity)
	}
	if txn.Type != domain.TransactionTypeSettlement || !txn.Amount.Equal(d("100")) {
		t.Errorf("unexpected settlement transaction: %+v", txn)
	}

	got := getPortfolio(t, svc, p.ID)
	// Realized: 100 * (1 - 0.65) = 35; cash: 1000 - 65 + 100 = 1035.
	if !got.RealizedPnL.Equal(d("35")) {
		t.Errorf("realized pnl = %s, want 35", got.RealizedPnL)
	}
	if !got.CashBalance.Equal(d("1035")) || !got.TotalValue.Equal(d("1035")) {
		t.Errorf("cash/total = %s/%s, want 1035/1035", got.CashBalance, got.TotalValue)
	}

	_, _, err = svc.RecordSettlement(ctx, ledger.SettlementParams{
		PortfolioID: p.ID, AssetID: "tok_yes", Payout: d("1"),
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("settling twice: error = %v, want ErrNotFound", err)
	}
}

func TestResetPortfolio(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")
	ctx := context.Background()

	buy(t, svc, p.ID, "tok_yes", "100", "0.65", "0")

	got, err := svc.ResetPortfolio(ctx, p.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !got.CashBalance.IsZero() || !got.TotalValue.IsZero() || !got.RealizedPnL.IsZero() {
		t.Errorf("reset portfolio must have zero balances: %+v", got)
	}

	summary, err := svc.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.OpenPositions != 0 || summary.Transactions != 0 {
		t.Errorf("reset must clear positions and transactions, got %d/%d",
			summary.OpenPositions, summary.Transactions)
	}
}

// TestTransactionLogReplay verifies that replaying the recorded transaction
// log reproduces the final cash balance, position quantity, average entry
// price, and realized P&L exactly.
func TestTransactionLogReplay(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "1000")
	ctx := context.Background()

	buy(t, svc, p.ID, "tok_yes", "100", "0.60", "0.25")
	buy(t, svc, p.ID, "tok_yes", "50", "0.75", "0.10")
	sell(t, svc, p.ID, "tok_yes", "30", "0.80", "0.05")
	if _, err := svc.WithdrawFunds(ctx, p.ID, d("100"), ""); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	txns, err := svc.ListTransactions(ctx, p.ID, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 5 {
		t.Fatalf("expected 5 transactions, got %d", len(txns))
	}

	// Replay.
	cash := decimal.Zero
	qty := decimal.Zero
	avg := decimal.Zero
	realized := decimal.Zero
	for _, txn := range txns {
		switch txn.Type {
		case domain.TransactionTypeDeposit:
			cash = cash.Add(txn.Amount)
		case domain.TransactionTypeWithdrawal:
			cash = cash.Sub(txn.Amount)
		case domain.TransactionTypeBuy:
			cash = cash.Sub(txn.Amount.Add(txn.Fee))
			avg = valuation.WeightedAverageEntry(qty, avg, txn.Quantity, txn.Price, valuation.DefaultScale)
			qty = qty.Add(txn.Quantity)
		case domain.TransactionTypeSell:
			cash = cash.Add(txn.Amount.Sub(txn.Fee))
			realized = realized.Add(valuation.Realize(domain.SideLong, avg, txn.Quantity, txn.Price))
			qty = qty.Sub(txn.Quantity)
		}
	}

	got := getPortfolio(t, svc, p.ID)
	if !got.CashBalance.Equal(cash) {
		t.Errorf("replayed cash = %s, stored %s", cash, got.CashBalance)
	}
	if !got.RealizedPnL.Equal(realized) {
		t.Errorf("replayed realized = %s, stored %s", realized, got.RealizedPnL)
	}

	summary, err := svc.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Positions) != 1 {
		t.Fatalf("expected one open position, got %d", len(summary.Positions))
	}
	if !summary.Positions[0].Quantity.Equal(qty) {
		t.Errorf("replayed quantity = %s, stored %s", qty, summary.Positions[0].Quantity)
	}
	if !summary.Positions[0].AvgEntryPrice.Equal(avg) {
		t.Errorf("replayed avg entry = %s, stored %s", avg, summary.Positions[0].AvgEntryPrice)
	}
}

// TestConcurrentSameAssetTrades runs many buys of the same asset from
// concurrent goroutines; the store serializes units of work, so no update is
// lost and the final quantity is the exact sum.
func TestConcurrentSameAssetTrades(t *testing.T) {
	svc, _ := newTestEnv(t)
	p := seedPortfolio(t, svc, "10000")
	ctx := context.Background()

	const workers = 8
	const tradesPerWorker = 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < tradesPerWorker; i++ {
				_, _, err := svc.RecordTrade(ctx, ledger.TradeParams{
					PortfolioID: p.ID,
					Type:        domain.TransactionTypeBuy,
					AssetID:     "tok_yes",
					Quantity:    d("1"),
					Price:       d("0.50"),
				})
				if err != nil {
					t.Errorf("concurrent trade: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	summary, err := svc.GetPortfolioSummary(ctx, p.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Positions) != 1 {
		t.Fatalf("expected one open position, got %d", len(summary.Positions))
	}
	want := decimal.NewFromInt(workers * tradesPerWorker)
	if !summary.Positions[0].Quantity.Equal(want) {
		t.Errorf("quantity = %s, want %s (lost update)", summary.Positions[0].Quantity, want)
	}

	got := getPortfolio(t, svc, p.ID)
	spent := want.Mul(d("0.50"))
	if !got.CashBalance.Equal(d("10000").Sub(spent)) {
		t.Errorf("cash = %s, want %s", got.CashBalance, d("10000").Sub(spent))
	}
}
