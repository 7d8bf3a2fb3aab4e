package valuation_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/valuation"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestWeightedAverageEntry(t *testing.T) {
	tests := []struct {
		name        string
		existingQty string
		existingAvg string
		tradeQty    string
		tradePrice  string
		want        string
	}{
		{"equal lots", "100", "0.60", "100", "0.70", "0.65"},
		{"uneven lots", "100", "0.65", "50", "0.50", "0.6"},
		{"first lot dominates", "1000", "0.10", "1", "0.90", "0.10079920"},
		{"identical price", "30", "2.50", "70", "2.50", "2.5"},
		{"repeating division", "1", "1", "2", "2", "1.66666667"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := valuation.WeightedAverageEntry(d(tt.existingQty), d(tt.existingAvg), d(tt.tradeQty), d(tt.tradePrice), valuation.DefaultScale)
			if !got.Equal(d(tt.want)) {
				t.Errorf("WeightedAverageEntry() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWeightedAverageEntryMatchesFormula(t *testing.T) {
	// (q1*p1 + q2*p2) / (q1+q2) for two same-direction buys.
	q1, p1 := d("100"), d("0.65")
	q2, p2 := d("40"), d("0.72")

	got := valuation.WeightedAverageEntry(q1, p1, q2, p2, valuation.DefaultScale)
	want := q1.Mul(p1).Add(q2.Mul(p2)).Div(q1.Add(q2)).RoundBank(valuation.DefaultScale)

	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestWeightedAverageEntryRoundsHalfEven(t *testing.T) {
	// Exact mean 0.150000005: a tie at scale 8. Banker's rounding keeps the
	// even digit, so the result is 0.15000000 rather than 0.15000001.
	got := valuation.WeightedAverageEntry(d("1"), d("0.1"), d("1"), d("0.20000001"), 8)
	if !got.Equal(d("0.15000000")) {
		t.Errorf("half-even rounding: got %s, want 0.15000000", got)
	}
}

func TestRealize(t *testing.T) {
	tests := []struct {
		name         string
		side         domain.PositionSide
		avgEntry     string
		closingQty   string
		closingPrice string
		want         string
	}{
		{"long gain", domain.SideLong, "0.65", "100", "0.80", "15"},
		{"long loss", domain.SideLong, "0.65", "100", "0.50", "-15"},
		{"short gain", domain.SideShort, "0.40", "50", "0.10", "15"},
		{"short loss", domain.SideShort, "0.40", "50", "0.70", "-15"},
		{"flat", domain.SideLong, "1.25", "8", "1.25", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := valuation.Realize(tt.side, d(tt.avgEntry), d(tt.closingQty), d(tt.closingPrice))
			if !got.Equal(d(tt.want)) {
				t.Errorf("Realize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMark(t *testing.T) {
	tests := []struct {
		name         string
		side         domain.PositionSide
		quantity     string
		avgEntry     string
		currentPrice string
		want         string
	}{
		{"long up", domain.SideLong, "100", "0.65", "0.72", "7"},
		{"long down", domain.SideLong, "100", "0.65", "0.60", "-5"},
		{"short up", domain.SideShort, "200", "0.30", "0.20", "20"},
		{"short down", domain.SideShort, "200", "0.30", "0.45", "-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := valuation.Mark(tt.side, d(tt.quantity), d(tt.avgEntry), d(tt.currentPrice))
			if !got.Equal(d(tt.want)) {
				t.Errorf("Mark() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMarketValueLongEqualsQuantityTimesMark(t *testing.T) {
	pos := domain.Position{
		Side:          domain.SideLong,
		Quantity:      d("100"),
		AvgEntryPrice: d("0.65"),
		CurrentPrice:  d("0.72"),
	}
	pos.UnrealizedPnL = valuation.Mark(pos.Side, pos.Quantity, pos.AvgEntryPrice, pos.CurrentPrice)

	got := valuation.MarketValue(pos)
	want := pos.Quantity.Mul(pos.CurrentPrice)
	if !got.Equal(want) {
		t.Errorf("MarketValue() = %s, want %s", got, want)
	}
}

func TestMarketValueUnmarkedPositionValuesAtEntry(t *testing.T) {
	pos := domain.Position{
		Side:          domain.SideLong,
		Quantity:      d("40"),
		AvgEntryPrice: d("1.10"),
	}
	if got := valuation.MarketValue(pos); !got.Equal(d("44")) {
		t.Errorf("MarketValue() = %s, want 44", got)
	}
}

func TestSummarize(t *testing.T) {
	p := domain.Portfolio{
		ID:          "pf-1",
		Name:        "acct1",
		MarketType:  domain.MarketTypePrediction,
		Exchange:    "polymarket",
		Currency:    "USD",
		CashBalance: d("934.50"),
		RealizedPnL: d("12.00"),
	}

	long := domain.Position{
		ID:            "pos-1",
		AssetID:       "tok_yes",
		Side:          domain.SideLong,
		Quantity:      d("100"),
		AvgEntryPrice: d("0.65"),
		CurrentPrice:  d("0.70"),
		Status:        domain.PositionStatusOpen,
	}
	long.UnrealizedPnL = valuation.Mark(long.Side, long.Quantity, long.AvgEntryPrice, long.CurrentPrice)

	short := domain.Position{
		ID:            "pos-2",
		AssetID:       "tok_no",
		Side:          domain.SideShort,
		Quantity:      d("50"),
		AvgEntryPrice: d("0.40"),
		CurrentPrice:  d("0.30"),
		Status:        domain.PositionStatusOpen,
	}
	short.UnrealizedPnL = valuation.Mark(short.Side, short.Quantity, short.AvgEntryPrice, short.CurrentPrice)

	s := valuation.Summarize(p, []domain.Position{long, short})

	// long value 100*0.70 = 70, short value 50*0.40 + 5 = 25.
	if !s.TotalValue.Equal(d("1029.50")) {
		t.Errorf("TotalValue = %s, want 1029.50", s.TotalValue)
	}
	if !s.UnrealizedPnL.Equal(d("10")) {
		t.Errorf("UnrealizedPnL = %s, want 10", s.UnrealizedPnL)
	}
	if !s.TotalPnL.Equal(d("22")) {
		t.Errorf("TotalPnL = %s, want 22", s.TotalPnL)
	}
	if s.OpenPositions != 2 || len(s.Positions) != 2 {
		t.Errorf("expected 2 open positions, got %d/%d", s.OpenPositions, len(s.Positions))
	}

	// Invariant: total_value == cash + sum(market value).
	sum := s.CashBalance
	for _, ps := range s.Positions {
		sum = sum.Add(ps.MarketValue)
	}
	if !s.TotalValue.Equal(sum) {
		t.Errorf("total value invariant broken: %s != %s", s.TotalValue, sum)
	}
}

func TestSummarizeEmptyPortfolio(t *testing.T) {
	p := domain.Portfolio{ID: "pf-1", CashBalance: d("100")}

	s := valuation.Summarize(p, nil)
	if !s.TotalValue.Equal(d("100")) {
		t.Errorf("TotalValue = %s, want 100", s.TotalValue)
	}
	if !s.UnrealizedPnL.IsZero() {
		t.Errorf("UnrealizedPnL = %s, want 0", s.UnrealizedPnL)
	}
	if len(s.Positions) != 0 {
		t.Errorf("expected no positions, got %d", len(s.Positions))
	}
}
