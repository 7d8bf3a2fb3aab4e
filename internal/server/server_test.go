package server_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/ledger"
	"github.com/polyledger/ledgerd/internal/server"
	"github.com/polyledger/ledgerd/internal/server/handler"
	"github.com/polyledger/ledgerd/internal/store/memory"
)

func newTestServer(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()

	svc := ledger.NewService(memory.NewStore())
	logger := slog.Default()

	srv := server.NewServer(
		server.Config{Port: 0, APIKey: apiKey},
		server.Handlers{
			Health:     handler.NewHealthHandler(logger),
			Portfolios: handler.NewPortfolioHandler(svc, logger),
			Funds:      handler.NewFundsHandler(svc, logger),
			Trades:     handler.NewTradeHandler(svc, logger),
			Prices:     handler.NewPriceHandler(svc, nil, logger),
		},
		nil,
		logger,
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func ensureViaAPI(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	var p struct {
		ID string `json:"id"`
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/portfolios", map[string]string{
		"name":        "api-test",
		"market_type": "prediction",
		"exchange":    "polymarket",
	}, &p)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ensure status = %d", resp.StatusCode)
	}
	if p.ID == "" {
		t.Fatal("ensure returned no id")
	}
	return p.ID
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, "")

	var body map[string]any
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/health", nil, &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestFullTradeFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, "")
	id := ensureViaAPI(t, ts)
	base := ts.URL + "/api/portfolios/" + id

	resp := doJSON(t, http.MethodPost, base+"/deposits", map[string]any{"amount": "1000.00"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("deposit status = %d", resp.StatusCode)
	}

	var trade struct {
		Position struct {
			Quantity      decimal.Decimal `json:"quantity"`
			AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
		} `json:"position"`
	}
	resp = doJSON(t, http.MethodPost, base+"/trades", map[string]any{
		"type": "buy", "asset_id": "tok_yes",
		"quantity": "100", "price": "0.65", "fee": "0.50",
	}, &trade)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("trade status = %d", resp.StatusCode)
	}
	if !trade.Position.Quantity.Equal(d("100")) || !trade.Position.AvgEntryPrice.Equal(d("0.65")) {
		t.Errorf("position = %+v", trade.Position)
	}

	resp = doJSON(t, http.MethodPost, base+"/prices", map[string]string{"tok_yes": "0.70"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("prices status = %d", resp.StatusCode)
	}

	var summary struct {
		CashBalance   decimal.Decimal `json:"cash_balance"`
		TotalValue    decimal.Decimal `json:"total_value"`
		UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
		OpenPositions int             `json:"open_positions_count"`
		Transactions  int64           `json:"total_transactions"`
	}
	resp = doJSON(t, http.MethodGet, base+"/summary", nil, &summary)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d", resp.StatusCode)
	}
	if !summary.CashBalance.Equal(d("934.50")) {
		t.Errorf("cash = %s, want 934.50", summary.CashBalance)
	}
	if !summary.UnrealizedPnL.Equal(d("5")) {
		t.Errorf("unrealized = %s, want 5", summary.UnrealizedPnL)
	}
	if summary.OpenPositions != 1 || summary.Transactions != 2 {
		t.Errorf("counts = %d/%d", summary.OpenPositions, summary.Transactions)
	}

	var txns struct {
		Transactions []struct {
			Type string `json:"type"`
		} `json:"transactions"`
	}
	resp = doJSON(t, http.MethodGet, base+"/transactions", nil, &txns)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transactions status = %d", resp.StatusCode)
	}
	if len(txns.Transactions) != 2 || txns.Transactions[0].Type != "deposit" || txns.Transactions[1].Type != "buy" {
		t.Errorf("transactions = %+v", txns.Transactions)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, "")
	id := ensureViaAPI(t, ts)
	base := ts.URL + "/api/portfolios/" + id

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"unknown portfolio", http.MethodGet, ts.URL + "/api/portfolios/nope", nil, http.StatusNotFound},
		{"zero deposit", http.MethodPost, base + "/deposits", map[string]any{"amount": "0"}, http.StatusBadRequest},
		{"overdraft", http.MethodPost, base + "/withdrawals", map[string]any{"amount": "5"}, http.StatusUnprocessableEntity},
		{"unfunded buy", http.MethodPost, base + "/trades",
			map[string]any{"type": "buy", "asset_id": "x", "quantity": "10", "price": "1"},
			http.StatusUnprocessableEntity},
		{"zero quantity", http.MethodPost, base + "/trades",
			map[string]any{"type": "buy", "asset_id": "x", "quantity": "0", "price": "1"},
			http.StatusBadRequest},
		{"missing asset", http.MethodPost, base + "/trades",
			map[string]any{"type": "buy", "quantity": "1", "price": "1"},
			http.StatusBadRequest},
		{"settle nothing", http.MethodPost, base + "/settlements",
			map[string]any{"asset_id": "x", "payout": "1"},
			http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, tt.method, tt.url, tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, "sekret")

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want 401", resp.StatusCode)
	}

	for _, header := range []struct{ name, value string }{
		{"Authorization", "Bearer sekret"},
		{"X-API-Key", "sekret"},
	} {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
		req.Header.Set(header.name, header.value)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get with %s: %v", header.name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", header.name, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with wrong key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", resp.StatusCode)
	}
}

func TestEnsureIsIdempotentOverHTTP(t *testing.T) {
	ts := newTestServer(t, "")
	first := ensureViaAPI(t, ts)
	second := ensureViaAPI(t, ts)
	if first != second {
		t.Errorf("ensure returned different ids: %s vs %s", first, second)
	}
}

func TestSetQuoteWithoutCache(t *testing.T) {
	ts := newTestServer(t, "")
	resp := doJSON(t, http.MethodPut, ts.URL+"/api/prices/tok_yes", map[string]any{"price": "0.5"}, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}
