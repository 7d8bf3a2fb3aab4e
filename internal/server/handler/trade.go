package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// TradeHandler serves trade and settlement recording endpoints.
type TradeHandler struct {
	svc    *ledger.Service
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(svc *ledger.Service, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{svc: svc, logger: logger}
}

type tradeRequest struct {
	Type      string          `json:"type"` // "buy" or "sell"
	AssetID   string          `json:"asset_id"`
	AssetName string          `json:"asset_name"`
	MarketID  string          `json:"market_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Fee       decimal.Decimal `json:"fee"`
	TradeID   string          `json:"trade_id"`
	OrderID   string          `json:"order_id"`
	Notes     string          `json:"notes"`
}

type tradeResponse struct {
	Position    domain.Position    `json:"position"`
	Transaction domain.Transaction `json:"transaction"`
}

// RecordTrade applies one fill to the portfolio.
// POST /api/portfolios/{id}/trades
func (h *TradeHandler) RecordTrade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "asset_id is required")
		return
	}

	pos, txn, err := h.svc.RecordTrade(r.Context(), ledger.TradeParams{
		PortfolioID: id,
		Type:        domain.TransactionType(req.Type),
		AssetID:     req.AssetID,
		AssetName:   req.AssetName,
		MarketID:    req.MarketID,
		Quantity:    req.Quantity,
		Price:       req.Price,
		Fee:         req.Fee,
		ExternalID:  req.TradeID,
		OrderID:     req.OrderID,
		Notes:       req.Notes,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: record trade failed",
			slog.String("portfolio_id", id),
			slog.String("asset_id", req.AssetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, tradeResponse{Position: pos, Transaction: txn})
}

type settlementRequest struct {
	AssetID string          `json:"asset_id"`
	Payout  decimal.Decimal `json:"payout"`
	Notes   string          `json:"notes"`
}

// RecordSettlement settles the open position for an asset at its resolution
// payout.
// POST /api/portfolios/{id}/settlements
func (h *TradeHandler) RecordSettlement(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req settlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "asset_id is required")
		return
	}

	pos, txn, err := h.svc.RecordSettlement(r.Context(), ledger.SettlementParams{
		PortfolioID: id,
		AssetID:     req.AssetID,
		Payout:      req.Payout,
		Notes:       req.Notes,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: settlement failed",
			slog.String("portfolio_id", id),
			slog.String("asset_id", req.AssetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record settlement")
		return
	}

	writeJSON(w, http.StatusCreated, tradeResponse{Position: pos, Transaction: txn})
}
