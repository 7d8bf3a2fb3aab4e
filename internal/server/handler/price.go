package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// PriceHandler serves mark-to-market endpoints: pushing quotes into the price
// cache and applying price maps to a portfolio.
type PriceHandler struct {
	svc    *ledger.Service
	cache  domain.PriceCache // nil when no cache is configured
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler. cache may be nil.
func NewPriceHandler(svc *ledger.Service, cache domain.PriceCache, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{svc: svc, cache: cache, logger: logger}
}

// UpdatePrices re-marks the portfolio's open positions with the given price
// map. Assets without an open position are ignored.
// POST /api/portfolios/{id}/prices
func (h *PriceHandler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var prices map[string]decimal.Decimal
	if err := json.NewDecoder(r.Body).Decode(&prices); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	for assetID, price := range prices {
		if price.IsNegative() {
			writeError(w, http.StatusBadRequest, "negative price for "+assetID)
			return
		}
	}

	p, err := h.svc.UpdatePositionPrices(r.Context(), id, prices)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: update prices failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update prices")
		return
	}

	// Keep the shared cache in sync so the refresher sees the same quotes.
	if h.cache != nil {
		now := time.Now().UTC()
		for assetID, price := range prices {
			if err := h.cache.SetPrice(r.Context(), assetID, price, now); err != nil {
				h.logger.WarnContext(r.Context(), "price cache write failed",
					slog.String("asset_id", assetID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	writeJSON(w, http.StatusOK, p)
}

type quoteRequest struct {
	Price decimal.Decimal `json:"price"`
}

// SetQuote stores one quote in the price cache for the refresher to pick up.
// PUT /api/prices/{asset_id}
func (h *PriceHandler) SetQuote(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, "price cache not configured")
		return
	}

	assetID := pathParam(r, "asset_id")
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must be >= 0")
		return
	}

	if err := h.cache.SetPrice(r.Context(), assetID, req.Price, time.Now().UTC()); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: set quote failed",
			slog.String("asset_id", assetID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store quote")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"asset_id": assetID,
		"price":    req.Price.String(),
	})
}
