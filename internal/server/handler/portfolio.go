package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// PortfolioHandler serves portfolio lifecycle and reporting endpoints.
type PortfolioHandler struct {
	svc    *ledger.Service
	logger *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and
// logger.
func NewPortfolioHandler(svc *ledger.Service, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{svc: svc, logger: logger}
}

type ensurePortfolioRequest struct {
	Name          string `json:"name"`
	MarketType    string `json:"market_type"`
	Exchange      string `json:"exchange"`
	AccountID     string `json:"account_id"`
	WalletAddress string `json:"wallet_address"`
	Currency      string `json:"currency"`
}

// EnsurePortfolio returns the portfolio with the given name, creating it if it
// does not exist yet.
// POST /api/portfolios
func (h *PortfolioHandler) EnsurePortfolio(w http.ResponseWriter, r *http.Request) {
	var req ensurePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p, err := h.svc.EnsurePortfolio(r.Context(), ledger.PortfolioParams{
		Name:          req.Name,
		MarketType:    domain.MarketType(req.MarketType),
		Exchange:      req.Exchange,
		AccountID:     req.AccountID,
		WalletAddress: req.WalletAddress,
		Currency:      req.Currency,
	})
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: ensure portfolio failed",
			slog.String("name", req.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetPortfolio returns one portfolio by ID.
// GET /api/portfolios/{id}
func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	p, err := h.svc.GetPortfolio(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get portfolio failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// GetSummary returns the portfolio summary with per-position breakdown.
// GET /api/portfolios/{id}/summary
func (h *PortfolioHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	summary, err := h.svc.GetPortfolioSummary(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: summary failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListTransactions returns the portfolio's audit trail in chronological order.
// GET /api/portfolios/{id}/transactions?limit=50&offset=0&since=...&until=...
func (h *PortfolioHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	txns, err := h.svc.ListTransactions(r.Context(), id, parseListOpts(r))
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list transactions failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	if txns == nil {
		txns = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// ResetPortfolio wipes the portfolio's positions, transactions, and balances.
// POST /api/portfolios/{id}/reset
func (h *PortfolioHandler) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	p, err := h.svc.ResetPortfolio(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: reset portfolio failed",
			slog.String("portfolio_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to reset portfolio")
		return
	}

	h.logger.InfoContext(r.Context(), "portfolio reset via api", slog.String("portfolio_id", id))
	writeJSON(w, http.StatusOK, p)
}
