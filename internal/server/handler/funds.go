package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// FundsHandler serves cash deposit and withdrawal endpoints.
type FundsHandler struct {
	svc    *ledger.Service
	logger *slog.Logger
}

// NewFundsHandler creates a FundsHandler with the given service and logger.
func NewFundsHandler(svc *ledger.Service, logger *slog.Logger) *FundsHandler {
	return &FundsHandler{svc: svc, logger: logger}
}

type fundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes"`
}

// Deposit credits cash to the portfolio.
// POST /api/portfolios/{id}/deposits
func (h *FundsHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, true)
}

// Withdraw debits cash from the portfolio.
// POST /api/portfolios/{id}/withdrawals
func (h *FundsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, false)
}

func (h *FundsHandler) move(w http.ResponseWriter, r *http.Request, deposit bool) {
	id := pathParam(r, "id")

	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var txn domain.Transaction
	var err error
	if deposit {
		txn, err = h.svc.AddFunds(r.Context(), id, req.Amount, req.Notes)
	} else {
		txn, err = h.svc.WithdrawFunds(r.Context(), id, req.Amount, req.Notes)
	}
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cash movement failed",
			slog.String("portfolio_id", id),
			slog.Bool("deposit", deposit),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to move funds")
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}
