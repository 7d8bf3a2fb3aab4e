// Package server exposes the ledger over a JSON HTTP API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/server/handler"
	"github.com/polyledger/ledgerd/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Portfolios *handler.PortfolioHandler
	Funds      *handler.FundsHandler
	Trades     *handler.TradeHandler
	Prices     *handler.PriceHandler
}

// Server is the headless HTTP API server for the ledger daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (rate limit, auth, logging, CORS) wired up.
// limiter may be nil, which disables API rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required for the probe itself; the auth
	// middleware applies to the whole chain, so deployments that set an API
	// key must probe with it).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Portfolio lifecycle and reporting.
	mux.HandleFunc("POST /api/portfolios", handlers.Portfolios.EnsurePortfolio)
	mux.HandleFunc("GET /api/portfolios/{id}", handlers.Portfolios.GetPortfolio)
	mux.HandleFunc("GET /api/portfolios/{id}/summary", handlers.Portfolios.GetSummary)
	mux.HandleFunc("GET /api/portfolios/{id}/transactions", handlers.Portfolios.ListTransactions)
	mux.HandleFunc("POST /api/portfolios/{id}/reset", handlers.Portfolios.ResetPortfolio)

	// Cash movements.
	mux.HandleFunc("POST /api/portfolios/{id}/deposits", handlers.Funds.Deposit)
	mux.HandleFunc("POST /api/portfolios/{id}/withdrawals", handlers.Funds.Withdraw)

	// Trades and settlements.
	mux.HandleFunc("POST /api/portfolios/{id}/trades", handlers.Trades.RecordTrade)
	mux.HandleFunc("POST /api/portfolios/{id}/settlements", handlers.Trades.RecordSettlement)

	// Mark-to-market.
	mux.HandleFunc("POST /api/portfolios/{id}/prices", handlers.Prices.UpdatePrices)
	mux.HandleFunc("PUT /api/prices/{asset_id}", handlers.Prices.SetQuote)

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when a limiter is available.
	if limiter != nil {
		h = middleware.RateLimit(limiter, 60, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Handler returns the fully-wired HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
