// Package v1 is the HTTP adapter over the tillbook engine. Handlers stay
// thin: they decode, resolve identity, call a service and map errors.
package v1

import (
    "log/slog"
    "net/http"
    "time"

    chi "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"

    "github.com/tinoosan/tillbook/internal/service/account"
    "github.com/tinoosan/tillbook/internal/service/journal"
    "github.com/tinoosan/tillbook/internal/settings"
)

// Deps are the services behind the routes.
type Deps struct {
    Journal   journal.Service
    Settings  settings.Provider
    Accounts  account.Service
    Inventory Allocator
    EOD       Closer
    Gate      Gate
    Trade     Trader
    Ready     ReadyChecker
    // AuthSecret switches identity from headers to HS256 bearer tokens.
    AuthSecret string
    Location   *time.Location
}

// Server wires handlers and middleware using Chi.
type Server struct {
    Deps
    log *slog.Logger
    rt  *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(deps Deps, logger *slog.Logger) *Server {
    if logger == nil { logger = slog.Default() }
    if deps.Location == nil { deps.Location = time.UTC }
    r := chi.NewRouter()
    r.Use(chimw.RequestID)
    r.Use(requestLogger(logger))
    r.Use(recoverer(logger))
    r.Use(metricsMiddleware)

    s := &Server{Deps: deps, log: logger, rt: r}
    s.routes()
    return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
    // Unauthenticated
    s.rt.Get("/healthz", s.healthz)
    s.rt.Get("/readyz", s.readyz)
    s.rt.Handle("/metrics", metricsHandler())

    s.rt.Route("/v1", func(r chi.Router) {
        r.Use(identity(s.AuthSecret))
        // Trade saga
        r.With(requireJSON).Post("/sales", s.postSale)
        r.With(requireJSON).Post("/purchases", s.postPurchase)
        // Ledger
        r.With(requireJSON).Post("/cash-adjustments", s.postCashAdjustment)
        r.Get("/reports/trial-balance", s.trialBalance)
        r.Get("/accounts", s.listAccounts)
        r.Get("/accounts/{code}", s.getAccount)
        r.Get("/accounts/{code}/balance", s.accountBalance)
        r.Get("/accounts/{code}/history", s.accountHistory)
        // Inventory
        r.With(requireJSON).Post("/inventory/allocations", s.postAllocation)
        r.Get("/inventory/{productID}/lots", s.listLots)
        // End of day
        r.Get("/eod/today", s.eodToday)
        r.Get("/eod/history", s.eodHistory)
        r.With(requireJSON).Post("/eod/complete", s.completeEOD)
        r.Get("/trading-day/status", s.tradingDayStatus)
    })
}
