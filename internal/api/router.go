/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Market reads are public: prices are simulated and shared by everyone.
	r.Get("/market", h.MarketOverviewHandler)
	r.Get("/market/{assetID}/history", h.PriceHistoryHandler)

	// Group routes that require an authenticated user.
	r.Group(func(r chi.Router) {
		r.Use(UserIDMiddleware())

		r.Post("/expenses", h.RecordExpenseHandler)
		r.Post("/income", h.RecordIncomeHandler)
		r.Post("/transfers", h.TransferHandler)

		r.Get("/accounts", h.ListAccountsHandler)
		r.Post("/accounts/bank", h.LinkBankAccountHandler)
		r.Get("/accounts/{accountID}/entries", h.ListEntriesHandler)

		r.Put("/budgets", h.SetBudgetHandler)
		r.Get("/budgets/{category}", h.BudgetStatusHandler)

		r.Post("/investments/buy", h.BuyHandler)
		r.Post("/investments/sell", h.SellHandler)
		r.Get("/investments/portfolio", h.PortfolioHandler)
		r.Get("/investments/history", h.InvestmentHistoryHandler)

		r.Get("/net-worth", h.NetWorthHandler)
		r.Get("/fraud-flags", h.FraudFlagsHandler)
	})

	// Internal operator endpoints for server-to-server calls.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/internal/users", h.RegisterUserHandler)
		r.Post("/internal/market/assets", h.CreateAssetHandler)
		r.Post("/internal/market/tick", h.MarketTickHandler)
		r.Put("/internal/market/assets/{assetID}/price", h.OverridePriceHandler)
		r.Post("/internal/fraud-flags/{flagID}/review", h.ReviewFraudFlagHandler)
	})

	return r
}
