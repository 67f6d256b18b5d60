/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/app"
	"github.com/paisavault/ledger-service/internal/domain"
	"github.com/paisavault/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service *app.Service
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service) *LedgerHandlers {
	return &LedgerHandlers{service: service}
}

// RecordExpenseHandler handles requests to record a spend.
func (h *LedgerHandlers) RecordExpenseHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		AccountID   *uuid.UUID `json:"account_id,omitempty"`
		Amount      int64      `json:"amount"`
		Category    string     `json:"category"`
		Subcategory *string    `json:"subcategory,omitempty"`
		Merchant    *string    `json:"merchant,omitempty"`
		PaymentMode string     `json:"payment_mode"`
		Description string     `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=record_expense outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	in := app.ExpenseInput{
		UserID:      userID,
		Amount:      req.Amount,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Merchant:    req.Merchant,
		PaymentMode: req.PaymentMode,
		Description: req.Description,
	}
	if req.AccountID != nil {
		in.AccountID = *req.AccountID
	}

	result, err := h.service.RecordExpense(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "record_expense", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// RecordIncomeHandler handles requests to add income.
func (h *LedgerHandlers) RecordIncomeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		AccountID *uuid.UUID `json:"account_id,omitempty"`
		Amount    int64      `json:"amount"`
		Source    string     `json:"source"`
		Category  string     `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=record_income outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	in := app.IncomeInput{
		UserID:   userID,
		Amount:   req.Amount,
		Source:   req.Source,
		Category: req.Category,
	}
	if req.AccountID != nil {
		in.AccountID = *req.AccountID
	}

	result, err := h.service.RecordIncome(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "record_income", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// TransferHandler handles requests for peer-to-peer transfers.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		ReceiverID         *uuid.UUID `json:"receiver_id,omitempty"`
		ReceiverIdentifier string     `json:"receiver_identifier,omitempty"`
		Amount             int64      `json:"amount"`
		Note               string     `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	in := app.TransferInput{
		SenderID:           userID,
		ReceiverIdentifier: req.ReceiverIdentifier,
		Amount:             req.Amount,
		Note:               req.Note,
	}
	if req.ReceiverID != nil {
		in.ReceiverID = *req.ReceiverID
	}

	log.Printf("level=info component=api endpoint=transfer outcome=accepted sender_id=%s amount=%d", userID, req.Amount)

	result, err := h.service.Transfer(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "transfer", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ListAccountsHandler returns every account the caller owns.
func (h *LedgerHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	accounts, err := h.service.Accounts(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "list_accounts", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// ListEntriesHandler returns the ledger for one of the caller's accounts.
func (h *LedgerHandlers) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		http.Error(w, "Invalid account ID", http.StatusBadRequest)
		return
	}

	entries, err := h.service.AccountEntries(r.Context(), userID, accountID)
	if err != nil {
		h.writeServiceError(w, "list_entries", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// LinkBankAccountHandler creates an additional BANK account.
func (h *LedgerHandlers) LinkBankAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	account, err := h.service.LinkBankAccount(r.Context(), userID, req.Name)
	if err != nil {
		h.writeServiceError(w, "link_bank_account", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// SetBudgetHandler creates or replaces a monthly category budget.
func (h *LedgerHandlers) SetBudgetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		Category              string `json:"category"`
		Year                  int    `json:"year"`
		Month                 int    `json:"month"`
		LimitAmount           int64  `json:"limit_amount"`
		AlertThresholdPercent int    `json:"alert_threshold_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	budget, err := h.service.SetBudget(r.Context(), app.BudgetInput{
		UserID:                userID,
		Category:              req.Category,
		Year:                  req.Year,
		Month:                 time.Month(req.Month),
		LimitAmount:           req.LimitAmount,
		AlertThresholdPercent: req.AlertThresholdPercent,
	})
	if err != nil {
		h.writeServiceError(w, "set_budget", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, budget)
}

// BudgetStatusHandler reports recomputed spend-to-date for one budget.
func (h *LedgerHandlers) BudgetStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	category := chi.URLParam(r, "category")
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))

	// Zero year/month means the current period; the service fills it in.
	report, err := h.service.BudgetStatus(r.Context(), userID, category, year, time.Month(month))
	if err != nil {
		h.writeServiceError(w, "budget_status", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// BuyHandler handles investment purchases.
func (h *LedgerHandlers) BuyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		AssetID   uuid.UUID  `json:"asset_id"`
		AccountID *uuid.UUID `json:"account_id,omitempty"`
		Amount    int64      `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	in := app.BuyInput{UserID: userID, AssetID: req.AssetID, Amount: req.Amount}
	if req.AccountID != nil {
		in.AccountID = *req.AccountID
	}
	result, err := h.service.Buy(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "buy", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// SellHandler handles investment sales.
func (h *LedgerHandlers) SellHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var req struct {
		AssetID   uuid.UUID       `json:"asset_id"`
		AccountID *uuid.UUID      `json:"account_id,omitempty"`
		Units     decimal.Decimal `json:"units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	in := app.SellInput{UserID: userID, AssetID: req.AssetID, Units: req.Units}
	if req.AccountID != nil {
		in.AccountID = *req.AccountID
	}
	result, err := h.service.Sell(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "sell", userID, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// PortfolioHandler returns the caller's holdings at live prices.
func (h *LedgerHandlers) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	portfolio, err := h.service.Portfolio(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "portfolio", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, portfolio)
}

// InvestmentHistoryHandler returns the caller's buy/sell records.
func (h *LedgerHandlers) InvestmentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	history, err := h.service.InvestmentHistory(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "investment_history", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// NetWorthHandler computes the caller's net worth. Passing ?cached=true
// serves the last snapshot instead of recomputing.
func (h *LedgerHandlers) NetWorthHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	var (
		snapshot *domain.ValuationSnapshot
		err      error
	)
	if r.URL.Query().Get("cached") == "true" {
		snapshot, err = h.service.CachedNetWorth(r.Context(), userID)
	} else {
		snapshot, err = h.service.NetWorth(r.Context(), userID)
	}
	if err != nil {
		h.writeServiceError(w, "net_worth", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// FraudFlagsHandler lists flags raised against the caller's expenses.
func (h *LedgerHandlers) FraudFlagsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return
	}

	flags, err := h.service.FraudFlags(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "fraud_flags", userID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, flags)
}

// MarketOverviewHandler lists every active asset with live prices.
func (h *LedgerHandlers) MarketOverviewHandler(w http.ResponseWriter, r *http.Request) {
	assets, err := h.service.MarketOverview(r.Context())
	if err != nil {
		h.writeServiceError(w, "market_overview", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assets)
}

// PriceHistoryHandler returns recent price samples for one asset.
func (h *LedgerHandlers) PriceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	assetID, err := uuid.Parse(chi.URLParam(r, "assetID"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.service.PriceHistory(r.Context(), assetID, limit)
	if err != nil {
		h.writeServiceError(w, "price_history", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// RegisterUserHandler provisions a user with their wallet. Internal only.
func (h *LedgerHandlers) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username       string `json:"username"`
		Email          string `json:"email"`
		Mobile         string `json:"mobile"`
		OpeningBalance int64  `json:"opening_balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	user, wallet, err := h.service.RegisterUser(r.Context(), app.RegisterInput{
		Username:       req.Username,
		Email:          req.Email,
		Mobile:         req.Mobile,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		h.writeServiceError(w, "register_user", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user, "wallet": wallet})
}

// CreateAssetHandler lists a new simulated asset. Internal only.
func (h *LedgerHandlers) CreateAssetHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol            string          `json:"symbol"`
		Name              string          `json:"name"`
		Type              string          `json:"type"`
		InitialPrice      decimal.Decimal `json:"initial_price"`
		VolatilityPercent float64         `json:"volatility_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	asset, err := h.service.CreateAsset(r.Context(), uuid.Nil, app.AssetInput{
		Symbol:            req.Symbol,
		Name:              req.Name,
		Type:              domain.AssetType(req.Type),
		InitialPrice:      req.InitialPrice,
		VolatilityPercent: req.VolatilityPercent,
	})
	if err != nil {
		h.writeServiceError(w, "create_asset", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, asset)
}

// MarketTickHandler forces one market tick. Internal only; the scheduler
// drives the regular cadence.
func (h *LedgerHandlers) MarketTickHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Tick(r.Context())
	if err != nil {
		h.writeServiceError(w, "market_tick", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// OverridePriceHandler sets an asset's price directly. Internal only.
func (h *LedgerHandlers) OverridePriceHandler(w http.ResponseWriter, r *http.Request) {
	assetID, err := uuid.Parse(chi.URLParam(r, "assetID"))
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.OverridePrice(r.Context(), uuid.Nil, assetID, req.Price); err != nil {
		h.writeServiceError(w, "override_price", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReviewFraudFlagHandler moves a flag to CLEARED or CONFIRMED. Internal only.
func (h *LedgerHandlers) ReviewFraudFlagHandler(w http.ResponseWriter, r *http.Request) {
	flagID, err := uuid.Parse(chi.URLParam(r, "flagID"))
	if err != nil {
		http.Error(w, "Invalid flag ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.ReviewFraudFlag(r.Context(), uuid.Nil, flagID, domain.FlagStatus(req.Status)); err != nil {
		h.writeServiceError(w, "review_fraud_flag", uuid.Nil, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service errors to HTTP responses.
func (h *LedgerHandlers) writeServiceError(w http.ResponseWriter, endpoint string, userID uuid.UUID, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrInsufficientUnits):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, app.ErrSelfTransfer), errors.Is(err, app.ErrRecipientInactive), errors.Is(err, app.ErrAssetInactive):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRecipientNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrAssetNotFound),
		errors.Is(err, store.ErrHoldingNotFound),
		errors.Is(err, store.ErrBudgetNotFound),
		errors.Is(err, store.ErrFlagNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAccountInactive):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrForbiddenAccount):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrMarketBusy):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, app.ErrTransferRateLimited):
		h.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s user_id=%s err=%v", endpoint, userID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
