/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger-service performs. Business logic depends only on this
 * interface; the PostgreSQL implementation backs production and the
 * in-memory implementation backs tests, so every test run gets its own
 * isolated store handle instead of sharing process-wide state.
 *
 * Multi-step money movements are single repository methods (ApplyExpense,
 * ApplyTransfer, ApplyInvestmentBuy, ...) so each implementation can make
 * the balance read, the balance write and the appended ledger entry one
 * atomic unit. A failure inside any of them leaves stored state unchanged.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For entity identifiers.
 * - github.com/shopspring/decimal: For unit quantities and asset prices.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAssetNotFound     = errors.New("market asset not found")
	ErrHoldingNotFound   = errors.New("holding not found")
	ErrBudgetNotFound    = errors.New("budget not found")
	ErrSnapshotNotFound  = errors.New("valuation snapshot not found")
	ErrFlagNotFound      = errors.New("fraud flag not found")
)

// EntryMutation describes one balance change to apply to an account.
// Amount is the positive magnitude; the sign recorded on the ledger entry
// follows from the entry kind.
type EntryMutation struct {
	AccountID     uuid.UUID
	Kind          domain.EntryKind
	Amount        int64 // positive, in paise
	ReferenceType *string
	ReferenceID   *uuid.UUID
	At            time.Time
}

// BuyMutation is the atomic unit for an investment purchase: the cash-leg
// debit plus the holding state after the buy plus the appended investment
// transaction. The caller computes the post-buy holding under the asset
// lock; the repository persists it all-or-nothing.
type BuyMutation struct {
	SourceAccountID uuid.UUID
	Amount          int64 // in paise
	HoldingID       uuid.UUID
	UserID          uuid.UUID
	AssetID         uuid.UUID
	UnitsAfter      decimal.Decimal
	AvgPriceAfter   decimal.Decimal
	InvestedAfter   int64
	CreateHolding   bool
	Txn             domain.InvestmentTransaction
	At              time.Time
}

// SellMutation is the atomic unit for an investment sale: the cash-leg
// credit plus the reduced (or deleted) holding plus the appended
// investment transaction.
type SellMutation struct {
	TargetAccountID uuid.UUID
	Amount          int64 // sale proceeds, in paise
	UserID          uuid.UUID
	AssetID         uuid.UUID
	UnitsAfter      decimal.Decimal
	InvestedAfter   int64
	RemoveHolding   bool
	Txn             domain.InvestmentTransaction
	At              time.Time
}

// Repository defines the set of methods for interacting with the store.
type Repository interface {
	// Users (directory for transfer recipient resolution)
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// Accounts
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)

	// Ledger
	ApplyLedgerEntry(ctx context.Context, m EntryMutation) (*domain.LedgerEntry, error)
	ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error)

	// Spending records (each paired with one ledger entry)
	ApplyExpense(ctx context.Context, expense *domain.Expense) (*domain.LedgerEntry, error)
	ApplyIncome(ctx context.Context, income *domain.Income) (*domain.LedgerEntry, error)
	SumExpenses(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (int64, error)
	AverageExpenseAmount(ctx context.Context, userID uuid.UUID) (float64, error)
	CountUserTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// Transfers (debit + credit + transfer record, all-or-nothing)
	ApplyTransfer(ctx context.Context, transfer *domain.Transfer) (debit, credit *domain.LedgerEntry, err error)

	// Budgets
	UpsertBudget(ctx context.Context, budget *domain.Budget) error
	GetBudget(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (*domain.Budget, error)

	// Market assets
	CreateAsset(ctx context.Context, asset *domain.MarketAsset) error
	GetAsset(ctx context.Context, assetID uuid.UUID) (*domain.MarketAsset, error)
	ListActiveAssets(ctx context.Context) ([]domain.MarketAsset, error)
	ApplyPriceTick(ctx context.Context, assetID uuid.UUID, newPrice decimal.Decimal, changePercent float64, at time.Time) error
	ListPriceHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]domain.PriceSample, error)
	RevalueHoldings(ctx context.Context) error

	// Holdings and investment transactions
	GetHolding(ctx context.Context, userID, assetID uuid.UUID) (*domain.Holding, error)
	ListHoldingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error)
	ApplyInvestmentBuy(ctx context.Context, m BuyMutation) (*domain.LedgerEntry, error)
	ApplyInvestmentSell(ctx context.Context, m SellMutation) (*domain.LedgerEntry, error)
	ListInvestmentTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.InvestmentTransaction, error)

	// Fraud configuration and flags
	CreateFraudRule(ctx context.Context, rule *domain.FraudRule) error
	ListActiveFraudRules(ctx context.Context) ([]domain.FraudRule, error)
	CreateFraudFlag(ctx context.Context, flag *domain.FraudFlag) error
	UpdateFraudFlagStatus(ctx context.Context, flagID uuid.UUID, status domain.FlagStatus) error
	ListFraudFlagsByUser(ctx context.Context, userID uuid.UUID) ([]domain.FraudFlag, error)

	// Valuation cache (read optimization, never authoritative)
	UpsertValuationSnapshot(ctx context.Context, snapshot *domain.ValuationSnapshot) error
	GetValuationSnapshot(ctx context.Context, userID uuid.UUID) (*domain.ValuationSnapshot, error)

	// Audit log (append-only)
	AppendAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}
