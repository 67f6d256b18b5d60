/**
 * @description
 * This file provides an in-memory implementation of the Repository
 * interface. It backs unit tests and local development runs: every caller
 * constructs its own instance, so tests are isolated and can run in
 * parallel without sharing state.
 *
 * A single mutex guards the whole store. Each Apply* method validates
 * before mutating, so a rejected operation leaves state untouched and the
 * method as a whole is atomic, matching the transactional guarantees of
 * the PostgreSQL implementation.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
)

// MemoryRepository is a thread-safe, in-memory Repository implementation.
type MemoryRepository struct {
	mu sync.Mutex

	users     map[uuid.UUID]domain.User
	accounts  map[uuid.UUID]domain.Account
	entries   []domain.LedgerEntry
	expenses  []domain.Expense
	incomes   []domain.Income
	transfers []domain.Transfer
	budgets   map[string]domain.Budget
	assets    map[uuid.UUID]domain.MarketAsset
	samples   []domain.PriceSample
	holdings  map[string]domain.Holding
	invTxns   []domain.InvestmentTransaction
	rules     map[uuid.UUID]domain.FraudRule
	flags     map[uuid.UUID]domain.FraudFlag
	snapshots map[uuid.UUID]domain.ValuationSnapshot
	audit     []domain.AuditEntry
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[uuid.UUID]domain.User),
		accounts:  make(map[uuid.UUID]domain.Account),
		budgets:   make(map[string]domain.Budget),
		assets:    make(map[uuid.UUID]domain.MarketAsset),
		holdings:  make(map[string]domain.Holding),
		rules:     make(map[uuid.UUID]domain.FraudRule),
		flags:     make(map[uuid.UUID]domain.FraudFlag),
		snapshots: make(map[uuid.UUID]domain.ValuationSnapshot),
	}
}

func budgetKey(userID uuid.UUID, category string, year int, month time.Month) string {
	return userID.String() + "|" + strings.ToLower(category) + "|" + time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func holdingKey(userID, assetID uuid.UUID) string {
	return userID.String() + "|" + assetID.String()
}

// --- Users ---

func (m *MemoryRepository) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = *user
	return nil
}

func (m *MemoryRepository) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (m *MemoryRepository) FindUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(identifier))
	for _, user := range m.users {
		if strings.ToLower(user.Username) == needle ||
			strings.ToLower(user.Email) == needle ||
			user.Mobile == strings.TrimSpace(identifier) {
			u := user
			return &u, nil
		}
	}
	return nil, ErrUserNotFound
}

// --- Accounts ---

func (m *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = *account
	return nil
}

func (m *MemoryRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (m *MemoryRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.UserID == userID && account.Type == domain.AccountWallet {
			a := account
			return &a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryRepository) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Account
	for _, account := range m.accounts {
		if account.UserID == userID {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- Ledger ---

// applyEntryLocked validates and applies one balance mutation. Callers must
// hold m.mu; validation happens before any write so a rejection leaves the
// store untouched.
func (m *MemoryRepository) applyEntryLocked(em EntryMutation) (*domain.LedgerEntry, error) {
	account, ok := m.accounts[em.AccountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if !account.Active {
		return nil, ErrAccountInactive
	}

	signed := em.Amount
	if em.Kind.Debit() {
		if account.Balance < em.Amount {
			return nil, ErrInsufficientFunds
		}
		signed = -em.Amount
	}

	account.Balance += signed
	account.UpdatedAt = em.At
	m.accounts[em.AccountID] = account

	entry := domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     em.AccountID,
		Kind:          em.Kind,
		Amount:        signed,
		BalanceAfter:  account.Balance,
		ReferenceType: em.ReferenceType,
		ReferenceID:   em.ReferenceID,
		CreatedAt:     em.At,
	}
	m.entries = append(m.entries, entry)
	return &entry, nil
}

func (m *MemoryRepository) ApplyLedgerEntry(ctx context.Context, em EntryMutation) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyEntryLocked(em)
}

func (m *MemoryRepository) ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.LedgerEntry
	for _, entry := range m.entries {
		if entry.AccountID == accountID {
			result = append(result, entry)
		}
	}
	return result, nil
}

// --- Spending ---

func (m *MemoryRepository) ApplyExpense(ctx context.Context, expense *domain.Expense) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refType := "expense"
	entry, err := m.applyEntryLocked(EntryMutation{
		AccountID:     expense.AccountID,
		Kind:          domain.EntryExpense,
		Amount:        expense.Amount,
		ReferenceType: &refType,
		ReferenceID:   &expense.ID,
		At:            expense.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	m.expenses = append(m.expenses, *expense)
	return entry, nil
}

func (m *MemoryRepository) ApplyIncome(ctx context.Context, income *domain.Income) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	refType := "income"
	entry, err := m.applyEntryLocked(EntryMutation{
		AccountID:     income.AccountID,
		Kind:          domain.EntryIncome,
		Amount:        income.Amount,
		ReferenceType: &refType,
		ReferenceID:   &income.ID,
		At:            income.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	m.incomes = append(m.incomes, *income)
	return entry, nil
}

func (m *MemoryRepository) SumExpenses(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, expense := range m.expenses {
		if expense.UserID != userID || !strings.EqualFold(expense.Category, category) {
			continue
		}
		if expense.OccurredAt.Year() == year && expense.OccurredAt.Month() == month {
			total += expense.Amount
		}
	}
	return total, nil
}

func (m *MemoryRepository) AverageExpenseAmount(ctx context.Context, userID uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	var count int
	for _, expense := range m.expenses {
		if expense.UserID == userID {
			total += expense.Amount
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return float64(total) / float64(count), nil
}

func (m *MemoryRepository) CountUserTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, expense := range m.expenses {
		if expense.UserID == userID && !expense.OccurredAt.Before(since) {
			count++
		}
	}
	for _, income := range m.incomes {
		if income.UserID == userID && !income.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// --- Transfers ---

func (m *MemoryRepository) ApplyTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate both legs before touching either balance.
	sender, ok := m.accounts[transfer.SenderAccountID]
	if !ok {
		return nil, nil, ErrAccountNotFound
	}
	if !sender.Active {
		return nil, nil, ErrAccountInactive
	}
	if sender.Balance < transfer.Amount {
		return nil, nil, ErrInsufficientFunds
	}
	receiver, ok := m.accounts[transfer.ReceiverAccountID]
	if !ok {
		return nil, nil, ErrAccountNotFound
	}
	if !receiver.Active {
		return nil, nil, ErrAccountInactive
	}

	refType := "transfer"
	debit, err := m.applyEntryLocked(EntryMutation{
		AccountID:     transfer.SenderAccountID,
		Kind:          domain.EntryTransferOut,
		Amount:        transfer.Amount,
		ReferenceType: &refType,
		ReferenceID:   &transfer.ID,
		At:            transfer.CreatedAt,
	})
	if err != nil {
		return nil, nil, err
	}
	credit, err := m.applyEntryLocked(EntryMutation{
		AccountID:     transfer.ReceiverAccountID,
		Kind:          domain.EntryTransferIn,
		Amount:        transfer.Amount,
		ReferenceType: &refType,
		ReferenceID:   &transfer.ID,
		At:            transfer.CreatedAt,
	})
	if err != nil {
		return nil, nil, err
	}

	m.transfers = append(m.transfers, *transfer)
	return debit, credit, nil
}

// --- Budgets ---

func (m *MemoryRepository) UpsertBudget(ctx context.Context, budget *domain.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[budgetKey(budget.UserID, budget.Category, budget.Year, budget.Month)] = *budget
	return nil
}

func (m *MemoryRepository) GetBudget(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (*domain.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	budget, ok := m.budgets[budgetKey(userID, category, year, month)]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	return &budget, nil
}

// --- Market assets ---

func (m *MemoryRepository) CreateAsset(ctx context.Context, asset *domain.MarketAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = *asset
	return nil
}

func (m *MemoryRepository) GetAsset(ctx context.Context, assetID uuid.UUID) (*domain.MarketAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &asset, nil
}

func (m *MemoryRepository) ListActiveAssets(ctx context.Context) ([]domain.MarketAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.MarketAsset
	for _, asset := range m.assets {
		if asset.Active {
			result = append(result, asset)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (m *MemoryRepository) ApplyPriceTick(ctx context.Context, assetID uuid.UUID, newPrice decimal.Decimal, changePercent float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset, ok := m.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	asset.PreviousPrice = asset.CurrentPrice
	asset.CurrentPrice = newPrice
	asset.DayChangePercent = changePercent
	asset.LastUpdated = at
	m.assets[assetID] = asset
	m.samples = append(m.samples, domain.PriceSample{
		ID:         uuid.New(),
		AssetID:    assetID,
		Price:      newPrice,
		RecordedAt: at,
	})
	return nil
}

func (m *MemoryRepository) ListPriceHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]domain.PriceSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.PriceSample
	for i := len(m.samples) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if m.samples[i].AssetID == assetID {
			result = append(result, m.samples[i])
		}
	}
	return result, nil
}

func (m *MemoryRepository) RevalueHoldings(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, holding := range m.holdings {
		asset, ok := m.assets[holding.AssetID]
		if !ok {
			continue
		}
		holding.CurrentValue = holding.UnitsOwned.Mul(asset.CurrentPrice).Round(0).IntPart()
		m.holdings[key] = holding
	}
	return nil
}

// --- Holdings and investment transactions ---

func (m *MemoryRepository) GetHolding(ctx context.Context, userID, assetID uuid.UUID) (*domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holding, ok := m.holdings[holdingKey(userID, assetID)]
	if !ok {
		return nil, ErrHoldingNotFound
	}
	return &holding, nil
}

func (m *MemoryRepository) ListHoldingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Holding
	for _, holding := range m.holdings {
		if holding.UserID == userID {
			result = append(result, holding)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *MemoryRepository) ApplyInvestmentBuy(ctx context.Context, bm BuyMutation) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refType := "investment"
	entry, err := m.applyEntryLocked(EntryMutation{
		AccountID:     bm.SourceAccountID,
		Kind:          domain.EntryInvestmentBuy,
		Amount:        bm.Amount,
		ReferenceType: &refType,
		ReferenceID:   &bm.Txn.ID,
		At:            bm.At,
	})
	if err != nil {
		return nil, err
	}

	key := holdingKey(bm.UserID, bm.AssetID)
	holding, ok := m.holdings[key]
	if !ok {
		holding = domain.Holding{
			ID:      bm.HoldingID,
			UserID:  bm.UserID,
			AssetID: bm.AssetID,
			// Seed the cached value at cost; the next revaluation pass
			// replaces it with units at the live price.
			CurrentValue: bm.InvestedAfter,
			CreatedAt:    bm.At,
		}
	}
	holding.UnitsOwned = bm.UnitsAfter
	holding.AvgBuyPrice = bm.AvgPriceAfter
	holding.InvestedAmount = bm.InvestedAfter
	holding.UpdatedAt = bm.At
	m.holdings[key] = holding

	m.invTxns = append(m.invTxns, bm.Txn)
	return entry, nil
}

func (m *MemoryRepository) ApplyInvestmentSell(ctx context.Context, sm SellMutation) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := holdingKey(sm.UserID, sm.AssetID)
	holding, ok := m.holdings[key]
	if !ok {
		return nil, ErrHoldingNotFound
	}

	refType := "investment"
	entry, err := m.applyEntryLocked(EntryMutation{
		AccountID:     sm.TargetAccountID,
		Kind:          domain.EntryInvestmentSell,
		Amount:        sm.Amount,
		ReferenceType: &refType,
		ReferenceID:   &sm.Txn.ID,
		At:            sm.At,
	})
	if err != nil {
		return nil, err
	}

	if sm.RemoveHolding {
		delete(m.holdings, key)
	} else {
		holding.UnitsOwned = sm.UnitsAfter
		holding.InvestedAmount = sm.InvestedAfter
		holding.UpdatedAt = sm.At
		m.holdings[key] = holding
	}

	m.invTxns = append(m.invTxns, sm.Txn)
	return entry, nil
}

func (m *MemoryRepository) ListInvestmentTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.InvestmentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.InvestmentTransaction
	for _, txn := range m.invTxns {
		if txn.UserID == userID {
			result = append(result, txn)
		}
	}
	return result, nil
}

// --- Fraud ---

func (m *MemoryRepository) CreateFraudRule(ctx context.Context, rule *domain.FraudRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = *rule
	return nil
}

func (m *MemoryRepository) ListActiveFraudRules(ctx context.Context) ([]domain.FraudRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.FraudRule
	for _, rule := range m.rules {
		if rule.Active {
			result = append(result, rule)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryRepository) CreateFraudFlag(ctx context.Context, flag *domain.FraudFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[flag.ID] = *flag
	return nil
}

func (m *MemoryRepository) UpdateFraudFlagStatus(ctx context.Context, flagID uuid.UUID, status domain.FlagStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	flag, ok := m.flags[flagID]
	if !ok {
		return ErrFlagNotFound
	}
	flag.Status = status
	m.flags[flagID] = flag
	return nil
}

func (m *MemoryRepository) ListFraudFlagsByUser(ctx context.Context, userID uuid.UUID) ([]domain.FraudFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.FraudFlag
	for _, flag := range m.flags {
		if flag.UserID == userID {
			result = append(result, flag)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- Valuation cache ---

func (m *MemoryRepository) UpsertValuationSnapshot(ctx context.Context, snapshot *domain.ValuationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.UserID] = *snapshot
	return nil
}

func (m *MemoryRepository) GetValuationSnapshot(ctx context.Context, userID uuid.UUID) (*domain.ValuationSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[userID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return &snapshot, nil
}

// --- Audit ---

func (m *MemoryRepository) AppendAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *entry)
	return nil
}

// Compile-time check: MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)
