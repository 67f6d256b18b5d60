/**
 * @description
 * This file is the PostgreSQL implementation of the Repository interface,
 * built on a pgx/v5 connection pool. Every multi-step money movement runs
 * inside a single database transaction with `SELECT ... FOR UPDATE` row
 * locks on the touched accounts, so the balance read, the balance write and
 * the appended ledger entry commit together or not at all.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/google/uuid: For entity identifiers.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/shopspring/decimal: For unit quantities and asset prices.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/paisavault/ledger-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// --- Users ---

func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, username, email, mobile, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.Email, user.Mobile, user.Active, user.CreatedAt)
	return err
}

func (r *PostgresRepository) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, mobile, active, created_at FROM users WHERE id = $1`,
		userID).Scan(&user.ID, &user.Username, &user.Email, &user.Mobile, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByIdentifier resolves a transfer recipient from a username, email
// address or mobile number.
func (r *PostgresRepository) FindUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, mobile, active, created_at
		 FROM users
		 WHERE lower(username) = lower(trim($1))
		    OR lower(email) = lower(trim($1))
		    OR mobile = trim($1)
		 LIMIT 1`,
		identifier).Scan(&user.ID, &user.Username, &user.Email, &user.Mobile, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// --- Accounts ---

func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (id, user_id, account_type, name, balance, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.UserID, account.Type, account.Name,
		account.Balance, account.Active, account.CreatedAt, account.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return r.scanAccount(r.db.QueryRow(ctx,
		`SELECT id, user_id, account_type, name, balance, active, created_at, updated_at
		 FROM accounts WHERE id = $1`, accountID))
}

func (r *PostgresRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return r.scanAccount(r.db.QueryRow(ctx,
		`SELECT id, user_id, account_type, name, balance, active, created_at, updated_at
		 FROM accounts WHERE user_id = $1 AND account_type = 'WALLET'`, userID))
}

func (r *PostgresRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(&account.ID, &account.UserID, &account.Type, &account.Name,
		&account.Balance, &account.Active, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *PostgresRepository) ListAccountsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, account_type, name, balance, active, created_at, updated_at
		 FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.UserID, &account.Type, &account.Name,
			&account.Balance, &account.Active, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// --- Ledger ---

// applyEntryTx applies one balance mutation inside an open transaction.
// The account row is locked with FOR UPDATE to serialize concurrent
// mutations of the same account at the database level.
func (r *PostgresRepository) applyEntryTx(ctx context.Context, tx pgx.Tx, em EntryMutation) (*domain.LedgerEntry, error) {
	var balance int64
	var active bool
	err := tx.QueryRow(ctx,
		`SELECT balance, active FROM accounts WHERE id = $1 FOR UPDATE`,
		em.AccountID).Scan(&balance, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !active {
		return nil, ErrAccountInactive
	}

	signed := em.Amount
	if em.Kind.Debit() {
		if balance < em.Amount {
			return nil, ErrInsufficientFunds
		}
		signed = -em.Amount
	}
	balanceAfter := balance + signed

	_, err = tx.Exec(ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		balanceAfter, em.At, em.AccountID)
	if err != nil {
		return nil, err
	}

	entry := domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     em.AccountID,
		Kind:          em.Kind,
		Amount:        signed,
		BalanceAfter:  balanceAfter,
		ReferenceType: em.ReferenceType,
		ReferenceID:   em.ReferenceID,
		CreatedAt:     em.At,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account_id, kind, amount, balance_after, reference_type, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AccountID, entry.Kind, entry.Amount, entry.BalanceAfter,
		entry.ReferenceType, entry.ReferenceID, entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *PostgresRepository) ApplyLedgerEntry(ctx context.Context, em EntryMutation) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	entry, err := r.applyEntryTx(ctx, tx, em)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

func (r *PostgresRepository) ListEntriesByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, account_id, kind, amount, balance_after, reference_type, reference_id, created_at
		 FROM ledger_entries WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Kind, &entry.Amount,
			&entry.BalanceAfter, &entry.ReferenceType, &entry.ReferenceID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// --- Spending ---

func (r *PostgresRepository) ApplyExpense(ctx context.Context, expense *domain.Expense) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	refType := "expense"
	entry, err := r.applyEntryTx(ctx, tx, EntryMutation{
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

	_, err = tx.Exec(ctx,
		`INSERT INTO expenses (id, user_id, account_id, amount, category, subcategory, merchant, payment_mode, description, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		expense.ID, expense.UserID, expense.AccountID, expense.Amount, expense.Category,
		expense.Subcategory, expense.Merchant, expense.PaymentMode, expense.Description, expense.OccurredAt)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

func (r *PostgresRepository) ApplyIncome(ctx context.Context, income *domain.Income) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	refType := "income"
	entry, err := r.applyEntryTx(ctx, tx, EntryMutation{
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

	_, err = tx.Exec(ctx,
		`INSERT INTO income (id, user_id, account_id, amount, source, category, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		income.ID, income.UserID, income.AccountID, income.Amount,
		income.Source, income.Category, income.OccurredAt)
	if err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

// SumExpenses recomputes spend-to-date from the expense rows themselves.
// The figure is intentionally never cached.
func (r *PostgresRepository) SumExpenses(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses
		 WHERE user_id = $1 AND lower(category) = lower($2)
		   AND EXTRACT(YEAR FROM occurred_at) = $3
		   AND EXTRACT(MONTH FROM occurred_at) = $4`,
		userID, category, year, int(month)).Scan(&total)
	return total, err
}

func (r *PostgresRepository) AverageExpenseAmount(ctx context.Context, userID uuid.UUID) (float64, error) {
	var avg float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(AVG(amount), 0) FROM expenses WHERE user_id = $1`,
		userID).Scan(&avg)
	return avg, err
}

func (r *PostgresRepository) CountUserTransactionsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM expenses WHERE user_id = $1 AND occurred_at >= $2)
		      + (SELECT COUNT(*) FROM income   WHERE user_id = $1 AND occurred_at >= $2)`,
		userID, since).Scan(&count)
	return count, err
}

// --- Transfers ---

// ApplyTransfer moves money between two accounts as one transaction. Both
// account rows are locked in deterministic ID order to avoid deadlocks
// between concurrent opposing transfers.
func (r *PostgresRepository) ApplyTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.LedgerEntry, *domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	first, second := transfer.SenderAccountID, transfer.ReceiverAccountID
	if second.String() < first.String() {
		first, second = second, first
	}
	for _, id := range []uuid.UUID{first, second} {
		if _, err := tx.Exec(ctx, `SELECT 1 FROM accounts WHERE id = $1 FOR UPDATE`, id); err != nil {
			return nil, nil, err
		}
	}

	refType := "transfer"
	debit, err := r.applyEntryTx(ctx, tx, EntryMutation{
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
	credit, err := r.applyEntryTx(ctx, tx, EntryMutation{
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

	_, err = tx.Exec(ctx,
		`INSERT INTO transfers (id, sender_id, receiver_id, sender_account_id, receiver_account_id, amount, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		transfer.ID, transfer.SenderID, transfer.ReceiverID, transfer.SenderAccountID,
		transfer.ReceiverAccountID, transfer.Amount, transfer.Note, transfer.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, tx.Commit(ctx)
}

// --- Budgets ---

func (r *PostgresRepository) UpsertBudget(ctx context.Context, budget *domain.Budget) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO budgets (id, user_id, category, year, month, limit_amount, alert_threshold_percent, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, category, year, month) DO UPDATE
		 SET limit_amount = EXCLUDED.limit_amount,
		     alert_threshold_percent = EXCLUDED.alert_threshold_percent,
		     updated_at = EXCLUDED.updated_at`,
		budget.ID, budget.UserID, budget.Category, budget.Year, int(budget.Month),
		budget.LimitAmount, budget.AlertThresholdPercent, budget.CreatedAt, budget.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetBudget(ctx context.Context, userID uuid.UUID, category string, year int, month time.Month) (*domain.Budget, error) {
	var budget domain.Budget
	var monthNum int
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, category, year, month, limit_amount, alert_threshold_percent, created_at, updated_at
		 FROM budgets
		 WHERE user_id = $1 AND lower(category) = lower($2) AND year = $3 AND month = $4`,
		userID, category, year, int(month)).Scan(
		&budget.ID, &budget.UserID, &budget.Category, &budget.Year, &monthNum,
		&budget.LimitAmount, &budget.AlertThresholdPercent, &budget.CreatedAt, &budget.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBudgetNotFound
		}
		return nil, err
	}
	budget.Month = time.Month(monthNum)
	return &budget, nil
}

// --- Market assets ---

func (r *PostgresRepository) CreateAsset(ctx context.Context, asset *domain.MarketAsset) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO market_assets (id, symbol, name, asset_type, current_price, previous_price, day_change_percent, volatility_percent, active, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		asset.ID, asset.Symbol, asset.Name, asset.Type, asset.CurrentPrice, asset.PreviousPrice,
		asset.DayChangePercent, asset.VolatilityPercent, asset.Active, asset.LastUpdated)
	return err
}

func (r *PostgresRepository) GetAsset(ctx context.Context, assetID uuid.UUID) (*domain.MarketAsset, error) {
	var asset domain.MarketAsset
	err := r.db.QueryRow(ctx,
		`SELECT id, symbol, name, asset_type, current_price, previous_price, day_change_percent, volatility_percent, active, last_updated
		 FROM market_assets WHERE id = $1`, assetID).Scan(
		&asset.ID, &asset.Symbol, &asset.Name, &asset.Type, &asset.CurrentPrice, &asset.PreviousPrice,
		&asset.DayChangePercent, &asset.VolatilityPercent, &asset.Active, &asset.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}

func (r *PostgresRepository) ListActiveAssets(ctx context.Context) ([]domain.MarketAsset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, symbol, name, asset_type, current_price, previous_price, day_change_percent, volatility_percent, active, last_updated
		 FROM market_assets WHERE active = TRUE ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.MarketAsset
	for rows.Next() {
		var asset domain.MarketAsset
		if err := rows.Scan(&asset.ID, &asset.Symbol, &asset.Name, &asset.Type, &asset.CurrentPrice,
			&asset.PreviousPrice, &asset.DayChangePercent, &asset.VolatilityPercent, &asset.Active, &asset.LastUpdated); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// ApplyPriceTick rolls the asset forward to a new price and records the
// immutable history sample in the same transaction.
func (r *PostgresRepository) ApplyPriceTick(ctx context.Context, assetID uuid.UUID, newPrice decimal.Decimal, changePercent float64, at time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE market_assets
		 SET previous_price = current_price,
		     current_price = $1,
		     day_change_percent = $2,
		     last_updated = $3
		 WHERE id = $4`,
		newPrice, changePercent, at, assetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO market_price_history (id, asset_id, price, recorded_at) VALUES ($1, $2, $3, $4)`,
		uuid.New(), assetID, newPrice, at)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListPriceHistory(ctx context.Context, assetID uuid.UUID, limit int) ([]domain.PriceSample, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, asset_id, price, recorded_at FROM market_price_history
		 WHERE asset_id = $1 ORDER BY recorded_at DESC LIMIT $2`, assetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.PriceSample
	for rows.Next() {
		var sample domain.PriceSample
		if err := rows.Scan(&sample.ID, &sample.AssetID, &sample.Price, &sample.RecordedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// RevalueHoldings refreshes every holding's cached current value from live
// prices in one statement. The cache is a read optimization only.
func (r *PostgresRepository) RevalueHoldings(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`UPDATE holdings h
		 SET current_value = ROUND(h.units_owned * ma.current_price)
		 FROM market_assets ma
		 WHERE ma.id = h.asset_id`)
	return err
}

// --- Holdings and investment transactions ---

func (r *PostgresRepository) GetHolding(ctx context.Context, userID, assetID uuid.UUID) (*domain.Holding, error) {
	var holding domain.Holding
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, asset_id, units_owned, avg_buy_price, invested_amount, current_value, created_at, updated_at
		 FROM holdings WHERE user_id = $1 AND asset_id = $2`, userID, assetID).Scan(
		&holding.ID, &holding.UserID, &holding.AssetID, &holding.UnitsOwned, &holding.AvgBuyPrice,
		&holding.InvestedAmount, &holding.CurrentValue, &holding.CreatedAt, &holding.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldingNotFound
		}
		return nil, err
	}
	return &holding, nil
}

func (r *PostgresRepository) ListHoldingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Holding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, asset_id, units_owned, avg_buy_price, invested_amount, current_value, created_at, updated_at
		 FROM holdings WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var holding domain.Holding
		if err := rows.Scan(&holding.ID, &holding.UserID, &holding.AssetID, &holding.UnitsOwned,
			&holding.AvgBuyPrice, &holding.InvestedAmount, &holding.CurrentValue,
			&holding.CreatedAt, &holding.UpdatedAt); err != nil {
			return nil, err
		}
		holdings = append(holdings, holding)
	}
	return holdings, rows.Err()
}

func (r *PostgresRepository) ApplyInvestmentBuy(ctx context.Context, bm BuyMutation) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	refType := "investment"
	entry, err := r.applyEntryTx(ctx, tx, EntryMutation{
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

	if bm.CreateHolding {
		_, err = tx.Exec(ctx,
			`INSERT INTO holdings (id, user_id, asset_id, units_owned, avg_buy_price, invested_amount, current_value, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			bm.HoldingID, bm.UserID, bm.AssetID, bm.UnitsAfter, bm.AvgPriceAfter,
			bm.InvestedAfter, bm.InvestedAfter, bm.At, bm.At)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE holdings
			 SET units_owned = $1, avg_buy_price = $2, invested_amount = $3, updated_at = $4
			 WHERE user_id = $5 AND asset_id = $6`,
			bm.UnitsAfter, bm.AvgPriceAfter, bm.InvestedAfter, bm.At, bm.UserID, bm.AssetID)
	}
	if err != nil {
		return nil, err
	}

	if err := r.insertInvestmentTxnTx(ctx, tx, bm.Txn); err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

func (r *PostgresRepository) ApplyInvestmentSell(ctx context.Context, sm SellMutation) (*domain.LedgerEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	refType := "investment"
	entry, err := r.applyEntryTx(ctx, tx, EntryMutation{
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
		tag, err := tx.Exec(ctx,
			`DELETE FROM holdings WHERE user_id = $1 AND asset_id = $2`, sm.UserID, sm.AssetID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrHoldingNotFound
		}
	} else {
		tag, err := tx.Exec(ctx,
			`UPDATE holdings SET units_owned = $1, invested_amount = $2, updated_at = $3
			 WHERE user_id = $4 AND asset_id = $5`,
			sm.UnitsAfter, sm.InvestedAfter, sm.At, sm.UserID, sm.AssetID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrHoldingNotFound
		}
	}

	if err := r.insertInvestmentTxnTx(ctx, tx, sm.Txn); err != nil {
		return nil, err
	}
	return entry, tx.Commit(ctx)
}

func (r *PostgresRepository) insertInvestmentTxnTx(ctx context.Context, tx pgx.Tx, txn domain.InvestmentTransaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO investment_transactions (id, user_id, asset_id, kind, units, price_per_unit, total_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		txn.ID, txn.UserID, txn.AssetID, txn.Kind, txn.Units, txn.PricePerUnit, txn.TotalAmount, txn.CreatedAt)
	return err
}

func (r *PostgresRepository) ListInvestmentTransactionsByUser(ctx context.Context, userID uuid.UUID) ([]domain.InvestmentTransaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, asset_id, kind, units, price_per_unit, total_amount, created_at
		 FROM investment_transactions WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.InvestmentTransaction
	for rows.Next() {
		var txn domain.InvestmentTransaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.AssetID, &txn.Kind, &txn.Units,
			&txn.PricePerUnit, &txn.TotalAmount, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// --- Fraud ---

// Fraud-rule kinds are a closed Go variant; the database encodes them as a
// discriminator column plus the union of their parameters.
const (
	ruleTypeAbsolute   = "ABSOLUTE"
	ruleTypeMultiplier = "MULTIPLIER"
	ruleTypeFrequency  = "FREQUENCY_PER_WINDOW"
)

func (r *PostgresRepository) CreateFraudRule(ctx context.Context, rule *domain.FraudRule) error {
	var (
		ruleType      string
		threshold     int64
		factor        float64
		count         int
		windowSeconds int64
	)
	switch kind := rule.Kind.(type) {
	case domain.AbsoluteRule:
		ruleType = ruleTypeAbsolute
		threshold = kind.Threshold
	case domain.MultiplierRule:
		ruleType = ruleTypeMultiplier
		factor = kind.Factor
	case domain.FrequencyRule:
		ruleType = ruleTypeFrequency
		count = kind.Count
		windowSeconds = int64(kind.Window / time.Second)
	default:
		return fmt.Errorf("unknown fraud rule kind %T", rule.Kind)
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO fraud_rules (id, name, rule_type, threshold_amount, factor, frequency_count, window_seconds, severity, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rule.ID, rule.Name, ruleType, threshold, factor, count, windowSeconds,
		rule.Severity, rule.Active, rule.CreatedAt)
	return err
}

func (r *PostgresRepository) ListActiveFraudRules(ctx context.Context) ([]domain.FraudRule, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, rule_type, threshold_amount, factor, frequency_count, window_seconds, severity, active, created_at
		 FROM fraud_rules WHERE active = TRUE ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.FraudRule
	for rows.Next() {
		var (
			rule          domain.FraudRule
			ruleType      string
			threshold     int64
			factor        float64
			count         int
			windowSeconds int64
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &ruleType, &threshold, &factor,
			&count, &windowSeconds, &rule.Severity, &rule.Active, &rule.CreatedAt); err != nil {
			return nil, err
		}
		switch ruleType {
		case ruleTypeAbsolute:
			rule.Kind = domain.AbsoluteRule{Threshold: threshold}
		case ruleTypeMultiplier:
			rule.Kind = domain.MultiplierRule{Factor: factor}
		case ruleTypeFrequency:
			rule.Kind = domain.FrequencyRule{Count: count, Window: time.Duration(windowSeconds) * time.Second}
		default:
			return nil, fmt.Errorf("unknown fraud rule type %q", ruleType)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *PostgresRepository) CreateFraudFlag(ctx context.Context, flag *domain.FraudFlag) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO fraud_flags (id, rule_id, user_id, expense_id, amount, severity, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		flag.ID, flag.RuleID, flag.UserID, flag.ExpenseID, flag.Amount,
		flag.Severity, flag.Description, flag.Status, flag.CreatedAt)
	return err
}

func (r *PostgresRepository) UpdateFraudFlagStatus(ctx context.Context, flagID uuid.UUID, status domain.FlagStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE fraud_flags SET status = $1 WHERE id = $2`, status, flagID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func (r *PostgresRepository) ListFraudFlagsByUser(ctx context.Context, userID uuid.UUID) ([]domain.FraudFlag, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, rule_id, user_id, expense_id, amount, severity, description, status, created_at
		 FROM fraud_flags WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []domain.FraudFlag
	for rows.Next() {
		var flag domain.FraudFlag
		if err := rows.Scan(&flag.ID, &flag.RuleID, &flag.UserID, &flag.ExpenseID, &flag.Amount,
			&flag.Severity, &flag.Description, &flag.Status, &flag.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, flag)
	}
	return flags, rows.Err()
}

// --- Valuation cache ---

func (r *PostgresRepository) UpsertValuationSnapshot(ctx context.Context, snapshot *domain.ValuationSnapshot) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO valuation_cache (user_id, wallet, bank_accounts, investments, net_worth, calculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE
		 SET wallet = EXCLUDED.wallet,
		     bank_accounts = EXCLUDED.bank_accounts,
		     investments = EXCLUDED.investments,
		     net_worth = EXCLUDED.net_worth,
		     calculated_at = EXCLUDED.calculated_at`,
		snapshot.UserID, snapshot.Wallet, snapshot.BankAccounts,
		snapshot.Investments, snapshot.NetWorth, snapshot.CalculatedAt)
	return err
}

func (r *PostgresRepository) GetValuationSnapshot(ctx context.Context, userID uuid.UUID) (*domain.ValuationSnapshot, error) {
	var snapshot domain.ValuationSnapshot
	err := r.db.QueryRow(ctx,
		`SELECT user_id, wallet, bank_accounts, investments, net_worth, calculated_at
		 FROM valuation_cache WHERE user_id = $1`, userID).Scan(
		&snapshot.UserID, &snapshot.Wallet, &snapshot.BankAccounts,
		&snapshot.Investments, &snapshot.NetWorth, &snapshot.CalculatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// --- Audit ---

func (r *PostgresRepository) AppendAuditEntry(ctx context.Context, entry *domain.AuditEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_log (id, actor_type, actor_id, action, reference_type, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ActorType, entry.ActorID, entry.Action,
		entry.ReferenceType, entry.ReferenceID, entry.CreatedAt)
	return err
}

// Compile-time check: PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
