/**
 * @description
 * This file defines the account and ledger models for the ledger-service.
 * Every money-holding container in the system is an Account: each user has
 * exactly one WALLET account and any number of linked BANK accounts.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (paise),
 *   which avoids floating-point inaccuracies with financial data.
 * - The `Balance` column is a materialized cache of the running sum of the
 *   account's ledger entries; every mutation keeps the two in lockstep.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountType distinguishes the wallet from linked bank accounts.
type AccountType string

const (
	AccountWallet AccountType = "WALLET"
	AccountBank   AccountType = "BANK"
)

// Account represents a single money-holding container owned by a user.
type Account struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Type      AccountType `json:"type"`
	Name      string      `json:"name"`
	Balance   int64       `json:"balance"` // in paise
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// EntryKind classifies a ledger entry by the operation that produced it.
type EntryKind string

const (
	EntryIncome         EntryKind = "INCOME"
	EntryExpense        EntryKind = "EXPENSE"
	EntryTransferIn     EntryKind = "TRANSFER_IN"
	EntryTransferOut    EntryKind = "TRANSFER_OUT"
	EntryInvestmentBuy  EntryKind = "INVESTMENT_BUY"
	EntryInvestmentSell EntryKind = "INVESTMENT_SELL"
)

// Debit reports whether entries of this kind remove money from the account.
func (k EntryKind) Debit() bool {
	switch k {
	case EntryExpense, EntryTransferOut, EntryInvestmentBuy:
		return true
	}
	return false
}

// LedgerEntry is one append-only row in an account's ledger. The signed
// Amount is negative for debits and positive for credits; BalanceAfter is
// the account balance immediately after the entry committed.
type LedgerEntry struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	Kind          EntryKind  `json:"kind"`
	Amount        int64      `json:"amount"` // signed, in paise
	BalanceAfter  int64      `json:"balance_after"`
	ReferenceType *string    `json:"reference_type,omitempty"` // e.g. 'expense', 'transfer'
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// User is the slim view of a user the ledger-service needs: identity plus
// the identifiers a transfer sender may address them by.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Mobile    string    `json:"mobile"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
