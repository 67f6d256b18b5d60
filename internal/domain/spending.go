/**
 * @description
 * This file defines the spending-side domain records: expenses, income and
 * budgets. Expense and Income rows are each paired 1:1 with a ledger entry;
 * the Budget row is configuration against which spend-to-date is checked.
 *
 * @notes
 * - Budget spend-to-date is never stored. It is recomputed from Expense rows
 *   on every check so the figure cannot drift from the source of truth.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Expense is the domain record behind an EXPENSE ledger entry.
type Expense struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	AccountID   uuid.UUID `json:"account_id"`
	Amount      int64     `json:"amount"` // in paise
	Category    string    `json:"category"`
	Subcategory *string   `json:"subcategory,omitempty"`
	Merchant    *string   `json:"merchant,omitempty"`
	PaymentMode string    `json:"payment_mode"` // e.g. 'UPI', 'CARD', 'CASH'
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Income is the domain record behind an INCOME ledger entry.
type Income struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	AccountID  uuid.UUID `json:"account_id"`
	Amount     int64     `json:"amount"` // in paise
	Source     string    `json:"source"`
	Category   string    `json:"category"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Budget is a monthly spending limit for one category. The
// (user, category, year, month) tuple is unique.
type Budget struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	Category              string     `json:"category"`
	Year                  int        `json:"year"`
	Month                 time.Month `json:"month"`
	LimitAmount           int64      `json:"limit_amount"` // in paise
	AlertThresholdPercent int        `json:"alert_threshold_percent"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// BudgetStatus is the outcome of a budget check for one expense.
type BudgetStatus string

const (
	BudgetOK       BudgetStatus = "OK"
	BudgetWarning  BudgetStatus = "WARNING"
	BudgetExceeded BudgetStatus = "EXCEEDED"
)

// Transfer records one peer-to-peer money movement. It is paired with
// exactly two ledger entries whose signed amounts sum to zero.
type Transfer struct {
	ID                uuid.UUID `json:"id"`
	SenderID          uuid.UUID `json:"sender_id"`
	ReceiverID        uuid.UUID `json:"receiver_id"`
	SenderAccountID   uuid.UUID `json:"sender_account_id"`
	ReceiverAccountID uuid.UUID `json:"receiver_account_id"`
	Amount            int64     `json:"amount"` // in paise
	Note              string    `json:"note"`
	CreatedAt         time.Time `json:"created_at"`
}

// AuditEntry is one append-only action record.
type AuditEntry struct {
	ID            uuid.UUID  `json:"id"`
	ActorType     string     `json:"actor_type"` // 'USER' or 'ADMIN'
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	Action        string     `json:"action"`
	ReferenceType *string    `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
