/**
 * @description
 * This file defines the fraud-detection configuration and the flags raised
 * by the side-effect pipeline. Rule conditions are a closed set of variants
 * (RuleKind) evaluated by a single dispatcher in the app layer, so adding a
 * rule kind is a compile-time change rather than a runtime string match.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks how urgent a matched fraud rule is. HIGH and CRITICAL
// matches additionally queue an immediate notification.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Urgent reports whether a match at this severity warrants an immediate
// notification in addition to the raised flag.
func (s Severity) Urgent() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// RuleKind is the closed set of fraud-rule conditions. Exactly one of the
// three concrete types below implements it.
type RuleKind interface {
	isRuleKind()
}

// AbsoluteRule matches any expense whose amount meets a fixed threshold.
type AbsoluteRule struct {
	Threshold int64 // in paise
}

// MultiplierRule matches an expense that is at least Factor times the
// user's historical average expense amount.
type MultiplierRule struct {
	Factor float64
}

// FrequencyRule matches when the user's transaction count in the trailing
// Window reaches Count.
type FrequencyRule struct {
	Count  int
	Window time.Duration
}

func (AbsoluteRule) isRuleKind()   {}
func (MultiplierRule) isRuleKind() {}
func (FrequencyRule) isRuleKind()  {}

// FraudRule is one active detection rule. Rules are configuration, edited
// out-of-band; the pipeline only reads them.
type FraudRule struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Kind      RuleKind  `json:"-"`
	Severity  Severity  `json:"severity"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// FlagStatus is the review state of a raised fraud flag.
type FlagStatus string

const (
	FlagPending   FlagStatus = "PENDING"
	FlagCleared   FlagStatus = "CLEARED"
	FlagConfirmed FlagStatus = "CONFIRMED"
)

// FraudFlag is one raised instance of a rule matching an expense.
type FraudFlag struct {
	ID          uuid.UUID  `json:"id"`
	RuleID      uuid.UUID  `json:"rule_id"`
	UserID      uuid.UUID  `json:"user_id"`
	ExpenseID   uuid.UUID  `json:"expense_id"`
	Amount      int64      `json:"amount"` // in paise
	Severity    Severity   `json:"severity"`
	Description string     `json:"description"`
	Status      FlagStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}
