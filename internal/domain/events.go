package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification routing keys published to the broker. Consumers (push,
// email, in-app feeds) bind on these; this service only publishes.
const (
	RouteTransferReceived = "notification.transfer.received"
	RouteBudgetAlert      = "notification.budget.alert"
	RouteFraudAlert       = "notification.fraud.alert"
)

// TransferReceivedEvent is emitted to the receiver after a transfer commits.
type TransferReceivedEvent struct {
	TransferID uuid.UUID `json:"transfer_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Amount     int64     `json:"amount"` // in paise
	Note       string    `json:"note"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BudgetAlertEvent is emitted when an expense pushes a category budget past
// its alert threshold or its limit.
type BudgetAlertEvent struct {
	UserID      uuid.UUID    `json:"user_id"`
	Category    string       `json:"category"`
	Status      BudgetStatus `json:"status"`
	Spent       int64        `json:"spent"` // in paise
	Limit       int64        `json:"limit"` // in paise
	UsedPercent float64      `json:"used_percent"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// FraudAlertEvent is emitted for HIGH and CRITICAL fraud-rule matches.
type FraudAlertEvent struct {
	FlagID      uuid.UUID `json:"flag_id"`
	UserID      uuid.UUID `json:"user_id"`
	RuleName    string    `json:"rule_name"`
	Severity    Severity  `json:"severity"`
	Amount      int64     `json:"amount"` // in paise
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}
