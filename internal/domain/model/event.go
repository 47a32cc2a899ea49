package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain events emitted by the core and consumed by the out-of-scope
// messaging/admin layers.

type EventKind string

const (
	EventPaymentCompleted      EventKind = "payment_completed"
	EventSubscriptionExpiring  EventKind = "subscription_expiring"
	EventSubscriptionExpired   EventKind = "subscription_expired"
	EventAccessGrantRequested  EventKind = "access_grant_requested"
	EventAccessRevokeRequested EventKind = "access_revoke_requested"
)

type Event struct {
	Kind       EventKind       `json:"kind"`
	UserID     int64           `json:"user_id"`
	Provider   string          `json:"provider,omitempty"`
	PaymentID  string          `json:"payment_id,omitempty"`
	Tier       string          `json:"tier,omitempty"`
	Amount     decimal.Decimal `json:"amount,omitempty"`
	Currency   string          `json:"currency,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
