package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // created on provider side; awaiting notification
	PaymentStatusCompleted PaymentStatus = "completed" // confirmed by provider
	PaymentStatusFailed    PaymentStatus = "failed"    // provider reported failure
	PaymentStatusCancelled PaymentStatus = "cancelled" // cancelled on provider side
)

// Terminal reports whether no further transition is permitted out of s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a member of the closed status enumeration.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// PaymentRequest is the immutable input to a provider's CreatePayment.
// Amount bounds and currency support are validated by the adapter, not here.
type PaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string // ISO code; "XTR" for Telegram Stars
	Description string
	UserID      int64 // Telegram user id
	Tier        string
	ReturnURL   string
	Meta        map[string]string
}

// PaymentResponse is produced once per CreatePayment call and never mutated.
// Depending on the rail, the user is pointed at PayURL (wallet/card), sent an
// in-chat invoice (Stars), or shown Instructions plus a QR image (SBP).
type PaymentResponse struct {
	ExternalID   string // provider-scoped unique id
	PayURL       string
	Instructions string
	QRCodePNG    []byte
	Raw          json.RawMessage // opaque provider payload retained for audit
}

// WebhookResult is the canonical form of a provider notification.
// Verified=false means the signature or envelope check failed; the caller
// logs and drops instead of treating it as an error.
type WebhookResult struct {
	ExternalID string
	Status     PaymentStatus
	Amount     decimal.Decimal
	PaidAt     *time.Time
	Verified   bool
	Reason     string // short note for logs when Verified is false
}

// Payment is the durable record of one payment attempt.
// (Provider, ExternalID) is a unique composite key and the sole defense
// against duplicate-webhook double-crediting. Records are never deleted.
type Payment struct {
	ID             string // ULID
	UserID         int64
	Tier           string
	Provider       string
	ExternalID     string
	Amount         decimal.Decimal
	Currency       string
	Status         PaymentStatus
	Description    string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	SubscriptionID *string // set once a completed payment extends a subscription
}
