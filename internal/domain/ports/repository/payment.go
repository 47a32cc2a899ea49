package repository

import (
	"context"
	"time"

	"telegram-paid-channel/internal/domain/model"
)

// PaymentRepository persists payment records. (provider, external_id) is a
// unique composite key; records are never deleted.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error

	// LockKey takes a transaction-scoped advisory lock on the idempotency
	// key, serializing concurrent deliveries even when no row exists yet.
	// tx must be a live transaction.
	LockKey(ctx context.Context, tx Tx, provider, externalID string) error

	// FindByProviderExternalID loads the record for one idempotency key.
	// When tx is a live transaction the row is locked (FOR UPDATE), which is
	// the per-key exclusion scope for concurrent webhook deliveries.
	FindByProviderExternalID(ctx context.Context, tx Tx, provider, externalID string) (*model.Payment, error)

	// UpdateStatusIfPending is a conditional transition: it writes the new
	// status only while the current status is still pending and reports
	// whether this call won. Exactly one of two racing deliveries does.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paidAt *time.Time) (bool, error)

	SetSubscriptionID(ctx context.Context, tx Tx, paymentID, subscriptionID string) error

	// ListPendingOlderThan feeds the reconciliation sweep.
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}
