package adapter

import (
	"context"

	"telegram-paid-channel/internal/domain/model"
)

// EventPublisher hands domain events to the out-of-scope notification and
// admin layers. Publishing is best-effort; a failed publish is logged, never
// rolled back into the payment transaction.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.Event) error
}
