package repository

import (
	"context"
	"time"

	"telegram-paid-channel/internal/domain/model"
)

// SubscriptionRepository persists per-user subscriptions (one row per user).
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByUser(ctx context.Context, tx Tx, userID int64) (*model.Subscription, error)

	// MarkExpired is a conditional transition: it flips the row to expired
	// only while it still grants access AND the expiry has passed, and
	// reports whether this call won. A renewal committed in between keeps
	// its new expiry; the loser must not overwrite it.
	MarkExpired(ctx context.Context, tx Tx, userID int64) (bool, error)

	// ListExpired returns access-granting subscriptions whose expiry lies
	// before now, for the sweep worker.
	ListExpired(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)

	// ListExpiringWithin feeds expiry warnings in the notification layer.
	ListExpiringWithin(ctx context.Context, tx Tx, within time.Duration, limit int) ([]*model.Subscription, error)
}
