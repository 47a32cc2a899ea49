package model

import (
	"time"

	"telegram-paid-channel/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a user's access window to the paid channel.
// ExpiresAt is monotonically non-decreasing while the subscription is active:
// renewals add time, they never shorten it.
type Subscription struct {
	ID        string // ULID
	UserID    int64
	Tier      string
	Status    SubscriptionStatus
	StartedAt time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription creates an active subscription starting now.
func NewSubscription(id string, userID int64, tier *Tier) (*Subscription, error) {
	if id == "" || userID == 0 || tier == nil {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		ID:        id,
		UserID:    userID,
		Tier:      tier.Code,
		Status:    SubscriptionStatusActive,
		StartedAt: now,
		ExpiresAt: now.Add(tier.Duration()),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Extend advances the expiry by the tier duration, counting from the later of
// now or the current expiry. Early renewals are never penalized and
// back-to-back purchases stack.
func (s *Subscription) Extend(tier *Tier, now time.Time) {
	base := now
	if s.ExpiresAt.After(now) {
		base = s.ExpiresAt
	}
	s.Tier = tier.Code
	s.ExpiresAt = base.Add(tier.Duration())
	s.Status = SubscriptionStatusActive
	s.UpdatedAt = now
}

// ExpiredAt reports whether the subscription's window has lapsed at t while
// it still carries an access-granting status.
func (s *Subscription) ExpiredAt(t time.Time) bool {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return false
	}
	return t.After(s.ExpiresAt)
}
