//go:build !integration

package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func monthlyTier() *Tier {
	return &Tier{
		Code:         "monthly",
		Price:        decimal.NewFromInt(499),
		Currency:     "RUB",
		DurationDays: 30,
	}
}

func TestSubscription_Extend(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		status     SubscriptionStatus
		expiresAt  time.Time
		wantExpiry time.Time
	}{
		{
			name:       "early renewal stacks on the remaining time",
			status:     SubscriptionStatusActive,
			expiresAt:  now.Add(10 * 24 * time.Hour),
			wantExpiry: now.Add(40 * 24 * time.Hour),
		},
		{
			name:       "lapsed subscription restarts from now",
			status:     SubscriptionStatusExpired,
			expiresAt:  now.Add(-60 * 24 * time.Hour),
			wantExpiry: now.Add(30 * 24 * time.Hour),
		},
		{
			name:       "expiry exactly now restarts from now",
			status:     SubscriptionStatusActive,
			expiresAt:  now,
			wantExpiry: now.Add(30 * 24 * time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Subscription{
				ID:        "sub-1",
				UserID:    42,
				Tier:      "monthly",
				Status:    tt.status,
				ExpiresAt: tt.expiresAt,
			}
			s.Extend(monthlyTier(), now)

			if !s.ExpiresAt.Equal(tt.wantExpiry) {
				t.Errorf("want expiry %v, got %v", tt.wantExpiry, s.ExpiresAt)
			}
			if s.Status != SubscriptionStatusActive {
				t.Errorf("extension must activate, got %s", s.Status)
			}
		})
	}
}

func TestSubscription_ExpiredAt(t *testing.T) {
	now := time.Now()

	s := &Subscription{Status: SubscriptionStatusActive, ExpiresAt: now.Add(-time.Second)}
	if !s.ExpiredAt(now) {
		t.Error("active subscription past its expiry must report expired")
	}

	s = &Subscription{Status: SubscriptionStatusActive, ExpiresAt: now.Add(time.Hour)}
	if s.ExpiredAt(now) {
		t.Error("current subscription must not report expired")
	}

	s = &Subscription{Status: SubscriptionStatusCancelled, ExpiresAt: now.Add(-time.Hour)}
	if s.ExpiredAt(now) {
		t.Error("terminal states are not subject to expiry")
	}
}

func TestPaymentStatus(t *testing.T) {
	for _, st := range []PaymentStatus{PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled} {
		if !st.Terminal() {
			t.Errorf("%s must be terminal", st)
		}
	}
	if PaymentStatusPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if PaymentStatus("weird").Valid() {
		t.Error("unknown status must not validate")
	}
}
