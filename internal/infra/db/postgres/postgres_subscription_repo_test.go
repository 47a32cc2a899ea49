//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
)

func newTestSubscription(userID int64, expiresAt time.Time) *model.Subscription {
	now := time.Now()
	return &model.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Tier:      "monthly",
		Status:    model.SubscriptionStatusActive,
		StartedAt: now,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSubscriptionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewSubscriptionRepo(testPool)

	t.Run("should save and find a subscription by user", func(t *testing.T) {
		cleanup(t)

		sub := newTestSubscription(111, time.Now().Add(30*24*time.Hour))
		if err := repo.Save(ctx, nil, sub); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		found, err := repo.FindByUser(ctx, nil, 111)
		if err != nil {
			t.Fatalf("FindByUser failed: %v", err)
		}
		if found.ID != sub.ID || found.Status != model.SubscriptionStatusActive {
			t.Fatalf("found wrong subscription: %+v", found)
		}
	})

	t.Run("should return not found for an unknown user", func(t *testing.T) {
		cleanup(t)

		_, err := repo.FindByUser(ctx, nil, 999)
		if err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should keep one row per user across renewals", func(t *testing.T) {
		cleanup(t)

		sub := newTestSubscription(222, time.Now().Add(24*time.Hour))
		if err := repo.Save(ctx, nil, sub); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		// Renewal writes a new record value for the same user.
		renewed := newTestSubscription(222, time.Now().Add(31*24*time.Hour))
		if err := repo.Save(ctx, nil, renewed); err != nil {
			t.Fatalf("Save (renewal) failed: %v", err)
		}

		found, err := repo.FindByUser(ctx, nil, 222)
		if err != nil {
			t.Fatalf("FindByUser failed: %v", err)
		}
		if !found.ExpiresAt.After(time.Now().Add(30 * 24 * time.Hour)) {
			t.Fatalf("renewal did not extend expiry: %v", found.ExpiresAt)
		}

		var count int
		if err := testPool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE user_id = 222`).Scan(&count); err != nil {
			t.Fatalf("count query failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected one row per user, got %d", count)
		}
	})

	t.Run("should expire conditionally without regressing a renewal", func(t *testing.T) {
		cleanup(t)

		lapsed := newTestSubscription(501, time.Now().Add(-time.Hour))
		if err := repo.Save(ctx, nil, lapsed); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		ok, err := repo.MarkExpired(ctx, nil, 501)
		if err != nil {
			t.Fatalf("MarkExpired failed: %v", err)
		}
		if !ok {
			t.Fatal("lapsed subscription should be expired")
		}

		// Second attempt is a no-op; the row no longer grants access.
		ok, err = repo.MarkExpired(ctx, nil, 501)
		if err != nil {
			t.Fatalf("MarkExpired failed: %v", err)
		}
		if ok {
			t.Fatal("already expired row must not transition again")
		}

		// A renewed subscription is not touched even if the caller read it
		// as lapsed earlier.
		renewed := newTestSubscription(502, time.Now().Add(30*24*time.Hour))
		if err := repo.Save(ctx, nil, renewed); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ok, err = repo.MarkExpired(ctx, nil, 502)
		if err != nil {
			t.Fatalf("MarkExpired failed: %v", err)
		}
		if ok {
			t.Fatal("renewed subscription must keep its access")
		}
		found, _ := repo.FindByUser(ctx, nil, 502)
		if found.Status != model.SubscriptionStatusActive {
			t.Fatalf("status = %s, want active", found.Status)
		}
	})

	t.Run("should list lapsed subscriptions only", func(t *testing.T) {
		cleanup(t)

		lapsed := newTestSubscription(301, time.Now().Add(-time.Hour))
		current := newTestSubscription(302, time.Now().Add(time.Hour))
		expired := newTestSubscription(303, time.Now().Add(-time.Hour))
		expired.Status = model.SubscriptionStatusExpired

		for _, s := range []*model.Subscription{lapsed, current, expired} {
			if err := repo.Save(ctx, nil, s); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}

		got, err := repo.ListExpired(ctx, nil, time.Now(), 50)
		if err != nil {
			t.Fatalf("ListExpired failed: %v", err)
		}
		if len(got) != 1 || got[0].UserID != 301 {
			t.Fatalf("expected only the lapsed active subscription, got %d rows", len(got))
		}
	})

	t.Run("should list subscriptions expiring within a window", func(t *testing.T) {
		cleanup(t)

		soon := newTestSubscription(401, time.Now().Add(12*time.Hour))
		later := newTestSubscription(402, time.Now().Add(10*24*time.Hour))

		for _, s := range []*model.Subscription{soon, later} {
			if err := repo.Save(ctx, nil, s); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}

		got, err := repo.ListExpiringWithin(ctx, nil, 24*time.Hour, 50)
		if err != nil {
			t.Fatalf("ListExpiringWithin failed: %v", err)
		}
		if len(got) != 1 || got[0].UserID != 401 {
			t.Fatalf("expected only the soon-to-expire subscription, got %d rows", len(got))
		}
	})
}
