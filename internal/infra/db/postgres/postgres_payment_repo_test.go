//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/repository"
)

func newTestPayment(provider, externalID string) *model.Payment {
	now := time.Now()
	return &model.Payment{
		ID:             ulid.Make().String(),
		UserID:         111,
		Tier:           "monthly",
		Provider:       provider,
		ExternalID:     externalID,
		Amount:         decimal.NewFromInt(499),
		Currency:       "RUB",
		Status:         model.PaymentStatusPending,
		Description:    "Monthly access",
		IdempotencyKey: provider + ":" + externalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	tm := NewTxManager(testPool)

	t.Run("should save and find a payment by provider key", func(t *testing.T) {
		cleanup(t)

		p := newTestPayment("yoomoney", "op-100")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		found, err := repo.FindByProviderExternalID(ctx, nil, "yoomoney", "op-100")
		if err != nil {
			t.Fatalf("FindByProviderExternalID failed: %v", err)
		}
		if found.ID != p.ID || found.Status != model.PaymentStatusPending {
			t.Fatalf("found wrong payment: %+v", found)
		}
		if !found.Amount.Equal(p.Amount) {
			t.Fatalf("amount mismatch: got %s want %s", found.Amount, p.Amount)
		}
	})

	t.Run("should return not found for an unknown key", func(t *testing.T) {
		cleanup(t)

		_, err := repo.FindByProviderExternalID(ctx, nil, "yoomoney", "nope")
		if err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should reject a duplicate provider key", func(t *testing.T) {
		cleanup(t)

		first := newTestPayment("sbp", "ord-1")
		if err := repo.Save(ctx, nil, first); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		second := newTestPayment("sbp", "ord-1")
		if err := repo.Save(ctx, nil, second); err == nil {
			t.Fatal("expected unique violation saving second payment with same (provider, external_id)")
		}
	})

	t.Run("should finalize a pending payment exactly once", func(t *testing.T) {
		cleanup(t)

		p := newTestPayment("yoomoney", "op-200")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		paidAt := time.Now()
		ok, err := repo.UpdateStatusIfPending(ctx, nil, p.ID, model.PaymentStatusCompleted, &paidAt)
		if err != nil {
			t.Fatalf("UpdateStatusIfPending failed: %v", err)
		}
		if !ok {
			t.Fatal("first transition should win")
		}

		// Second attempt loses the compare-and-set.
		ok, err = repo.UpdateStatusIfPending(ctx, nil, p.ID, model.PaymentStatusFailed, nil)
		if err != nil {
			t.Fatalf("UpdateStatusIfPending failed: %v", err)
		}
		if ok {
			t.Fatal("second transition must not apply")
		}

		found, err := repo.FindByProviderExternalID(ctx, nil, "yoomoney", "op-200")
		if err != nil {
			t.Fatalf("FindByProviderExternalID failed: %v", err)
		}
		if found.Status != model.PaymentStatusCompleted {
			t.Fatalf("status = %s, want completed", found.Status)
		}
		if found.PaidAt == nil {
			t.Fatal("paid_at should be set")
		}
	})

	t.Run("should set subscription id inside a transaction", func(t *testing.T) {
		cleanup(t)

		p := newTestPayment("yoomoney", "op-300")
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		subID := ulid.Make().String()
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if _, err := repo.FindByProviderExternalID(ctx, tx, "yoomoney", "op-300"); err != nil {
				return err
			}
			return repo.SetSubscriptionID(ctx, tx, p.ID, subID)
		})
		if err != nil {
			t.Fatalf("WithTx failed: %v", err)
		}

		found, _ := repo.FindByProviderExternalID(ctx, nil, "yoomoney", "op-300")
		if found.SubscriptionID == nil || *found.SubscriptionID != subID {
			t.Fatalf("subscription_id not set: %+v", found.SubscriptionID)
		}
	})

	t.Run("should list only stale pending payments", func(t *testing.T) {
		cleanup(t)

		stale := newTestPayment("yoomoney", "op-old")
		stale.CreatedAt = time.Now().Add(-time.Hour)
		fresh := newTestPayment("yoomoney", "op-new")
		done := newTestPayment("yoomoney", "op-done")
		done.Status = model.PaymentStatusCompleted

		for _, p := range []*model.Payment{stale, fresh, done} {
			if err := repo.Save(ctx, nil, p); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}

		got, err := repo.ListPendingOlderThan(ctx, nil, time.Now().Add(-10*time.Minute), 50)
		if err != nil {
			t.Fatalf("ListPendingOlderThan failed: %v", err)
		}
		if len(got) != 1 || got[0].ExternalID != "op-old" {
			t.Fatalf("expected only the stale pending payment, got %d rows", len(got))
		}

		// Empty window reports not found.
		_, err = repo.ListPendingOlderThan(ctx, nil, time.Now().Add(-24*time.Hour), 50)
		if err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound for empty window, got %v", err)
		}
	})
}
