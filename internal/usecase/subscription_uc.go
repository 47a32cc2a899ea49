package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
	"telegram-paid-channel/internal/domain/ports/repository"
	"telegram-paid-channel/internal/infra/metrics"
)

// SubscriptionUseCase owns the subscription state machine. A completed
// payment is the only legitimate trigger for an ACTIVE extension; expiry is
// detected lazily on access checks and by the periodic sweep.
type SubscriptionUseCase struct {
	subs   repository.SubscriptionRepository
	tiers  map[string]*model.Tier
	access *AccessController
	events adapter.EventPublisher
	tm     repository.TransactionManager
	log    *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	tiers map[string]*model.Tier,
	access *AccessController,
	events adapter.EventPublisher,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *SubscriptionUseCase {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &SubscriptionUseCase{subs: subs, tiers: tiers, access: access, events: events, tm: tm, log: &l}
}

func (uc *SubscriptionUseCase) Tier(code string) (*model.Tier, error) {
	t, ok := uc.tiers[code]
	if !ok {
		return nil, fmt.Errorf("unknown tier %q: %w", code, domain.ErrValidation)
	}
	return t, nil
}

// ExtendOnPayment activates or renews the user's subscription inside the
// caller's transaction: newExpiry = max(now, currentExpiry) + tier duration.
// Early renewals extend from the existing expiry; lapsed ones from now.
func (uc *SubscriptionUseCase) ExtendOnPayment(ctx context.Context, tx repository.Tx, userID int64, tier *model.Tier) (*model.Subscription, error) {
	now := time.Now()

	sub, err := uc.subs.FindByUser(ctx, tx, userID)
	switch {
	case err == nil:
		sub.Extend(tier, now)
	case errors.Is(err, domain.ErrNotFound):
		sub, err = model.NewSubscription(ulid.Make().String(), userID, tier)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := uc.subs.Save(ctx, tx, sub); err != nil {
		return nil, err
	}
	metrics.IncSubscriptionExtended(tier.Code)
	uc.log.Info().Int64("user_id", userID).Str("tier", tier.Code).Time("expires_at", sub.ExpiresAt).Msg("subscription extended")
	return sub, nil
}

// GrantTrial gives a first-time user the tier's trial window. Users with any
// prior subscription record are not eligible.
func (uc *SubscriptionUseCase) GrantTrial(ctx context.Context, userID int64, tierCode string) (*model.Subscription, error) {
	tier, err := uc.Tier(tierCode)
	if err != nil {
		return nil, err
	}
	if tier.TrialDays <= 0 {
		return nil, fmt.Errorf("tier %q has no trial: %w", tierCode, domain.ErrValidation)
	}

	if _, err := uc.subs.FindByUser(ctx, repository.NoTX, userID); err == nil {
		return nil, fmt.Errorf("user already has a subscription record: %w", domain.ErrAlreadyExists)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	sub := &model.Subscription{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Tier:      tier.Code,
		Status:    model.SubscriptionStatusTrial,
		StartedAt: now,
		ExpiresAt: now.Add(tier.TrialDuration()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}

	if err := uc.access.RequestGrant(ctx, userID); err != nil {
		uc.log.Warn().Err(err).Int64("user_id", userID).Msg("trial grant intent deferred to retry")
	}
	return sub, nil
}

// HasAccess reports whether the user currently holds channel access,
// detecting expiry lazily: a lapsed subscription is transitioned to EXPIRED
// and a revoke intent is emitted on the spot.
func (uc *SubscriptionUseCase) HasAccess(ctx context.Context, userID int64) (bool, error) {
	sub, err := uc.subs.FindByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now()
	if sub.ExpiredAt(now) {
		won, err := uc.subs.MarkExpired(ctx, repository.NoTX, userID)
		if err != nil {
			return false, err
		}
		if won {
			metrics.IncSubscriptionsExpired(1)
			uc.emitExpired(ctx, sub)
			return false, nil
		}
		// Lost to a concurrent renewal; answer from the fresh record.
		sub, err = uc.subs.FindByUser(ctx, repository.NoTX, userID)
		if err != nil {
			return false, err
		}
		if sub.ExpiredAt(now) {
			return false, nil
		}
	}
	return sub.Status == model.SubscriptionStatusActive || sub.Status == model.SubscriptionStatusTrial, nil
}

// ExpireDue transitions every lapsed subscription to EXPIRED and emits the
// revoke intents. Called by the sweep worker; returns the number expired.
// The transition is conditional per row, so a renewal that commits between
// the listing and the write keeps its new expiry and gets no revoke.
func (uc *SubscriptionUseCase) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := time.Now()
	var due []*model.Subscription

	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		due = due[:0]
		subs, err := uc.subs.ListExpired(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			won, err := uc.subs.MarkExpired(ctx, tx, sub.UserID)
			if err != nil {
				return err
			}
			if !won {
				continue
			}
			sub.Status = model.SubscriptionStatusExpired
			sub.UpdatedAt = now
			due = append(due, sub)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, sub := range due {
		uc.emitExpired(ctx, sub)
	}
	if n := len(due); n > 0 {
		metrics.IncSubscriptionsExpired(n)
	}
	return len(due), nil
}

// WarnExpiring publishes an expiring event for every subscription lapsing
// within the window. Consumers dedupe by (user_id, expires_at); this side
// only enumerates. Returns the number of events published.
func (uc *SubscriptionUseCase) WarnExpiring(ctx context.Context, within time.Duration, limit int) (int, error) {
	subs, err := uc.subs.ListExpiringWithin(ctx, repository.NoTX, within, limit)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, sub := range subs {
		ev := model.Event{Kind: model.EventSubscriptionExpiring, UserID: sub.UserID, Tier: sub.Tier, OccurredAt: time.Now()}
		if err := uc.events.Publish(ctx, ev); err != nil {
			uc.log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("expiring event publish failed")
			continue
		}
		published++
	}
	return published, nil
}

// Cancel is the administrative trigger: ACTIVE/TRIAL -> CANCELLED plus a
// revoke intent. Cancelling an already-terminal subscription is rejected.
func (uc *SubscriptionUseCase) Cancel(ctx context.Context, userID int64) error {
	sub, err := uc.subs.FindByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if sub.Status != model.SubscriptionStatusActive && sub.Status != model.SubscriptionStatusTrial {
		return fmt.Errorf("subscription is %s: %w", sub.Status, domain.ErrConflictingState)
	}

	sub.Status = model.SubscriptionStatusCancelled
	sub.UpdatedAt = time.Now()
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	if err := uc.access.RequestRevoke(ctx, userID); err != nil {
		uc.log.Warn().Err(err).Int64("user_id", userID).Msg("cancel revoke intent deferred to retry")
	}
	return nil
}

func (uc *SubscriptionUseCase) emitExpired(ctx context.Context, sub *model.Subscription) {
	ev := model.Event{Kind: model.EventSubscriptionExpired, UserID: sub.UserID, Tier: sub.Tier, OccurredAt: time.Now()}
	if err := uc.events.Publish(ctx, ev); err != nil {
		uc.log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("expired event publish failed")
	}
	if err := uc.access.RequestRevoke(ctx, sub.UserID); err != nil {
		uc.log.Warn().Err(err).Int64("user_id", sub.UserID).Msg("revoke intent deferred to retry")
	}
}
