package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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

// WebhookOutcome is the three-way-plus result of processing a notification.
// Verification failure and duplicates are outcomes, not errors: the HTTP
// layer acks them all so providers stop redelivering.
type WebhookOutcome string

const (
	OutcomeApplied    WebhookOutcome = "applied"    // state transition performed
	OutcomeDuplicate  WebhookOutcome = "duplicate"  // no-op; already in the delivered state
	OutcomeUnverified WebhookOutcome = "unverified" // signature/format check failed; dropped
	OutcomeConflict   WebhookOutcome = "conflict"   // different terminal status; record untouched
	OutcomeUnknown    WebhookOutcome = "unknown"    // no record for this key
)

// ProviderRegistry resolves a provider tag to its adapter.
type ProviderRegistry interface {
	Get(tag string) (adapter.PaymentProvider, error)
}

// Compile-time check
var _ PaymentManager = (*paymentUC)(nil)

// PaymentManager is the single entry point for payment orchestration: it
// routes calls to the right provider adapter and owns the idempotency and
// status-transition logic.
type PaymentManager interface {
	// Create initiates a payment on the chosen rail and persists a PENDING
	// record keyed by the provider's external id before returning.
	Create(ctx context.Context, providerTag string, req model.PaymentRequest) (*model.Payment, *model.PaymentResponse, error)

	// ProcessWebhook verifies, deduplicates and applies one notification.
	ProcessWebhook(ctx context.Context, providerTag string, body []byte, header http.Header) (WebhookOutcome, error)

	// ReconcilePending polls provider status for stale pending payments whose
	// webhooks may have been lost, funneling results through the same
	// per-key transition logic. Returns how many payments were finalized.
	ReconcilePending(ctx context.Context, staleAfter time.Duration, limit int) (int, error)
}

type paymentUC struct {
	registry ProviderRegistry
	payments repository.PaymentRepository
	subUC    *SubscriptionUseCase
	access   *AccessController
	events   adapter.EventPublisher
	tm       repository.TransactionManager
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewPaymentManager(
	registry ProviderRegistry,
	payments repository.PaymentRepository,
	subUC *SubscriptionUseCase,
	access *AccessController,
	events adapter.EventPublisher,
	tm repository.TransactionManager,
	timeout time.Duration,
	logger *zerolog.Logger,
) *paymentUC {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "PaymentManager").Logger()
	return &paymentUC{
		registry: registry,
		payments: payments,
		subUC:    subUC,
		access:   access,
		events:   events,
		tm:       tm,
		timeout:  timeout,
		log:      &l,
	}
}

func (m *paymentUC) Create(ctx context.Context, providerTag string, req model.PaymentRequest) (*model.Payment, *model.PaymentResponse, error) {
	provider, err := m.registry.Get(providerTag)
	if err != nil {
		return nil, nil, err
	}

	tier, err := m.subUC.Tier(req.Tier)
	if err != nil {
		return nil, nil, err
	}
	if req.Amount.IsZero() {
		req.Amount = tier.Price
		req.Currency = tier.Currency
	}
	if req.Description == "" {
		req.Description = tier.Title
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	resp, err := provider.CreatePayment(callCtx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s create payment: %w", providerTag, err)
	}

	now := time.Now()
	p := &model.Payment{
		ID:             ulid.Make().String(),
		UserID:         req.UserID,
		Tier:           req.Tier,
		Provider:       providerTag,
		ExternalID:     resp.ExternalID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         model.PaymentStatusPending,
		Description:    req.Description,
		IdempotencyKey: providerTag + ":" + resp.ExternalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// The external payment already exists; the local request being cancelled
	// must not skip this write, so persistence runs on a detached context.
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer saveCancel()
	if err := m.payments.Save(saveCtx, repository.NoTX, p); err != nil {
		// Fail loud: the external id surfaces in the error and the log so an
		// operator can reconcile instead of silently losing money.
		m.log.Error().Err(err).
			Str("provider", providerTag).
			Str("external_id", resp.ExternalID).
			Int64("user_id", req.UserID).
			Str("amount", req.Amount.String()).
			Msg("payment created externally but not persisted")
		return nil, nil, fmt.Errorf("payment %s/%s created but not persisted: %w",
			providerTag, resp.ExternalID, domain.ErrPersistenceInconsistency)
	}

	metrics.IncPayment(providerTag, string(model.PaymentStatusPending))
	m.log.Info().Str("payment_id", p.ID).Str("provider", providerTag).Str("external_id", resp.ExternalID).Msg("payment created")
	return p, resp, nil
}

func (m *paymentUC) ProcessWebhook(ctx context.Context, providerTag string, body []byte, header http.Header) (WebhookOutcome, error) {
	provider, err := m.registry.Get(providerTag)
	if err != nil {
		return "", err
	}

	res := provider.ParseWebhook(body, header)
	if !res.Verified {
		metrics.IncWebhook(providerTag, string(OutcomeUnverified))
		m.log.Warn().Str("provider", providerTag).Str("external_id", res.ExternalID).Str("reason", res.Reason).
			Msg("unverified webhook dropped")
		return OutcomeUnverified, nil
	}

	outcome, err := m.applyStatus(ctx, providerTag, res)
	if err != nil {
		return "", err
	}
	metrics.IncWebhook(providerTag, string(outcome))
	return outcome, nil
}

// applyStatus performs the idempotent upsert for one verified status report.
// Per-key exclusion comes from an advisory xact lock on the key plus the
// FOR UPDATE load plus the conditional status update: of two concurrent
// deliveries exactly one wins the transition, the other observes the
// already-terminal state.
func (m *paymentUC) applyStatus(ctx context.Context, providerTag string, res model.WebhookResult) (WebhookOutcome, error) {
	var (
		outcome   WebhookOutcome
		completed *model.Payment
	)

	err := m.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := m.payments.LockKey(ctx, tx, providerTag, res.ExternalID); err != nil {
			return err
		}

		p, err := m.payments.FindByProviderExternalID(ctx, tx, providerTag, res.ExternalID)
		if errors.Is(err, domain.ErrNotFound) {
			outcome = OutcomeUnknown
			return nil
		}
		if err != nil {
			return err
		}

		if p.Status.Terminal() {
			if p.Status == res.Status {
				outcome = OutcomeDuplicate
				return nil
			}
			// A different terminal status after the record is terminal is a
			// data-integrity anomaly. Never overwrite; surface it.
			outcome = OutcomeConflict
			m.log.Error().
				Str("payment_id", p.ID).
				Str("provider", providerTag).
				Str("external_id", res.ExternalID).
				Str("recorded", string(p.Status)).
				Str("incoming", string(res.Status)).
				Msg("conflicting terminal statuses; record unchanged, manual review required")
			return nil
		}

		if res.Status == model.PaymentStatusPending {
			outcome = OutcomeDuplicate
			return nil
		}

		paidAt := res.PaidAt
		if res.Status == model.PaymentStatusCompleted && paidAt == nil {
			now := time.Now()
			paidAt = &now
		}
		won, err := m.payments.UpdateStatusIfPending(ctx, tx, p.ID, res.Status, paidAt)
		if err != nil {
			return err
		}
		if !won {
			// Lost the race; the winner already applied this terminal state.
			outcome = OutcomeDuplicate
			return nil
		}

		if res.Status == model.PaymentStatusCompleted {
			tier, err := m.subUC.Tier(p.Tier)
			if err != nil {
				// Unknown tier would complete the payment without extending
				// the subscription; roll back and let reconciliation retry
				// once configuration is fixed.
				return err
			}
			sub, err := m.subUC.ExtendOnPayment(ctx, tx, p.UserID, tier)
			if err != nil {
				return err
			}
			if err := m.payments.SetSubscriptionID(ctx, tx, p.ID, sub.ID); err != nil {
				return err
			}
			completed = p
		}

		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		return "", err
	}

	if outcome == OutcomeApplied {
		metrics.IncPayment(providerTag, string(res.Status))
	}
	if completed != nil {
		m.afterCompleted(ctx, completed)
	}
	return outcome, nil
}

// afterCompleted runs the post-commit side effects of a completed payment:
// revenue metrics, the PaymentCompleted event, and the grant intent.
func (m *paymentUC) afterCompleted(ctx context.Context, p *model.Payment) {
	amt, _ := p.Amount.Float64()
	metrics.AddPaymentRevenue(p.Currency, amt)

	ev := model.Event{
		Kind:       model.EventPaymentCompleted,
		UserID:     p.UserID,
		Provider:   p.Provider,
		PaymentID:  p.ID,
		Tier:       p.Tier,
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: time.Now(),
	}
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn().Err(err).Str("payment_id", p.ID).Msg("payment completed event publish failed")
	}

	if err := m.access.RequestGrant(ctx, p.UserID); err != nil {
		m.log.Warn().Err(err).Int64("user_id", p.UserID).Msg("grant intent deferred to retry")
	}
}

func (m *paymentUC) ReconcilePending(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	pending, err := m.payments.ListPendingOlderThan(ctx, repository.NoTX, cutoff, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	finalized := 0
	for _, p := range pending {
		provider, err := m.registry.Get(p.Provider)
		if err != nil {
			m.log.Warn().Str("payment_id", p.ID).Str("provider", p.Provider).Msg("provider gone; cannot reconcile")
			continue
		}
		if provider.Capabilities().PushOnly {
			continue
		}

		pollCtx, cancel := context.WithTimeout(ctx, m.timeout)
		status, err := provider.CheckStatus(pollCtx, p.ExternalID)
		cancel()
		if err != nil {
			// A stale poll failing is dropped and logged, not retried here;
			// the next sweep picks the payment up again.
			m.log.Warn().Err(err).Str("payment_id", p.ID).Msg("status poll failed")
			continue
		}
		if status == model.PaymentStatusPending {
			continue
		}

		outcome, err := m.applyStatus(ctx, p.Provider, model.WebhookResult{
			ExternalID: p.ExternalID,
			Status:     status,
			Amount:     p.Amount,
			Verified:   true,
		})
		if err != nil {
			m.log.Error().Err(err).Str("payment_id", p.ID).Msg("reconcile apply failed")
			continue
		}
		if outcome == OutcomeApplied {
			finalized++
			m.log.Info().Str("payment_id", p.ID).Str("status", string(status)).Msg("payment reconciled")
		}
	}
	return finalized, nil
}
