package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
	"telegram-paid-channel/internal/infra/metrics"
)

// AccessController synchronizes subscription state with actual channel
// membership. It defines the intent and the idempotency contract; the retry
// loop for failed intents belongs to the scheduler. The intent event is
// published regardless of whether the immediate attempt succeeds, so
// downstream consumers see every activation exactly once.
type AccessController struct {
	gate   adapter.ChannelGate
	events adapter.EventPublisher
	log    *zerolog.Logger
}

func NewAccessController(gate adapter.ChannelGate, events adapter.EventPublisher, logger *zerolog.Logger) *AccessController {
	l := logger.With().Str("component", "AccessController").Logger()
	return &AccessController{gate: gate, events: events, log: &l}
}

// RequestGrant issues a grant intent. Granting an already-member user is a
// success. The returned error is retryable (domain.ErrNetwork) or terminal.
func (a *AccessController) RequestGrant(ctx context.Context, userID int64) error {
	a.publish(ctx, model.EventAccessGrantRequested, userID)

	if err := a.gate.Grant(ctx, userID); err != nil {
		metrics.IncAccessIntent("grant", "error")
		a.log.Error().Err(err).Int64("user_id", userID).Msg("grant intent failed")
		return err
	}
	metrics.IncAccessIntent("grant", "ok")
	return nil
}

// RequestRevoke issues a revoke intent. Revoking a non-member is a success.
func (a *AccessController) RequestRevoke(ctx context.Context, userID int64) error {
	a.publish(ctx, model.EventAccessRevokeRequested, userID)

	if err := a.gate.Revoke(ctx, userID); err != nil {
		metrics.IncAccessIntent("revoke", "error")
		a.log.Error().Err(err).Int64("user_id", userID).Msg("revoke intent failed")
		return err
	}
	metrics.IncAccessIntent("revoke", "ok")
	return nil
}

func (a *AccessController) publish(ctx context.Context, kind model.EventKind, userID int64) {
	ev := model.Event{Kind: kind, UserID: userID, OccurredAt: time.Now()}
	if err := a.events.Publish(ctx, ev); err != nil {
		a.log.Warn().Err(err).Str("kind", string(kind)).Int64("user_id", userID).Msg("event publish failed")
	}
}
