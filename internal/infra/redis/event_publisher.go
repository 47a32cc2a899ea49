package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

const (
	paymentsChannel      = "events:payments"
	subscriptionsChannel = "events:subscriptions"
)

func channelFor(kind model.EventKind) string {
	if kind == model.EventPaymentCompleted {
		return paymentsChannel
	}
	return subscriptionsChannel
}

var _ adapter.EventPublisher = (*EventPublisher)(nil)

// EventPublisher fans domain events out over Redis pub/sub channels as JSON
// envelopes, one channel per event family. Consumers (notification bots,
// admin dashboards) subscribe out of process; delivery is fire-and-forget.
type EventPublisher struct {
	cli *redis.Client
	log *zerolog.Logger
}

func NewEventPublisher(cli *redis.Client, logger *zerolog.Logger) *EventPublisher {
	l := logger.With().Str("component", "EventPublisher").Logger()
	return &EventPublisher{cli: cli, log: &l}
}

func (p *EventPublisher) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Kind, err)
	}
	if err := p.cli.Publish(ctx, channelFor(ev.Kind), payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Kind, err)
	}
	p.log.Debug().Str("kind", string(ev.Kind)).Int64("user_id", ev.UserID).Msg("event published")
	return nil
}

var _ adapter.EventPublisher = (NopPublisher{})

// NopPublisher discards events. Used when Redis is not configured and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.Event) error { return nil }
