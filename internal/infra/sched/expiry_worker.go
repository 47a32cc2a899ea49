package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/infra/worker"
	"telegram-paid-channel/internal/usecase"
)

const expiryBatchSize = 200

// ExpiryWorker periodically sweeps lapsed subscriptions via the use case,
// which flips them to expired and queues the channel revoke intents. The
// same tick publishes expiring warnings for the configured window.
type ExpiryWorker struct {
	interval   time.Duration
	warnWindow time.Duration
	subUC      *usecase.SubscriptionUseCase
	log        *zerolog.Logger
}

func NewExpiryWorker(interval, warnWindow time.Duration, subUC *usecase.SubscriptionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{interval: interval, warnWindow: warnWindow, subUC: subUC, log: &l}
}

// Run submits a sweep to the pool on every tick. Sweeps talk to Telegram for
// each revoke, so they run off the ticker goroutine.
func (w *ExpiryWorker) Run(ctx context.Context, pool *worker.Pool) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			if err := pool.Submit(w.sweep); err != nil {
				w.log.Warn().Err(err).Msg("expiry sweep skipped")
			}
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) error {
	n, err := w.subUC.ExpireDue(ctx, expiryBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry sweep failed")
		return err
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("subscriptions expired")
	}

	if w.warnWindow > 0 {
		warned, err := w.subUC.WarnExpiring(ctx, w.warnWindow, expiryBatchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("expiry warning pass failed")
			return err
		}
		if warned > 0 {
			w.log.Info().Int("count", warned).Msg("expiring warnings published")
		}
	}
	return nil
}
