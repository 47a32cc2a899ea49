package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/infra/worker"
	"telegram-paid-channel/internal/usecase"
)

const reconcileBatchSize = 200

// PaymentReconciler periodically polls provider status for stale pending
// payments whose webhooks were lost or arrived while the process was down.
// Push-only providers are skipped inside the use case.
type PaymentReconciler struct {
	pm         usecase.PaymentManager
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to poll
	log        *zerolog.Logger
}

func NewPaymentReconciler(pm usecase.PaymentManager, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{pm: pm, interval: interval, staleAfter: staleAfter, log: &l}
}

// Run submits a reconcile pass to the pool on every tick. A pass makes one
// status call per stale payment, so it runs off the ticker goroutine.
func (w *PaymentReconciler) Run(ctx context.Context, pool *worker.Pool) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			if err := pool.Submit(w.sweep); err != nil {
				w.log.Warn().Err(err).Msg("reconcile pass skipped")
			}
		}
	}
}

func (w *PaymentReconciler) sweep(ctx context.Context) error {
	n, err := w.pm.ReconcilePending(ctx, w.staleAfter, reconcileBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile pass failed")
		return err
	}
	if n > 0 {
		w.log.Info().Int("count", n).Msg("payments reconciled")
	}
	return nil
}
