package telegram

import (
	"context"
	"encoding/json"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/infra/logging"
	"telegram-paid-channel/internal/usecase"
)

// PaymentsListener polls Bot API updates for the in-app payment flow. Stars
// settlement never hits an HTTP endpoint: the pre_checkout_query must be
// approved within 10 seconds and the successful_payment update that follows
// is the payment confirmation. The listener forwards it into the same
// processing path the HTTP webhooks use.
type PaymentsListener struct {
	bot    *tgbotapi.BotAPI
	pm     usecase.PaymentManager
	cancel context.CancelFunc
	log    *zerolog.Logger
}

func NewPaymentsListener(bot *tgbotapi.BotAPI, pm usecase.PaymentManager, logger *zerolog.Logger) *PaymentsListener {
	l := logger.With().Str("component", "PaymentsListener").Logger()
	return &PaymentsListener{bot: bot, pm: pm, log: &l}
}

// Run polls until ctx is canceled.
func (p *PaymentsListener) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "pre_checkout_query"}

	updates := p.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.log.Info().Msg("starting payments listener")
	for {
		select {
		case <-ctx.Done():
			p.bot.StopReceivingUpdates()
			p.log.Info().Msg("stopping payments listener")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.handleUpdate(ctx, update)
		}
	}
}

func (p *PaymentsListener) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *PaymentsListener) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.PreCheckoutQuery != nil:
		p.approvePreCheckout(update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		p.forwardSuccessfulPayment(ctx, update.Message)
	}
}

func (p *PaymentsListener) approvePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	// Rejecting here would need a reason the user can act on; the invoice was
	// built from our own catalog, so approve and let settlement decide.
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if _, err := p.bot.Request(answer); err != nil {
		p.log.Error().Err(err).Str("query_id", q.ID).Msg("pre-checkout answer failed")
	}
}

func (p *PaymentsListener) forwardSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment
	body, err := json.Marshal(sp)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal successful_payment")
		return
	}

	ctx = logging.WithUserID(ctx, msg.From.ID)
	log := logging.With(ctx, p.log)
	outcome, err := p.pm.ProcessWebhook(ctx, "stars", body, nil)
	if err != nil {
		log.Error().Err(err).Msg("stars settlement processing failed")
		return
	}
	log.Info().Str("outcome", string(outcome)).Msg("stars settlement handled")
}
