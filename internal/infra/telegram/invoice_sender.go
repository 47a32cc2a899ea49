package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// StarsInvoiceSender sends Telegram Stars invoices. Stars invoices use the
// XTR currency with an empty provider token; the amount is the star count.
type StarsInvoiceSender struct {
	bot *tgbotapi.BotAPI
	log *zerolog.Logger
}

func NewStarsInvoiceSender(bot *tgbotapi.BotAPI, logger *zerolog.Logger) *StarsInvoiceSender {
	l := logger.With().Str("component", "StarsInvoiceSender").Logger()
	return &StarsInvoiceSender{bot: bot, log: &l}
}

func (s *StarsInvoiceSender) SendStarsInvoice(ctx context.Context, chatID int64, title, description, payload string, stars int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	inv := tgbotapi.InvoiceConfig{
		BaseChat:    tgbotapi.BaseChat{ChatID: chatID},
		Title:       title,
		Description: description,
		Payload:     payload,
		Currency:    "XTR",
		Prices:      []tgbotapi.LabeledPrice{{Label: title, Amount: int(stars)}},
	}
	if _, err := s.bot.Send(inv); err != nil {
		return mapAPIError("send invoice", err)
	}
	return nil
}
