package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-paid-channel/internal/config"
	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

// InvoiceSender delivers a Stars invoice to a user chat. Implemented by the
// Telegram infra; an interface here so the adapter is testable without a bot.
type InvoiceSender interface {
	SendStarsInvoice(ctx context.Context, chatID int64, title, description, payload string, stars int64) error
}

// starsInvoicePayload rides inside the invoice and comes back verbatim in the
// successful_payment update, carrying our external payment id.
type starsInvoicePayload struct {
	Label  string `json:"label"`
	UserID int64  `json:"user_id"`
	Tier   string `json:"tier,omitempty"`
}

// Stars is the in-app currency rail. The invoice travels over the bot's own
// authenticated Bot API session, and so does the successful_payment update,
// so there is no detached signature to verify.
type Stars struct {
	rate    int64 // RUB per star
	sender  InvoiceSender
	log     *zerolog.Logger
}

var _ adapter.PaymentProvider = (*Stars)(nil)

func NewStars(cfg config.StarsConfig, sender InvoiceSender, logger *zerolog.Logger) (*Stars, error) {
	if sender == nil {
		return nil, fmt.Errorf("stars invoice sender is required: %w", domain.ErrInvalidArgument)
	}
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("stars rate must be positive: %w", domain.ErrValidation)
	}
	l := logger.With().Str("component", "stars").Logger()
	return &Stars{rate: cfg.Rate, sender: sender, log: &l}, nil
}

func (s *Stars) Name() string { return "stars" }

func (s *Stars) Capabilities() adapter.Capabilities {
	// Bounds are expressed in RUB: at least one star, at most 10000 stars.
	return adapter.Capabilities{
		Currencies:     []string{"RUB", "XTR"},
		Min:            decimal.NewFromInt(s.rate),
		Max:            decimal.NewFromInt(10000 * s.rate),
		PushOnly:       true,
		SupportsCancel: false,
	}
}

func (s *Stars) rubToStars(amount decimal.Decimal) int64 {
	stars := amount.Div(decimal.NewFromInt(s.rate)).IntPart()
	if stars < 1 {
		stars = 1
	}
	return stars
}

func (s *Stars) starsToRub(stars int64) decimal.Decimal {
	return decimal.NewFromInt(stars * s.rate)
}

func (s *Stars) CreatePayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	caps := s.Capabilities()
	if req.Currency == "XTR" {
		// Amount given directly in stars.
		if req.Amount.LessThan(decimal.NewFromInt(1)) || req.Amount.GreaterThan(decimal.NewFromInt(10000)) {
			return nil, fmt.Errorf("stars amount out of range: %w", domain.ErrValidation)
		}
	} else if err := validateRequest(caps, req); err != nil {
		return nil, err
	}

	label := uuid.NewString()
	stars := s.rubToStars(req.Amount)
	if req.Currency == "XTR" {
		stars = req.Amount.IntPart()
	}

	payload, err := json.Marshal(starsInvoicePayload{Label: label, UserID: req.UserID, Tier: req.Tier})
	if err != nil {
		return nil, fmt.Errorf("marshal invoice payload: %w", domain.ErrValidation)
	}

	if err := s.sender.SendStarsInvoice(ctx, req.UserID, "Channel subscription", req.Description, string(payload), stars); err != nil {
		return nil, fmt.Errorf("send stars invoice: %w", err)
	}

	s.log.Info().Str("label", label).Int64("stars", stars).Int64("user_id", req.UserID).Msg("stars invoice sent")

	raw, _ := json.Marshal(map[string]any{"label": label, "stars": stars})
	return &model.PaymentResponse{
		ExternalID:   label,
		Instructions: fmt.Sprintf("Pay the invoice sent to your chat (%d Stars).", stars),
		Raw:          raw,
	}, nil
}

// CheckStatus is a no-op for this rail: settlement only arrives through the
// successful_payment update.
func (s *Stars) CheckStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	return model.PaymentStatusPending, nil
}

// starsWebhook is the successful_payment object, forwarded as JSON by the bot
// layer when it receives the update.
type starsWebhook struct {
	Currency             string `json:"currency"`
	TotalAmount          int64  `json:"total_amount"`
	InvoicePayload       string `json:"invoice_payload"`
	TelegramChargeID     string `json:"telegram_payment_charge_id"`
	ProviderPaymentCharge string `json:"provider_payment_charge_id"`
}

func (s *Stars) ParseWebhook(body []byte, header http.Header) model.WebhookResult {
	var wh starsWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return model.WebhookResult{Reason: "malformed successful_payment"}
	}
	if wh.Currency != "XTR" {
		return model.WebhookResult{Reason: "unexpected currency " + wh.Currency}
	}

	var payload starsInvoicePayload
	if err := json.Unmarshal([]byte(wh.InvoicePayload), &payload); err != nil || payload.Label == "" {
		return model.WebhookResult{Reason: "missing invoice payload label"}
	}

	// The update came through the bot's authenticated session; nothing further
	// to verify.
	return model.WebhookResult{
		ExternalID: payload.Label,
		Status:     model.PaymentStatusCompleted,
		Amount:     s.starsToRub(wh.TotalAmount),
		Verified:   true,
	}
}
