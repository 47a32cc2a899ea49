package providers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"telegram-paid-channel/internal/config"
	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

const yooMoneyQuickpayURL = "https://yoomoney.ru/quickpay/confirm.xml"

// YooMoney is the wallet/card rail. Payments are created as Quickpay form
// URLs labeled with our payment id; the only confirmation path is the
// server-to-server notification signed with the wallet's notification secret.
type YooMoney struct {
	receiver  string
	secret    string
	returnURL string
	log       *zerolog.Logger
}

var _ adapter.PaymentProvider = (*YooMoney)(nil)

func NewYooMoney(cfg config.YooMoneyConfig, logger *zerolog.Logger) (*YooMoney, error) {
	if cfg.Receiver == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("yoomoney receiver/secret not configured: %w", domain.ErrAuth)
	}
	l := logger.With().Str("component", "yoomoney").Logger()
	return &YooMoney{
		receiver:  cfg.Receiver,
		secret:    cfg.Secret,
		returnURL: cfg.ReturnURL,
		log:       &l,
	}, nil
}

func (y *YooMoney) Name() string { return "yoomoney" }

func (y *YooMoney) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Currencies:     []string{"RUB"},
		Min:            decimal.NewFromInt(1),
		Max:            decimal.NewFromInt(500000), // wallet transfer limit
		PushOnly:       true,
		SupportsCancel: false,
	}
}

func (y *YooMoney) CreatePayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	if err := validateRequest(y.Capabilities(), req); err != nil {
		return nil, err
	}

	label := uuid.NewString()
	q := url.Values{}
	q.Set("receiver", y.receiver)
	q.Set("quickpay-form", "shop")
	q.Set("targets", req.Description)
	q.Set("paymentType", "SB")
	q.Set("sum", req.Amount.StringFixed(2))
	q.Set("label", label)
	if req.ReturnURL != "" {
		q.Set("successURL", req.ReturnURL)
	} else if y.returnURL != "" {
		q.Set("successURL", y.returnURL)
	}

	payURL := yooMoneyQuickpayURL + "?" + q.Encode()

	raw, _ := json.Marshal(map[string]string{
		"receiver": y.receiver,
		"label":    label,
		"sum":      req.Amount.StringFixed(2),
	})

	y.log.Info().Str("label", label).Str("amount", req.Amount.String()).Int64("user_id", req.UserID).Msg("quickpay form created")

	return &model.PaymentResponse{
		ExternalID: label,
		PayURL:     payURL,
		Raw:        raw,
	}, nil
}

// CheckStatus cannot learn anything new for this rail: YooMoney only tells us
// about a transfer through the signed notification.
func (y *YooMoney) CheckStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	return model.PaymentStatusPending, nil
}

// ParseWebhook handles the form-encoded YooMoney notification. The signature
// is SHA-1 over the documented parameter join with the notification secret
// spliced in. Notifications are only sent for incoming transfers, so a
// verified envelope always means completed.
func (y *YooMoney) ParseWebhook(body []byte, header http.Header) model.WebhookResult {
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return model.WebhookResult{Reason: "malformed form body"}
	}

	label := params.Get("label")
	if label == "" {
		return model.WebhookResult{Reason: "missing label"}
	}

	joined := strings.Join([]string{
		params.Get("notification_type"),
		params.Get("operation_id"),
		params.Get("amount"),
		params.Get("currency"),
		params.Get("datetime"),
		params.Get("sender"),
		params.Get("codepro"),
		y.secret,
		label,
	}, "&")
	sum := sha1.Sum([]byte(joined))
	want := hex.EncodeToString(sum[:])

	if !strings.EqualFold(want, params.Get("sha1_hash")) {
		return model.WebhookResult{ExternalID: label, Reason: "sha1_hash mismatch"}
	}
	if params.Get("codepro") == "true" {
		// Protected transfers are not credited until released; do not apply.
		return model.WebhookResult{ExternalID: label, Reason: "codepro-protected transfer"}
	}

	amount, _ := decimal.NewFromString(params.Get("amount"))

	return model.WebhookResult{
		ExternalID: label,
		Status:     model.PaymentStatusCompleted,
		Amount:     amount,
		Verified:   true,
	}
}
