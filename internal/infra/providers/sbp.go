package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"telegram-paid-channel/internal/config"
	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

// SBP is the bank-transfer rail: the user scans an NSPK QR code in their
// banking app. With a merchant id we build dynamic per-order QR payloads and
// can poll the acquiring bank for status; with only a phone number we fall
// back to a static QR and rely on the bank notification alone.
type SBP struct {
	merchantID string
	bankID     string
	apiURL     string
	secret     string
	phone      string
	qrSize     int
	client     *http.Client
	log        *zerolog.Logger
}

var _ adapter.PaymentProvider = (*SBP)(nil)

func NewSBP(cfg config.SBPConfig, timeout time.Duration, logger *zerolog.Logger) (*SBP, error) {
	if cfg.MerchantID == "" && cfg.Phone == "" {
		return nil, fmt.Errorf("sbp needs merchant_id or phone: %w", domain.ErrAuth)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "sbp").Logger()
	return &SBP{
		merchantID: cfg.MerchantID,
		bankID:     cfg.BankID,
		apiURL:     strings.TrimSuffix(cfg.APIURL, "/"),
		secret:     cfg.Secret,
		phone:      cfg.Phone,
		qrSize:     cfg.QRSize,
		client:     &http.Client{Timeout: timeout},
		log:        &l,
	}, nil
}

func (s *SBP) Name() string { return "sbp" }

func (s *SBP) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Currencies:     []string{"RUB"},
		Min:            decimal.NewFromInt(1),
		Max:            decimal.NewFromInt(1000000), // per-operation SBP limit
		PushOnly:       s.apiURL == "" || s.merchantID == "",
		SupportsCancel: false,
	}
}

func (s *SBP) qrPayload(orderID string, amount decimal.Decimal, description string) string {
	if s.merchantID != "" {
		return fmt.Sprintf("https://qr.nspk.ru/%s/%s?amount=%s&currency=RUB&order=%s&desc=%s",
			s.bankID, s.merchantID, amount.StringFixed(2), orderID, url.QueryEscape(description))
	}
	return fmt.Sprintf("https://qr.nspk.ru/AD10006M/%s?amount=%s&currency=RUB&desc=%s",
		s.phone, amount.StringFixed(2), url.QueryEscape(description))
}

func (s *SBP) CreatePayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error) {
	if err := validateRequest(s.Capabilities(), req); err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	desc := req.Description
	if desc == "" {
		desc = "Channel subscription"
	}
	payload := s.qrPayload(orderID, req.Amount, desc)

	png, err := qrcode.Encode(payload, qrcode.Low, s.qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", domain.ErrValidation)
	}

	s.log.Info().Str("order_id", orderID).Str("amount", req.Amount.String()).Int64("user_id", req.UserID).Msg("sbp qr created")

	raw, _ := json.Marshal(map[string]string{"order_id": orderID, "qr_payload": payload})
	return &model.PaymentResponse{
		ExternalID:   orderID,
		PayURL:       payload,
		Instructions: "Scan the QR code in your banking app and confirm the transfer.",
		QRCodePNG:    png,
		Raw:          raw,
	}, nil
}

var sbpStatusMap = map[string]model.PaymentStatus{
	"completed": model.PaymentStatusCompleted,
	"success":   model.PaymentStatusCompleted,
	"paid":      model.PaymentStatusCompleted,
	"failed":    model.PaymentStatusFailed,
	"error":     model.PaymentStatusFailed,
	"cancelled": model.PaymentStatusCancelled,
	"pending":   model.PaymentStatusPending,
}

// CheckStatus polls the acquiring bank when an API is configured. A missing
// order on the bank side is still pending (the QR may not have been scanned).
func (s *SBP) CheckStatus(ctx context.Context, externalID string) (model.PaymentStatus, error) {
	if s.apiURL == "" || s.merchantID == "" {
		return model.PaymentStatusPending, nil
	}

	reqURL := fmt.Sprintf("%s/payments/%s", s.apiURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", domain.ErrValidation)
	}
	req.Header.Set("Accept", "application/json")
	if s.secret != "" {
		req.Header.Set("Authorization", "Bearer "+s.secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bank status request: %v: %w", err, domain.ErrNetwork)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// handled below
	case resp.StatusCode == http.StatusNotFound:
		return model.PaymentStatusPending, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("bank rejected credentials (%d): %w", resp.StatusCode, domain.ErrAuth)
	default:
		return "", fmt.Errorf("bank status %d: %w", resp.StatusCode, domain.ErrNetwork)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read bank response: %v: %w", err, domain.ErrNetwork)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("unmarshal bank response: %v: %w", err, domain.ErrNetwork)
	}

	st, ok := sbpStatusMap[strings.ToLower(payload.Status)]
	if !ok {
		st = model.PaymentStatusPending
	}
	return st, nil
}

// sbpWebhook is the bank's JSON notification.
type sbpWebhook struct {
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Timestamp     string `json:"timestamp"`
}

// ParseWebhook checks the HMAC-SHA256 of the raw body against the
// X-Signature header with a constant-time compare, then maps the
// bank's status vocabulary onto the canonical enum.
func (s *SBP) ParseWebhook(body []byte, header http.Header) model.WebhookResult {
	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		got := header.Get("X-Signature")
		if got == "" || !hmac.Equal([]byte(want), []byte(strings.ToLower(got))) {
			return model.WebhookResult{Reason: "hmac signature mismatch"}
		}
	}

	var wh sbpWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return model.WebhookResult{Reason: "malformed bank notification"}
	}
	orderID := wh.OrderID
	if orderID == "" {
		orderID = wh.PaymentID
	}
	if orderID == "" {
		return model.WebhookResult{Reason: "missing order id"}
	}

	st, ok := sbpStatusMap[strings.ToLower(wh.Status)]
	if !ok {
		st = model.PaymentStatusPending
	}
	amount, _ := decimal.NewFromString(wh.Amount)

	var paidAt *time.Time
	if wh.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, wh.Timestamp); err == nil {
			paidAt = &t
		}
	}

	return model.WebhookResult{
		ExternalID: orderID,
		Status:     st,
		Amount:     amount,
		PaidAt:     paidAt,
		Verified:   true,
	}
}
