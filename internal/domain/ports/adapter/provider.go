package adapter

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"telegram-paid-channel/internal/domain/model"
)

// Capabilities is static metadata declared by each provider variant.
// None of the current rails supports cancellation; SupportsCancel is kept as
// a capability flag rather than baked into the interface so a future rail can
// declare it without changing the contract.
type Capabilities struct {
	Currencies     []string
	Min            decimal.Decimal
	Max            decimal.Decimal
	PushOnly       bool // webhooks only; CheckStatus cannot learn anything new
	SupportsCancel bool
}

func (c Capabilities) SupportsCurrency(code string) bool {
	for _, cur := range c.Currencies {
		if cur == code {
			return true
		}
	}
	return false
}

// PaymentProvider is the capability set shared by all payment rails.
//
// CreatePayment fails with domain.ErrValidation when the amount is outside
// the declared bounds or the currency is unsupported, domain.ErrAuth on
// credential failure, and domain.ErrNetwork on transport failure (retryable).
//
// CheckStatus is the synchronous reconciliation path used when webhooks are
// delayed or lost; it is safe to call arbitrarily often. Push-only rails
// report pending.
//
// ParseWebhook never returns an error for a bad signature or a malformed
// envelope; it reports Verified=false so the pipeline can log-and-drop.
type PaymentProvider interface {
	Name() string
	Capabilities() Capabilities
	CreatePayment(ctx context.Context, req model.PaymentRequest) (*model.PaymentResponse, error)
	CheckStatus(ctx context.Context, externalID string) (model.PaymentStatus, error)
	ParseWebhook(body []byte, header http.Header) model.WebhookResult
}
