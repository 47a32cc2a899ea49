package providers

import (
	"fmt"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

// validateRequest enforces the provider's declared amount bounds and currency
// set before anything is dispatched to the external rail.
func validateRequest(caps adapter.Capabilities, req model.PaymentRequest) error {
	if req.Amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	if !caps.SupportsCurrency(req.Currency) {
		return fmt.Errorf("currency %s not supported: %w", req.Currency, domain.ErrValidation)
	}
	if req.Amount.LessThan(caps.Min) {
		return fmt.Errorf("amount %s below provider minimum %s: %w", req.Amount, caps.Min, domain.ErrValidation)
	}
	if req.Amount.GreaterThan(caps.Max) {
		return fmt.Errorf("amount %s above provider maximum %s: %w", req.Amount, caps.Max, domain.ErrValidation)
	}
	if req.UserID == 0 {
		return fmt.Errorf("missing user id: %w", domain.ErrValidation)
	}
	return nil
}
