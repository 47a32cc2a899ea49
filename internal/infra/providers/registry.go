package providers

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"telegram-paid-channel/internal/config"
	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/ports/adapter"
)

// Registry is the closed set of configured provider variants, keyed by tag.
// A provider with incomplete credentials is simply absent.
type Registry struct {
	providers map[string]adapter.PaymentProvider
}

func NewRegistry(cfg config.ProvidersConfig, timeout time.Duration, sender InvoiceSender, logger *zerolog.Logger) *Registry {
	r := &Registry{providers: make(map[string]adapter.PaymentProvider)}

	if ym, err := NewYooMoney(cfg.YooMoney, logger); err == nil {
		r.providers[ym.Name()] = ym
	} else {
		logger.Warn().Err(err).Msg("yoomoney provider disabled")
	}
	if st, err := NewStars(cfg.Stars, sender, logger); err == nil {
		r.providers[st.Name()] = st
	} else {
		logger.Warn().Err(err).Msg("stars provider disabled")
	}
	if sbp, err := NewSBP(cfg.SBP, timeout, logger); err == nil {
		r.providers[sbp.Name()] = sbp
	} else {
		logger.Warn().Err(err).Msg("sbp provider disabled")
	}

	return r
}

// NewRegistryFrom builds a registry from pre-constructed providers (tests).
func NewRegistryFrom(ps ...adapter.PaymentProvider) *Registry {
	r := &Registry{providers: make(map[string]adapter.PaymentProvider, len(ps))}
	for _, p := range ps {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(tag string) (adapter.PaymentProvider, error) {
	p, ok := r.providers[tag]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", tag, domain.ErrProviderUnavailable)
	}
	return p, nil
}

func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.providers))
	for tag := range r.providers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
