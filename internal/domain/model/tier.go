package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is one row of the externally supplied price/duration table.
type Tier struct {
	Code         string
	Title        string
	Price        decimal.Decimal
	Currency     string
	DurationDays int
	TrialDays    int
}

func (t *Tier) Duration() time.Duration {
	return time.Duration(t.DurationDays) * 24 * time.Hour
}

func (t *Tier) TrialDuration() time.Duration {
	return time.Duration(t.TrialDays) * 24 * time.Hour
}
