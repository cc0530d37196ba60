package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/rivalapex/vra/internal/config"
)

// Config holds the tunable thresholds of the engine.
type Config struct {
	FXBandPct        decimal.Decimal
	ViewabilityGapPP decimal.Decimal
	BaselineDays     int
	Currency         string
}

// DefaultConfig returns a 2% FX band, a 10pp viewability gap and a 28 day
// baseline.
func DefaultConfig() Config {
	return Config{
		FXBandPct:        decimal.NewFromFloat(2.0),
		ViewabilityGapPP: decimal.NewFromInt(10),
		BaselineDays:     28,
		Currency:         "USD",
	}
}

// ConfigFrom converts the file/env configuration.
func ConfigFrom(c config.ReconcileConfig) Config {
	cfg := DefaultConfig()
	cfg.FXBandPct = decimal.NewFromFloat(c.FXBandPct)
	cfg.ViewabilityGapPP = decimal.NewFromFloat(c.ViewabilityGapPP)
	if c.BaselineDays > 0 {
		cfg.BaselineDays = c.BaselineDays
	}
	if c.Currency != "" {
		cfg.Currency = c.Currency
	}
	return cfg
}
