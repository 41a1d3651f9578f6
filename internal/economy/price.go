// Package economy provides the market price simulation: trend classification,
// the weekly price engine, modifier resolution, memoization, and batch updates.
package economy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/talgya/mini-market/internal/catalog"
)

// Config holds the price engine's tuning parameters.
type Config struct {
	TrendSwitchWeek     int     // First week of the bear half of the cycle
	TrendInfluenceEarly float64 // Weekly drift before TrendSwitchWeek
	TrendInfluenceLate  float64 // Weekly drift from TrendSwitchWeek on
	PriceChangeMaxRatio float64 // Largest allowed single-week move, as a fraction
	StochasticScale     float64 // Shock size per unit of volatility/10 and price range
	NoiseFrequency      float64 // Week-axis sampling step of the noise field
	HistoryLength       int     // Bound on PriceRecord.History
}

// DefaultConfig returns the reference configuration for a 52-week game.
func DefaultConfig() Config {
	return Config{
		TrendSwitchWeek:     26,
		TrendInfluenceEarly: 0.02,
		TrendInfluenceLate:  -0.015,
		PriceChangeMaxRatio: 0.3,
		StochasticScale:     0.1,
		NoiseFrequency:      0.37,
		HistoryLength:       DefaultHistoryLength,
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c Config) Validate() error {
	if c.TrendSwitchWeek < 1 {
		return &ConfigurationError{Field: "trend_switch_week", Reason: fmt.Sprintf("must be >= 1, got %d", c.TrendSwitchWeek)}
	}
	if !(c.PriceChangeMaxRatio > 0 && c.PriceChangeMaxRatio < 1) {
		return &ConfigurationError{Field: "price_change_max_ratio", Reason: fmt.Sprintf("must be in (0, 1), got %v", c.PriceChangeMaxRatio)}
	}
	if c.StochasticScale < 0 || math.IsNaN(c.StochasticScale) {
		return &ConfigurationError{Field: "stochastic_scale", Reason: fmt.Sprintf("must be >= 0, got %v", c.StochasticScale)}
	}
	if !(c.NoiseFrequency > 0) {
		return &ConfigurationError{Field: "noise_frequency", Reason: fmt.Sprintf("must be > 0, got %v", c.NoiseFrequency)}
	}
	if c.HistoryLength < 3 {
		return &ConfigurationError{Field: "history_length", Reason: fmt.Sprintf("must be >= 3, got %d", c.HistoryLength)}
	}
	return nil
}

// Engine computes one product's price for one week. It holds no per-call state
// beyond the noise fields, which are pure functions of (product, week).
type Engine struct {
	cfg   Config
	noise *noiseField
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, noise: newNoiseField(cfg.NoiseFrequency)}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Drift returns the cycle bias for a week: bullish before the switch week, bearish after.
func (e *Engine) Drift(week int) float64 {
	if week < e.cfg.TrendSwitchWeek {
		return e.cfg.TrendInfluenceEarly
	}
	return e.cfg.TrendInfluenceLate
}

// CalculatePrice computes the product's price for week from its previous record.
//
// The underlying move is drift plus a volatility-scaled shock, clamped to
// ±PriceChangeMaxRatio. The location factor scales both the previous price and
// the result, so the reference for the change is the previous price as seen at
// that location; with a factor of 1 the change is (new − prev) / prev. Modifiers
// scale the post-location price. The step is clamped again around the
// reference, then into [MinPrice, MaxPrice], then rounded half-up to a crown.
//
// The returned result is not committed; use PriceRecord.Commit.
func (e *Engine) CalculatePrice(p catalog.Product, week int, prev PriceRecord, locationFactor float64, eff Effective) (PriceResult, error) {
	if err := catalog.ValidateProduct(p); err != nil {
		return PriceResult{}, &DataIntegrityError{ProductID: p.ID, Reason: err.Error()}
	}
	if prev.Price <= 0 {
		return PriceResult{}, integrityErrorf(p.ID, "previous price %d is not positive", prev.Price)
	}
	if !(locationFactor > 0) || math.IsInf(locationFactor, 0) {
		return PriceResult{}, integrityErrorf(p.ID, "location factor %v is not a positive finite number", locationFactor)
	}
	mult := eff.Value()
	if !(mult > 0) || math.IsInf(mult, 0) {
		return PriceResult{}, integrityErrorf(p.ID, "effective modifier %v is not a positive finite number", mult)
	}

	maxRatio := e.cfg.PriceChangeMaxRatio
	minP, maxP := float64(p.MinPrice), float64(p.MaxPrice)
	prevPrice := float64(prev.Price)

	// Underlying move.
	shock := e.noise.Shock(p.ID, week)
	spread := float64(p.Range()) / prevPrice
	stochastic := shock * float64(p.Volatility) / catalog.MaxVolatility * e.cfg.StochasticScale * spread
	pct := clamp(finiteOrZero(e.Drift(week)+stochastic), -maxRatio, maxRatio)

	reference := clamp(prevPrice*locationFactor, minP, maxP)
	raw := reference * (1 + pct) * mult

	lower := reference * (1 - maxRatio)
	upper := reference * (1 + maxRatio)
	price := clamp(raw, lower, upper)
	price = clamp(price, minP, maxP)

	rounded := roundHalfUp(price)
	if float64(rounded) > upper {
		rounded = int64(math.Floor(upper))
	}
	if float64(rounded) < lower {
		rounded = int64(math.Ceil(lower))
	}
	rounded = min(max(rounded, p.MinPrice), p.MaxPrice)

	// The band already holds; the clamp only absorbs float error at its edges.
	change := clamp(finiteOrZero((float64(rounded)-reference)/reference), -maxRatio, maxRatio)

	// prev.History is on the shared scale; the move is already relative to the
	// location's reference.
	return PriceResult{
		Price:         rounded,
		Trend:         ClassifyMove(change, p.Volatility, prev.History),
		ChangePercent: change,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// roundHalfUp rounds a positive price to whole crowns, halves rounding up.
func roundHalfUp(v float64) int64 {
	return decimal.NewFromFloat(v).Round(0).IntPart()
}
