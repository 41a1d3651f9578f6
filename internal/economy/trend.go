package economy

import (
	"fmt"
	"math"
)

// TrendLabel summarizes a product's recent price trajectory.
type TrendLabel uint8

const (
	TrendStable TrendLabel = iota
	TrendStableHigh
	TrendStableLow
	TrendRising
	TrendRisingStrong
	TrendFalling
	TrendFallingStrong
	TrendVolatile

	// TrendError marks a change-log entry whose product failed to update.
	// Never assigned to a PriceRecord.
	TrendError
)

var trendNames = [...]string{
	TrendStable:        "stable",
	TrendStableHigh:    "stable_high",
	TrendStableLow:     "stable_low",
	TrendRising:        "rising",
	TrendRisingStrong:  "rising_strong",
	TrendFalling:       "falling",
	TrendFallingStrong: "falling_strong",
	TrendVolatile:      "volatile",
	TrendError:         "error",
}

func (t TrendLabel) String() string {
	if int(t) < len(trendNames) {
		return trendNames[t]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (t TrendLabel) MarshalText() ([]byte, error) {
	if int(t) >= len(trendNames) {
		return nil, fmt.Errorf("unknown trend label %d", t)
	}
	return []byte(trendNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TrendLabel) UnmarshalText(b []byte) error {
	label, err := ParseTrend(string(b))
	if err != nil {
		return err
	}
	*t = label
	return nil
}

// ParseTrend converts a label name back to a TrendLabel.
func ParseTrend(s string) (TrendLabel, error) {
	for i, name := range trendNames {
		if name == s {
			return TrendLabel(i), nil
		}
	}
	return TrendStable, fmt.Errorf("unknown trend label %q", s)
}

// Classification thresholds, as fractions of price, for a volatility-0 product.
// Each widens linearly with volatility: at volatility 10 they are doubled.
const (
	StableBand   = 0.02
	StrongBand   = 0.10
	VolatileBand = 0.15
)

func volatilityScale(volatility int) float64 {
	return 1 + float64(volatility)/10
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Classify maps a single-step change ratio to a trend label. Pure.
func Classify(changePercent float64, volatility int) TrendLabel {
	c := finiteOrZero(changePercent)
	scale := volatilityScale(volatility)
	band := StableBand * scale
	strong := StrongBand * scale

	switch {
	case c > strong:
		return TrendRisingStrong
	case c > band:
		return TrendRising
	case c < -strong:
		return TrendFallingStrong
	case c < -band:
		return TrendFalling
	case c > band/4:
		return TrendStableHigh
	case c < -band/4:
		return TrendStableLow
	default:
		return TrendStable
	}
}

// ClassifyHistory is Classify plus whipsaw detection: when the last two deltas in
// history reverse direction and their combined magnitude exceeds the scaled
// volatile band, the label is TrendVolatile unless the net move is already strong.
// history must include the price the change refers to as its last element.
func ClassifyHistory(changePercent float64, volatility int, history History) TrendLabel {
	swing, ok := history.swing()
	return classifyWhipsaw(changePercent, volatility, swing, ok)
}

// ClassifyMove is ClassifyHistory for a move not yet in prior. The whipsaw is
// judged from prior's last delta and changePercent, so prior may be on a
// different price scale than the move, as with location listings.
func ClassifyMove(changePercent float64, volatility int, prior History) TrendLabel {
	swing, ok := prior.swingWith(changePercent)
	return classifyWhipsaw(changePercent, volatility, swing, ok)
}

func classifyWhipsaw(changePercent float64, volatility int, swing float64, reversed bool) TrendLabel {
	label := Classify(changePercent, volatility)
	if label == TrendRisingStrong || label == TrendFallingStrong {
		return label
	}
	if reversed && swing > VolatileBand*volatilityScale(volatility) {
		return TrendVolatile
	}
	return label
}
