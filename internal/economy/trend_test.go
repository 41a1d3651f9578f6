package economy

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Bands(t *testing.T) {
	tests := []struct {
		change     float64
		volatility int
		want       TrendLabel
	}{
		{0, 0, TrendStable},
		{0.004, 0, TrendStable},
		{0.015, 0, TrendStableHigh},
		{-0.015, 0, TrendStableLow},
		{0.05, 0, TrendRising},
		{-0.05, 0, TrendFalling},
		{0.2, 0, TrendRisingStrong},
		{-0.2, 0, TrendFallingStrong},
		// Volatility 10 doubles every band.
		{0.03, 10, TrendStableHigh},
		{0.15, 10, TrendRising},
		{-0.15, 10, TrendFalling},
		{0.25, 10, TrendRisingStrong},
	}

	for _, tt := range tests {
		got := Classify(tt.change, tt.volatility)
		assert.Equal(t, tt.want, got, "Classify(%v, %d)", tt.change, tt.volatility)
	}
}

func TestClassify_HigherVolatilityNeedsLargerMove(t *testing.T) {
	assert.Equal(t, TrendRising, Classify(0.03, 0))
	assert.NotEqual(t, TrendRising, Classify(0.03, 10))
}

func TestClassify_NonFiniteIsZero(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, TrendStable, Classify(v, 5))
		assert.Equal(t, TrendStable, ClassifyHistory(v, 5, History{100, 100, 100}))
	}
}

func TestClassifyHistory_Whipsaw(t *testing.T) {
	// Up 20%, down ~17%: net small, oscillation large.
	h := History{100, 120, 100}
	assert.Equal(t, TrendStable, Classify(0, 0))
	assert.Equal(t, TrendVolatile, ClassifyHistory(0, 0, h))

	// Same swing stays below the doubled threshold of a volatility-10 product.
	assert.NotEqual(t, TrendVolatile, ClassifyHistory(0, 10, History{100, 110, 100}))

	// Monotonic moves are never volatile.
	assert.Equal(t, TrendRising, ClassifyHistory(0.05, 0, History{100, 110, 121}))

	// A strong net move keeps its label.
	assert.Equal(t, TrendFallingStrong, ClassifyHistory(-0.25, 0, History{100, 140, 105}))

	// Too short to judge.
	assert.Equal(t, TrendStable, ClassifyHistory(0, 0, History{100, 150}))
}

func TestTrendLabel_Text(t *testing.T) {
	for label := TrendStable; label <= TrendError; label++ {
		b, err := label.MarshalText()
		require.NoError(t, err)

		var back TrendLabel
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, label, back)
	}

	data, err := json.Marshal(map[string]TrendLabel{"t": TrendRisingStrong})
	require.NoError(t, err)
	assert.JSONEq(t, `{"t":"rising_strong"}`, string(data))

	_, err = ParseTrend("sideways")
	assert.Error(t, err)
}

func TestClassifyMove(t *testing.T) {
	// Down 8% then up 8%.
	assert.Equal(t, TrendVolatile, ClassifyMove(0.08, 0, History{1000, 920}))
	// Continuing the fall.
	assert.Equal(t, TrendFalling, ClassifyMove(-0.05, 0, History{1000, 950}))
	// Scale of prior does not matter, only its direction.
	assert.Equal(t, ClassifyMove(-0.05, 0, History{1000, 950}), ClassifyMove(-0.05, 0, History{4000, 3800}))
	assert.Equal(t, TrendRising, ClassifyMove(0.08, 0, History{920}))

	// Agrees with ClassifyHistory when the move lands on the same scale.
	assert.Equal(t, ClassifyHistory(-1.0/6, 0, History{100, 120, 100}), ClassifyMove(-1.0/6, 0, History{100, 120}))
}
