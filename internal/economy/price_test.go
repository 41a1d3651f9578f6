package economy

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/catalog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func recordAt(price int64, week int) PriceRecord {
	return PriceRecord{Price: price, History: History{price}, Week: week}
}

func globalMod(t *testing.T, multiplier float64) Effective {
	t.Helper()
	s := &ModifierSet{}
	mustAdd(t, s, Modifier{Tier: TierGlobal, Multiplier: multiplier, Remaining: 1})
	return Resolve(1, s, bread)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(c *Config){
		func(c *Config) { c.TrendSwitchWeek = 0 },
		func(c *Config) { c.PriceChangeMaxRatio = 0 },
		func(c *Config) { c.PriceChangeMaxRatio = 1.5 },
		func(c *Config) { c.StochasticScale = -1 },
		func(c *Config) { c.NoiseFrequency = 0 },
		func(c *Config) { c.HistoryLength = 2 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewEngine(cfg)
		assert.ErrorIs(t, err, ErrConfiguration, "case %d", i)
	}
}

func TestEngine_Drift(t *testing.T) {
	e := newTestEngine(t)
	assert.Greater(t, e.Drift(1), 0.0)
	assert.Greater(t, e.Drift(25), 0.0)
	assert.Less(t, e.Drift(26), 0.0)
	assert.Less(t, e.Drift(52), 0.0)
}

func TestCalculatePrice_Deterministic(t *testing.T) {
	a := newTestEngine(t)
	b := newTestEngine(t)
	prev := recordAt(500, 0)
	eff := globalMod(t, 1.07)

	for week := 1; week <= 52; week++ {
		r1, err := a.CalculatePrice(bread, week, prev, 1.1, eff)
		require.NoError(t, err)
		r2, err := a.CalculatePrice(bread, week, prev, 1.1, eff)
		require.NoError(t, err)
		r3, err := b.CalculatePrice(bread, week, prev, 1.1, eff)
		require.NoError(t, err)

		assert.Equal(t, r1, r2)
		assert.Equal(t, r1, r3)
		assert.Equal(t, math.Float64bits(r1.ChangePercent), math.Float64bits(r3.ChangePercent))
	}
}

func TestCalculatePrice_BoundedAcrossGame(t *testing.T) {
	e := newTestEngine(t)
	cfg := e.Config()

	for _, p := range catalog.Default().Products {
		rec := NewPriceRecord(p)
		for week := 1; week <= 52; week++ {
			res, err := e.CalculatePrice(p, week, rec, 1, Neutral())
			require.NoError(t, err)
			assert.GreaterOrEqual(t, res.Price, p.MinPrice, "%s week %d", p.ID, week)
			assert.LessOrEqual(t, res.Price, p.MaxPrice, "%s week %d", p.ID, week)
			assert.LessOrEqual(t, math.Abs(res.ChangePercent), cfg.PriceChangeMaxRatio, "%s week %d", p.ID, week)

			rec, err = rec.Commit(p.ID, week, res, cfg.HistoryLength)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(rec.History), cfg.HistoryLength)
		}
	}
}

func TestCalculatePrice_ClampHoldsUnderExtremeModifiers(t *testing.T) {
	e := newTestEngine(t)
	maxRatio := e.Config().PriceChangeMaxRatio

	for _, mult := range []float64{0.01, 0.5, 2, 10, 1000} {
		eff := globalMod(t, mult)
		for _, factor := range []float64{0.5, 1, 1.3, 3} {
			for week := 1; week <= 52; week += 3 {
				res, err := e.CalculatePrice(bread, week, recordAt(500, week-1), factor, eff)
				require.NoError(t, err)
				assert.LessOrEqual(t, math.Abs(res.ChangePercent), maxRatio)
				assert.GreaterOrEqual(t, res.Price, bread.MinPrice)
				assert.LessOrEqual(t, res.Price, bread.MaxPrice)
			}
		}
	}

	// Pinned at the ceiling with a huge bullish modifier.
	res, err := e.CalculatePrice(bread, 1, recordAt(1000, 0), 1, globalMod(t, 1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Price)
	assert.Zero(t, res.ChangePercent)
}

func TestCalculatePrice_CategoryModifierRaisesFood(t *testing.T) {
	e := newTestEngine(t)
	prev := recordAt(500, 0)

	s := &ModifierSet{}
	mustAdd(t, s, Modifier{Tier: TierGlobal, Multiplier: 1.0, Remaining: 1})
	mustAdd(t, s, Modifier{Tier: TierCategory, Target: "FOOD", Multiplier: 1.05, Remaining: 1})

	plain, err := e.CalculatePrice(bread, 1, prev, 1, Neutral())
	require.NoError(t, err)
	boosted, err := e.CalculatePrice(bread, 1, prev, 1, Resolve(1, s, bread))
	require.NoError(t, err)

	assert.Greater(t, boosted.Price, plain.Price)
	for _, r := range []PriceResult{plain, boosted} {
		assert.GreaterOrEqual(t, r.Price, int64(100))
		assert.LessOrEqual(t, r.Price, int64(1000))
	}
}

func TestCalculatePrice_BullishBeatsBearish(t *testing.T) {
	e := newTestEngine(t)
	for week := 1; week <= 52; week++ {
		prev := recordAt(500, week-1)
		bull, err := e.CalculatePrice(bread, week, prev, 1, globalMod(t, 1.2))
		require.NoError(t, err)
		bear, err := e.CalculatePrice(bread, week, prev, 1, globalMod(t, 0.8))
		require.NoError(t, err)
		assert.Greater(t, bull.Price, bear.Price, "week %d", week)
	}
}

func TestCalculatePrice_LocationFactorScalesPrice(t *testing.T) {
	e := newTestEngine(t)
	prev := recordAt(500, 0)

	cheap, err := e.CalculatePrice(bread, 1, prev, 0.8, Neutral())
	require.NoError(t, err)
	dear, err := e.CalculatePrice(bread, 1, prev, 1.2, Neutral())
	require.NoError(t, err)
	neutral, err := e.CalculatePrice(bread, 1, prev, 1, Neutral())
	require.NoError(t, err)

	assert.Less(t, cheap.Price, neutral.Price)
	assert.Greater(t, dear.Price, neutral.Price)
	// The move itself is the same; the factor only rescales the reference.
	assert.InDelta(t, neutral.ChangePercent, dear.ChangePercent, 0.005)
}

func TestCalculatePrice_IntegrityErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.CalculatePrice(bread, 1, recordAt(0, 0), 1, Neutral())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataIntegrity)

	var integrity *DataIntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, "bread", integrity.ProductID)

	broken := bread
	broken.MaxPrice = 50
	_, err = e.CalculatePrice(broken, 1, recordAt(500, 0), 1, Neutral())
	assert.ErrorIs(t, err, ErrDataIntegrity)

	_, err = e.CalculatePrice(bread, 1, recordAt(500, 0), 0, Neutral())
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), roundHalfUp(2.5))
	assert.Equal(t, int64(2), roundHalfUp(2.4999))
	assert.Equal(t, int64(101), roundHalfUp(100.5))
}

func TestPriceRecord_Commit(t *testing.T) {
	rec := NewPriceRecord(bread)
	assert.Equal(t, History{500}, rec.History)

	next, err := rec.Commit("bread", 1, PriceResult{Price: 520, Trend: TrendRising, ChangePercent: 0.04}, 3)
	require.NoError(t, err)
	assert.Equal(t, History{500, 520}, next.History)
	assert.Equal(t, 1, next.Week)
	assert.Equal(t, History{500}, rec.History, "commit must not touch the previous record")

	for w, p := range []int64{530, 540, 550} {
		next, err = next.Commit("bread", w+2, PriceResult{Price: p}, 3)
		require.NoError(t, err)
	}
	assert.Equal(t, History{530, 540, 550}, next.History)

	_, err = next.Commit("bread", 4, PriceResult{Price: 1}, 3)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}
