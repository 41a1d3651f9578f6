package economy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingCompute(calls *int, res PriceResult) func() (PriceResult, error) {
	return func() (PriceResult, error) {
		*calls++
		return res, nil
	}
}

func TestPriceCache_HitSkipsCompute(t *testing.T) {
	c := NewPriceCache(16, 2)
	key := CacheKey{ProductID: "bread", Week: 1, PrevPrice: 500}
	want := PriceResult{Price: 512, Trend: TrendStableHigh, ChangePercent: 0.024}

	calls := 0
	got, err := c.GetOrCompute(key, countingCompute(&calls, want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = c.GetOrCompute(key, countingCompute(&calls, PriceResult{Price: 1}))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)
}

func TestPriceCache_InvalidateAll(t *testing.T) {
	c := NewPriceCache(16, 2)
	a := CacheKey{ProductID: "a", Week: 1}
	b := CacheKey{ProductID: "b", Week: 1}

	calls := 0
	c.GetOrCompute(a, countingCompute(&calls, PriceResult{Price: 1}))
	c.GetOrCompute(b, countingCompute(&calls, PriceResult{Price: 2}))
	require.Equal(t, 2, c.Len())

	c.Invalidate()
	assert.Zero(t, c.Len())

	got, err := c.GetOrCompute(a, countingCompute(&calls, PriceResult{Price: 10}))
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Price)
	assert.Equal(t, 3, calls)
}

func TestPriceCache_InvalidateProduct(t *testing.T) {
	c := NewPriceCache(16, 2)
	a := CacheKey{ProductID: "a", Week: 1}
	a2 := CacheKey{ProductID: "a", Week: 1, LocationFactor: 1.2}
	b := CacheKey{ProductID: "b", Week: 1}

	calls := 0
	for _, k := range []CacheKey{a, a2, b} {
		c.GetOrCompute(k, countingCompute(&calls, PriceResult{Price: 1}))
	}
	require.Equal(t, 3, c.Len())

	c.Invalidate("a")
	assert.Equal(t, 1, c.Len())

	c.GetOrCompute(b, countingCompute(&calls, PriceResult{Price: 1}))
	assert.Equal(t, 3, calls, "b must still be cached")
	c.GetOrCompute(a, countingCompute(&calls, PriceResult{Price: 1}))
	assert.Equal(t, 4, calls, "a must be recomputed")
}

func TestPriceCache_ErrorsAreNotCached(t *testing.T) {
	c := NewPriceCache(16, 2)
	key := CacheKey{ProductID: "bad", Week: 1}
	boom := errors.New("boom")

	_, err := c.GetOrCompute(key, func() (PriceResult, error) { return PriceResult{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	calls := 0
	_, err = c.GetOrCompute(key, countingCompute(&calls, PriceResult{Price: 3}))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPriceCache_InvalidateDuringComputeIsNotStored(t *testing.T) {
	c := NewPriceCache(16, 2)
	key := CacheKey{ProductID: "a", Week: 1}

	_, err := c.GetOrCompute(key, func() (PriceResult, error) {
		c.Invalidate("a")
		return PriceResult{Price: 7}, nil
	})
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestPriceCache_RetentionEvictsOldWeeks(t *testing.T) {
	c := NewPriceCache(64, 1)
	calls := 0
	for week := 1; week <= 3; week++ {
		c.GetOrCompute(CacheKey{ProductID: "a", Week: week}, countingCompute(&calls, PriceResult{Price: int64(week)}))
	}
	// Week 3 seen: weeks < 2 are gone.
	assert.Equal(t, 2, c.Len())

	c.GetOrCompute(CacheKey{ProductID: "a", Week: 1}, countingCompute(&calls, PriceResult{Price: 1}))
	assert.Equal(t, 4, calls)
}

func TestPriceCache_BoundedByCapacity(t *testing.T) {
	c := NewPriceCache(4, 10)
	calls := 0
	for i := 0; i < 10; i++ {
		c.GetOrCompute(CacheKey{ProductID: "a", Week: 1, PrevPrice: int64(i)}, countingCompute(&calls, PriceResult{}))
	}
	assert.Equal(t, 4, c.Len())
}

func TestMarket_PriceUsesFullKey(t *testing.T) {
	m, err := NewMarket(DefaultConfig(), NewPriceCache(64, 2))
	require.NoError(t, err)

	prev := recordAt(500, 0)
	first, err := m.Price(bread, 1, prev, 1, Neutral())
	require.NoError(t, err)
	again, err := m.Price(bread, 1, prev, 1, Neutral())
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, m.Cache().Len())

	// A new modifier fingerprint is a new key, never the stale entry.
	boosted, err := m.Price(bread, 1, prev, 1, globalMod(t, 1.2))
	require.NoError(t, err)
	assert.Greater(t, boosted.Price, first.Price)
	assert.Equal(t, 2, m.Cache().Len())

	// So is a different history behind the same previous price.
	prev.History = History{480, 500}
	_, err = m.Price(bread, 1, prev, 1, Neutral())
	require.NoError(t, err)
	assert.Equal(t, 3, m.Cache().Len())
}
