package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-market/internal/catalog"
)

func TestGenerateForLocation_FiltersInCatalogOrder(t *testing.T) {
	m := newTestMarket(t)
	c := catalog.Default()
	loc, ok := c.Location("ironford")
	require.True(t, ok)

	rows := m.GenerateForLocation(c.Products, loc, OpeningHistory(c.Products), 1, nil)

	var ids []string
	for _, r := range rows {
		ids = append(ids, r.Product.ID)
		assert.NoError(t, r.Err)
		assert.GreaterOrEqual(t, r.Result.Price, r.Product.MinPrice)
		assert.LessOrEqual(t, r.Result.Price, r.Product.MaxPrice)
	}
	assert.Equal(t, []string{"grain", "timber", "iron_ore", "stone", "coal", "tools", "weapons"}, ids)

	again := m.GenerateForLocation(c.Products, loc, OpeningHistory(c.Products), 1, nil)
	assert.Equal(t, rows, again)
}

func TestGenerateForLocation_NoEligibleProducts(t *testing.T) {
	m := newTestMarket(t)
	c := catalog.Default()
	empty := catalog.Location{ID: "ghost_town", Name: "Ghost Town", Factor: 1}

	rows := m.GenerateForLocation(c.Products, empty, OpeningHistory(c.Products), 1, nil)
	require.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestGenerateForLocation_MatchesBatchAtFactorOne(t *testing.T) {
	m := newTestMarket(t)
	c := catalog.Default()
	history := OpeningHistory(c.Products)
	mods := &ModifierSet{}
	mustAdd(t, mods, Modifier{Tier: TierCategory, Target: catalog.CategoryFood, Multiplier: 1.15, Remaining: 3})

	ashhaven, _ := c.Location("ashhaven")
	rows := m.GenerateForLocation(c.Products, ashhaven, history, 1, mods)
	batch := m.UpdateAll(c.Products, 1, history, mods)

	for _, r := range rows {
		assert.Equal(t, batch.History[r.Product.ID].Price, r.Result.Price, r.Product.ID)
	}
}

func TestGenerateForLocation_MissingHistoryStartsAtBase(t *testing.T) {
	m := newTestMarket(t)
	c := catalog.Default()
	loc, _ := c.Location("goldport")

	withOpening := m.GenerateForLocation(c.Products, loc, OpeningHistory(c.Products), 2, nil)
	withNothing := m.GenerateForLocation(c.Products, loc, PriceHistory{}, 2, nil)
	assert.Equal(t, withOpening, withNothing)
}

func TestGenerateForLocation_HoldsPriceOnError(t *testing.T) {
	m := newTestMarket(t)
	p := bread
	p.AvailableAt = []string{"town"}
	loc := catalog.Location{ID: "town", Factor: 1.5}

	rows := m.GenerateForLocation([]catalog.Product{p}, loc, PriceHistory{"bread": {Price: -5}}, 1, nil)
	require.Len(t, rows, 1)
	assert.ErrorIs(t, rows[0].Err, ErrDataIntegrity)
	assert.Equal(t, TrendError, rows[0].Result.Trend)
}

func TestLocationTrend_FactorIsNotAReversal(t *testing.T) {
	m := newTestMarket(t)
	p := catalog.Product{
		ID: "amber", Name: "Amber", BasePrice: 1000, MinPrice: 200, MaxPrice: 5000,
		Volatility: 5, Category: catalog.CategoryLuxury, AvailableAt: []string{"goldport"},
	}
	// A steady fall on the shared scale.
	prev := PriceRecord{Price: 900, Trend: TrendFalling, History: History{1000, 950, 900}, Week: 2}
	eff := Neutral()
	eff.Category = 0.8

	falls := 0
	for week := 3; week <= 40; week++ {
		res, err := m.Engine().CalculatePrice(p, week, prev, 1.25, eff)
		require.NoError(t, err)
		if res.ChangePercent > 0 {
			continue
		}
		falls++
		assert.NotEqual(t, TrendVolatile, res.Trend, "week %d change %.4f", week, res.ChangePercent)
		assert.Equal(t, Classify(res.ChangePercent, p.Volatility), res.Trend, "week %d", week)
	}
	require.Positive(t, falls)
}
