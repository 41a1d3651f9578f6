package economy

import (
	"log/slog"

	"github.com/talgya/mini-market/internal/catalog"
)

// Market ties the engine to its cache. All pricing outside tests goes through it.
type Market struct {
	engine *Engine
	cache  *PriceCache
}

// NewMarket creates a market over a fresh engine. A nil cache gets a default one.
func NewMarket(cfg Config, cache *PriceCache) (*Market, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		cache = NewPriceCache(DefaultCacheSize, DefaultRetentionWeeks)
	}
	return &Market{engine: engine, cache: cache}, nil
}

// Engine returns the underlying price engine.
func (m *Market) Engine() *Engine { return m.engine }

// Cache returns the market's price cache.
func (m *Market) Cache() *PriceCache { return m.cache }

// Price is CalculatePrice behind the cache.
func (m *Market) Price(p catalog.Product, week int, prev PriceRecord, locationFactor float64, eff Effective) (PriceResult, error) {
	key := KeyFor(p.ID, week, prev, locationFactor, eff)
	return m.cache.GetOrCompute(key, func() (PriceResult, error) {
		return m.engine.CalculatePrice(p, week, prev, locationFactor, eff)
	})
}

// LocationPrice is one row of a location's market listing.
type LocationPrice struct {
	Product catalog.Product
	Result  PriceResult
	Err     error // Set when the price could not be computed; Result holds the last known price
}

// GenerateForLocation prices every product sold at loc, in catalog order.
// history holds the records the week's prices step from. Products without a
// record start from their opening price. A location selling nothing yields an
// empty, non-nil slice.
func (m *Market) GenerateForLocation(products []catalog.Product, loc catalog.Location, history PriceHistory, week int, mods *ModifierSet) []LocationPrice {
	out := make([]LocationPrice, 0, len(products))
	for _, p := range products {
		if !p.SoldAt(loc.ID) {
			continue
		}
		prev, ok := history[p.ID]
		if !ok {
			prev = NewPriceRecord(p)
		}

		eff := Resolve(week, mods, p)
		res, err := m.Price(p, week, prev, loc.Factor, eff)
		if err != nil {
			slog.Warn("location price failed, holding last price",
				"location", loc.ID,
				"product", p.ID,
				"week", week,
				"error", err,
			)
			res = heldResult(p, prev, loc.Factor)
		}
		out = append(out, LocationPrice{Product: p, Result: res, Err: err})
	}
	return out
}

// heldResult is the previous price as seen at a location, used when a step fails.
func heldResult(p catalog.Product, prev PriceRecord, locationFactor float64) PriceResult {
	price := prev.Price
	if locationFactor > 0 && price > 0 {
		price = roundHalfUp(float64(price) * locationFactor)
		if p.MinPrice > 0 && p.MinPrice < p.MaxPrice {
			price = min(max(price, p.MinPrice), p.MaxPrice)
		}
	}
	return PriceResult{Price: price, Trend: TrendError}
}
