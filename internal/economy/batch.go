package economy

import (
	"log/slog"
	"time"

	"github.com/talgya/mini-market/internal/catalog"
	"github.com/talgya/mini-market/internal/metrics"
)

// ChangeEntry records one product's move in a weekly batch.
type ChangeEntry struct {
	ProductID string     `json:"product_id"`
	OldPrice  int64      `json:"old_price"`
	NewPrice  int64      `json:"new_price"`
	Trend     TrendLabel `json:"trend"` // TrendError when the product failed to update
	Err       error      `json:"-"`
}

// Failed reports whether the product kept its previous record this week.
func (c ChangeEntry) Failed() bool {
	return c.Err != nil
}

// BatchResult is the outcome of one weekly update.
type BatchResult struct {
	Week    int
	History PriceHistory  // Replacement history; the input map is untouched
	Changes []ChangeEntry // One per product, catalog order
	Applied *ModifierSet  // Modifier state every product in the batch observed
	Expired []Modifier    // Modifiers removed after the batch
}

// Failures counts the products that kept their previous record.
func (b BatchResult) Failures() int {
	n := 0
	for _, c := range b.Changes {
		if c.Failed() {
			n++
		}
	}
	return n
}

// UpdateAll advances every product one week at location factor 1.
//
// All products resolve against one snapshot of mods taken before the batch.
// A product whose step fails keeps its previous record and gets a TrendError
// change entry; the rest of the market still moves. Once every product is done,
// mods is advanced exactly once and cache entries touched by expired modifiers
// are invalidated.
func (m *Market) UpdateAll(products []catalog.Product, week int, history PriceHistory, mods *ModifierSet) BatchResult {
	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	snapshot := mods.Snapshot()
	historyLength := m.engine.cfg.HistoryLength

	next := history.Clone()
	changes := make([]ChangeEntry, 0, len(products))
	for _, p := range products {
		prev, ok := history[p.ID]
		if !ok {
			prev = NewPriceRecord(p)
		}

		entry := ChangeEntry{ProductID: p.ID, OldPrice: prev.Price}
		res, err := m.Price(p, week, prev, 1, Resolve(week, snapshot, p))
		var rec PriceRecord
		if err == nil {
			rec, err = prev.Commit(p.ID, week, res, historyLength)
		}
		if err != nil {
			slog.Warn("price update failed, holding previous price",
				"product", p.ID,
				"week", week,
				"error", err,
			)
			metrics.PriceUpdateErrors.WithLabelValues(p.ID).Inc()
			entry.NewPrice = prev.Price
			entry.Trend = TrendError
			entry.Err = err
			next[p.ID] = prev
			changes = append(changes, entry)
			continue
		}

		entry.NewPrice = rec.Price
		entry.Trend = rec.Trend
		next[p.ID] = rec
		changes = append(changes, entry)
	}

	var expired []Modifier
	if mods != nil {
		expired = mods.Advance(week)
		metrics.ActiveModifiers.Set(float64(mods.Len()))
	}
	if len(expired) > 0 {
		m.invalidateFor(products, expired)
	}

	return BatchResult{
		Week:    week,
		History: next,
		Changes: changes,
		Applied: snapshot,
		Expired: expired,
	}
}

// invalidateFor drops cache entries for every product covered by the given modifiers.
func (m *Market) invalidateFor(products []catalog.Product, mods []Modifier) {
	var ids []string
	for _, p := range products {
		for _, mod := range mods {
			if mod.Tier == TierGlobal {
				m.cache.Invalidate()
				return
			}
			if mod.AppliesTo(p) {
				ids = append(ids, p.ID)
				break
			}
		}
	}
	if len(ids) > 0 {
		m.cache.Invalidate(ids...)
	}
}

// InvalidateFor is the cache hook for the event system: call it right after
// adding or removing modifiers.
func (m *Market) InvalidateFor(products []catalog.Product, mods ...Modifier) {
	m.invalidateFor(products, mods)
}
