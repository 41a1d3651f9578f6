// Simulation ties the catalog, the market and its modifiers together and
// advances them one week at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-market/internal/catalog"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/metrics"
)

const maxEvents = 1000

// Lookup errors returned by the read side.
var (
	ErrUnknownLocation = errors.New("unknown location")
	ErrUnknownProduct  = errors.New("unknown product")
	ErrNotSoldHere     = errors.New("product not sold at location")
	ErrMarketClosed    = errors.New("market has not opened yet")
)

// Simulation holds the complete market state of one game session.
type Simulation struct {
	mu sync.RWMutex

	catalog *catalog.Catalog
	market  *economy.Market

	week      int                  // Most recent week processed
	history   economy.PriceHistory // Records committed at week
	previous  economy.PriceHistory // Records the week's prices stepped from
	applied   *economy.ModifierSet // Modifier state the week's batch resolved against
	modifiers *economy.ModifierSet // Live modifiers, advanced once per week

	changes []economy.ChangeEntry // Last batch's change log
	events  []Event               // Recent events, newest last
	stats   MarketStats
}

// Event is a notable occurrence in the market.
type Event struct {
	Week        int            `json:"week"`
	Description string         `json:"description"`
	Category    string         `json:"category"` // "economy", "market_event", "modifier", "error"
	Meta        map[string]any `json:"meta,omitempty"`
}

// MarketStats tracks aggregate market statistics for the latest week.
type MarketStats struct {
	Week            int   `json:"week"`
	TotalValue      int64 `json:"total_value"` // Sum of committed prices
	Rising          int   `json:"rising"`
	Falling         int   `json:"falling"`
	Stable          int   `json:"stable"`
	Volatile        int   `json:"volatile"`
	Failures        int   `json:"failures"`
	ActiveModifiers int   `json:"active_modifiers"`
}

// State is everything needed to resume a session exactly where it stopped.
type State struct {
	Week      int
	History   economy.PriceHistory
	Previous  economy.PriceHistory
	Modifiers []economy.Modifier
	Applied   []economy.Modifier
}

// NewSimulation creates a session at week 0 with every product at its base price.
func NewSimulation(cat *catalog.Catalog, market *economy.Market) *Simulation {
	opening := economy.OpeningHistory(cat.Products)
	sim := &Simulation{
		catalog:   cat,
		market:    market,
		history:   opening,
		previous:  opening.Clone(),
		applied:   &economy.ModifierSet{},
		modifiers: &economy.ModifierSet{},
	}
	sim.updateStats()
	return sim
}

// Catalog returns the product and location catalog.
func (s *Simulation) Catalog() *catalog.Catalog {
	return s.catalog
}

// Market returns the pricing market.
func (s *Simulation) Market() *economy.Market {
	return s.market
}

// Week returns the most recently processed week.
func (s *Simulation) Week() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.week
}

// AdvanceWeek runs the weekly batch for week, which must directly follow the
// last processed week. It is the only writer of the price history.
func (s *Simulation) AdvanceWeek(week int) (economy.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if week != s.week+1 {
		return economy.BatchResult{}, fmt.Errorf("%w: week %d does not follow week %d", economy.ErrDataIntegrity, week, s.week)
	}

	res := s.market.UpdateAll(s.catalog.Products, week, s.history, s.modifiers)

	s.previous = s.history
	s.history = res.History
	s.applied = res.Applied
	s.changes = res.Changes
	s.week = week

	s.recordBatchEvents(res)
	s.updateStats()
	metrics.CurrentWeek.Set(float64(week))

	slog.Info("market week complete",
		"week", week,
		"time", GameTime(week),
		"market_value", humanize.Comma(s.stats.TotalValue),
		"rising", s.stats.Rising,
		"falling", s.stats.Falling,
		"volatile", s.stats.Volatile,
		"failures", s.stats.Failures,
		"modifiers", s.stats.ActiveModifiers,
		"expired", len(res.Expired),
	)
	return res, nil
}

func (s *Simulation) recordBatchEvents(res economy.BatchResult) {
	for _, c := range res.Changes {
		p, _ := s.catalog.Product(c.ProductID)
		switch {
		case c.Failed():
			s.emit(Event{
				Week:        res.Week,
				Description: fmt.Sprintf("Trading in %s is suspended; the price holds at %s", p.Name, humanize.Comma(c.OldPrice)),
				Category:    "error",
				Meta:        map[string]any{"product": c.ProductID, "error": c.Err.Error()},
			})
		case c.Trend == economy.TrendRisingStrong:
			s.emit(Event{
				Week:        res.Week,
				Description: fmt.Sprintf("%s prices surge from %s to %s", p.Name, humanize.Comma(c.OldPrice), humanize.Comma(c.NewPrice)),
				Category:    "economy",
				Meta:        map[string]any{"product": c.ProductID, "old_price": c.OldPrice, "new_price": c.NewPrice},
			})
		case c.Trend == economy.TrendFallingStrong:
			s.emit(Event{
				Week:        res.Week,
				Description: fmt.Sprintf("%s prices collapse from %s to %s", p.Name, humanize.Comma(c.OldPrice), humanize.Comma(c.NewPrice)),
				Category:    "economy",
				Meta:        map[string]any{"product": c.ProductID, "old_price": c.OldPrice, "new_price": c.NewPrice},
			})
		}
	}
	for _, m := range res.Expired {
		s.emit(Event{
			Week:        res.Week,
			Description: fmt.Sprintf("%s has run its course", m.Name),
			Category:    "modifier",
			Meta:        map[string]any{"modifier_id": m.ID.String(), "tier": m.Tier.String(), "target": m.Target},
		})
	}
}

// emit appends an event, dropping the oldest past maxEvents. Caller holds mu.
func (s *Simulation) emit(ev Event) {
	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

func (s *Simulation) updateStats() {
	stats := MarketStats{Week: s.week, ActiveModifiers: s.modifiers.Len()}
	for _, p := range s.catalog.Products {
		rec := s.history[p.ID]
		stats.TotalValue += rec.Price
		switch rec.Trend {
		case economy.TrendRising, economy.TrendRisingStrong:
			stats.Rising++
		case economy.TrendFalling, economy.TrendFallingStrong:
			stats.Falling++
		case economy.TrendVolatile:
			stats.Volatile++
		default:
			stats.Stable++
		}
	}
	for _, c := range s.changes {
		if c.Failed() {
			stats.Failures++
		}
	}
	s.stats = stats
}

// PricesAt returns the current week's listing at a location, in catalog order.
// At factor 1 it matches the committed batch prices exactly.
func (s *Simulation) PricesAt(locationID string) ([]economy.LocationPrice, error) {
	loc, ok := s.catalog.Location(locationID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocation, locationID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.week == 0 {
		return nil, ErrMarketClosed
	}
	return s.market.GenerateForLocation(s.catalog.Products, loc, s.previous, s.week, s.applied), nil
}

// Quote prices one product at one location for the current week.
func (s *Simulation) Quote(productID, locationID string) (economy.LocationPrice, error) {
	p, ok := s.catalog.Product(productID)
	if !ok {
		return economy.LocationPrice{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productID)
	}
	loc, ok := s.catalog.Location(locationID)
	if !ok {
		return economy.LocationPrice{}, fmt.Errorf("%w: %q", ErrUnknownLocation, locationID)
	}
	if !p.SoldAt(loc.ID) {
		return economy.LocationPrice{}, fmt.Errorf("%w: %s at %s", ErrNotSoldHere, p.ID, loc.ID)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.week == 0 {
		return economy.LocationPrice{}, ErrMarketClosed
	}
	rows := s.market.GenerateForLocation([]catalog.Product{p}, loc, s.previous, s.week, s.applied)
	return rows[0], nil
}

// Record returns the committed record of a product.
func (s *Simulation) Record(productID string) (economy.PriceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.history[productID]
	return rec, ok
}

// History returns a copy of the committed price history.
func (s *Simulation) History() economy.PriceHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Clone()
}

// Modifiers returns the live modifiers in insertion order.
func (s *Simulation) Modifiers() []economy.Modifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modifiers.All()
}

// Changes returns the change log of the last processed week.
func (s *Simulation) Changes() []economy.ChangeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]economy.ChangeEntry, len(s.changes))
	copy(out, s.changes)
	return out
}

// Events returns up to limit of the most recent events, oldest first.
// A limit of 0 or less returns all of them.
func (s *Simulation) Events(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Stats returns aggregate statistics for the latest week.
func (s *Simulation) Stats() MarketStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Snapshot captures the state needed to resume the session.
func (s *Simulation) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Week:      s.week,
		History:   s.history.Clone(),
		Previous:  s.previous.Clone(),
		Modifiers: s.modifiers.All(),
		Applied:   s.applied.All(),
	}
}

// Restore replaces the session state with a saved one. The price cache is
// purged; prices recompute identically from the restored inputs.
func (s *Simulation) Restore(st State) error {
	if st.Week < 0 {
		return fmt.Errorf("%w: negative week %d", economy.ErrDataIntegrity, st.Week)
	}
	mods, err := economy.NewModifierSet(st.Modifiers...)
	if err != nil {
		return fmt.Errorf("restore modifiers: %w", err)
	}
	applied, err := economy.NewModifierSet(st.Applied...)
	if err != nil {
		return fmt.Errorf("restore applied modifiers: %w", err)
	}

	history := st.History
	if history == nil {
		history = economy.OpeningHistory(s.catalog.Products)
	}
	previous := st.Previous
	if previous == nil {
		previous = history.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.week = st.Week
	s.history = history
	s.previous = previous
	s.modifiers = mods
	s.applied = applied
	s.changes = nil
	s.market.Cache().Invalidate()
	s.updateStats()

	metrics.CurrentWeek.Set(float64(s.week))
	metrics.ActiveModifiers.Set(float64(mods.Len()))
	slog.Info("market state restored", "week", s.week, "time", GameTime(s.week), "modifiers", mods.Len())
	return nil
}

// Attach registers the simulation's weekly and seasonal work on an engine.
// eventChance is the probability of a random market event in any week.
func (s *Simulation) Attach(eng *Engine, eventChance float64) {
	eng.SetWeek(s.Week())

	eng.OnSeason = func(week int) {
		season := SeasonOf(week)
		ev := SeasonalEvent(season, s.catalog)
		if len(ev.Effects) == 0 {
			return
		}
		if _, err := s.ApplyEvent(ev); err != nil {
			slog.Error("seasonal event rejected", "season", SeasonName(season), "error", err)
		}
	}

	eng.OnWeek = func(week int) {
		if ev, ok := RollMarketEvent(week, eventChance, s.catalog); ok {
			if _, err := s.ApplyEvent(ev); err != nil {
				slog.Error("random event rejected", "name", ev.Name, "error", err)
			}
		}
		if _, err := s.AdvanceWeek(week); err != nil {
			slog.Error("week advance failed", "week", week, "error", err)
		}
	}

	eng.OnGameOver = func(week int) {
		stats := s.Stats()
		slog.Info("game over",
			"week", week,
			"market_value", humanize.Comma(stats.TotalValue),
			"modifiers_left", stats.ActiveModifiers,
		)
	}
}
