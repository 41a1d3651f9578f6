package engine

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/mini-market/internal/catalog"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/metrics"
)

// EventSource says what raised a market event.
type EventSource string

const (
	SourceSeason EventSource = "season"
	SourceAdmin  EventSource = "admin"
	SourceRandom EventSource = "random"
)

// Effect is one modifier an event installs.
type Effect struct {
	Tier       economy.Tier `json:"tier"`
	Target     string       `json:"target,omitempty"`
	Multiplier float64      `json:"multiplier"`
	Duration   int          `json:"duration"`        // Weeks
	Delay      int          `json:"delay,omitempty"` // Weeks after the next one before it starts
}

// MarketEvent is a named bundle of modifiers: a festival, a blockade, a season.
type MarketEvent struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Source      EventSource `json:"source"`
	Effects     []Effect    `json:"effects"`
}

// ApplyEvent installs an event's modifiers. Every effect is validated first;
// on any error nothing is installed. Effects start with the next processed
// week, so the current week's listings are unchanged.
func (s *Simulation) ApplyEvent(ev MarketEvent) ([]economy.Modifier, error) {
	if len(ev.Effects) == 0 {
		return nil, &economy.ConfigurationError{Field: "effects", Reason: "event has no effects"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]economy.Modifier, 0, len(ev.Effects))
	for i, e := range ev.Effects {
		if e.Delay < 0 {
			return nil, fmt.Errorf("effect %d: %w", i, &economy.ConfigurationError{Field: "delay", Reason: fmt.Sprintf("must be >= 0, got %d", e.Delay)})
		}
		m := economy.Modifier{
			Name:       ev.Name,
			Tier:       e.Tier,
			Target:     e.Target,
			Multiplier: e.Multiplier,
			Remaining:  e.Duration,
			StartsAt:   s.week + 1 + e.Delay,
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		if err := checkTarget(s.catalog, m); err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		pending = append(pending, m)
	}

	added := make([]economy.Modifier, 0, len(pending))
	for _, m := range pending {
		mod, err := s.modifiers.Add(m)
		if err != nil {
			for _, a := range added {
				s.modifiers.Remove(a.ID)
			}
			return nil, err
		}
		added = append(added, mod)
	}
	s.market.InvalidateFor(s.catalog.Products, added...)
	s.stats.ActiveModifiers = s.modifiers.Len()

	source := ev.Source
	if source == "" {
		source = SourceAdmin
	}
	metrics.EventsApplied.WithLabelValues(string(source)).Inc()
	metrics.ActiveModifiers.Set(float64(s.modifiers.Len()))

	desc := ev.Description
	if desc == "" {
		desc = ev.Name
	}
	// Filed under the week it takes effect in.
	s.emit(Event{
		Week:        s.week + 1,
		Description: desc,
		Category:    "market_event",
		Meta: map[string]any{
			"name":      ev.Name,
			"source":    string(source),
			"modifiers": len(added),
		},
	})

	slog.Info("market event applied", "name", ev.Name, "source", source, "modifiers", len(added), "week", s.week)
	return added, nil
}

// checkTarget rejects modifiers aimed at something the catalog does not carry.
func checkTarget(cat *catalog.Catalog, m economy.Modifier) error {
	switch m.Tier {
	case economy.TierCategory:
		if len(cat.ProductsInCategory(m.Target)) == 0 {
			return &economy.ConfigurationError{Field: "target", Reason: fmt.Sprintf("no products in category %q", m.Target)}
		}
	case economy.TierProduct:
		if _, ok := cat.Product(m.Target); !ok {
			return &economy.ConfigurationError{Field: "target", Reason: fmt.Sprintf("unknown product %q", m.Target)}
		}
	}
	return nil
}

// randomEvents are the disturbances that can hit the market in any week.
var randomEvents = []MarketEvent{
	{
		Name:        "Bandits on the trade roads",
		Description: "Caravans travel under guard and every merchant raises prices",
		Effects:     []Effect{{Tier: economy.TierGlobal, Multiplier: 1.03, Duration: 3}},
	},
	{
		Name:        "Bumper harvest",
		Description: "Granaries overflow and food sellers undercut each other",
		Effects:     []Effect{{Tier: economy.TierCategory, Target: catalog.CategoryFood, Multiplier: 0.95, Duration: 2}},
	},
	{
		Name:        "Mine collapse",
		Description: "A collapse in the hills leaves the quarries and pits short of hands",
		Effects:     []Effect{{Tier: economy.TierCategory, Target: catalog.CategoryMaterials, Multiplier: 1.05, Duration: 2}},
	},
	{
		Name:        "Fever season",
		Description: "Sickness spreads along the river and healers sell out",
		Effects:     []Effect{{Tier: economy.TierCategory, Target: catalog.CategoryRemedy, Multiplier: 1.06, Duration: 3}},
	},
	{
		Name:        "Noble house ruined",
		Description: "A bankrupt house dumps its treasures on the market",
		Effects:     []Effect{{Tier: economy.TierCategory, Target: catalog.CategoryLuxury, Multiplier: 0.94, Duration: 2}},
	},
	{
		Name:        "Guild overproduction",
		Description: "The craft guilds flood the stalls with finished goods",
		Effects:     []Effect{{Tier: economy.TierCategory, Target: catalog.CategoryCrafted, Multiplier: 0.96, Duration: 2}},
	},
}

// RollMarketEvent decides whether a random event strikes in week. The roll is
// seeded from the week, so a replayed game sees the same events. Events whose
// targets the catalog does not carry are never picked.
func RollMarketEvent(week int, chance float64, cat *catalog.Catalog) (MarketEvent, bool) {
	rng := rand.New(rand.NewSource(int64(economy.Seed("market-events", week))))
	if rng.Float64() >= chance {
		return MarketEvent{}, false
	}

	var eligible []MarketEvent
	for _, ev := range randomEvents {
		ok := true
		for _, e := range ev.Effects {
			if checkTarget(cat, economy.Modifier{Tier: e.Tier, Target: e.Target}) != nil {
				ok = false
				break
			}
		}
		if ok {
			eligible = append(eligible, ev)
		}
	}
	if len(eligible) == 0 {
		return MarketEvent{}, false
	}

	ev := eligible[rng.Intn(len(eligible))]
	ev.Source = SourceRandom
	ev.Effects = append([]Effect(nil), ev.Effects...)
	return ev, true
}
