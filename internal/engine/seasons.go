// Seasonal market pressure.
package engine

import (
	"fmt"

	"github.com/talgya/mini-market/internal/catalog"
	"github.com/talgya/mini-market/internal/economy"
)

// Season constants.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

// SeasonName returns a human-readable season name.
func SeasonName(season int) string {
	switch season {
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	case SeasonWinter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// SeasonOf returns the season a week falls in. Week 1 opens spring.
func SeasonOf(week int) int {
	if week < 1 {
		return SeasonSpring
	}
	return ((week - 1) / WeeksPerSeason) % SeasonsPerYear
}

// SeasonalPressure returns the weekly category multiplier for a season.
// Modifiers compound into the committed price every week they are active, so
// these are small nudges, not levels.
func SeasonalPressure(season int, category string) float64 {
	// Food is dear in winter, cheap after harvest. Furs and luxuries sell in
	// winter. Remedies are plentiful in summer.
	switch season {
	case SeasonWinter:
		switch category {
		case catalog.CategoryFood:
			return 1.03
		case catalog.CategoryLuxury:
			return 1.02
		case catalog.CategoryRemedy:
			return 1.02
		}
	case SeasonSpring:
		switch category {
		case catalog.CategoryFood:
			return 1.01
		case catalog.CategoryRemedy:
			return 0.99
		}
	case SeasonSummer:
		switch category {
		case catalog.CategoryRemedy:
			return 0.98
		case catalog.CategoryLuxury:
			return 0.99
		}
	case SeasonAutumn:
		switch category {
		case catalog.CategoryFood:
			return 0.97
		case catalog.CategoryMaterials:
			return 1.01
		}
	}
	return 1.0
}

// SeasonalEvent builds the market event that opens a season: one category
// modifier per category with non-neutral pressure, lasting the whole season.
func SeasonalEvent(season int, cat *catalog.Catalog) MarketEvent {
	ev := MarketEvent{
		Name:        fmt.Sprintf("%s markets", SeasonName(season)),
		Description: fmt.Sprintf("%s arrives and the traders adjust their stalls", SeasonName(season)),
		Source:      SourceSeason,
	}
	for _, category := range cat.Categories() {
		mult := SeasonalPressure(season, category)
		if mult == 1.0 {
			continue
		}
		ev.Effects = append(ev.Effects, Effect{
			Tier:       economy.TierCategory,
			Target:     category,
			Multiplier: mult,
			Duration:   WeeksPerSeason,
		})
	}
	return ev
}
