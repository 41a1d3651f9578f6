package catalog

// Default returns the built-in catalog: fifteen goods across five towns.
// Base prices follow the old settlement market table scaled ×10 so single-crown
// rounding stays small relative to weekly moves.
func Default() *Catalog {
	c := &Catalog{
		Products: []Product{
			{ID: "grain", Name: "Grain", BasePrice: 20, MinPrice: 8, MaxPrice: 60, Volatility: 3, Category: CategoryFood},
			{ID: "fish", Name: "Fish", BasePrice: 20, MinPrice: 6, MaxPrice: 60, Volatility: 4, Category: CategoryFood},
			{ID: "timber", Name: "Timber", BasePrice: 30, MinPrice: 12, MaxPrice: 80, Volatility: 2, Category: CategoryMaterials},
			{ID: "iron_ore", Name: "Iron Ore", BasePrice: 40, MinPrice: 15, MaxPrice: 110, Volatility: 3, Category: CategoryMaterials},
			{ID: "stone", Name: "Stone", BasePrice: 30, MinPrice: 12, MaxPrice: 70, Volatility: 1, Category: CategoryMaterials},
			{ID: "coal", Name: "Coal", BasePrice: 40, MinPrice: 15, MaxPrice: 120, Volatility: 4, Category: CategoryMaterials},
			{ID: "herbs", Name: "Herbs", BasePrice: 50, MinPrice: 15, MaxPrice: 150, Volatility: 6, Category: CategoryRemedy},
			{ID: "furs", Name: "Furs", BasePrice: 60, MinPrice: 20, MaxPrice: 200, Volatility: 5, Category: CategoryLuxury},
			{ID: "gems", Name: "Gems", BasePrice: 150, MinPrice: 50, MaxPrice: 600, Volatility: 9, Category: CategoryLuxury},
			{ID: "exotics", Name: "Exotics", BasePrice: 200, MinPrice: 60, MaxPrice: 800, Volatility: 10, Category: CategoryLuxury},
			{ID: "tools", Name: "Tools", BasePrice: 100, MinPrice: 40, MaxPrice: 250, Volatility: 2, Category: CategoryCrafted},
			{ID: "weapons", Name: "Weapons", BasePrice: 150, MinPrice: 60, MaxPrice: 400, Volatility: 5, Category: CategoryCrafted},
			{ID: "clothing", Name: "Clothing", BasePrice: 80, MinPrice: 30, MaxPrice: 200, Volatility: 3, Category: CategoryCrafted},
			{ID: "medicine", Name: "Medicine", BasePrice: 120, MinPrice: 40, MaxPrice: 400, Volatility: 7, Category: CategoryRemedy},
			{ID: "luxuries", Name: "Luxuries", BasePrice: 250, MinPrice: 80, MaxPrice: 900, Volatility: 8, Category: CategoryLuxury},
		},
		Locations: []Location{
			{
				ID: "ironford", Name: "Ironford", Factor: 0.9,
				Products: []string{"grain", "timber", "iron_ore", "stone", "coal", "tools", "weapons"},
			},
			{
				ID: "ashhaven", Name: "Ashhaven", Factor: 1.0,
				Products: []string{"grain", "fish", "timber", "herbs", "clothing", "medicine"},
			},
			{
				ID: "goldport", Name: "Goldport", Factor: 1.25,
				Products: []string{"fish", "furs", "gems", "exotics", "clothing", "luxuries", "weapons"},
			},
			{
				ID: "frostmoor", Name: "Frostmoor", Factor: 1.1,
				Products: []string{"fish", "furs", "coal", "herbs", "medicine"},
			},
			{
				ID: "stonebridge", Name: "Stonebridge", Factor: 0.95,
				Products: []string{"grain", "stone", "timber", "tools", "clothing", "gems"},
			},
		},
	}
	c.Normalize()
	return c
}
