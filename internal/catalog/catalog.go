// Package catalog provides the immutable product and location data the market prices against.
// Loaded once at startup; nothing downstream mutates it.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Product categories used by the built-in catalog and by seasonal modifiers.
const (
	CategoryFood      = "FOOD"
	CategoryMaterials = "MATERIALS"
	CategoryCrafted   = "CRAFTED"
	CategoryRemedy    = "REMEDY"
	CategoryLuxury    = "LUXURY"
)

// MaxVolatility is the upper bound of Product.Volatility.
const MaxVolatility = 10

// Product is a tradeable good. Prices are in whole crowns.
type Product struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	BasePrice   int64    `yaml:"base_price" json:"base_price"`
	MinPrice    int64    `yaml:"min_price" json:"min_price"`
	MaxPrice    int64    `yaml:"max_price" json:"max_price"`
	Volatility  int      `yaml:"volatility" json:"volatility"` // 0–10
	Category    string   `yaml:"category" json:"category"`
	AvailableAt []string `yaml:"available_at" json:"available_at"`
}

// SoldAt reports whether the product can be traded at the given location.
func (p Product) SoldAt(locationID string) bool {
	return slices.Contains(p.AvailableAt, locationID)
}

// Range returns the width of the product's allowed price band.
func (p Product) Range() int64 {
	return p.MaxPrice - p.MinPrice
}

// Location is a town the player can visit.
type Location struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Factor   float64  `yaml:"factor" json:"factor"` // Multiplicative price scalar
	Products []string `yaml:"products" json:"products"`
}

// Catalog holds every product and location in load order.
type Catalog struct {
	Products  []Product  `yaml:"products" json:"products"`
	Locations []Location `yaml:"locations" json:"locations"`
}

// Load reads a YAML catalog from disk, normalizes it, and validates it.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog, normalizes it, and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Normalize merges each location's product list into the products' AvailableAt sets,
// so either side of the relation may declare availability.
func (c *Catalog) Normalize() {
	index := make(map[string]int, len(c.Products))
	for i, p := range c.Products {
		index[p.ID] = i
	}
	for _, loc := range c.Locations {
		for _, pid := range loc.Products {
			i, ok := index[pid]
			if !ok {
				continue // reported by Validate
			}
			if !c.Products[i].SoldAt(loc.ID) {
				c.Products[i].AvailableAt = append(c.Products[i].AvailableAt, loc.ID)
			}
		}
	}
}

// ErrInvalidCatalog is wrapped by every validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Validate rejects catalogs that would break pricing invariants.
func (c *Catalog) Validate() error {
	if len(c.Products) == 0 {
		return fmt.Errorf("%w: no products", ErrInvalidCatalog)
	}

	locs := make(map[string]bool, len(c.Locations))
	for _, loc := range c.Locations {
		if loc.ID == "" {
			return fmt.Errorf("%w: location with empty id", ErrInvalidCatalog)
		}
		if locs[loc.ID] {
			return fmt.Errorf("%w: duplicate location %q", ErrInvalidCatalog, loc.ID)
		}
		if !(loc.Factor > 0) {
			return fmt.Errorf("%w: location %q factor must be > 0, got %v", ErrInvalidCatalog, loc.ID, loc.Factor)
		}
		locs[loc.ID] = true
	}

	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" {
			return fmt.Errorf("%w: product with empty id", ErrInvalidCatalog)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate product %q", ErrInvalidCatalog, p.ID)
		}
		seen[p.ID] = true

		if err := ValidateProduct(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		for _, lid := range p.AvailableAt {
			if !locs[lid] {
				return fmt.Errorf("%w: product %q references unknown location %q", ErrInvalidCatalog, p.ID, lid)
			}
		}
	}

	for _, loc := range c.Locations {
		for _, pid := range loc.Products {
			if !seen[pid] {
				return fmt.Errorf("%w: location %q references unknown product %q", ErrInvalidCatalog, loc.ID, pid)
			}
		}
	}
	return nil
}

// ValidateProduct checks a single product's price bounds and volatility.
func ValidateProduct(p Product) error {
	if p.MinPrice <= 0 {
		return fmt.Errorf("product %q min price must be > 0, got %d", p.ID, p.MinPrice)
	}
	if !(p.MinPrice < p.BasePrice && p.BasePrice < p.MaxPrice) {
		return fmt.Errorf("product %q requires min < base < max, got %d/%d/%d",
			p.ID, p.MinPrice, p.BasePrice, p.MaxPrice)
	}
	if p.Volatility < 0 || p.Volatility > MaxVolatility {
		return fmt.Errorf("product %q volatility must be 0–%d, got %d", p.ID, MaxVolatility, p.Volatility)
	}
	if p.Category == "" {
		return fmt.Errorf("product %q has no category", p.ID)
	}
	return nil
}

// Product looks up a product by id.
func (c *Catalog) Product(id string) (Product, bool) {
	for _, p := range c.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Location looks up a location by id.
func (c *Catalog) Location(id string) (Location, bool) {
	for _, l := range c.Locations {
		if l.ID == id {
			return l, true
		}
	}
	return Location{}, false
}

// ProductsInCategory returns the ids of all products tagged with category, in catalog order.
func (c *Catalog) ProductsInCategory(category string) []string {
	var ids []string
	for _, p := range c.Products {
		if p.Category == category {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	var cats []string
	for _, p := range c.Products {
		if !slices.Contains(cats, p.Category) {
			cats = append(cats, p.Category)
		}
	}
	return cats
}
