package economy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/talgya/mini-market/internal/catalog"
)

// Tier is the scope a modifier applies to.
type Tier uint8

const (
	TierGlobal Tier = iota
	TierCategory
	TierProduct
)

// resolutionOrder is the modifier pipeline. Stages combine multiplicatively.
var resolutionOrder = [...]Tier{TierGlobal, TierCategory, TierProduct}

func (t Tier) String() string {
	switch t {
	case TierGlobal:
		return "global"
	case TierCategory:
		return "category"
	case TierProduct:
		return "product"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if t > TierProduct {
		return nil, fmt.Errorf("unknown tier %d", t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	tier, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// ParseTier converts "global", "category" or "product" to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "global":
		return TierGlobal, nil
	case "category":
		return TierCategory, nil
	case "product":
		return TierProduct, nil
	}
	return TierGlobal, &ConfigurationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", s)}
}

// Modifier is a temporary multiplicative price adjustment.
type Modifier struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Tier       Tier      `json:"tier"`
	Target     string    `json:"target,omitempty"` // Category tag or product id; empty for global
	Multiplier float64   `json:"multiplier"`
	Remaining  int       `json:"remaining"`           // Weeks left
	StartsAt   int       `json:"starts_at,omitempty"` // First week it applies
}

// ActiveIn reports whether the modifier participates in resolution for week.
func (m Modifier) ActiveIn(week int) bool {
	return m.Remaining > 0 && m.StartsAt <= week
}

// AppliesTo reports whether the modifier's scope covers the product.
func (m Modifier) AppliesTo(p catalog.Product) bool {
	switch m.Tier {
	case TierGlobal:
		return true
	case TierCategory:
		return m.Target == p.Category
	case TierProduct:
		return m.Target == p.ID
	}
	return false
}

// Validate rejects modifiers the engine must never see.
func (m Modifier) Validate() error {
	if math.IsNaN(m.Multiplier) || math.IsInf(m.Multiplier, 0) || m.Multiplier <= 0 {
		return &ConfigurationError{Field: "multiplier", Reason: fmt.Sprintf("must be a positive finite number, got %v", m.Multiplier)}
	}
	if m.Remaining < 1 {
		return &ConfigurationError{Field: "duration", Reason: fmt.Sprintf("must be at least 1 week, got %d", m.Remaining)}
	}
	if m.StartsAt < 0 {
		return &ConfigurationError{Field: "starts_at", Reason: fmt.Sprintf("must be >= 0, got %d", m.StartsAt)}
	}
	switch m.Tier {
	case TierGlobal:
		if m.Target != "" {
			return &ConfigurationError{Field: "target", Reason: "global modifiers take no target"}
		}
	case TierCategory, TierProduct:
		if m.Target == "" {
			return &ConfigurationError{Field: "target", Reason: fmt.Sprintf("%s modifier requires a target", m.Tier)}
		}
	default:
		return &ConfigurationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %d", m.Tier)}
	}
	return nil
}

// ModifierSet owns the active modifiers of one game session, in insertion order.
// It is not safe for concurrent mutation; the simulation serializes access.
type ModifierSet struct {
	mods []Modifier
}

// NewModifierSet builds a set from existing modifiers (e.g. rehydrated from storage).
func NewModifierSet(mods ...Modifier) (*ModifierSet, error) {
	s := &ModifierSet{}
	for _, m := range mods {
		if _, err := s.Add(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add validates and inserts a modifier, assigning an id if it has none.
func (s *ModifierSet) Add(m Modifier) (Modifier, error) {
	if err := m.Validate(); err != nil {
		return Modifier{}, err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	for _, existing := range s.mods {
		if existing.ID == m.ID {
			return Modifier{}, &ConfigurationError{Field: "id", Reason: fmt.Sprintf("duplicate modifier %s", m.ID)}
		}
	}
	s.mods = append(s.mods, m)
	return m, nil
}

// Remove deletes a modifier by id.
func (s *ModifierSet) Remove(id uuid.UUID) bool {
	for i, m := range s.mods {
		if m.ID == id {
			s.mods = append(s.mods[:i:i], s.mods[i+1:]...)
			return true
		}
	}
	return false
}

// All returns a copy of the modifiers in insertion order.
func (s *ModifierSet) All() []Modifier {
	if s == nil {
		return nil
	}
	out := make([]Modifier, len(s.mods))
	copy(out, s.mods)
	return out
}

// Len returns the number of stored modifiers.
func (s *ModifierSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.mods)
}

// Snapshot returns an independent copy for a batch to resolve against.
func (s *ModifierSet) Snapshot() *ModifierSet {
	return &ModifierSet{mods: s.All()}
}

// Advance decrements every modifier active in week exactly once, then prunes
// expired ones. Returns the removed modifiers. Called once per processed week.
func (s *ModifierSet) Advance(week int) []Modifier {
	for i := range s.mods {
		if s.mods[i].ActiveIn(week) {
			s.mods[i].Remaining--
		}
	}
	return s.Prune()
}

// Prune removes modifiers whose duration has reached zero.
func (s *ModifierSet) Prune() []Modifier {
	var expired []Modifier
	kept := s.mods[:0]
	for _, m := range s.mods {
		if m.Remaining <= 0 {
			expired = append(expired, m)
			continue
		}
		kept = append(kept, m)
	}
	s.mods = kept
	return expired
}

// Effective is the resolved multiplier set for one product in one week.
type Effective struct {
	Global      float64
	Category    float64
	Product     float64
	Applied     []uuid.UUID // Modifiers that contributed, in pipeline order
	Fingerprint uint64
}

// Value is the combined multiplier: global × category × product.
func (e Effective) Value() float64 {
	return e.Global * e.Category * e.Product
}

// Neutral is the effective multiplier when no modifier applies.
func Neutral() Effective {
	e := Effective{Global: 1, Category: 1, Product: 1}
	e.Fingerprint = e.fingerprint()
	return e
}

func (e Effective) stage(t Tier) float64 {
	switch t {
	case TierCategory:
		return e.Category
	case TierProduct:
		return e.Product
	}
	return e.Global
}

func (e *Effective) multiply(t Tier, v float64) {
	switch t {
	case TierGlobal:
		e.Global *= v
	case TierCategory:
		e.Category *= v
	case TierProduct:
		e.Product *= v
	}
}

func (e Effective) fingerprint() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, t := range resolutionOrder {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(e.stage(t)))
		d.Write(buf[:])
	}
	for _, id := range e.Applied {
		d.Write(id[:])
	}
	return d.Sum64()
}

// Resolve combines the modifiers in set that are active in week and cover the
// product. Stages run global → category → product; a missing stage is 1.0.
// Resolve never mutates the set, so repeated calls within a week agree.
func Resolve(week int, set *ModifierSet, p catalog.Product) Effective {
	e := Effective{Global: 1, Category: 1, Product: 1}
	if set != nil {
		for _, tier := range resolutionOrder {
			for _, m := range set.mods {
				if m.Tier != tier || !m.ActiveIn(week) || !m.AppliesTo(p) {
					continue
				}
				e.multiply(tier, m.Multiplier)
				e.Applied = append(e.Applied, m.ID)
			}
		}
	}
	e.Fingerprint = e.fingerprint()
	return e
}
