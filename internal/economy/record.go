package economy

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/talgya/mini-market/internal/catalog"
)

// DefaultHistoryLength bounds PriceRecord.History when no config is supplied.
const DefaultHistoryLength = 12

// History is an ordered sequence of past prices, oldest first.
type History []int64

// Append returns a copy of h with p added, dropping the oldest entries beyond limit.
// The receiver is never modified.
func (h History) Append(p int64, limit int) History {
	if limit < 1 {
		limit = 1
	}
	start := 0
	if len(h)+1 > limit {
		start = len(h) + 1 - limit
	}
	out := make(History, 0, limit)
	out = append(out, h[start:]...)
	return append(out, p)
}

// swing returns the summed magnitude of the last two deltas when they reverse direction.
func (h History) swing() (float64, bool) {
	n := len(h)
	if n < 3 {
		return 0, false
	}
	c := float64(h[n-1])
	b := float64(h[n-2])
	if b <= 0 {
		return 0, false
	}
	return h[:n-1].swingWith((c - b) / b)
}

// swingWith is swing for a move of next percent appended to h. The move is
// relative, so it can be measured against a location-scaled reference while h
// stays on the shared scale.
func (h History) swingWith(next float64) (float64, bool) {
	n := len(h)
	if n < 2 {
		return 0, false
	}
	a, b := float64(h[n-2]), float64(h[n-1])
	if a <= 0 || b <= 0 {
		return 0, false
	}
	d1 := (b - a) / a
	if d1*next >= 0 {
		return 0, false
	}
	return math.Abs(d1) + math.Abs(next), true
}

// Hash fingerprints the history for cache keys.
func (h History) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, p := range h {
		binary.LittleEndian.PutUint64(buf[:], uint64(p))
		d.Write(buf[:])
	}
	return d.Sum64()
}

// PriceResult is the outcome of one pricing step.
type PriceResult struct {
	Price         int64      `json:"price"`
	Trend         TrendLabel `json:"trend"`
	ChangePercent float64    `json:"change_percent"`
}

// PriceRecord is a product's committed price state. Only the engine and the
// batch updater produce new records; everyone else reads.
type PriceRecord struct {
	Price         int64      `json:"price"`
	Trend         TrendLabel `json:"trend"`
	ChangePercent float64    `json:"change_percent"`
	History       History    `json:"history"`
	Week          int        `json:"week"` // Week of the last commit, 0 = opening price
}

// NewPriceRecord returns the opening record for a product: its base price, stable.
func NewPriceRecord(p catalog.Product) PriceRecord {
	return PriceRecord{
		Price:   p.BasePrice,
		Trend:   TrendStable,
		History: History{p.BasePrice},
	}
}

// Commit returns the record advanced to week with result applied.
// Weeks must strictly increase.
func (r PriceRecord) Commit(productID string, week int, res PriceResult, historyLength int) (PriceRecord, error) {
	if week <= r.Week {
		return r, integrityErrorf(productID, "commit for week %d after week %d", week, r.Week)
	}
	return PriceRecord{
		Price:         res.Price,
		Trend:         res.Trend,
		ChangePercent: res.ChangePercent,
		History:       r.History.Append(res.Price, historyLength),
		Week:          week,
	}, nil
}

// Result returns the record's current price as a PriceResult.
func (r PriceRecord) Result() PriceResult {
	return PriceResult{Price: r.Price, Trend: r.Trend, ChangePercent: r.ChangePercent}
}

// PriceHistory maps product id to its committed record.
type PriceHistory map[string]PriceRecord

// Clone returns a shallow copy; records are values and History slices are never
// mutated in place, so sharing them is safe.
func (h PriceHistory) Clone() PriceHistory {
	out := make(PriceHistory, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// OpeningHistory builds week-0 records for every product.
func OpeningHistory(products []catalog.Product) PriceHistory {
	h := make(PriceHistory, len(products))
	for _, p := range products {
		h[p.ID] = NewPriceRecord(p)
	}
	return h
}
