package economy

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// noiseField produces the engine's stochastic shocks. One OpenSimplex field per
// product, seeded from the product id, sampled along the week axis; the second
// coordinate is a per-(product, week) hash offset so neighbouring weeks are
// correlated but not identical. Every value is reproducible from (productID, week).
type noiseField struct {
	frequency float64

	mu     sync.Mutex
	fields map[string]opensimplex.Noise
}

func newNoiseField(frequency float64) *noiseField {
	return &noiseField{
		frequency: frequency,
		fields:    make(map[string]opensimplex.Noise),
	}
}

// Seed derives the deterministic seed for a product in a given week.
func Seed(productID string, week int) uint64 {
	d := xxhash.New()
	d.WriteString(productID)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(week))
	d.Write(buf[:])
	return d.Sum64()
}

func (n *noiseField) field(productID string) opensimplex.Noise {
	n.mu.Lock()
	defer n.mu.Unlock()
	f, ok := n.fields[productID]
	if !ok {
		f = opensimplex.NewNormalized(int64(xxhash.Sum64String(productID)))
		n.fields[productID] = f
	}
	return f
}

// Shock returns a value in [-1, 1] for the product and week.
func (n *noiseField) Shock(productID string, week int) float64 {
	offset := float64(Seed(productID, week)%4096) / 4096
	v := n.field(productID).Eval2(float64(week)*n.frequency, offset)
	s := 2*v - 1
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
