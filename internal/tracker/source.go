package tracker

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"pricewatch/internal/store"
)

// PriceSource produces the current market price for a product. Implementations
// must be safe for concurrent use; probes for distinct products run in
// parallel worker goroutines.
type PriceSource interface {
	Fetch(ctx context.Context, p *store.Product) (float64, error)
}

// RandomSource is the built-in source: a uniform price in [Min, Max) rounded
// to cents. It stands in for real storefront scrapers, which plug in behind
// the same interface.
type RandomSource struct {
	Min float64
	Max float64

	mu  sync.Mutex
	rng *rand.Rand
}

var _ PriceSource = (*RandomSource)(nil)

// NewRandomSource returns a source over [min, max). Invalid bounds fall back
// to the 50..200 default range.
func NewRandomSource(min, max float64) *RandomSource {
	if min <= 0 || max <= min {
		min, max = 50, 200
	}
	return &RandomSource{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RandomSource) Fetch(ctx context.Context, p *store.Product) (float64, error) {
	s.mu.Lock()
	v := s.Min + s.rng.Float64()*(s.Max-s.Min)
	s.mu.Unlock()
	return math.Round(v*100) / 100, nil
}
