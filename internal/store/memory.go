package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in process memory.
//
// Each product carries its own mutex so ApplyPriceCheck is atomic per product
// without serializing probes of distinct products.
type memoryStore struct {
	mu       sync.RWMutex
	products map[string]*memProduct

	snapMu sync.Mutex
	snaps  []Snapshot
}

type memProduct struct {
	mu sync.Mutex
	p  Product
}

var _ Store = (*memoryStore)(nil)

// NewMemory returns an empty in-memory store. It is also the store used by
// tests, so jobs are tested against the real Store interface.
func NewMemory() Store {
	return &memoryStore{products: map[string]*memProduct{}}
}

func (s *memoryStore) InsertProduct(ctx context.Context, p *Product) error {
	if p == nil {
		return fmt.Errorf("memory: product is nil")
	}
	if p.ID == "" {
		p.ID = newProductID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return fmt.Errorf("memory: duplicate product id %q", p.ID)
	}
	s.products[p.ID] = &memProduct{p: cloneProduct(*p)}
	return nil
}

func (s *memoryStore) GetProduct(ctx context.Context, id string) (*Product, error) {
	s.mu.RLock()
	e := s.products[id]
	s.mu.RUnlock()
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	cp := cloneProduct(e.p)
	e.mu.Unlock()
	return &cp, nil
}

func (s *memoryStore) ListActiveProducts(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	entries := make([]*memProduct, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Product, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.p.IsActive {
			out = append(out, cloneProduct(e.p))
		}
		e.mu.Unlock()
	}
	// Stable order keeps batch logs readable.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) CountProducts(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	entries := make([]*memProduct, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	total := 0
	active := 0
	for _, e := range entries {
		e.mu.Lock()
		total++
		if e.p.IsActive {
			active++
		}
		e.mu.Unlock()
	}
	return total, active, nil
}

func (s *memoryStore) ApplyPriceCheck(ctx context.Context, id string, chk PriceCheck) error {
	s.mu.RLock()
	e := s.products[id]
	s.mu.RUnlock()
	if e == nil {
		return ErrNotFound
	}
	if chk.At.IsZero() {
		chk.At = time.Now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	price := chk.Price
	at := chk.At
	e.p.CurrentPrice = &price
	e.p.LastChecked = &at
	e.p.PriceHistory = append(e.p.PriceHistory, PricePoint{Price: chk.Price, At: chk.At})
	e.p.Metadata.PriceChecks++
	return nil
}

func (s *memoryStore) MarkAlerted(ctx context.Context, id string, at time.Time) error {
	s.mu.RLock()
	e := s.products[id]
	s.mu.RUnlock()
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	ts := at
	e.p.AlertedAt = &ts
	e.mu.Unlock()
	return nil
}

func (s *memoryStore) PriceStats(ctx context.Context) (PriceStats, error) {
	s.mu.RLock()
	entries := make([]*memProduct, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var st PriceStats
	sum := 0.0
	for _, e := range entries {
		e.mu.Lock()
		cp := e.p.CurrentPrice
		e.mu.Unlock()
		if cp == nil {
			continue
		}
		v := *cp
		if st.Count == 0 || v < st.Min {
			st.Min = v
		}
		if st.Count == 0 || v > st.Max {
			st.Max = v
		}
		sum += v
		st.Count++
	}
	if st.Count > 0 {
		st.Avg = sum / float64(st.Count)
	}
	return st, nil
}

func (s *memoryStore) PlatformStats(ctx context.Context) ([]PlatformStat, error) {
	s.mu.RLock()
	entries := make([]*memProduct, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	type acc struct {
		count int
		sum   float64
		min   float64
		max   float64
		seen  int
	}
	byPlatform := map[string]*acc{}
	for _, e := range entries {
		e.mu.Lock()
		platform := e.p.Platform
		cp := e.p.CurrentPrice
		e.mu.Unlock()

		a := byPlatform[platform]
		if a == nil {
			a = &acc{}
			byPlatform[platform] = a
		}
		a.count++
		if cp != nil {
			v := *cp
			if a.seen == 0 || v < a.min {
				a.min = v
			}
			if a.seen == 0 || v > a.max {
				a.max = v
			}
			a.sum += v
			a.seen++
		}
	}

	out := make([]PlatformStat, 0, len(byPlatform))
	for platform, a := range byPlatform {
		st := PlatformStat{Platform: platform, Count: a.count}
		if a.seen > 0 {
			st.AvgPrice = a.sum / float64(a.seen)
			st.MinPrice = a.min
			st.MaxPrice = a.max
		}
		out = append(out, st)
	}
	// Count descending, platform name as tiebreaker for stable output.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

func (s *memoryStore) TrimPriceHistory(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	entries := make([]*memProduct, 0, len(s.products))
	for _, e := range s.products {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	modified := 0
	for _, e := range entries {
		e.mu.Lock()
		kept := e.p.PriceHistory[:0]
		removed := 0
		for _, pt := range e.p.PriceHistory {
			if pt.At.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, pt)
		}
		if removed > 0 {
			e.p.PriceHistory = append([]PricePoint(nil), kept...)
			modified++
		}
		e.mu.Unlock()
	}
	return modified, nil
}

func (s *memoryStore) InsertSnapshot(ctx context.Context, snap Snapshot) error {
	s.snapMu.Lock()
	s.snaps = append(s.snaps, snap)
	s.snapMu.Unlock()
	return nil
}

func (s *memoryStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	s.snapMu.Lock()
	out := make([]Snapshot, len(s.snaps))
	copy(out, s.snaps)
	s.snapMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memoryStore) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	kept := s.snaps[:0]
	removed := 0
	for _, snap := range s.snaps {
		if snap.Date.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	s.snaps = kept
	return removed, nil
}

func (s *memoryStore) Close() error { return nil }

func cloneProduct(p Product) Product {
	cp := p
	if p.CurrentPrice != nil {
		v := *p.CurrentPrice
		cp.CurrentPrice = &v
	}
	if p.TargetPrice != nil {
		v := *p.TargetPrice
		cp.TargetPrice = &v
	}
	if p.LastChecked != nil {
		v := *p.LastChecked
		cp.LastChecked = &v
	}
	if p.AlertedAt != nil {
		v := *p.AlertedAt
		cp.AlertedAt = &v
	}
	if len(p.PriceHistory) > 0 {
		cp.PriceHistory = append([]PricePoint(nil), p.PriceHistory...)
	}
	return cp
}
