// Package analytics produces daily price snapshots.
//
// Snapshots are append-only: each run writes a new document and never updates
// a previous one, so a re-run after a partial day simply adds a fresher row.
package analytics

import (
	"context"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/store"
	logx "pricewatch/pkg/logx"
)

type Aggregator struct {
	store store.Store
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

func NewAggregator(st store.Store, bus eventbus.Bus, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{store: st, bus: bus, log: log, now: time.Now}
}

// GenerateDaily counts the catalog, aggregates current prices, and writes one
// snapshot stamped with the UTC day it covers. With no priced products the
// price fields are zero, never NaN.
func (a *Aggregator) GenerateDaily(ctx context.Context) (store.Snapshot, error) {
	total, active, err := a.store.CountProducts(ctx)
	if err != nil {
		return store.Snapshot{}, err
	}
	stats, err := a.store.PriceStats(ctx)
	if err != nil {
		return store.Snapshot{}, err
	}

	now := a.now().UTC()
	snap := store.Snapshot{
		Date:           now.Truncate(24 * time.Hour),
		GeneratedAt:    now,
		TotalProducts:  total,
		ActiveProducts: active,
		AvgPrice:       stats.Avg,
		MinPrice:       stats.Min,
		MaxPrice:       stats.Max,
	}
	if err := a.store.InsertSnapshot(ctx, snap); err != nil {
		return store.Snapshot{}, err
	}

	a.log.Info("daily snapshot generated",
		logx.Time("date", snap.Date),
		logx.Int("total_products", total),
		logx.Int("active_products", active),
		logx.Int("priced", stats.Count),
		logx.Float64("avg_price", stats.Avg))
	if a.bus != nil {
		a.bus.Publish(eventbus.Event{Type: "analytics.snapshot", Time: now, Data: snap})
	}
	return snap, nil
}

// PlatformBreakdown exposes the per-platform aggregation for status surfaces.
func (a *Aggregator) PlatformBreakdown(ctx context.Context) ([]store.PlatformStat, error) {
	return a.store.PlatformStats(ctx)
}
