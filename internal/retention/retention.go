// Package retention trims data older than the configured horizon.
package retention

import (
	"context"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/store"
	logx "pricewatch/pkg/logx"
)

// DefaultHorizon is how far back price history and snapshots are kept.
const DefaultHorizon = 90 * 24 * time.Hour

// Summary reports one sweep.
type Summary struct {
	ModifiedProducts int       `json:"modifiedProducts"`
	RemovedSnapshots int       `json:"removedSnapshots"`
	Cutoff           time.Time `json:"cutoff"`
}

type Sweeper struct {
	store   store.Store
	bus     eventbus.Bus
	log     logx.Logger
	horizon time.Duration
	now     func() time.Time
}

func NewSweeper(st store.Store, bus eventbus.Bus, log logx.Logger, horizon time.Duration) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Sweeper{store: st, bus: bus, log: log, horizon: horizon, now: time.Now}
}

// Sweep removes price history entries and snapshots older than the horizon.
// Running it twice in a row is harmless; the second pass finds nothing.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	cutoff := s.now().UTC().Add(-s.horizon)

	modified, err := s.store.TrimPriceHistory(ctx, cutoff)
	if err != nil {
		return Summary{}, err
	}
	removed, err := s.store.DeleteSnapshotsBefore(ctx, cutoff)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{ModifiedProducts: modified, RemovedSnapshots: removed, Cutoff: cutoff}
	s.log.Info("retention sweep finished",
		logx.Time("cutoff", cutoff),
		logx.Int("modified_products", modified),
		logx.Int("removed_snapshots", removed))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: "retention.swept", Time: s.now(), Data: sum})
	}
	return sum, nil
}
