package retention

import (
	"context"
	"testing"
	"time"

	"pricewatch/internal/store"
	logx "pricewatch/pkg/logx"
)

func TestSweep(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	p := store.Product{Name: "widget", IsActive: true}
	if err := st.InsertProduct(ctx, &p); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}
	// One point well past the horizon, one fresh.
	for _, at := range []time.Time{now.AddDate(0, 0, -120), now.AddDate(0, 0, -1)} {
		if err := st.ApplyPriceCheck(ctx, p.ID, store.PriceCheck{Price: 10, At: at}); err != nil {
			t.Fatalf("ApplyPriceCheck: %v", err)
		}
	}
	for _, at := range []time.Time{now.AddDate(0, 0, -120), now.AddDate(0, 0, -1)} {
		if err := st.InsertSnapshot(ctx, store.Snapshot{Date: at, GeneratedAt: at}); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}

	sw := NewSweeper(st, nil, logx.Nop(), 0) // 0 = 90-day default
	sum, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.ModifiedProducts != 1 {
		t.Fatalf("ModifiedProducts = %d, want 1", sum.ModifiedProducts)
	}
	if sum.RemovedSnapshots != 1 {
		t.Fatalf("RemovedSnapshots = %d, want 1", sum.RemovedSnapshots)
	}
	wantCutoff := now.Add(-DefaultHorizon)
	if d := sum.Cutoff.Sub(wantCutoff); d < -time.Minute || d > time.Minute {
		t.Fatalf("Cutoff = %v, want ~%v", sum.Cutoff, wantCutoff)
	}

	got, _ := st.GetProduct(ctx, p.ID)
	if len(got.PriceHistory) != 1 {
		t.Fatalf("len(PriceHistory) = %d, want 1", len(got.PriceHistory))
	}
	snaps, _ := st.ListSnapshots(ctx)
	if len(snaps) != 1 {
		t.Fatalf("len(snaps) = %d, want 1", len(snaps))
	}

	// Idempotent: a second sweep finds nothing.
	sum, err = sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if sum.ModifiedProducts != 0 || sum.RemovedSnapshots != 0 {
		t.Fatalf("second sweep = %+v, want zeros", sum)
	}
}

func TestSweepCustomHorizon(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	p := store.Product{Name: "widget", IsActive: true}
	if err := st.InsertProduct(ctx, &p); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}
	if err := st.ApplyPriceCheck(ctx, p.ID, store.PriceCheck{Price: 10, At: now.AddDate(0, 0, -10)}); err != nil {
		t.Fatalf("ApplyPriceCheck: %v", err)
	}

	sw := NewSweeper(st, nil, logx.Nop(), 7*24*time.Hour)
	sum, err := sw.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if sum.ModifiedProducts != 1 {
		t.Fatalf("ModifiedProducts = %d, want 1", sum.ModifiedProducts)
	}
}
