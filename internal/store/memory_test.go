package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedProduct(t *testing.T, st Store, p Product) Product {
	t.Helper()
	if err := st.InsertProduct(context.Background(), &p); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}
	return p
}

func TestApplyPriceCheck(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	p := seedProduct(t, st, Product{Name: "widget", IsActive: true})

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := st.ApplyPriceCheck(ctx, p.ID, PriceCheck{Price: 42.5, At: at}); err != nil {
		t.Fatalf("ApplyPriceCheck: %v", err)
	}

	got, err := st.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.CurrentPrice == nil || *got.CurrentPrice != 42.5 {
		t.Fatalf("CurrentPrice = %v, want 42.5", got.CurrentPrice)
	}
	if got.LastChecked == nil || !got.LastChecked.Equal(at) {
		t.Fatalf("LastChecked = %v, want %v", got.LastChecked, at)
	}
	if len(got.PriceHistory) != 1 || got.PriceHistory[0].Price != 42.5 {
		t.Fatalf("PriceHistory = %+v, want one 42.5 point", got.PriceHistory)
	}
	if got.Metadata.PriceChecks != 1 {
		t.Fatalf("PriceChecks = %d, want 1", got.Metadata.PriceChecks)
	}
}

func TestApplyPriceCheckMissingProduct(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	err := st.ApplyPriceCheck(context.Background(), "nope", PriceCheck{Price: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyPriceCheckConcurrent(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	p := seedProduct(t, st, Product{Name: "widget", IsActive: true})

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = st.ApplyPriceCheck(ctx, p.ID, PriceCheck{Price: float64(i), At: time.Now()})
		}(i)
	}
	wg.Wait()

	got, err := st.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Metadata.PriceChecks != n {
		t.Fatalf("PriceChecks = %d, want %d", got.Metadata.PriceChecks, n)
	}
	if len(got.PriceHistory) != n {
		t.Fatalf("len(PriceHistory) = %d, want %d", len(got.PriceHistory), n)
	}
}

func TestListActiveProducts(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	seedProduct(t, st, Product{Name: "on", IsActive: true})
	seedProduct(t, st, Product{Name: "off", IsActive: false})

	active, err := st.ListActiveProducts(ctx)
	if err != nil {
		t.Fatalf("ListActiveProducts: %v", err)
	}
	if len(active) != 1 || active[0].Name != "on" {
		t.Fatalf("active = %+v, want just the active product", active)
	}

	total, activeN, err := st.CountProducts(ctx)
	if err != nil {
		t.Fatalf("CountProducts: %v", err)
	}
	if total != 2 || activeN != 1 {
		t.Fatalf("counts = (%d, %d), want (2, 1)", total, activeN)
	}
}

func TestPriceStats(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()

	for _, price := range []float64{60, 100, 140} {
		p := seedProduct(t, st, Product{Name: "p", IsActive: true})
		if err := st.ApplyPriceCheck(ctx, p.ID, PriceCheck{Price: price, At: time.Now()}); err != nil {
			t.Fatalf("ApplyPriceCheck: %v", err)
		}
	}
	// Never checked; excluded from stats.
	seedProduct(t, st, Product{Name: "unpriced", IsActive: true})

	stats, err := st.PriceStats(ctx)
	if err != nil {
		t.Fatalf("PriceStats: %v", err)
	}
	if stats.Count != 3 {
		t.Fatalf("Count = %d, want 3", stats.Count)
	}
	if stats.Avg != 100 || stats.Min != 60 || stats.Max != 140 {
		t.Fatalf("stats = %+v, want avg 100 min 60 max 140", stats)
	}
}

func TestPriceStatsEmpty(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	stats, err := st.PriceStats(context.Background())
	if err != nil {
		t.Fatalf("PriceStats: %v", err)
	}
	if stats != (PriceStats{}) {
		t.Fatalf("stats = %+v, want zero", stats)
	}
}

func TestTrimPriceHistory(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	p := seedProduct(t, st, Product{Name: "widget", IsActive: true})

	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-time.Hour)
	fresh := cutoff.Add(time.Hour)
	for _, at := range []time.Time{old, cutoff, fresh} {
		if err := st.ApplyPriceCheck(ctx, p.ID, PriceCheck{Price: 10, At: at}); err != nil {
			t.Fatalf("ApplyPriceCheck: %v", err)
		}
	}

	modified, err := st.TrimPriceHistory(ctx, cutoff)
	if err != nil {
		t.Fatalf("TrimPriceHistory: %v", err)
	}
	if modified != 1 {
		t.Fatalf("modified = %d, want 1", modified)
	}

	got, _ := st.GetProduct(ctx, p.ID)
	// Entries at the cutoff itself are kept; only strictly older go.
	if len(got.PriceHistory) != 2 {
		t.Fatalf("len(PriceHistory) = %d, want 2", len(got.PriceHistory))
	}

	// Second sweep is a no-op.
	modified, err = st.TrimPriceHistory(ctx, cutoff)
	if err != nil {
		t.Fatalf("TrimPriceHistory again: %v", err)
	}
	if modified != 0 {
		t.Fatalf("modified on second run = %d, want 0", modified)
	}
}

func TestSnapshots(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()

	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }
	for _, d := range []int{3, 1, 2} {
		if err := st.InsertSnapshot(ctx, Snapshot{Date: day(d), GeneratedAt: day(d)}); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}

	snaps, err := st.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 3 || !snaps[0].Date.Equal(day(1)) || !snaps[2].Date.Equal(day(3)) {
		t.Fatalf("snaps out of order: %+v", snaps)
	}

	removed, err := st.DeleteSnapshotsBefore(ctx, day(3))
	if err != nil {
		t.Fatalf("DeleteSnapshotsBefore: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	snaps, _ = st.ListSnapshots(ctx)
	if len(snaps) != 1 || !snaps[0].Date.Equal(day(3)) {
		t.Fatalf("remaining snaps = %+v, want just day 3", snaps)
	}
}

func TestMarkAlerted(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	p := seedProduct(t, st, Product{Name: "widget", IsActive: true})

	at := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	if err := st.MarkAlerted(ctx, p.ID, at); err != nil {
		t.Fatalf("MarkAlerted: %v", err)
	}
	got, _ := st.GetProduct(ctx, p.ID)
	if got.AlertedAt == nil || !got.AlertedAt.Equal(at) {
		t.Fatalf("AlertedAt = %v, want %v", got.AlertedAt, at)
	}

	if err := st.MarkAlerted(ctx, "nope", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetProductReturnsCopy(t *testing.T) {
	t.Parallel()
	st := NewMemory()
	ctx := context.Background()
	p := seedProduct(t, st, Product{Name: "widget", IsActive: true})
	if err := st.ApplyPriceCheck(ctx, p.ID, PriceCheck{Price: 5, At: time.Now()}); err != nil {
		t.Fatalf("ApplyPriceCheck: %v", err)
	}

	got, _ := st.GetProduct(ctx, p.ID)
	*got.CurrentPrice = 999
	got.PriceHistory[0].Price = 999

	again, _ := st.GetProduct(ctx, p.ID)
	if *again.CurrentPrice != 5 || again.PriceHistory[0].Price != 5 {
		t.Fatal("mutating a returned product leaked into the store")
	}
}
