package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/store"
	logx "pricewatch/pkg/logx"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Notify(ctx context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func ptr(v float64) *float64 { return &v }

func seedProduct(t *testing.T, st store.Store, p store.Product) store.Product {
	t.Helper()
	if err := st.InsertProduct(context.Background(), &p); err != nil {
		t.Fatalf("InsertProduct: %v", err)
	}
	return p
}

func TestEvaluatorTriggers(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	p := seedProduct(t, st, store.Product{Name: "widget", IsActive: true, TargetPrice: ptr(50)})

	sink := &recordingSink{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	ev := NewEvaluator(st, sink, bus, logx.Nop(), 0)
	if err := ev.Trigger(context.Background(), p.ID, 42.5); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	if sink.count() != 1 {
		t.Fatalf("sink notified %d times, want 1", sink.count())
	}
	sink.mu.Lock()
	got := sink.events[0]
	sink.mu.Unlock()
	if got.ProductID != p.ID || got.CurrentPrice != 42.5 || got.TargetPrice != 50 {
		t.Fatalf("event = %+v", got)
	}

	select {
	case e := <-events:
		if e.Type != "alert.triggered" {
			t.Fatalf("event type = %s, want alert.triggered", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no bus event published")
	}
}

func TestEvaluatorToleratesMissingProduct(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	sink := &recordingSink{}
	ev := NewEvaluator(st, sink, nil, logx.Nop(), 0)

	if err := ev.Trigger(context.Background(), "gone", 10); err != nil {
		t.Fatalf("Trigger on missing product: %v", err)
	}
	if sink.count() != 0 {
		t.Fatal("sink notified for a missing product")
	}
}

func TestEvaluatorRechecksTarget(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	// Target is below the reported price: the crossing no longer holds.
	p := seedProduct(t, st, store.Product{Name: "widget", IsActive: true, TargetPrice: ptr(10)})

	sink := &recordingSink{}
	ev := NewEvaluator(st, sink, nil, logx.Nop(), 0)
	if err := ev.Trigger(context.Background(), p.ID, 42.5); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if sink.count() != 0 {
		t.Fatal("sink notified although price is above target")
	}
}

func TestEvaluatorRealertWindow(t *testing.T) {
	t.Parallel()
	st := store.NewMemory()
	p := seedProduct(t, st, store.Product{Name: "widget", IsActive: true, TargetPrice: ptr(50)})

	sink := &recordingSink{}
	ev := NewEvaluator(st, sink, nil, logx.Nop(), time.Hour)

	if err := ev.Trigger(context.Background(), p.ID, 42.5); err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("sink notified %d times, want 1", sink.count())
	}

	// The watermark was stamped; a second crossing inside the window is
	// suppressed.
	got, _ := st.GetProduct(context.Background(), p.ID)
	if got.AlertedAt == nil {
		t.Fatal("AlertedAt not stamped")
	}
	if err := ev.Trigger(context.Background(), p.ID, 41); err != nil {
		t.Fatalf("second Trigger: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("sink notified %d times after suppressed re-alert, want 1", sink.count())
	}
}

func TestShouldTrigger(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-2 * time.Hour)
	recent := now.Add(-10 * time.Minute)

	tests := []struct {
		name    string
		product *store.Product
		price   float64
		realert time.Duration
		want    bool
	}{
		{name: "nil product", product: nil, price: 1, want: false},
		{name: "no target", product: &store.Product{}, price: 1, want: false},
		{name: "above target", product: &store.Product{TargetPrice: ptr(10)}, price: 20, want: false},
		{name: "at target", product: &store.Product{TargetPrice: ptr(10)}, price: 10, want: true},
		{name: "below target", product: &store.Product{TargetPrice: ptr(10)}, price: 5, want: true},
		{name: "no window re-alerts", product: &store.Product{TargetPrice: ptr(10), AlertedAt: &recent}, price: 5, want: true},
		{name: "inside window suppressed", product: &store.Product{TargetPrice: ptr(10), AlertedAt: &recent}, price: 5, realert: time.Hour, want: false},
		{name: "outside window re-alerts", product: &store.Product{TargetPrice: ptr(10), AlertedAt: &stale}, price: 5, realert: time.Hour, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTrigger(tt.product, tt.price, tt.realert, now); got != tt.want {
				t.Fatalf("ShouldTrigger = %v, want %v", got, tt.want)
			}
		})
	}
}
