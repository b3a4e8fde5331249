package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/task/engine"
	logx "pricewatch/pkg/logx"
)

func newTestPair(t *testing.T) (*Service, *engine.Service) {
	t.Helper()
	bus := eventbus.New()
	eng := engine.New(engine.Config{Enabled: true, Workers: 2, QueueSize: 16}, logx.Nop(), bus)
	sched := New(Config{Enabled: true}, eng, logx.Nop(), bus)

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		sched.Stop(stopCtx)
		eng.Stop(stopCtx)
		stopCancel()
		cancel()
	})
	return sched, eng
}

func TestSchedulerFiresInterval(t *testing.T) {
	t.Parallel()
	sched, _ := newTestPair(t)

	var fired atomic.Int32
	if _, err := sched.AddInterval("tick", time.Second, 0, func(ctx context.Context) error {
		fired.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	sched.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for fired.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("interval schedule never fired")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestSchedulerSnapshot(t *testing.T) {
	t.Parallel()
	sched, _ := newTestPair(t)

	if _, err := sched.AddCron("hourly", "0 * * * *", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if _, err := sched.AddWeekly("weekly", time.Sunday, "02:00", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddWeekly: %v", err)
	}
	sched.Start(context.Background())

	snap := sched.Snapshot()
	if !snap.Enabled || snap.Timezone != "UTC" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Schedules) != 2 {
		t.Fatalf("len(Schedules) = %d, want 2", len(snap.Schedules))
	}
	for _, info := range snap.Schedules {
		if info.Next.IsZero() {
			t.Fatalf("schedule %q has no next trigger", info.Name)
		}
	}

	if snap.Schedules[1].Spec != "0 2 * * 0" {
		t.Fatalf("weekly spec = %q, want %q", snap.Schedules[1].Spec, "0 2 * * 0")
	}
}

func TestSchedulerUpsertByName(t *testing.T) {
	t.Parallel()
	sched, _ := newTestPair(t)

	if _, err := sched.AddCron("job", "0 * * * *", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("first AddCron: %v", err)
	}
	if _, err := sched.AddCron("job", "30 * * * *", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("second AddCron: %v", err)
	}

	snap := sched.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("len(Schedules) = %d, want 1 after upsert", len(snap.Schedules))
	}
	if snap.Schedules[0].Spec != "30 * * * *" {
		t.Fatalf("spec = %q, want the newer one", snap.Schedules[0].Spec)
	}
}

func TestSchedulerRemove(t *testing.T) {
	t.Parallel()
	sched, _ := newTestPair(t)

	if _, err := sched.AddDaily("daily", "00:00", 0, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if !sched.Remove("daily") {
		t.Fatal("Remove returned false for a registered schedule")
	}
	if sched.Remove("daily") {
		t.Fatal("Remove returned true for an already removed schedule")
	}
	if got := len(sched.Snapshot().Schedules); got != 0 {
		t.Fatalf("len(Schedules) = %d, want 0", got)
	}
}
