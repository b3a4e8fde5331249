package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "pricewatch/pkg/logx"
)

func newTestEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.Stop(stopCtx)
		stopCancel()
		cancel()
	})
	return s
}

func TestEngineRunsTask(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 2, QueueSize: 8})

	done := make(chan struct{})
	err := s.Enqueue(Task{
		Name: "unit.run",
		Run: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestEngineDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestEngineOverlapSkip(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 2, QueueSize: 8})

	started := make(chan struct{})
	release := make(chan struct{})
	opt := TaskOptions{Overlap: OverlapSkipIfRunning}

	err := s.Enqueue(Task{
		Name: "unit.overlap",
		Opt:  opt,
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first task did not start")
	}

	// Same name, still in flight: must be skipped, not queued.
	err = s.Enqueue(Task{
		Name: "unit.overlap",
		Opt:  opt,
		Run:  func(ctx context.Context) error { return nil },
	})
	if !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("err = %v, want ErrOverlapSkip", err)
	}
	close(release)

	// After the first run finishes the name is free again.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err = s.Enqueue(Task{
			Name: "unit.overlap",
			Opt:  opt,
			Run:  func(ctx context.Context) error { return nil },
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrOverlapSkip) || time.Now().After(deadline) {
			t.Fatalf("re-enqueue after completion: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineEnqueueQueueFull(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 1, QueueSize: 1})

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker, then fill the single queue slot.
	if err := s.Enqueue(Task{Name: "unit.block", Run: func(ctx context.Context) error {
		<-block
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue blocker: %v", err)
	}
	// Give the worker a moment to pick the blocker up.
	time.Sleep(50 * time.Millisecond)
	if err := s.Enqueue(Task{Name: "unit.fill", Run: func(ctx context.Context) error { return nil }}); err != nil {
		t.Fatalf("Enqueue filler: %v", err)
	}

	err := s.Enqueue(Task{Name: "unit.overflow", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if got := s.Snapshot().Dropped; got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}

	// Submit with a canceled context must not drop; it reports the
	// caller's cancellation instead.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Submit(ctx, Task{Name: "unit.submit", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Submit err = %v, want context.Canceled", err)
	}
}

func TestEngineRetries(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 1, QueueSize: 8, RetryMax: 3})

	var attempts atomic.Int32
	done := make(chan struct{})
	err := s.Enqueue(Task{
		Name: "unit.retry",
		Opt:  TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond},
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("flaky")
			}
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not eventually succeed")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestEngineNoRetry(t *testing.T) {
	t.Parallel()
	s := newTestEngine(t, Config{Workers: 1, QueueSize: 8, RetryMax: 3})

	var attempts atomic.Int32
	failed := make(chan struct{})
	err := s.Enqueue(Task{
		Name: "unit.noretry",
		Opt:  TaskOptions{RetryBase: time.Millisecond},
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			defer close(failed)
			return NoRetry(errors.New("terminal"))
		},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	// Allow any (wrong) retry to fire before checking.
	time.Sleep(50 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}
