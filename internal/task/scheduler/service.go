package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/task/engine"
	logx "pricewatch/pkg/logx"
)

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		engine: eng,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastEnqWarn: map[string]time.Time{},
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// detect timezone change
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		// restart cron with new location and re-register definitions
		s.restartLocked()
	}
}

// Start starts cron triggering. This service only enqueues; execution happens
// in engine.Service, so nothing here can block the cron goroutine.
func (s *Service) Start(ctx context.Context) {
	_ = ctx // reserved for context-driven drain/stop policies

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	cur := s.cfg
	s.log.Debug("start requested", logx.Bool("enabled", cur.Enabled), logx.String("tz", strings.TrimSpace(cur.Timezone)))

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// register existing defs (if any)
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops cron triggering. Registered definitions remain so they resume on
// the next Start().
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			// best-effort
		}
	}

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Snapshot reports registered schedules with next/prev trigger times.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Enabled: s.cfg.Enabled, Timezone: strings.TrimSpace(s.cfg.Timezone)}
	if snap.Timezone == "" {
		snap.Timezone = "UTC"
	}
	for i := range s.defs {
		d := &s.defs[i]
		info := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next = e.Next
			info.Prev = e.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}
	return snap
}

// reportEnqueueError logs enqueue failures, throttled per schedule name.
// Overlap skips are expected (at-most-one-concurrent-per-rule) and logged at debug.
func (s *Service) reportEnqueueError(name string, err error) {
	if err == nil {
		return
	}
	if err == engine.ErrOverlapSkip {
		s.log.Debug("schedule firing skipped: previous run still in flight", logx.String("name", name))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: "schedule.skipped", Data: name})
		}
		return
	}

	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	now := time.Now()
	throttled := !last.IsZero() && now.Sub(last) < 30*time.Second
	if !throttled {
		s.lastEnqWarn[name] = now
	}
	s.enqMu.Unlock()

	if throttled {
		return
	}
	s.log.Warn("schedule enqueue failed", logx.String("name", name), logx.Any("err", err))
}
