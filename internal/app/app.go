// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pricewatch/internal/alert"
	"pricewatch/internal/analytics"
	"pricewatch/internal/config"
	"pricewatch/internal/eventbus"
	"pricewatch/internal/retention"
	"pricewatch/internal/runtime/supervisor"
	"pricewatch/internal/store"
	"pricewatch/internal/task/engine"
	"pricewatch/internal/task/scheduler"
	"pricewatch/internal/tracker"
	logx "pricewatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store store.Store

	// storeCfg is the config the store was opened with; driver changes can
	// only take effect on restart.
	storeCfg store.Config

	engine *engine.Service
	sched  *scheduler.Service

	prober     *tracker.Prober
	dispatcher *tracker.Dispatcher
	evaluator  *alert.Evaluator
	aggregator *analytics.Aggregator
	sweeper    *retention.Sweeper
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	storeCfg, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("driver", storeCfg.Driver))

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	engineSvc := engine.New(engCfg, log.With(logx.String("comp", "taskengine")), bus)

	schedSvc := scheduler.New(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	}, engineSvc, log.With(logx.String("comp", "scheduler")), bus)

	ts, err := mapTrackerSettings(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	horizon, err := mapRetentionHorizon(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	alertLog := log.With(logx.String("comp", "alert"))
	evaluator := alert.NewEvaluator(st, alert.LogSink{Log: alertLog}, bus, alertLog, ts.RealertAfter)
	alertDispatch := alert.NewDispatcher(evaluator, engineSvc, alertLog)

	trackLog := log.With(logx.String("comp", "tracker"))
	source := tracker.NewRandomSource(ts.MinPrice, ts.MaxPrice)
	prober := tracker.NewProber(st, source, ts.RatePerSec, alertDispatch, ts.RealertAfter, trackLog)
	dispatcher := tracker.NewDispatcher(st, prober, engineSvc, bus, trackLog, ts.ProbeTimeout)

	aggregator := analytics.NewAggregator(st, bus, log.With(logx.String("comp", "analytics")))
	sweeper := retention.NewSweeper(st, bus, log.With(logx.String("comp", "retention")), horizon)

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      st,
		storeCfg:   storeCfg,
		engine:     engineSvc,
		sched:      schedSvc,
		prober:     prober,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		aggregator: aggregator,
		sweeper:    sweeper,
	}, nil
}

// Store exposes the document store for seeding and operational tooling.
func (a *App) Store() store.Store { return a.store }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapTrackerSettings(cfg); err != nil {
			return err
		}
		if _, err := mapRetentionHorizon(cfg); err != nil {
			return err
		}
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return validateJobSpecs(cfg)
	})

	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	if err := a.registerJobs(a.cfgm.Get()); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	// Debug visibility into bus traffic; components subscribe themselves for
	// anything load-bearing.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Under systemd Type=notify this reports readiness; elsewhere it is a
	// cheap no-op.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("app started")
	return nil
}

// applyConfig applies a validated reload. Store driver changes need a restart;
// everything else applies live.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if sc, err := mapStoreConfig(cfg); err == nil && sc != a.storeCfg {
		a.log.Warn("store config changed; restart required for changes to take effect")
	}

	prevSchedEnabled := a.sched.Enabled()
	prevEngEnabled := a.engine.Enabled()

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, engCfg)
	}

	a.sched.Apply(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	})
	if err := a.registerJobs(cfg); err != nil {
		a.log.Warn("job re-registration failed", logx.Err(err))
	}

	newSchedEnabled := cfg.Scheduler.Enabled
	newEngEnabled := engCfg.Enabled
	if err != nil {
		newEngEnabled = prevEngEnabled
	}

	// scheduler first on shutdown; engine first on startup
	if prevSchedEnabled && !newSchedEnabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	if prevEngEnabled && !newEngEnabled {
		a.log.Info("task engine disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.engine.Stop(stopCtx)
		cancel()
	}
	if !prevEngEnabled && newEngEnabled {
		a.log.Info("task engine enabled via config")
		a.engine.Start(ctx)
	}
	if !prevSchedEnabled && newSchedEnabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Bound each shutdown step so one component cannot stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end",
				logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("store", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
