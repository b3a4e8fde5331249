package app

import (
	"fmt"
	"time"

	"pricewatch/internal/config"
	"pricewatch/internal/retention"
	"pricewatch/internal/store"
	"pricewatch/internal/task/engine"
)

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	if cfg == nil {
		return engine.Config{}, nil
	}

	enabled := cfg.Scheduler.Enabled
	workers := 4
	queueSize := 256
	historySize := 200
	retryMax := 3
	defTimeout := 5 * time.Minute

	if te := cfg.TaskEngine; te != nil {
		if te.Enabled != nil {
			enabled = *te.Enabled
		}
		if te.Workers > 0 {
			workers = te.Workers
		}
		if te.QueueSize > 0 {
			queueSize = te.QueueSize
		}
		if te.HistorySize > 0 {
			historySize = te.HistorySize
		}
		if te.RetryMax > 0 {
			retryMax = te.RetryMax
		}
		d, err := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, defTimeout)
		if err != nil {
			return engine.Config{}, err
		}
		defTimeout = d

		// Reject a config where triggers fire but nothing executes them.
		if cfg.Scheduler.Enabled && te.Enabled != nil && !*te.Enabled {
			return engine.Config{}, fmt.Errorf("task_engine.enabled cannot be false while scheduler.enabled is true")
		}
	}

	return engine.Config{
		Enabled:        enabled,
		Workers:        workers,
		QueueSize:      queueSize,
		DefaultTimeout: defTimeout,
		HistorySize:    historySize,
		RetryMax:       retryMax,
	}, nil
}

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	if cfg == nil {
		return store.Config{}, nil
	}
	busy, err := config.ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      cfg.Store.Driver,
		Path:        cfg.Store.Path,
		DSN:         cfg.Store.DSN,
		BusyTimeout: busy,
	}, nil
}

type trackerSettings struct {
	MinPrice     float64
	MaxPrice     float64
	RatePerSec   float64
	ProbeTimeout time.Duration
	RealertAfter time.Duration
}

func mapTrackerSettings(cfg *config.Config) (trackerSettings, error) {
	s := trackerSettings{ProbeTimeout: 30 * time.Second}
	if cfg == nil {
		return s, nil
	}
	tc := cfg.Tracker
	if tc.MinPrice < 0 || tc.MaxPrice < 0 {
		return s, fmt.Errorf("tracker: prices must be >= 0")
	}
	if tc.MaxPrice > 0 && tc.MaxPrice <= tc.MinPrice {
		return s, fmt.Errorf("tracker: max_price must be greater than min_price")
	}
	if tc.RatePerSec < 0 {
		return s, fmt.Errorf("tracker: rate_per_sec must be >= 0")
	}
	s.MinPrice = tc.MinPrice
	s.MaxPrice = tc.MaxPrice
	s.RatePerSec = tc.RatePerSec

	d, err := config.ParseDurationOrDefault("tracker.probe_timeout", tc.ProbeTimeout, s.ProbeTimeout)
	if err != nil {
		return s, err
	}
	s.ProbeTimeout = d

	ra, err := config.ParseDurationField("tracker.realert_after", tc.RealertAfter)
	if err != nil {
		return s, err
	}
	s.RealertAfter = ra
	return s, nil
}

func mapRetentionHorizon(cfg *config.Config) (time.Duration, error) {
	if cfg == nil || cfg.Retention.HorizonDays == 0 {
		return retention.DefaultHorizon, nil
	}
	if cfg.Retention.HorizonDays < 0 {
		return 0, fmt.Errorf("retention.horizon_days must be >= 0")
	}
	return time.Duration(cfg.Retention.HorizonDays) * 24 * time.Hour, nil
}
