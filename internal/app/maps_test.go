package app

import (
	"testing"
	"time"

	"pricewatch/internal/config"
	"pricewatch/internal/retention"
)

func TestMapEngineConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scheduler.Enabled = true

	got, err := mapEngineConfig(cfg)
	if err != nil {
		t.Fatalf("mapEngineConfig: %v", err)
	}
	if !got.Enabled {
		t.Fatal("engine should default to scheduler.enabled")
	}
	if got.Workers != 4 || got.QueueSize != 256 {
		t.Fatalf("pool = (%d, %d), want (4, 256)", got.Workers, got.QueueSize)
	}
	if got.DefaultTimeout != 5*time.Minute {
		t.Fatalf("DefaultTimeout = %v, want 5m", got.DefaultTimeout)
	}
}

func TestMapEngineConfigRejectsDisabledEngine(t *testing.T) {
	t.Parallel()
	off := false
	cfg := &config.Config{TaskEngine: &config.TaskEngineConfig{Enabled: &off}}
	cfg.Scheduler.Enabled = true

	if _, err := mapEngineConfig(cfg); err == nil {
		t.Fatal("expected error: scheduler on, engine explicitly off")
	}
}

func TestMapTrackerSettings(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Tracker = config.TrackerConfig{
		MinPrice:     10,
		MaxPrice:     20,
		RatePerSec:   5,
		ProbeTimeout: "10s",
		RealertAfter: "1h",
	}
	got, err := mapTrackerSettings(cfg)
	if err != nil {
		t.Fatalf("mapTrackerSettings: %v", err)
	}
	if got.MinPrice != 10 || got.MaxPrice != 20 || got.RatePerSec != 5 {
		t.Fatalf("settings = %+v", got)
	}
	if got.ProbeTimeout != 10*time.Second || got.RealertAfter != time.Hour {
		t.Fatalf("durations = %+v", got)
	}

	cfg.Tracker = config.TrackerConfig{MinPrice: 20, MaxPrice: 10}
	if _, err := mapTrackerSettings(cfg); err == nil {
		t.Fatal("expected error for inverted price bounds")
	}
}

func TestMapRetentionHorizon(t *testing.T) {
	t.Parallel()
	if got, err := mapRetentionHorizon(&config.Config{}); err != nil || got != retention.DefaultHorizon {
		t.Fatalf("default horizon = (%v, %v)", got, err)
	}

	cfg := &config.Config{Retention: config.RetentionConfig{HorizonDays: 30}}
	if got, err := mapRetentionHorizon(cfg); err != nil || got != 30*24*time.Hour {
		t.Fatalf("horizon = (%v, %v), want 720h", got, err)
	}

	cfg.Retention.HorizonDays = -1
	if _, err := mapRetentionHorizon(cfg); err == nil {
		t.Fatal("expected error for negative horizon")
	}
}

func TestJobSpecs(t *testing.T) {
	t.Parallel()
	specs := jobSpecs(nil)
	if specs[jobCheckPrices] != "0 * * * *" {
		t.Fatalf("check_prices = %q", specs[jobCheckPrices])
	}
	if specs[jobDailyAnalytics] != "0 0 * * *" {
		t.Fatalf("daily_analytics = %q", specs[jobDailyAnalytics])
	}
	if specs[jobRetentionSweep] != "0 2 * * 0" {
		t.Fatalf("retention_sweep = %q", specs[jobRetentionSweep])
	}

	cfg := &config.Config{}
	cfg.Scheduler.CheckPrices = "*/30 * * * *"
	specs = jobSpecs(cfg)
	if specs[jobCheckPrices] != "*/30 * * * *" {
		t.Fatalf("override ignored: %q", specs[jobCheckPrices])
	}
	if err := validateJobSpecs(cfg); err != nil {
		t.Fatalf("validateJobSpecs: %v", err)
	}

	cfg.Scheduler.CheckPrices = "not a cron"
	if err := validateJobSpecs(cfg); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}
