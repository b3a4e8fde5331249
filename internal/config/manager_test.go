package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"store": {"driver": "sqlite", "path": "./pw.db", "busy_timeout": "2s"},
		"scheduler": {"enabled": true, "timezone": "UTC", "check_prices": "0 * * * *"},
		"task_engine": {"workers": 8, "queue_size": 512, "default_timeout": "5m"},
		"tracker": {"min_price": 50, "max_price": 200, "rate_per_sec": 10},
		"retention": {"horizon_days": 90}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.BusyTimeout != "2s" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.CheckPrices != "0 * * * *" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.TaskEngine == nil || cfg.TaskEngine.Workers != 8 {
		t.Fatalf("task_engine = %+v", cfg.TaskEngine)
	}
	if cfg.Tracker.MaxPrice != 200 || cfg.Retention.HorizonDays != 90 {
		t.Fatalf("tracker/retention = %+v / %+v", cfg.Tracker, cfg.Retention)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
store:
  driver: memory
scheduler:
  enabled: true
  retention_sweep: "0 2 * * 0"
tracker:
  realert_after: 24h
retention: {}
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Scheduler.RetentionSweep != "0 2 * * 0" {
		t.Fatalf("retention_sweep = %q", cfg.Scheduler.RetentionSweep)
	}
	if cfg.Tracker.RealertAfter != "24h" {
		t.Fatalf("realert_after = %q", cfg.Tracker.RealertAfter)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}, "typo_section": {}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", "90s"); err != nil || d != 90*time.Second {
		t.Fatalf("got (%v, %v), want (90s, nil)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got (%v, %v), want (0, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for junk duration")
	}

	if d, err := ParseDurationOrDefault("x", "", 5*time.Minute); err != nil || d != 5*time.Minute {
		t.Fatalf("default: got (%v, %v), want (5m, nil)", d, err)
	}
}

func TestLoadAndGet(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"scheduler": {"enabled": true}}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}
