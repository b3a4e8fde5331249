package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Store selects the document store backing products and snapshots.
	Store StoreConfig `json:"store"`

	// Scheduler controls trigger behavior (cron specs and timezone).
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution settings for scheduled tasks.
	// If omitted, defaults apply.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Tracker   TrackerConfig   `json:"tracker"`
	Retention RetentionConfig `json:"retention"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects and configures the persistence driver.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./pricewatch.db" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`         // sqlite
	DSN         string `json:"dsn,omitempty"`          // postgres
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the trigger service.
//
// The three job specs accept standard 5-field cron expressions. Empty fields
// keep the defaults:
//   - check_prices:    "0 * * * *"  (hourly at minute 0)
//   - daily_analytics: "0 0 * * *"  (midnight)
//   - retention_sweep: "0 2 * * 0"  (Sunday 02:00)
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone for trigger evaluation. Empty means UTC.
	Timezone string `json:"timezone,omitempty"`

	CheckPrices    string `json:"check_prices,omitempty"`
	DailyAnalytics string `json:"daily_analytics,omitempty"`
	RetentionSweep string `json:"retention_sweep,omitempty"`
}

// TaskEngineConfig controls the worker pool.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
//
// Enabled is a pointer so "omitted" (default to scheduler.enabled) is
// distinguishable from an explicit false.
type TaskEngineConfig struct {
	Enabled   *bool `json:"enabled,omitempty"`
	Workers   int   `json:"workers,omitempty"`
	QueueSize int   `json:"queue_size,omitempty"`

	// DefaultTimeout bounds a single task run. Defaults to "5m".
	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
	RetryMax    int `json:"retry_max,omitempty"`
}

// TrackerConfig controls price probing and alerting.
type TrackerConfig struct {
	// Simulated price range. Zero values mean 50..200.
	MinPrice float64 `json:"min_price,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`

	// RatePerSec throttles probes across the whole pool. 0 disables.
	RatePerSec float64 `json:"rate_per_sec,omitempty"`

	// ProbeTimeout bounds a single product probe. Defaults to "30s".
	ProbeTimeout string `json:"probe_timeout,omitempty"`

	// RealertAfter suppresses repeat alerts for a product within the window.
	// "0s" (the default) alerts on every crossing check.
	RealertAfter string `json:"realert_after,omitempty"`
}

// RetentionConfig controls the weekly sweep.
type RetentionConfig struct {
	// HorizonDays is how many days of price history and snapshots to keep.
	// 0 means the 90-day default.
	HorizonDays int `json:"horizon_days,omitempty"`
}
