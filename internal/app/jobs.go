package app

import (
	"context"
	"strings"

	"pricewatch/internal/config"
	"pricewatch/internal/task/scheduler"
)

// Default schedules, overridable per-job in config.
const (
	defaultCheckPricesSpec    = "0 * * * *" // hourly at minute 0
	defaultDailyAnalyticsSpec = "0 0 * * *" // midnight
	defaultRetentionSweepSpec = "0 2 * * 0" // Sunday 02:00
)

const (
	jobCheckPrices    = "prices.check_all"
	jobDailyAnalytics = "analytics.daily"
	jobRetentionSweep = "retention.sweep"
)

func jobSpecs(cfg *config.Config) map[string]string {
	specs := map[string]string{
		jobCheckPrices:    defaultCheckPricesSpec,
		jobDailyAnalytics: defaultDailyAnalyticsSpec,
		jobRetentionSweep: defaultRetentionSweepSpec,
	}
	if cfg == nil {
		return specs
	}
	if s := strings.TrimSpace(cfg.Scheduler.CheckPrices); s != "" {
		specs[jobCheckPrices] = s
	}
	if s := strings.TrimSpace(cfg.Scheduler.DailyAnalytics); s != "" {
		specs[jobDailyAnalytics] = s
	}
	if s := strings.TrimSpace(cfg.Scheduler.RetentionSweep); s != "" {
		specs[jobRetentionSweep] = s
	}
	return specs
}

// registerJobs installs the three periodic jobs. Each runs with
// skip-if-running so a slow pass never stacks behind itself; the engine's
// default timeout bounds each run.
func (a *App) registerJobs(cfg *config.Config) error {
	specs := jobSpecs(cfg)
	opt := scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning}

	jobs := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{jobCheckPrices, func(ctx context.Context) error {
			_, err := a.dispatcher.CheckAll(ctx)
			return err
		}},
		{jobDailyAnalytics, func(ctx context.Context) error {
			_, err := a.aggregator.GenerateDaily(ctx)
			return err
		}},
		{jobRetentionSweep, func(ctx context.Context) error {
			_, err := a.sweeper.Sweep(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if _, err := a.sched.AddScheduleOpt(j.name, specs[j.name], 0, opt, j.run); err != nil {
			return err
		}
	}
	return nil
}

// validateJobSpecs parses the configured cron expressions so a bad reload is
// rejected before it reaches the scheduler.
func validateJobSpecs(cfg *config.Config) error {
	for _, spec := range jobSpecs(cfg) {
		if _, err := scheduler.ParseSchedule(spec); err != nil {
			return err
		}
	}
	return nil
}
