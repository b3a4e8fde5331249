// Package scheduler provides schedule registration and trigger calculation.
//
// The scheduler is trigger-only; execution happens in internal/task/engine.
// It is responsible for:
//   - registering schedules (cron/interval)
//   - computing next trigger times in a fixed timezone
//   - enqueueing tasks into the task engine
//
// Each schedule carries a shared RunState so a firing is skipped (not queued)
// while the previous invocation of the same schedule is still running.
package scheduler
