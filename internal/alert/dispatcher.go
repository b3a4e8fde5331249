package alert

import (
	"context"
	"time"

	"pricewatch/internal/task/engine"
	logx "pricewatch/pkg/logx"
)

// Enqueuer is the engine surface Dispatch needs. Alert evaluation rides the
// same worker pool as probes but is admitted non-blocking: a probe must never
// stall waiting on its own alert.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

// Dispatcher turns a crossing into an "alert.evaluate" task. The task runs
// under the engine's lifetime, so a probe timing out after dispatch does not
// cancel the evaluation.
type Dispatcher struct {
	eval    *Evaluator
	engine  Enqueuer
	log     logx.Logger
	timeout time.Duration
}

func NewDispatcher(eval *Evaluator, eng Enqueuer, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{eval: eval, engine: eng, log: log, timeout: 30 * time.Second}
}

func (d *Dispatcher) Dispatch(productID string, price float64) {
	err := d.engine.Enqueue(engine.Task{
		Name:    "alert.evaluate",
		Timeout: d.timeout,
		Run: func(ctx context.Context) error {
			return d.eval.Trigger(ctx, productID, price)
		},
	})
	if err != nil {
		d.log.Warn("alert dispatch failed",
			logx.String("product_id", productID),
			logx.Err(err))
	}
}
