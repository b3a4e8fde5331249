package tracker

import (
	"context"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/store"
	"pricewatch/internal/task/engine"
	logx "pricewatch/pkg/logx"
)

// BatchSummary reports one batch run to logs and the bus ("batch.finished").
type BatchSummary struct {
	Status    string    `json:"status"`
	Checked   int       `json:"checked"`
	Failed    int       `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

// Submitter is the engine surface the dispatcher needs: blocking admission,
// so a saturated pool queues probes instead of dropping them.
type Submitter interface {
	Submit(ctx context.Context, t engine.Task) error
}

// Dispatcher fans a batch out into per-product probe tasks on the worker
// pool. Probe failures are isolated: one broken product never aborts the
// batch.
type Dispatcher struct {
	store        store.Store
	prober       *Prober
	engine       Submitter
	bus          eventbus.Bus
	log          logx.Logger
	probeTimeout time.Duration
}

func NewDispatcher(st store.Store, prober *Prober, eng Submitter, bus eventbus.Bus, log logx.Logger, probeTimeout time.Duration) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:        st,
		prober:       prober,
		engine:       eng,
		bus:          bus,
		log:          log,
		probeTimeout: probeTimeout,
	}
}

// CheckAll fans the batch out and returns once every probe is submitted.
// Probes run on the pool after this returns; their outcomes surface through
// their own logs and task events, not through the summary. Checked counts
// successful submissions only.
func (d *Dispatcher) CheckAll(ctx context.Context) (BatchSummary, error) {
	started := time.Now()

	products, err := d.store.ListActiveProducts(ctx)
	if err != nil {
		return BatchSummary{}, err
	}

	var checked, failed int
	for _, prod := range products {
		prod := prod
		task := engine.Task{
			Name:    "price.probe",
			Timeout: d.probeTimeout,
			Run: func(tctx context.Context) error {
				// The probe records its own outcome; failing the task here
				// would only trigger pointless engine retries.
				d.prober.CheckOne(tctx, prod)
				return nil
			},
		}
		if err := d.engine.Submit(ctx, task); err != nil {
			failed++
			d.log.Warn("probe submit failed",
				logx.String("product_id", prod.ID),
				logx.Err(err))
			continue
		}
		checked++
	}

	sum := BatchSummary{
		Status:    "completed",
		Checked:   checked,
		Failed:    failed,
		Timestamp: time.Now(),
	}

	d.log.Info("price batch finished",
		logx.String("status", sum.Status),
		logx.Int("products", len(products)),
		logx.Int("checked", sum.Checked),
		logx.Int("failed", sum.Failed),
		logx.Duration("took", time.Since(started)))
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: "batch.finished", Time: sum.Timestamp, Data: sum})
	}
	return sum, nil
}
