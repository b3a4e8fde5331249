package tracker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/alert"
	"pricewatch/internal/store"
	logx "pricewatch/pkg/logx"
)

// Status classifies a single probe.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Result is the outcome of probing one product.
type Result struct {
	ProductID string
	Status    Status
	Price     float64
	Err       error
}

// AlertDispatcher hands a price crossing off for asynchronous evaluation.
// Dispatch must not block on delivery; the probe's outcome does not depend on
// the alert's.
type AlertDispatcher interface {
	Dispatch(productID string, price float64)
}

// Prober fetches one product's price and records it.
type Prober struct {
	store        store.Store
	source       PriceSource
	limiter      *rate.Limiter
	alerts       AlertDispatcher
	realertAfter time.Duration
	log          logx.Logger
	now          func() time.Time
}

// NewProber wires a prober. ratePerSec <= 0 disables throttling; alerts may
// be nil when alerting is off.
func NewProber(st store.Store, src PriceSource, ratePerSec float64, alerts AlertDispatcher, realertAfter time.Duration, log logx.Logger) *Prober {
	if log.IsZero() {
		log = logx.Nop()
	}
	var lim *rate.Limiter
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &Prober{
		store:        st,
		source:       src,
		limiter:      lim,
		alerts:       alerts,
		realertAfter: realertAfter,
		log:          log,
		now:          time.Now,
	}
}

// CheckOne probes a single product: fetch the price, record the check, and
// dispatch an alert if the target is crossed. A product deleted since the
// batch was listed is reported as not_found, not as a failure.
func (p *Prober) CheckOne(ctx context.Context, prod store.Product) Result {
	res := Result{ProductID: prod.ID}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			res.Status = StatusError
			res.Err = err
			return res
		}
	}

	price, err := p.source.Fetch(ctx, &prod)
	if err != nil {
		p.log.Warn("price fetch failed",
			logx.String("product_id", prod.ID),
			logx.Err(err))
		res.Status = StatusError
		res.Err = err
		return res
	}
	res.Price = price

	now := p.now()
	err = p.store.ApplyPriceCheck(ctx, prod.ID, store.PriceCheck{Price: price, At: now})
	if errors.Is(err, store.ErrNotFound) {
		p.log.Debug("product vanished mid-batch", logx.String("product_id", prod.ID))
		res.Status = StatusNotFound
		return res
	}
	if err != nil {
		p.log.Warn("price check write failed",
			logx.String("product_id", prod.ID),
			logx.Err(err))
		res.Status = StatusError
		res.Err = err
		return res
	}

	p.log.Debug("price checked",
		logx.String("product_id", prod.ID),
		logx.Float64("price", price))

	if p.alerts != nil && alert.ShouldTrigger(&prod, price, p.realertAfter, now) {
		p.alerts.Dispatch(prod.ID, price)
	}

	res.Status = StatusSuccess
	return res
}
