// Package alert evaluates and delivers target-price alerts.
//
// The prober decides cheaply whether a price crossing is worth a look and
// hands the product id off; the evaluator re-fetches the product and makes the
// final call against fresh state, so a product edited or removed between probe
// and evaluation never produces a stale alert.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricewatch/internal/eventbus"
	"pricewatch/internal/store"
	logx "pricewatch/pkg/logx"
)

// Event is the payload delivered to sinks and published on the bus as
// "alert.triggered".
type Event struct {
	ProductID    string    `json:"productId"`
	ProductName  string    `json:"productName"`
	CurrentPrice float64   `json:"currentPrice"`
	TargetPrice  float64   `json:"targetPrice"`
	At           time.Time `json:"at"`
}

// Sink receives triggered alerts. Delivery transports (webhook, chat, mail)
// implement this.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// LogSink writes alerts to the structured log. It is the default sink.
type LogSink struct {
	Log logx.Logger
}

var _ Sink = LogSink{}

func (s LogSink) Notify(ctx context.Context, ev Event) error {
	s.Log.Info("price alert",
		logx.String("product_id", ev.ProductID),
		logx.String("product", ev.ProductName),
		logx.Float64("current_price", ev.CurrentPrice),
		logx.Float64("target_price", ev.TargetPrice),
	)
	return nil
}

// ShouldTrigger reports whether price crosses the product's target and the
// re-alert window (if any) has elapsed. realertAfter == 0 means alert on every
// crossing probe, matching a tracker that never suppresses.
func ShouldTrigger(p *store.Product, price float64, realertAfter time.Duration, now time.Time) bool {
	if p == nil || p.TargetPrice == nil {
		return false
	}
	if price > *p.TargetPrice {
		return false
	}
	if realertAfter <= 0 || p.AlertedAt == nil {
		return true
	}
	return now.Sub(*p.AlertedAt) >= realertAfter
}

// Evaluator re-checks a reported crossing against the stored product and, if
// it still holds, notifies the sink and publishes the event.
type Evaluator struct {
	store        store.Store
	sink         Sink
	bus          eventbus.Bus
	log          logx.Logger
	realertAfter time.Duration
	now          func() time.Time
}

func NewEvaluator(st store.Store, sink Sink, bus eventbus.Bus, log logx.Logger, realertAfter time.Duration) *Evaluator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = LogSink{Log: log}
	}
	return &Evaluator{
		store:        st,
		sink:         sink,
		bus:          bus,
		log:          log,
		realertAfter: realertAfter,
		now:          time.Now,
	}
}

// Trigger runs one evaluation. A product that disappeared since the probe is
// not an error.
func (e *Evaluator) Trigger(ctx context.Context, productID string, price float64) error {
	p, err := e.store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Debug("alert target vanished", logx.String("product_id", productID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("alert: fetch product %s: %w", productID, err)
	}

	now := e.now()
	if !ShouldTrigger(p, price, e.realertAfter, now) {
		e.log.Debug("alert no longer applies",
			logx.String("product_id", productID),
			logx.Float64("price", price))
		return nil
	}

	ev := Event{
		ProductID:    p.ID,
		ProductName:  p.Name,
		CurrentPrice: price,
		At:           now,
	}
	if p.TargetPrice != nil {
		ev.TargetPrice = *p.TargetPrice
	}
	if err := e.sink.Notify(ctx, ev); err != nil {
		return fmt.Errorf("alert: notify %s: %w", productID, err)
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: "alert.triggered", Time: now, Data: ev})
	}

	if e.realertAfter > 0 {
		if err := e.store.MarkAlerted(ctx, p.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("alert: mark alerted %s: %w", productID, err)
		}
	}
	return nil
}
