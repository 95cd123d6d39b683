// Package dispatch routes normalized events to storage and monitors
// and owns alert delivery.
package dispatch

import (
	"context"
	"math"
	"sync"
	"time"

	"cryptosentry/config"
	"cryptosentry/internal/metrics"
	"cryptosentry/internal/monitor"
	"cryptosentry/internal/store"
	"cryptosentry/logger"
	"cryptosentry/models"
)

// Mailer is the external alert transport. Send reports success; it
// must not panic or block indefinitely.
type Mailer interface {
	Send(subject, body string) bool
}

// Archiver receives every normalized event, fire-and-forget.
type Archiver interface {
	Add(event models.Event)
}

// Dispatcher is the single entry point for all connectors. Handle is
// called from one dispatch loop goroutine only; monitor and store state
// therefore needs no locking. Alert delivery runs on goroutines
// serialized per (exchange, symbol) so retries never block ingestion.
type Dispatcher struct {
	store    store.Store
	archiver Archiver
	mailer   Mailer

	priceMove *monitor.PriceMove
	flow      *monitor.Flow
	spread    *monitor.Spread
	queue     *monitor.Queue

	useDepthMid bool
	maxRetries  int
	retryDelay  time.Duration

	ctx     context.Context
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	wg      sync.WaitGroup
	metrics *metrics.Registry
	log     *logger.Entry
}

func NewDispatcher(
	ctx context.Context,
	cfg config.AlertsConfig,
	st store.Store,
	archiver Archiver,
	mailer Mailer,
	reg *metrics.Registry,
	log *logger.Log,
) *Dispatcher {
	retryDelay := time.Duration(cfg.Delivery.RetryDelayS) * time.Second
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &Dispatcher{
		store:       st,
		archiver:    archiver,
		mailer:      mailer,
		priceMove:   monitor.NewPriceMove(cfg.PriceMove, log),
		flow:        monitor.NewFlow(cfg.Flow, log),
		spread:      monitor.NewSpread(cfg.Spread, log),
		queue:       monitor.NewQueue(cfg.Queue, log),
		useDepthMid: cfg.PriceMove.UseDepthMid,
		maxRetries:  cfg.Delivery.MaxRetries,
		retryDelay:  retryDelay,
		ctx:         ctx,
		locks:       make(map[string]*sync.Mutex),
		metrics:     reg,
		log:         log.WithComponent("dispatcher"),
	}
}

// Handle consumes one normalized event. It never lets a fault escape:
// anything unexpected is logged and the event dropped, so the ingestion
// loop survives arbitrary input.
func (d *Dispatcher) Handle(event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncDrops()
			d.log.WithFields(logger.Fields{
				"panic":    r,
				"exchange": event.Venue(),
				"symbol":   event.Pair(),
				"kind":     event.Kind(),
			}).Error("dispatch failed, event dropped")
		}
	}()

	d.metrics.IncEvents()

	if d.archiver != nil {
		d.archiver.Add(event)
	}

	var alerts []models.Alert

	switch ev := event.(type) {
	case models.Trade:
		if !validPrice(ev.Price) {
			d.metrics.IncDrops()
			return
		}
		alerts = d.flow.Add(ev)

	case models.DepthUpdate:
		alerts = append(alerts, d.spread.Add(ev)...)
		alerts = append(alerts, d.queue.Add(ev)...)
		// depth doubles as a price source when enabled and the mid is usable
		if d.useDepthMid && validPrice(ev.Price) {
			d.store.Update(ev.Exchange, ev.Symbol, ev.Price, ev.Timestamp)
			alerts = append(alerts, d.priceMove.Check(ev.Exchange, ev.Symbol, ev.Price, ev.Timestamp)...)
		}

	case models.Ticker:
		if !validPrice(ev.Price) {
			d.metrics.IncDrops()
			return
		}
		d.store.Update(ev.Exchange, ev.Symbol, ev.Price, ev.Timestamp)
		alerts = d.priceMove.Check(ev.Exchange, ev.Symbol, ev.Price, ev.Timestamp)

	default:
		d.metrics.IncDrops()
		d.log.WithFields(logger.Fields{"kind": event.Kind()}).Warn("unhandled event kind")
		return
	}

	if len(alerts) == 0 {
		return
	}
	for range alerts {
		d.metrics.IncAlerts()
	}

	d.wg.Add(1)
	go d.deliver(event.Venue(), event.Pair(), alerts)
}

// deliver sends alerts for one key, holding that key's lock so two
// alerts for the same symbol are never in flight together.
func (d *Dispatcher) deliver(exchange, symbol string, alerts []models.Alert) {
	defer d.wg.Done()

	lock := d.keyLock(exchange + ":" + symbol)
	lock.Lock()
	defer lock.Unlock()

	for _, alert := range alerts {
		d.sendWithRetry(alert)
	}
}

func (d *Dispatcher) keyLock(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[key] = lock
	}
	return lock
}

func (d *Dispatcher) sendWithRetry(alert models.Alert) {
	attempts := 1 + d.maxRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		if d.mailer.Send(alert.Subject, alert.Message) {
			return
		}
		d.metrics.IncMailFailures()
		if attempt == attempts {
			break
		}
		d.log.WithFields(logger.Fields{
			"subject": alert.Subject,
			"attempt": attempt,
			"of":      attempts,
		}).Warn("alert delivery failed, retrying")

		timer := time.NewTimer(d.retryDelay)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	d.log.WithFields(logger.Fields{"subject": alert.Subject}).Error("giving up on alert")
}

// Wait blocks until in-flight alert deliveries have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
