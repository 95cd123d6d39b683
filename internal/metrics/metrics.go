// Package metrics is the observability handle passed into components
// at construction. Counters are cheap atomics; publishing them anywhere
// (logs, CloudWatch) is the publisher's concern.
package metrics

import "sync/atomic"

type Registry struct {
	events       atomic.Int64
	drops        atomic.Int64
	resyncs      atomic.Int64
	reconnects   atomic.Int64
	alerts       atomic.Int64
	mailFailures atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) IncEvents() {
	if r != nil {
		r.events.Add(1)
	}
}

func (r *Registry) IncDrops() {
	if r != nil {
		r.drops.Add(1)
	}
}

func (r *Registry) IncResyncs() {
	if r != nil {
		r.resyncs.Add(1)
	}
}

func (r *Registry) IncReconnects() {
	if r != nil {
		r.reconnects.Add(1)
	}
}

func (r *Registry) IncAlerts() {
	if r != nil {
		r.alerts.Add(1)
	}
}

func (r *Registry) IncMailFailures() {
	if r != nil {
		r.mailFailures.Add(1)
	}
}

// Snapshot returns the current counter values keyed by metric name.
func (r *Registry) Snapshot() map[string]int64 {
	if r == nil {
		return nil
	}
	return map[string]int64{
		"events_total":         r.events.Load(),
		"events_dropped_total": r.drops.Load(),
		"book_resyncs_total":   r.resyncs.Load(),
		"reconnects_total":     r.reconnects.Load(),
		"alerts_total":         r.alerts.Load(),
		"mail_failures_total":  r.mailFailures.Load(),
	}
}
