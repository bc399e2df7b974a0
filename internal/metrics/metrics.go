// Package metrics exposes the small set of process gauges/counters an
// external scraper can use to watch the exchange without touching
// storage: action_count, orders/trades/cancels processed, and durable
// writer queue depth.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the exchange's metrics behind a dedicated prometheus
// registry, so embedding this core into a larger process never collides
// with that process's own default registry.
type Registry struct {
	Registerer prometheus.Registerer

	ActionCount       prometheus.Gauge
	OrdersSubmitted   prometheus.Counter
	TradesExecuted    prometheus.Counter
	CancelsProcessed  prometheus.Counter
	DurableQueueDepth prometheus.Gauge
}

// New builds and registers a fresh metrics registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		Registerer: reg,
		ActionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fenrir_action_count",
			Help: "Process-wide count of durable-writer mutations enqueued so far.",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fenrir_orders_submitted_total",
			Help: "Total orders accepted by the dispatcher.",
		}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fenrir_trades_executed_total",
			Help: "Total trades produced by matching.",
		}),
		CancelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fenrir_cancels_total",
			Help: "Total first-time-successful cancellations.",
		}),
		DurableQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fenrir_durable_queue_depth",
			Help: "Number of durable-writer messages currently queued.",
		}),
	}
	reg.MustRegister(r.ActionCount, r.OrdersSubmitted, r.TradesExecuted, r.CancelsProcessed, r.DurableQueueDepth)
	return r
}

// Noop returns a registry whose metrics are never exposed to a
// prometheus.Gatherer, for use in tests that don't care about metrics.
func Noop() *Registry {
	return New()
}
