// Package metrics registers the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ordersCreated     prometheus.Counter
	statusTransitions *prometheus.CounterVec
	cartSyncRuns      prometheus.Counter
	cartSyncDropped   prometheus.Counter
	reviewsCreated    prometheus.Counter
}

func New() *Metrics {
	return newWithRegisterer(prometheus.DefaultRegisterer)
}

func newWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_orders_created_total",
			Help: "Total number of orders created",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_order_status_transitions_total",
			Help: "Total number of order status transitions, by target status",
		}, []string{"status"}),
		cartSyncRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_cart_sync_runs_total",
			Help: "Total number of cart reconciliation runs",
		}),
		cartSyncDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_cart_sync_dropped_lines_total",
			Help: "Total number of cart lines dropped during reconciliation",
		}),
		reviewsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_reviews_created_total",
			Help: "Total number of reviews created",
		}),
	}
	reg.MustRegister(m.ordersCreated, m.statusTransitions, m.cartSyncRuns, m.cartSyncDropped, m.reviewsCreated)
	return m
}

// All increment methods are safe on a nil receiver so services can run
// without metrics in tests.

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) StatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) CartSyncRun() {
	if m == nil {
		return
	}
	m.cartSyncRuns.Inc()
}

func (m *Metrics) CartSyncDroppedLine() {
	if m == nil {
		return
	}
	m.cartSyncDropped.Inc()
}

func (m *Metrics) ReviewCreated() {
	if m == nil {
		return
	}
	m.reviewsCreated.Inc()
}
