// Package metrics exposes application counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application's collectors and the registry they belong to.
type Metrics struct {
	registry *prometheus.Registry

	ItemsCreated      prometheus.Counter
	SwapRequests      prometheus.Counter
	SwapTransitions   *prometheus.CounterVec
	LiveSubscriptions prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ItemsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "menjalnica",
			Name:      "items_created_total",
			Help:      "Items listed for swapping.",
		}),
		SwapRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "menjalnica",
			Name:      "swap_requests_created_total",
			Help:      "Swap requests proposed.",
		}),
		SwapTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "menjalnica",
			Name:      "swap_transitions_total",
			Help:      "Swap request status changes by target status.",
		}, []string{"status"}),
		LiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "menjalnica",
			Name:      "live_subscriptions",
			Help:      "Open live snapshot subscriptions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ItemsCreated,
		m.SwapRequests,
		m.SwapTransitions,
		m.LiveSubscriptions,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
