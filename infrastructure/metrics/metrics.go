// Package metrics provides Prometheus instrumentation for graph
// operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for the graph service. A nil
// *Collector is valid and records nothing, so metrics stay optional.
type Collector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	autoLinksTotal    prometheus.Counter
	registry          *prometheus.Registry
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memexia_graph_operations_total",
			Help: "Total number of graph operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memexia_graph_operation_duration_seconds",
			Help:    "Duration of graph operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"operation"},
	)

	autoLinksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "memexia_autolink_edges_total",
			Help: "Total number of edges materialized by the auto-link pass",
		},
	)

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(autoLinksTotal)

	return &Collector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		autoLinksTotal:    autoLinksTotal,
		registry:          registry,
	}
}

// Registry exposes the collector's registry for scraping handlers.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordOperation records an operation's outcome and duration.
func (c *Collector) RecordOperation(operation, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordAutoLink records one auto-link edge creation.
func (c *Collector) RecordAutoLink() {
	if c == nil {
		return
	}
	c.autoLinksTotal.Inc()
}
