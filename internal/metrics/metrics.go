// Package metrics provides Prometheus metrics for annotation IO operations.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// IOMetrics contains the metrics of import, export, metadata and prediction batches.
// A nil *IOMetrics is valid and records nothing.
type IOMetrics struct {
	OperationsTotal   *prometheus.CounterVec
	ItemsTotal        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ActiveOperations  *prometheus.GaugeVec
}

// NewIOMetrics creates the metrics and registers them on registry.
func NewIOMetrics(registry prometheus.Registerer) (*IOMetrics, error) {
	m := &IOMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_io_operations_total",
				Help: "Total number of IO operations by type and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_io_items_total",
				Help: "Total number of processed items by operation and status",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labeler_io_operation_duration_seconds",
				Help:    "Wall-clock duration of IO operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~33s
			},
			[]string{"operation"},
		),
		ActiveOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "labeler_io_active_operations",
				Help: "Number of IO operations currently running",
			},
			[]string{"operation"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register IO metrics: %w", err)
	}
	return m, nil
}

// OperationStarted marks an operation as running.
func (m *IOMetrics) OperationStarted(operation string) {
	if m == nil {
		return
	}
	m.ActiveOperations.WithLabelValues(operation).Inc()
}

// OperationFinished records the outcome and item counts of an operation.
func (m *IOMetrics) OperationFinished(operation, outcome string, succeeded, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveOperations.WithLabelValues(operation).Dec()
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if succeeded > 0 {
		m.ItemsTotal.WithLabelValues(operation, "success").Add(float64(succeeded))
	}
	if failed > 0 {
		m.ItemsTotal.WithLabelValues(operation, "error").Add(float64(failed))
	}
}

// Describe implements prometheus.Collector.
func (m *IOMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.OperationsTotal.Describe(ch)
	m.ItemsTotal.Describe(ch)
	m.OperationDuration.Describe(ch)
	m.ActiveOperations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *IOMetrics) Collect(ch chan<- prometheus.Metric) {
	m.OperationsTotal.Collect(ch)
	m.ItemsTotal.Collect(ch)
	m.OperationDuration.Collect(ch)
	m.ActiveOperations.Collect(ch)
}
