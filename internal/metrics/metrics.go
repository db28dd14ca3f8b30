// Package metrics exposes the sequenced writer's Prometheus instrumentation.
// Naming and the counter/gauge split follow the same pattern as
// internal/replicator's metrics server in this module, adapted from
// per-replication-pair counters to per-node writer counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WriterMetrics holds the counters and gauges the sequenced writer updates
// as it processes mutations. All instruments are registered against the
// Registerer passed to New, so callers can share one registry across the
// writer and the status HTTP surface's /metrics endpoint.
type WriterMetrics struct {
	mutationsTotal *prometheus.CounterVec
	retriesTotal   prometheus.Counter
	loadedOffset   prometheus.Gauge
	applyErrors    prometheus.Counter
}

// New registers and returns a WriterMetrics bound to reg.
func New(reg prometheus.Registerer) *WriterMetrics {
	m := &WriterMetrics{
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_writer_mutations_total",
			Help: "Total sequenced-writer mutations by operation and outcome.",
		}, []string{"op", "result"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_writer_retries_total",
			Help: "Total offset-mismatch retries across all mutations.",
		}),
		loadedOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registry_writer_loaded_offset",
			Help: "Highest internal-topic offset applied to the coordinator's store.",
		}),
		applyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registry_writer_apply_errors_total",
			Help: "Total errors while applying a fetched record to the store.",
		}),
	}
	reg.MustRegister(m.mutationsTotal, m.retriesTotal, m.loadedOffset, m.applyErrors)
	return m
}

// ObserveMutation records the outcome of one mutating operation. result is
// one of "ok" (no-op outcomes included), "retry_exhausted", "backend_error",
// "not_found", "compatibility_violation".
func (m *WriterMetrics) ObserveMutation(op, result string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(op, result).Inc()
}

// IncRetry records one offset-mismatch retry.
func (m *WriterMetrics) IncRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// SetLoadedOffset sets the loaded-offset gauge.
func (m *WriterMetrics) SetLoadedOffset(offset int64) {
	if m == nil {
		return
	}
	m.loadedOffset.Set(float64(offset))
}

// IncApplyError records a failed Apply call during catch-up.
func (m *WriterMetrics) IncApplyError() {
	if m == nil {
		return
	}
	m.applyErrors.Inc()
}
