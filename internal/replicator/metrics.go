package replicator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the replicator's counters over a Prometheus
// /metrics endpoint. Counters are bridged from Stats on a fixed tick: the
// streaming loop only touches its own atomics, and this server periodically
// folds the deltas into the registered instruments.
type MetricsServer struct {
	stats    *Stats
	port     int
	server   *http.Server
	registry *prometheus.Registry

	replicated *prometheus.CounterVec
	errors     prometheus.Counter
	processed  prometheus.Counter
	filtered   prometheus.Counter
	lastOffset prometheus.Gauge
	uptime     prometheus.Gauge
}

// NewMetricsServer creates a metrics server on the given port, labelling
// every instrument with the source and target registry names.
func NewMetricsServer(stats *Stats, port int, source, target string) *MetricsServer {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"source": source, "target": target}

	m := &MetricsServer{
		stats:    stats,
		port:     port,
		registry: reg,
		replicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "srnode_replicate_events_total",
			Help:        "Total replicated events by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "srnode_replicate_errors_total",
			Help:        "Total replication errors.",
			ConstLabels: labels,
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "srnode_replicate_events_processed_total",
			Help:        "Total events read off the internal topic.",
			ConstLabels: labels,
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "srnode_replicate_events_filtered_total",
			Help:        "Total events skipped by the subject filter.",
			ConstLabels: labels,
		}),
		lastOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "srnode_replicate_last_offset",
			Help:        "Last processed internal-topic offset.",
			ConstLabels: labels,
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "srnode_replicate_uptime_seconds",
			Help:        "Replicator uptime in seconds.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(m.replicated, m.errors, m.processed, m.filtered, m.lastOffset, m.uptime)
	return m
}

// Start begins serving metrics. Blocks until ctx is cancelled.
func (m *MetricsServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.port),
		Handler: mux,
	}

	go m.updateLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.server.Shutdown(shutdownCtx)
	}()

	if err := m.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

func (m *MetricsServer) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var prev StatsSnapshot

	addDelta := func(c prometheus.Counter, cur, old int64) {
		if delta := cur - old; delta > 0 {
			c.Add(float64(delta))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.stats.Snapshot()

			addDelta(m.replicated.WithLabelValues("schema"), snap.SchemasReplicated, prev.SchemasReplicated)
			addDelta(m.replicated.WithLabelValues("config"), snap.ConfigsReplicated, prev.ConfigsReplicated)
			addDelta(m.replicated.WithLabelValues("delete"), snap.DeletesReplicated, prev.DeletesReplicated)
			addDelta(m.replicated.WithLabelValues("mode"), snap.ModesReplicated, prev.ModesReplicated)
			addDelta(m.errors, snap.Errors, prev.Errors)
			addDelta(m.processed, snap.EventsProcessed, prev.EventsProcessed)
			addDelta(m.filtered, snap.EventsFiltered, prev.EventsFiltered)

			m.lastOffset.Set(float64(snap.LastOffset))
			m.uptime.Set(snap.Uptime.Seconds())

			prev = snap
		}
	}
}
