// Package statusapi is the node's read-only HTTP surface: liveness, a
// status snapshot, and Prometheus scraping. It never exposes any mutating
// path; registering and deleting schemas stays on the internal topic,
// reached only through internal/coordinator and internal/writer.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/srctl/srnode/internal/coordinator"
)

// ShardStatus is one shard's entry in the /status response.
type ShardStatus struct {
	ID           int   `json:"id"`
	LoadedOffset int64 `json:"loaded_offset"`
	ObservedTail int64 `json:"observed_tail"`
}

// Status is the JSON body served at GET /status.
type Status struct {
	NodeID      string        `json:"node_id"`
	ShardCount  int           `json:"shard_count"`
	RetryBudget int           `json:"retry_budget"`
	Shards      []ShardStatus `json:"shards"`
}

// Server is the node's status HTTP server.
type Server struct {
	nodeID      string
	retryBudget int
	coord       *coordinator.Coordinator
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
	router      chi.Router
	http        *http.Server
}

// Config configures a Server.
type Config struct {
	NodeID      string
	RetryBudget int
	Addr        string // e.g. ":8080"
	Logger      *zap.Logger

	// Gatherer backs GET /metrics; it should be the same registry the
	// writer's instruments are registered on. Nil falls back to the default
	// Prometheus registry.
	Gatherer prometheus.Gatherer
}

// New builds a Server that reports on coord's shards.
func New(coord *coordinator.Coordinator, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		nodeID:      cfg.NodeID,
		retryBudget: cfg.RetryBudget,
		coord:       coord,
		gatherer:    gatherer,
		logger:      logger,
	}
	s.setupRouter()
	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.router,
	}
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router = r
}

// ListenAndServe starts the HTTP server; it blocks until the server stops
// or ctx is cancelled, then drains in-flight requests with a short
// shutdown deadline.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		NodeID:      s.nodeID,
		ShardCount:  s.coord.ShardCount(),
		RetryBudget: s.retryBudget,
	}
	for i := 0; i < s.coord.ShardCount(); i++ {
		sh := s.coord.Shard(i)
		status.Shards = append(status.Shards, ShardStatus{
			ID:           sh.ID,
			LoadedOffset: sh.Store().LoadedOffset(),
			ObservedTail: sh.ObservedTail(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("status handler: encode response", zap.Error(err))
	}
}
