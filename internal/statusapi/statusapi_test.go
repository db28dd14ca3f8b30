package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srctl/srnode/internal/coordinator"
	"github.com/srctl/srnode/internal/logclient"
	"github.com/srctl/srnode/internal/metrics"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	fake := logclient.NewFake()
	registry := prometheus.NewRegistry()
	coord := coordinator.New(fake, coordinator.Config{
		NodeID:  "n1",
		Shards:  2,
		Metrics: metrics.New(registry),
	})
	s := New(coord, Config{NodeID: "n1", RetryBudget: 5, Gatherer: registry})
	return s
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusReportsAllShards(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.NodeID != "n1" || got.ShardCount != 2 || len(got.Shards) != 2 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "registry_writer_loaded_offset") {
		t.Fatal("expected the writer's metrics to be exposed")
	}
}
