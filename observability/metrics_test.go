package observability

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"datamarket/core/events"
	"datamarket/core/types"
)

func TestMarketMetricsObserve(t *testing.T) {
	m := newMarketMetrics()
	registry := prometheus.NewRegistry()
	registry.MustRegister(m.operations, m.errors, m.latency, m.events, m.throttles)

	m.Observe("purchase", http.StatusOK, 10*time.Millisecond)
	m.Observe("purchase", http.StatusPaymentRequired, time.Millisecond)
	m.Observe("", http.StatusOK, time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("purchase", "success")); got != 1 {
		t.Fatalf("success count: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("purchase", "402")); got != 1 {
		t.Fatalf("error count: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("unknown", "success")); got != 1 {
		t.Fatalf("unknown operation count: got %v want 1", got)
	}
}

func TestMarketMetricsCountsEvents(t *testing.T) {
	m := newMarketMetrics()
	var emitter events.Emitter = m
	emitter.Emit(events.Wrap(&types.Event{Type: "market.dataset.purchased"}))
	emitter.Emit(events.Wrap(&types.Event{Type: "market.dataset.purchased"}))
	if got := testutil.ToFloat64(m.events.WithLabelValues("market.dataset.purchased")); got != 2 {
		t.Fatalf("event count: got %v want 2", got)
	}
	m.RecordThrottle("", "")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")); got != 1 {
		t.Fatalf("throttle count: got %v want 1", got)
	}
}
