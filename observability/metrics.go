package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"datamarket/core/events"
)

// MarketMetrics tracks marketplace operations and the notifications they
// produce.
type MarketMetrics struct {
	operations *prometheus.CounterVec
	errors     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
	throttles  *prometheus.CounterVec

	eventCounter     metric.Int64Counter
	latencyHistogram metric.Float64Histogram
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// Market returns the lazily-initialised marketplace metrics registered with
// the default prometheus registry.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = newMarketMetrics()
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.errors,
			marketRegistry.latency,
			marketRegistry.events,
			marketRegistry.throttles,
		)
	})
	return marketRegistry
}

func newMarketMetrics() *MarketMetrics {
	m := &MarketMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamarket",
			Subsystem: "market",
			Name:      "operations_total",
			Help:      "Marketplace operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamarket",
			Subsystem: "market",
			Name:      "errors_total",
			Help:      "Failed marketplace operations segmented by operation and status code.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datamarket",
			Subsystem: "market",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for marketplace operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamarket",
			Subsystem: "market",
			Name:      "events_total",
			Help:      "Committed marketplace notifications segmented by type.",
		}, []string{"type"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datamarket",
			Subsystem: "market",
			Name:      "throttles_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"route", "reason"}),
	}
	m.initMeter()
	return m
}

// initMeter mirrors the counters onto the global OpenTelemetry meter so they
// reach the OTLP exporter when one is configured.
func (m *MarketMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("datamarket/market")
	counter, err := meter.Int64Counter("datamarket.market.events")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("datamarket/market")
		counter, _ = meter.Int64Counter("datamarket.market.events")
	}
	latency, err := meter.Float64Histogram("datamarket.market.operation_ms")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("datamarket/market")
		latency, _ = meter.Float64Histogram("datamarket.market.operation_ms")
	}
	m.eventCounter = counter
	m.latencyHistogram = latency
}

// Observe records the outcome of an operation. status is the HTTP status the
// operation was answered with.
func (m *MarketMetrics) Observe(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
	if m.latencyHistogram != nil {
		m.latencyHistogram.Record(context.Background(),
			float64(duration)/float64(time.Millisecond),
			metric.WithAttributes(
				attribute.String("operation", operation),
				attribute.String("outcome", outcome),
			),
		)
	}
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *MarketMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// Emit implements events.Emitter by counting notifications per type.
func (m *MarketMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	if m.eventCounter != nil {
		m.eventCounter.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("type", evt.EventType())))
	}
}
