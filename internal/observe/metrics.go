// Package observe provides application-wide observability primitives for
// hark: OpenTelemetry metrics, tracing, and the HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// Prometheus exporter bridge is available via [InitProvider] so that
// metrics can be scraped from the standard /metrics endpoint. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all hark metrics.
const meterName = "github.com/harkwake/hark"

// Checkout source attribute values for [Metrics.PoolCheckouts].
const (
	CheckoutCache = "cache"
	CheckoutNew   = "new"
)

// Utterance outcome attribute values for [Metrics.Utterances].
const (
	OutcomeDetected    = "detected"
	OutcomeNotDetected = "not-detected"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// EngineInitDuration tracks how long engine construction (model load)
	// takes. Use with attribute.String("keyword", ...).
	EngineInitDuration metric.Float64Histogram

	// ProcessDuration tracks per-frame detection latency.
	ProcessDuration metric.Float64Histogram

	// PoolCheckouts counts engine checkouts. Use with attributes:
	//   attribute.String("keyword", ...), attribute.String("source", CheckoutCache|CheckoutNew)
	PoolCheckouts metric.Int64Counter

	// PoolEvictions counts idle handles evicted by the per-keyword cap.
	PoolEvictions metric.Int64Counter

	// Detections counts keyword matches. Use with attribute:
	//   attribute.String("keyword", ...)
	Detections metric.Int64Counter

	// Utterances counts completed utterance windows by outcome. Use with
	// attribute.String("outcome", OutcomeDetected|OutcomeNotDetected).
	Utterances metric.Int64Counter

	// IdleHandles tracks the number of engine handles idle in the pool.
	IdleHandles metric.Int64UpDownCounter

	// ActiveSessions tracks the number of live client sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Frame
// processing sits in the sub-millisecond range; model loads can take
// seconds.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EngineInitDuration, err = m.Float64Histogram("hark.engine.init.duration",
		metric.WithDescription("Latency of detection engine initialization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProcessDuration, err = m.Float64Histogram("hark.engine.process.duration",
		metric.WithDescription("Latency of a single detection frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("hark.http.request.duration",
		metric.WithDescription("Latency of HTTP requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.PoolCheckouts, err = m.Int64Counter("hark.pool.checkouts",
		metric.WithDescription("Engine handle checkouts, by keyword and source."),
	); err != nil {
		return nil, err
	}
	if met.PoolEvictions, err = m.Int64Counter("hark.pool.evictions",
		metric.WithDescription("Idle engine handles evicted by the per-keyword cap."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("hark.detections",
		metric.WithDescription("Keyword detections reported to clients."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("hark.utterances",
		metric.WithDescription("Completed utterance windows, by outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.IdleHandles, err = m.Int64UpDownCounter("hark.pool.idle_handles",
		metric.WithDescription("Engine handles currently idle in the pool."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("hark.sessions.active",
		metric.WithDescription("Live client sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance backed by
// the globally registered meter provider, creating it on first use. On
// the (unexpected) failure path it falls back to no-op instruments so
// recording calls stay safe.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
