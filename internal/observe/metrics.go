// Package observe provides application-wide observability primitives for
// Tasmee: OpenTelemetry metrics, distributed tracing, structured logging,
// and wrappers that instrument the verification and progression paths.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Tasmee metrics.
const meterName = "github.com/hifzlab/tasmee"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Verification ---

	// VerifyDuration tracks end-to-end verification latency, including any
	// semantic refinement. Use with attribute:
	//   attribute.String("strictness", ...)
	VerifyDuration metric.Float64Histogram

	// VerifyScore tracks the distribution of final scores (0..100).
	VerifyScore metric.Int64Histogram

	// WordErrors counts recitation errors found by verification. Use with
	// attribute:
	//   attribute.String("type", ...) — "missing", "wrong" or "extra"
	WordErrors metric.Int64Counter

	// SemanticOutcomes counts how each verification's refinement stage
	// ended. Use with attribute:
	//   attribute.String("outcome", ...) — "refined", "raw" or "error"
	SemanticOutcomes metric.Int64Counter

	// --- Analyzer providers ---

	// AnalyzerDuration tracks semantic analyzer call latency.
	AnalyzerDuration metric.Float64Histogram

	// AnalyzerRequests counts analyzer API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	AnalyzerRequests metric.Int64Counter

	// AnalyzerErrors counts analyzer errors by provider.
	AnalyzerErrors metric.Int64Counter

	// --- Progression ---

	// StageAdvances counts learner position moves by the stage advanced
	// into. Use with attribute:
	//   attribute.String("stage", ...)
	StageAdvances metric.Int64Counter

	// RejectedSignals counts completion signals refused as stale or
	// invalid. Use with attribute:
	//   attribute.String("stage", ...)
	RejectedSignals metric.Int64Counter

	// ActiveTasks tracks the number of currently open memorization tasks.
	ActiveTasks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The low
// end resolves pure alignment runs, the high end model-backed refinement.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// scoreBuckets defines bucket boundaries for the 0..100 score histogram.
var scoreBuckets = []float64{
	10, 20, 30, 40, 50, 60, 70, 80, 90, 95, 100,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Verification.
	if met.VerifyDuration, err = m.Float64Histogram("tasmee.verify.duration",
		metric.WithDescription("Latency of a verification, including refinement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.VerifyScore, err = m.Int64Histogram("tasmee.verify.score",
		metric.WithDescription("Distribution of final verification scores."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WordErrors, err = m.Int64Counter("tasmee.verify.word_errors",
		metric.WithDescription("Total recitation errors by type."),
	); err != nil {
		return nil, err
	}
	if met.SemanticOutcomes, err = m.Int64Counter("tasmee.verify.semantic_outcomes",
		metric.WithDescription("Verification refinement outcomes."),
	); err != nil {
		return nil, err
	}

	// Analyzer providers.
	if met.AnalyzerDuration, err = m.Float64Histogram("tasmee.analyzer.duration",
		metric.WithDescription("Latency of semantic analyzer calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalyzerRequests, err = m.Int64Counter("tasmee.analyzer.requests",
		metric.WithDescription("Total analyzer API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.AnalyzerErrors, err = m.Int64Counter("tasmee.analyzer.errors",
		metric.WithDescription("Total analyzer errors by provider."),
	); err != nil {
		return nil, err
	}

	// Progression.
	if met.StageAdvances, err = m.Int64Counter("tasmee.hifz.stage_advances",
		metric.WithDescription("Total learner position advances by target stage."),
	); err != nil {
		return nil, err
	}
	if met.RejectedSignals, err = m.Int64Counter("tasmee.hifz.rejected_signals",
		metric.WithDescription("Total completion signals refused as stale or invalid."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTasks, err = m.Int64UpDownCounter("tasmee.hifz.active_tasks",
		metric.WithDescription("Number of currently open memorization tasks."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tasmee.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAnalyzerRequest is a convenience method that records an analyzer
// request counter increment with the standard attribute set.
func (m *Metrics) RecordAnalyzerRequest(ctx context.Context, provider, status string) {
	m.AnalyzerRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordAnalyzerError is a convenience method that records an analyzer error
// counter increment.
func (m *Metrics) RecordAnalyzerError(ctx context.Context, provider string) {
	m.AnalyzerErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordSemanticOutcome is a convenience method that records how a
// verification's refinement stage ended.
func (m *Metrics) RecordSemanticOutcome(ctx context.Context, outcome string) {
	m.SemanticOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
