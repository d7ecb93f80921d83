// Package observe provides observability primitives for the annotator:
// OpenTelemetry metrics, tracing, trace-aware structured logging and the HTTP
// middleware of the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus exporter so they can be scraped from /metrics.
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/syoon9/CEFRJ-annotator"

// Status attribute values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// TaggerDuration tracks the latency of one tagging call.
	TaggerDuration metric.Float64Histogram

	// TaggerErrors counts failed tagging attempts. Use with attribute:
	//   attribute.String("tagger", ...)
	TaggerErrors metric.Int64Counter

	// Sentences counts annotated sentences. Use with attribute:
	//   attribute.String("status", StatusOK|StatusError)
	Sentences metric.Int64Counter

	// PatternMatches counts pattern occurrences. Use with attribute:
	//   attribute.String("pattern_id", ...)
	PatternMatches metric.Int64Counter

	// SkippedAnnotations counts malformed M2 annotation lines.
	SkippedAnnotations metric.Int64Counter

	// Files counts processed correction files. Use with attribute:
	//   attribute.String("status", StatusOK|StatusError)
	Files metric.Int64Counter

	// ActiveFiles tracks the number of correction files in flight.
	ActiveFiles metric.Int64UpDownCounter

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries (in seconds) for tagger
// calls, which range from a fast local process to a remote LLM.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TaggerDuration, err = m.Float64Histogram("cefrj.tagger.duration",
		metric.WithDescription("Latency of one tagging call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TaggerErrors, err = m.Int64Counter("cefrj.tagger.errors",
		metric.WithDescription("Failed tagging attempts by tagger."),
	); err != nil {
		return nil, err
	}
	if met.Sentences, err = m.Int64Counter("cefrj.sentences",
		metric.WithDescription("Annotated sentences by status."),
	); err != nil {
		return nil, err
	}
	if met.PatternMatches, err = m.Int64Counter("cefrj.pattern.matches",
		metric.WithDescription("Pattern occurrences by pattern ID."),
	); err != nil {
		return nil, err
	}
	if met.SkippedAnnotations, err = m.Int64Counter("cefrj.m2.skipped_annotations",
		metric.WithDescription("Malformed M2 annotation lines that were skipped."),
	); err != nil {
		return nil, err
	}
	if met.Files, err = m.Int64Counter("cefrj.files",
		metric.WithDescription("Processed correction files by status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveFiles, err = m.Int64UpDownCounter("cefrj.batch.active_files",
		metric.WithDescription("Correction files currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("cefrj.mcp.tool.calls",
		metric.WithDescription("MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("cefrj.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Status maps an error to StatusOK or StatusError.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// RecordSentence increments the sentence counter for the outcome of err.
func (m *Metrics) RecordSentence(ctx context.Context, err error) {
	m.Sentences.Add(ctx, 1, metric.WithAttributes(Attr("status", Status(err))))
}

// RecordFile increments the file counter for the outcome of err.
func (m *Metrics) RecordFile(ctx context.Context, err error) {
	m.Files.Add(ctx, 1, metric.WithAttributes(Attr("status", Status(err))))
}

// RecordMatches adds n occurrences of patternID.
func (m *Metrics) RecordMatches(ctx context.Context, patternID string, n int) {
	m.PatternMatches.Add(ctx, int64(n), metric.WithAttributes(Attr("pattern_id", patternID)))
}

// RecordTaggerError increments the error counter of the named tagger.
func (m *Metrics) RecordTaggerError(ctx context.Context, tagger string) {
	m.TaggerErrors.Add(ctx, 1, metric.WithAttributes(Attr("tagger", tagger)))
}

// RecordToolCall increments the tool call counter.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
