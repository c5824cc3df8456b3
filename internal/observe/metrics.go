// Package observe provides observability primitives for subpipe: OpenTelemetry
// metrics with a Prometheus exporter bridge, and structured-logging setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped via
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all subpipe metrics.
const meterName = "github.com/saccohuo/subpipe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ResolveDuration tracks source resolution and metadata fetch latency.
	ResolveDuration metric.Float64Histogram

	// DownloadDuration tracks media download latency.
	DownloadDuration metric.Float64Histogram

	// AudioPrepDuration tracks audio conversion and chunk planning latency.
	AudioPrepDuration metric.Float64Histogram

	// TranscribeDuration tracks end-to-end transcription latency per job.
	TranscribeDuration metric.Float64Histogram

	// TranslateDuration tracks end-to-end subtitle translation latency.
	TranslateDuration metric.Float64Histogram

	// PipelineDuration tracks full process-job latency.
	PipelineDuration metric.Float64Histogram

	// --- Counters ---

	// ASRRequests counts chunk recognition calls. Use with attributes:
	//   attribute.String("server", ...), attribute.String("status", ...)
	ASRRequests metric.Int64Counter

	// TranslationRequests counts translation chunk calls. Use with attributes:
	//   attribute.String("service", ...), attribute.String("status", ...)
	TranslationRequests metric.Int64Counter

	// HotwordCorrections counts post-processing rewrites. Use with attribute:
	//   attribute.String("method", ...)
	HotwordCorrections metric.Int64Counter

	// --- Error counters ---

	// StageErrors counts failures per pipeline stage. Use with attributes:
	//   attribute.String("stage", ...), attribute.String("kind", ...)
	StageErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks the number of pipeline jobs in flight.
	ActiveJobs metric.Int64UpDownCounter

	// ChunksInFlight tracks audio chunks currently being transcribed.
	ChunksInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Pipeline
// stages range from sub-second metadata fetches to half-hour transcriptions.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ResolveDuration, err = m.Float64Histogram("subpipe.resolve.duration",
		metric.WithDescription("Latency of source resolution and metadata fetch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DownloadDuration, err = m.Float64Histogram("subpipe.download.duration",
		metric.WithDescription("Latency of media download."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AudioPrepDuration, err = m.Float64Histogram("subpipe.audio_prep.duration",
		metric.WithDescription("Latency of audio conversion and chunk planning."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("subpipe.transcribe.duration",
		metric.WithDescription("End-to-end transcription latency per job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranslateDuration, err = m.Float64Histogram("subpipe.translate.duration",
		metric.WithDescription("End-to-end subtitle translation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineDuration, err = m.Float64Histogram("subpipe.pipeline.duration",
		metric.WithDescription("Full process-job latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ASRRequests, err = m.Int64Counter("subpipe.asr.requests",
		metric.WithDescription("Total chunk recognition calls by server and status."),
	); err != nil {
		return nil, err
	}
	if met.TranslationRequests, err = m.Int64Counter("subpipe.translation.requests",
		metric.WithDescription("Total translation chunk calls by service and status."),
	); err != nil {
		return nil, err
	}
	if met.HotwordCorrections, err = m.Int64Counter("subpipe.hotword.corrections",
		metric.WithDescription("Total hotword post-processing rewrites by method."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.StageErrors, err = m.Int64Counter("subpipe.stage.errors",
		metric.WithDescription("Total pipeline stage failures by stage and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveJobs, err = m.Int64UpDownCounter("subpipe.active_jobs",
		metric.WithDescription("Number of pipeline jobs in flight."),
	); err != nil {
		return nil, err
	}
	if met.ChunksInFlight, err = m.Int64UpDownCounter("subpipe.chunks_in_flight",
		metric.WithDescription("Audio chunks currently being transcribed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("subpipe.http.request.duration",
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

// RecordASRRequest records one chunk recognition call.
func (m *Metrics) RecordASRRequest(ctx context.Context, server, status string) {
	m.ASRRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("server", server),
			attribute.String("status", status),
		),
	)
}

// RecordTranslationRequest records one translation chunk call.
func (m *Metrics) RecordTranslationRequest(ctx context.Context, service, status string) {
	m.TranslationRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("status", status),
		),
	)
}

// RecordHotwordCorrections records n post-processing rewrites for one method.
func (m *Metrics) RecordHotwordCorrections(ctx context.Context, method string, n int64) {
	if n == 0 {
		return
	}
	m.HotwordCorrections.Add(ctx, n,
		metric.WithAttributes(attribute.String("method", method)),
	)
}

// RecordStageError records one pipeline stage failure.
func (m *Metrics) RecordStageError(ctx context.Context, stage, kind string) {
	m.StageErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", kind),
		),
	)
}
