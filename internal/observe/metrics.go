// Package observe provides application-wide observability primitives for
// voxgate: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all voxgate metrics.
const meterName = "github.com/MrWong99/voxgate"

// Speech event names used with [Metrics.RecordSpeechEvent].
const (
	SpeechStarted = "started"
	SpeechEnded   = "ended"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks language model latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis plus playback latency.
	TTSDuration metric.Float64Histogram

	// UtteranceLength tracks the audio length of each drained utterance.
	UtteranceLength metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// SpeechEvents counts speech gate transitions. Use with attribute:
	//   attribute.String("event", SpeechStarted|SpeechEnded)
	SpeechEvents metric.Int64Counter

	// Utterances counts drained utterances handed to transcription.
	Utterances metric.Int64Counter

	// Transcripts counts non-empty transcripts. Use with attribute:
	//   attribute.String("outcome", "answered"|"filtered")
	Transcripts metric.Int64Counter

	// SamplesEvicted counts samples dropped by the utterance ring buffer.
	SamplesEvicted metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ClassifierErrors counts voice classifier failures (treated as silence).
	ClassifierErrors metric.Int64Counter

	// --- Gauges ---

	// EventSubscribers tracks the number of connected event feed clients.
	EventSubscribers metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// utteranceBuckets defines histogram bucket boundaries (in seconds of audio).
var utteranceBuckets = []float64{
	0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("voxgate.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("voxgate.llm.duration",
		metric.WithDescription("Latency of language model completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("voxgate.tts.duration",
		metric.WithDescription("Latency of speech synthesis and playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceLength, err = m.Float64Histogram("voxgate.utterance.length",
		metric.WithDescription("Audio length of drained utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(utteranceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("voxgate.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.SpeechEvents, err = m.Int64Counter("voxgate.speech.events",
		metric.WithDescription("Speech gate transitions by event."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voxgate.utterances",
		metric.WithDescription("Total utterances drained for transcription."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("voxgate.transcripts",
		metric.WithDescription("Total non-empty transcripts by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SamplesEvicted, err = m.Int64Counter("voxgate.buffer.evicted_samples",
		metric.WithDescription("Samples evicted from the utterance buffer on overflow."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("voxgate.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierErrors, err = m.Int64Counter("voxgate.classifier.errors",
		metric.WithDescription("Voice classifier failures treated as silence."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.EventSubscribers, err = m.Int64UpDownCounter("voxgate.events.subscribers",
		metric.WithDescription("Number of connected event feed clients."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSpeechEvent records a speech gate transition.
func (m *Metrics) RecordSpeechEvent(ctx context.Context, event string) {
	m.SpeechEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordUtterance records a drained utterance of the given audio length.
func (m *Metrics) RecordUtterance(ctx context.Context, seconds float64) {
	m.Utterances.Add(ctx, 1)
	m.UtteranceLength.Record(ctx, seconds)
}

// RecordTranscript records a non-empty transcript and what happened to it.
func (m *Metrics) RecordTranscript(ctx context.Context, outcome string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
