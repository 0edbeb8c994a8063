// Package observe provides application-wide observability primitives for
// the avatar conversational media pipeline: OpenTelemetry metrics,
// distributed tracing, structured logging, and HTTP middleware that ties
// them together.
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

// meterName is the instrumentation scope name used for all avatar core metrics.
const meterName = "github.com/auravox/core"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Per-stage latency histograms (§A Observability) ---

	// STTPartialToFinalLatency tracks the time from a session's stream start
	// to each authoritative transcript (§4.5).
	STTPartialToFinalLatency metric.Float64Histogram

	// LLMFirstTokenLatency tracks time-to-first-token for chat completions (§4.2).
	LLMFirstTokenLatency metric.Float64Histogram

	// TTSFirstAudioLatency tracks time-to-first-audio-byte for TTS synthesis (§4.4).
	TTSFirstAudioLatency metric.Float64Histogram

	// ImageGenDuration tracks image/style generation call latency (§4.3).
	ImageGenDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool dispatch latency (§4.10).
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// PersonaTurns counts completed orchestrator turns per persona. Use with attribute:
	//   attribute.String("persona_id", ...)
	PersonaTurns metric.Int64Counter

	// BargeIns counts barge-in interruptions, by the reason the turn was
	// cancelled (§4.9). Use with attribute:
	//   attribute.String("reason", ...)
	BargeIns metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live conversational sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveParticipants tracks the number of connected participants across
	// all sessions.
	ActiveParticipants metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTPartialToFinalLatency, err = m.Float64Histogram("avatarcore.stt.partial_to_final.duration",
		metric.WithDescription("Latency from stream start to authoritative transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMFirstTokenLatency, err = m.Float64Histogram("avatarcore.llm.first_token.duration",
		metric.WithDescription("Latency to first LLM completion token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSFirstAudioLatency, err = m.Float64Histogram("avatarcore.tts.first_audio.duration",
		metric.WithDescription("Latency to first synthesised audio byte."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ImageGenDuration, err = m.Float64Histogram("avatarcore.imagegen.duration",
		metric.WithDescription("Latency of image/style generation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("avatarcore.tool_execution.duration",
		metric.WithDescription("Latency of tool dispatch execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("avatarcore.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("avatarcore.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.PersonaTurns, err = m.Int64Counter("avatarcore.persona.turns",
		metric.WithDescription("Total completed orchestrator turns by persona ID."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("avatarcore.bargein.count",
		metric.WithDescription("Total barge-in interruptions by reason."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("avatarcore.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("avatarcore.active_sessions",
		metric.WithDescription("Number of live conversational sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParticipants, err = m.Int64UpDownCounter("avatarcore.active_participants",
		metric.WithDescription("Number of connected participants across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("avatarcore.http.request.duration",
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

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordPersonaTurn is a convenience method that records a completed
// orchestrator turn counter increment.
func (m *Metrics) RecordPersonaTurn(ctx context.Context, personaID string) {
	m.PersonaTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("persona_id", personaID)),
	)
}

// RecordBargeIn is a convenience method that records a barge-in counter
// increment for the given cancellation reason (§4.9).
func (m *Metrics) RecordBargeIn(ctx context.Context, reason string) {
	m.BargeIns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
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
