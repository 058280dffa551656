// Package observe carries the service's telemetry: OpenTelemetry metrics and
// traces, trace-aware slog loggers and the HTTP middleware that ties them to
// each request.
//
// Instruments live on a [Metrics] value. Production code shares
// [DefaultMetrics], which records into the global meter provider installed by
// [InitProvider]; tests build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every instrument.
const meterName = "github.com/MrWong99/happysentences"

// Metrics holds the service's instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	// SpeakDuration is the time from a speak call to its settled outcome,
	// labelled emotion and kind.
	SpeakDuration metric.Float64Histogram

	// GenerateDuration is sentence generation latency including the strict
	// retry, labelled status.
	GenerateDuration metric.Float64Histogram

	// SynthesisDuration is premium synthesis latency on the server, labelled
	// lang and status.
	SynthesisDuration metric.Float64Histogram

	// HTTPRequestDuration is request latency labelled with the matched route
	// pattern and the status code.
	HTTPRequestDuration metric.Float64Histogram

	// SpeakOutcomes counts settled speak calls by emotion and kind.
	SpeakOutcomes metric.Int64Counter

	// PremiumRequests counts premium voice requests by status.
	PremiumRequests metric.Int64Counter

	// GenerateRetries counts generations that needed the strict retry.
	GenerateRetries metric.Int64Counter

	// ProviderErrors counts failed provider calls inside a fallback chain,
	// labelled provider and kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes, labelled
	// breaker and to.
	BreakerTransitions metric.Int64Counter

	// ActiveStreams is the number of open diagnostics websocket streams.
	ActiveStreams metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. A speak outcome only
// settles once the whole utterance has played, hence the long tail.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var errs []error

	hist := func(dst *metric.Float64Histogram, name, desc string, buckets bool) {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
		if buckets {
			opts = append(opts, metric.WithExplicitBucketBoundaries(latencyBuckets...))
		}
		var err error
		*dst, err = m.Float64Histogram(name, opts...)
		errs = append(errs, err)
	}
	counter := func(dst *metric.Int64Counter, name, desc string) {
		var err error
		*dst, err = m.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
	}

	hist(&met.SpeakDuration, "happysentences.speak.duration", "Time from speak request to settled outcome.", true)
	hist(&met.GenerateDuration, "happysentences.generate.duration", "Latency of sentence generation.", true)
	hist(&met.SynthesisDuration, "happysentences.synthesis.duration", "Latency of premium speech synthesis.", true)
	hist(&met.HTTPRequestDuration, "happysentences.http.request.duration", "HTTP request latency by route and status.", false)

	counter(&met.SpeakOutcomes, "happysentences.speak.outcomes", "Settled speak calls by emotion and error kind.")
	counter(&met.PremiumRequests, "happysentences.premium.requests", "Premium voice requests by status.")
	counter(&met.GenerateRetries, "happysentences.generate.retries", "Generation calls retried after malformed output.")
	counter(&met.ProviderErrors, "happysentences.provider.errors", "Failed provider calls by provider and kind.")
	counter(&met.BreakerTransitions, "happysentences.breaker.transitions", "Circuit breaker state changes by breaker and new state.")

	var err error
	met.ActiveStreams, err = m.Int64UpDownCounter("happysentences.diag.active_streams",
		metric.WithDescription("Number of open diagnostics status streams."))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared instance built on [otel.GetMeterProvider]
// the first time it is called. Call [InitProvider] before that so the
// instruments are exported. It panics if an instrument cannot be created.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func statusOf(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordSpeakOutcome records one settled speak call. An empty kind means
// success and is reported as "ok".
func (m *Metrics) RecordSpeakOutcome(ctx context.Context, emotion, kind string, seconds float64) {
	if kind == "" {
		kind = "ok"
	}
	attrs := metric.WithAttributes(Attr("emotion", emotion), Attr("kind", kind))
	m.SpeakOutcomes.Add(ctx, 1, attrs)
	m.SpeakDuration.Record(ctx, seconds, attrs)
}

// RecordPremiumRequest counts one premium request ending in status.
func (m *Metrics) RecordPremiumRequest(ctx context.Context, status string) {
	m.PremiumRequests.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordSynthesis records one server-side synthesis call.
func (m *Metrics) RecordSynthesis(ctx context.Context, lang string, ok bool, took time.Duration) {
	m.SynthesisDuration.Record(ctx, took.Seconds(),
		metric.WithAttributes(Attr("lang", lang), Attr("status", statusOf(ok))))
}

// RecordProviderError counts one failed call to provider. kind is a short
// class such as "circuit_open", "refused" or "error".
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordBreakerTransition counts one breaker moving into state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", breaker), Attr("to", to)))
}
