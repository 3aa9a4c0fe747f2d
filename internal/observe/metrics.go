// Package observe holds MakanMate's telemetry: OpenTelemetry instruments,
// spans, trace-aware logging and the metrics listener middleware.
//
// [InitProvider] installs global meter and tracer providers and exposes the
// Prometheus scrape handler. Tests build their own [Metrics] with
// [NewMetrics] and a ManualReader instead of touching the globals.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// scopeName names the instrumentation scope of every meter and tracer.
const scopeName = "github.com/makanmate/makanmate"

// Metrics is the set of MakanMate instruments. Safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// QueryDuration tracks one-shot place search latency.
	QueryDuration metric.Float64Histogram

	// ChatDuration tracks conversational turn latency.
	ChatDuration metric.Float64Histogram

	// LiveConnectDuration tracks the time from Connect to an open live
	// session.
	LiveConnectDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls by provider, kind and
	// status. Recorded by [Metrics.RecordCall].
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls by provider and kind.
	ProviderErrors metric.Int64Counter

	// LiveFramesSent counts microphone frames handed to the live transport.
	LiveFramesSent metric.Int64Counter

	// LiveFramesDropped counts microphone frames dropped because the writer
	// was busy.
	LiveFramesDropped metric.Int64Counter

	// LiveChunksScheduled counts model audio chunks scheduled for playback.
	LiveChunksScheduled metric.Int64Counter

	// LiveInterruptions counts barge-in interruptions.
	LiveInterruptions metric.Int64Counter

	// LiveDecodeErrors counts inbound audio packets dropped as undecodable.
	LiveDecodeErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLiveSessions tracks the number of open live sessions.
	ActiveLiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks metrics listener requests by method, route
	// and status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds, sized for hosted model round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// instruments creates instruments on one meter and keeps every creation
// error, so NewMetrics reports them together.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) histogram(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.err = errors.Join(in.err, err)
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.err = errors.Join(in.err, err)
	return c
}

func (in *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.err = errors.Join(in.err, err)
	return g
}

// NewMetrics registers every MakanMate instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(scopeName)}
	m := &Metrics{
		QueryDuration: in.histogram("makanmate.query.duration",
			"Latency of one-shot place search requests.", latencyBuckets...),
		ChatDuration: in.histogram("makanmate.chat.duration",
			"Latency of conversational turns.", latencyBuckets...),
		LiveConnectDuration: in.histogram("makanmate.live.connect.duration",
			"Time to open a live session including device setup.", latencyBuckets...),

		ProviderRequests: in.counter("makanmate.provider.requests",
			"Provider API requests by provider, kind and status."),
		ProviderErrors: in.counter("makanmate.provider.errors",
			"Provider API failures by provider and kind."),
		LiveFramesSent: in.counter("makanmate.live.frames.sent",
			"Microphone frames sent to the live service."),
		LiveFramesDropped: in.counter("makanmate.live.frames.dropped",
			"Microphone frames dropped while the writer was busy."),
		LiveChunksScheduled: in.counter("makanmate.live.chunks.scheduled",
			"Model audio chunks scheduled for playback."),
		LiveInterruptions: in.counter("makanmate.live.interruptions",
			"Barge-in interruptions of model playback."),
		LiveDecodeErrors: in.counter("makanmate.live.decode_errors",
			"Inbound audio packets dropped as undecodable."),

		ActiveLiveSessions: in.gauge("makanmate.live.active_sessions",
			"Number of open live sessions."),

		HTTPRequestDuration: in.histogram("makanmate.http.request.duration",
			"Metrics listener request latency by method, route and status."),
	}
	if in.err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", in.err)
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider at first use. Components fall back to it when no Metrics option
// is given.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCall records the outcome of a single provider call: a request counter
// increment with status "ok" or "error", an error counter increment on
// failure, and the latency on h.
func (m *Metrics) RecordCall(ctx context.Context, h metric.Float64Histogram, provider, kind string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
	}
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
	h.Record(ctx, seconds, metric.WithAttributes(Attr("provider", provider), Attr("status", status)))
}
