package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
	"google.golang.org/grpc/status"
)

// instrumentationName scopes the OTEL meter and tracer created by this package.
const instrumentationName = "goa.design/goa-temporal/runtime"

// callDurationBuckets are the call duration histogram boundaries in seconds.
// Retried calls land in the upper buckets.
var callDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type (
	// ClueLogger writes log entries with goa.design/clue/log. Formatting and
	// debug settings come from the context (log.Context, log.WithFormat,
	// log.WithDebug).
	ClueLogger struct{}

	// ClueMetrics records metrics with an OTEL meter. Instruments are created
	// once per name and reused.
	ClueMetrics struct {
		meter metric.Meter

		mu       sync.Mutex
		counters map[string]metric.Float64Counter
		timers   map[string]metric.Float64Histogram
		gauges   map[string]metric.Float64Gauge
	}

	// ClueTracer starts OTEL client spans.
	ClueTracer struct {
		tracer trace.Tracer
	}

	clueSpan struct {
		span trace.Span
	}
)

// NewClueLogger returns a Logger backed by goa.design/clue/log.
func NewClueLogger() Logger {
	return ClueLogger{}
}

// NewClueMetrics returns a Metrics recorder using the global MeterProvider.
func NewClueMetrics() Metrics {
	return NewClueMetricsWithProvider(otel.GetMeterProvider())
}

// NewClueMetricsWithProvider returns a Metrics recorder using mp. The call
// instruments are registered up front with their units and descriptions.
func NewClueMetricsWithProvider(mp metric.MeterProvider) *ClueMetrics {
	m := &ClueMetrics{
		meter:    mp.Meter(instrumentationName),
		counters: make(map[string]metric.Float64Counter),
		timers:   make(map[string]metric.Float64Histogram),
		gauges:   make(map[string]metric.Float64Gauge),
	}
	m.counter(MetricCallAttempts,
		metric.WithDescription("Attempts made against the workflow service."),
		metric.WithUnit("{attempt}"))
	m.counter(MetricCallRetries,
		metric.WithDescription("Attempts retried after a retryable status."),
		metric.WithUnit("{attempt}"))
	m.timer(MetricCallDuration,
		metric.WithDescription("Duration of workflow service calls including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...))
	return m
}

// NewClueTracer returns a Tracer using the global TracerProvider.
func NewClueTracer() Tracer {
	return NewClueTracerWithProvider(otel.GetTracerProvider())
}

// NewClueTracerWithProvider returns a Tracer using tp.
func NewClueTracerWithProvider(tp trace.TracerProvider) *ClueTracer {
	return &ClueTracer{tracer: tp.Tracer(instrumentationName)}
}

// Debug logs at debug level.
func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	fs, _ := fielders(msg, keyvals)
	log.Debug(ctx, fs...)
}

// Info logs at info level.
func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	fs, _ := fielders(msg, keyvals)
	log.Info(ctx, fs...)
}

// Warn logs at warn level.
func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	fs, _ := fielders(msg, keyvals)
	log.Warn(ctx, fs...)
}

// Error logs at error level. The first error value in keyvals becomes the
// entry error.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	fs, err := fielders(msg, keyvals)
	log.Error(ctx, err, fs...)
}

// IncCounter adds value to the counter name.
func (m *ClueMetrics) IncCounter(name string, value float64, tags ...string) {
	if c := m.counter(name); c != nil {
		c.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
	}
}

// RecordTimer records duration in seconds in the histogram name.
func (m *ClueMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	if h := m.timer(name); h != nil {
		h.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
	}
}

// RecordGauge sets the gauge name to value.
func (m *ClueMetrics) RecordGauge(name string, value float64, tags ...string) {
	if g := m.gauge(name); g != nil {
		g.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
	}
}

func (m *ClueMetrics) counter(name string, opts ...metric.Float64CounterOption) metric.Float64Counter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c, err := m.meter.Float64Counter(name, opts...)
	if err != nil {
		return nil
	}
	m.counters[name] = c
	return c
}

func (m *ClueMetrics) timer(name string, opts ...metric.Float64HistogramOption) metric.Float64Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.timers[name]; ok {
		return h
	}
	h, err := m.meter.Float64Histogram(name, opts...)
	if err != nil {
		return nil
	}
	m.timers[name] = h
	return h
}

func (m *ClueMetrics) gauge(name string) metric.Float64Gauge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return nil
	}
	m.gauges[name] = g
	return g
}

// Start starts a client span tagged with rpc.system=grpc. opts may override
// the span kind.
func (t *ClueTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	opts = append([]trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.system", "grpc")),
	}, opts...)
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &clueSpan{span: span}
}

// Span returns the span current in ctx.
func (t *ClueTracer) Span(ctx context.Context) Span {
	return &clueSpan{span: trace.SpanFromContext(ctx)}
}

func (s *clueSpan) End(opts ...trace.SpanEndOption) {
	s.span.End(opts...)
}

func (s *clueSpan) AddEvent(name string, attrs ...any) {
	s.span.AddEvent(name, trace.WithAttributes(kvToAttrs(attrs)...))
}

func (s *clueSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// RecordError records err and tags the span with the gRPC status code it
// carries.
func (s *clueSpan) RecordError(err error, opts ...trace.EventOption) {
	code := attribute.Int("rpc.grpc.status_code", int(StatusCode(err)))
	s.span.SetAttributes(code)
	s.span.RecordError(err, opts...)
}

// fielders converts a message and its key-value pairs into clue fields. Error
// values are logged as their message plus a "<key>_code" field when they
// carry a gRPC status. The first error value is also returned.
func fielders(msg string, keyvals []any) ([]log.Fielder, error) {
	var first error
	fs := []log.Fielder{log.KV{K: "msg", V: msg}}
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		switch val := v.(type) {
		case error:
			if first == nil {
				first = val
			}
			fs = append(fs, log.KV{K: k, V: val.Error()})
			if st, ok := status.FromError(val); ok {
				fs = append(fs, log.KV{K: k + "_code", V: st.Code().String()})
			}
		case time.Duration:
			fs = append(fs, log.KV{K: k, V: val.String()})
		default:
			fs = append(fs, log.KV{K: k, V: v})
		}
	}
	return fs, first
}

// tagsToAttrs converts tag strings (k1, v1, k2, v2, ...) into OTEL attributes.
func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(tags)+1)/2)
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}

func kvToAttrs(keyvals []any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case time.Duration:
			attrs = append(attrs, attribute.String(k, val.String()))
		case error:
			attrs = append(attrs, attribute.String(k, val.Error()))
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(k, val.String()))
		case nil:
			attrs = append(attrs, attribute.String(k, ""))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}
