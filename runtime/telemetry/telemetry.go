// Package telemetry defines the logging, metrics, and tracing contracts used by
// the client runtime. Production implementations delegate to Clue (logging) and
// OpenTelemetry (metrics and traces). Components configured without telemetry
// fall back to the noop implementations.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logger captures structured logging used throughout the runtime. keyvals
// alternate keys and values; error values are logged with their status code.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers and gauges. tags alternate keys and
// values.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code can remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
//
// Example usage:
//
//	ctx, span := tracer.Start(ctx, "WorkflowService/StartWorkflowExecution", trace.WithSpanKind(trace.SpanKindClient))
//	defer span.End()
//	span.SetStatus(codes.Ok, "")
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Metric names recorded by the client runtime.
const (
	// MetricCallAttempts counts every attempt made against the remote service.
	MetricCallAttempts = "wfclient.call.attempts"
	// MetricCallRetries counts attempts that were retried after a retryable status.
	MetricCallRetries = "wfclient.call.retries"
	// MetricCallDuration records the wall-clock duration of a call including retries.
	MetricCallDuration = "wfclient.call.duration"
)

// Tag keys attached to call metrics.
const (
	TagMethod  = "method"
	TagCode    = "code"
	TagOutcome = "outcome"
)

// CallTags returns the metric tags describing a call to method that ended
// with err. The code tag is the gRPC status code of err, OK when err is nil.
func CallTags(method string, err error) []string {
	return []string{TagMethod, method, TagCode, StatusCode(err).String()}
}

// StatusCode returns the gRPC status code carried by err.
func StatusCode(err error) grpccodes.Code {
	return status.Code(err)
}

// LoggerOrNoop returns l, or the noop logger when l is nil.
func LoggerOrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// MetricsOrNoop returns m, or the noop recorder when m is nil.
func MetricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// TracerOrNoop returns t, or the noop tracer when t is nil.
func TracerOrNoop(t Tracer) Tracer {
	if t == nil {
		return noopTracer{}
	}
	return t
}
