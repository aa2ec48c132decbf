package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	noopLogger  struct{}
	noopMetrics struct{}
	noopTracer  struct{}
	noopSpan    struct{}
)

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

// NewNoopMetrics returns a Metrics recorder that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

// NewNoopTracer returns a Tracer whose spans record nothing. Start leaves
// the context untouched so an upstream span stays current.
func NewNoopTracer() Tracer { return noopTracer{} }

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

func (noopMetrics) IncCounter(string, float64, ...string)        {}
func (noopMetrics) RecordTimer(string, time.Duration, ...string) {}
func (noopMetrics) RecordGauge(string, float64, ...string)       {}

func (noopTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopTracer) Span(context.Context) Span { return noopSpan{} }

func (noopSpan) End(...trace.SpanEndOption)              {}
func (noopSpan) AddEvent(string, ...any)                 {}
func (noopSpan) SetStatus(codes.Code, string)            {}
func (noopSpan) RecordError(error, ...trace.EventOption) {}
