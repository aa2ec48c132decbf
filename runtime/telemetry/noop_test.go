package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"goa.design/goa-temporal/runtime/telemetry"
)

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	logger := telemetry.NewNoopLogger()
	logger.Debug(ctx, "retrying call", "method", "GetSystemInfo")
	logger.Error(ctx, "call failed", "err", errors.New("boom"))

	metrics := telemetry.NewNoopMetrics()
	metrics.IncCounter(telemetry.MetricCallAttempts, 1, telemetry.CallTags("GetSystemInfo", nil)...)
	metrics.RecordTimer(telemetry.MetricCallDuration, 100*time.Millisecond, telemetry.TagMethod, "GetSystemInfo")
	metrics.RecordGauge("wfclient.ratelimit.cpm", 600)

	tracer := telemetry.NewNoopTracer()
	newCtx, span := tracer.Start(ctx, "GetSystemInfo")
	require.Equal(t, ctx, newCtx)
	span.AddEvent("retry", "attempt", 2)
	span.SetStatus(codes.Error, "Unavailable")
	span.RecordError(errors.New("boom"))
	span.End()
	require.NotNil(t, tracer.Span(ctx))
}

func TestOrNoopDefaults(t *testing.T) {
	assert.NotNil(t, telemetry.LoggerOrNoop(nil))
	assert.NotNil(t, telemetry.MetricsOrNoop(nil))
	assert.NotNil(t, telemetry.TracerOrNoop(nil))

	logger := telemetry.NewClueLogger()
	assert.Equal(t, logger, telemetry.LoggerOrNoop(logger))
	tracer := telemetry.NewClueTracer()
	assert.Same(t, tracer, telemetry.TracerOrNoop(tracer))
}
