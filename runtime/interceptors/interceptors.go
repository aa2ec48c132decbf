// Package interceptors provides ready made call interceptors for the client
// pipeline.
package interceptors

import (
	"context"
	"time"

	"github.com/google/uuid"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/telemetry"
)

// RequestIDKey is the metadata key set by RequestID.
const RequestIDKey = "x-request-id"

// Logging logs every call with its duration and resulting status code.
// Successful calls are logged at debug level, failures at warn level.
func Logging(logger telemetry.Logger) rpc.Interceptor {
	logger = telemetry.LoggerOrNoop(logger)
	return rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
		start := time.Now()
		res, err := next(ctx, method, arg, cc)
		if err != nil {
			logger.Warn(ctx, "call failed", "method", method, "code", status.Code(err).String(), "duration", time.Since(start), "err", err)
			return res, err
		}
		logger.Debug(ctx, "call completed", "method", method, "duration", time.Since(start))
		return res, nil
	})
}

// Tracing starts a client span around every call. The span is named after
// the method and records the error of failed calls.
func Tracing(tracer telemetry.Tracer) rpc.Interceptor {
	tracer = telemetry.TracerOrNoop(tracer)
	return rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
		ctx, span := tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient))
		defer span.End()
		res, err := next(ctx, method, arg, cc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Code(err).String())
			return res, err
		}
		span.SetStatus(otelcodes.Ok, "")
		return res, nil
	})
}

// RequestID adds a random request ID to the call metadata unless one is
// already present. The ID is set once per call and is reused by retries.
func RequestID() rpc.Interceptor {
	return rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
		if len(cc.Metadata().Get(RequestIDKey)) == 0 {
			cc = cc.WithMetadataValue(RequestIDKey, uuid.NewString())
		}
		return next(ctx, method, arg, cc)
	})
}

// StaticMetadata merges md into the metadata of every call. Keys already set
// on the call take precedence.
func StaticMetadata(md metadata.MD) rpc.Interceptor {
	md = md.Copy()
	return rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
		current := cc.Metadata()
		for k, vs := range md {
			if len(current.Get(k)) == 0 {
				cc = cc.WithMetadataValue(k, vs...)
			}
		}
		return next(ctx, method, arg, cc)
	})
}

// Deny short-circuits calls to the given methods with PERMISSION_DENIED.
func Deny(methods ...string) rpc.Interceptor {
	denied := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		denied[m] = struct{}{}
	}
	return rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
		if _, ok := denied[method]; ok {
			return nil, status.Errorf(codes.PermissionDenied, "method %s is not allowed", method)
		}
		return next(ctx, method, arg, cc)
	})
}
