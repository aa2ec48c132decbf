// Package rpc defines the per-call parameters and the interceptor pipeline
// shared by every call issued through the client runtime.
//
// # Call context
//
// A CallContext carries the parameters of a single call: an optional absolute
// deadline, transport metadata, the retry policy, and call-specific options.
// CallContext values are immutable; the With* methods return modified copies.
// A nil *CallContext is equivalent to Default().
//
// # Interceptors
//
// An Interceptor wraps a call. It receives the next stage of the pipeline
// together with the method name, the argument, and the call context, and
// either short-circuits or invokes the next stage:
//
//	logging := rpc.InterceptorFunc(func(ctx context.Context, method string, arg any, cc *rpc.CallContext, next rpc.Handler) (any, error) {
//	    res, err := next(ctx, method, arg, cc)
//	    log.Printf("%s: %v", method, err)
//	    return res, err
//	})
//	handler := rpc.NewPipeline(logging, auth).Then(terminal)
//
// The first interceptor is the outermost: for a pipeline [A, B] around T, a
// successful call runs A, B, T, then B's and A's post-processing.
package rpc
