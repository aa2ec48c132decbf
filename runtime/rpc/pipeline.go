package rpc

import (
	"context"
	"slices"
)

type (
	// Handler performs a call. It is the signature of both the terminal call
	// implementation and every composed pipeline stage.
	Handler func(ctx context.Context, method string, arg any, cc *CallContext) (any, error)

	// Interceptor wraps a call. Implementations either return their own
	// result, or invoke next and optionally post-process its result.
	Interceptor interface {
		InterceptCall(ctx context.Context, method string, arg any, cc *CallContext, next Handler) (any, error)
	}

	// InterceptorFunc adapts a function to the Interceptor interface.
	InterceptorFunc func(ctx context.Context, method string, arg any, cc *CallContext, next Handler) (any, error)

	// Pipeline is an immutable ordered list of interceptors.
	Pipeline struct {
		interceptors []Interceptor
	}
)

// InterceptCall calls f.
func (f InterceptorFunc) InterceptCall(ctx context.Context, method string, arg any, cc *CallContext, next Handler) (any, error) {
	return f(ctx, method, arg, cc, next)
}

// NewPipeline builds a pipeline. The first interceptor is the outermost. Nil
// interceptors are ignored.
func NewPipeline(interceptors ...Interceptor) *Pipeline {
	p := &Pipeline{}
	for _, i := range interceptors {
		if i != nil {
			p.interceptors = append(p.interceptors, i)
		}
	}
	return p
}

// Len returns the number of interceptors.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.interceptors)
}

// With returns a new pipeline with interceptors appended after the existing
// ones. p is left unmodified.
func (p *Pipeline) With(interceptors ...Interceptor) *Pipeline {
	var existing []Interceptor
	if p != nil {
		existing = slices.Clone(p.interceptors)
	}
	return NewPipeline(append(existing, interceptors...)...)
}

// Then composes the pipeline around terminal and returns the resulting
// handler. An empty pipeline returns terminal itself.
func (p *Pipeline) Then(terminal Handler) Handler {
	if p.Len() == 0 {
		return terminal
	}
	h := terminal
	for i := len(p.interceptors) - 1; i >= 0; i-- {
		ic := p.interceptors[i]
		next := h
		h = func(ctx context.Context, method string, arg any, cc *CallContext) (any, error) {
			return ic.InterceptCall(ctx, method, arg, cc, next)
		}
	}
	return h
}
