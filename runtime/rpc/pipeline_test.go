package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder(name string, trace *[]string) Interceptor {
	return InterceptorFunc(func(ctx context.Context, method string, arg any, cc *CallContext, next Handler) (any, error) {
		*trace = append(*trace, name)
		res, err := next(ctx, method, arg, cc)
		*trace = append(*trace, name+"-post")
		return res, err
	})
}

func TestPipelineOrder(t *testing.T) {
	var trace []string
	terminal := func(_ context.Context, method string, arg any, _ *CallContext) (any, error) {
		trace = append(trace, "T")
		return method + ":" + arg.(string), nil
	}

	h := NewPipeline(recorder("A", &trace), recorder("B", &trace)).Then(terminal)
	res, err := h(context.Background(), "M", "x", Default())

	require.NoError(t, err)
	assert.Equal(t, "M:x", res)
	assert.Equal(t, []string{"A", "B", "T", "B-post", "A-post"}, trace)
}

func TestPipelineShortCircuit(t *testing.T) {
	var trace []string
	denied := errors.New("denied")
	a := InterceptorFunc(func(context.Context, string, any, *CallContext, Handler) (any, error) {
		trace = append(trace, "A")
		return nil, denied
	})
	terminal := func(context.Context, string, any, *CallContext) (any, error) {
		trace = append(trace, "T")
		return nil, nil
	}

	h := NewPipeline(a, recorder("B", &trace)).Then(terminal)
	_, err := h(context.Background(), "M", nil, Default())

	require.ErrorIs(t, err, denied)
	assert.Equal(t, []string{"A"}, trace)
}

func TestPipelineCanRewriteCall(t *testing.T) {
	rewrite := InterceptorFunc(func(ctx context.Context, _ string, arg any, cc *CallContext, next Handler) (any, error) {
		return next(ctx, "Rewritten", arg, cc.WithOption("k", "v"))
	})
	var gotMethod string
	var gotOption any
	terminal := func(_ context.Context, method string, _ any, cc *CallContext) (any, error) {
		gotMethod = method
		gotOption, _ = cc.Option("k")
		return nil, nil
	}

	_, err := NewPipeline(rewrite).Then(terminal)(context.Background(), "Original", nil, Default())
	require.NoError(t, err)
	assert.Equal(t, "Rewritten", gotMethod)
	assert.Equal(t, "v", gotOption)
	_, ok := Default().Option("k")
	assert.False(t, ok)
}

func TestEmptyPipelineIsTerminal(t *testing.T) {
	calls := 0
	terminal := func(context.Context, string, any, *CallContext) (any, error) {
		calls++
		return "ok", nil
	}

	var nilPipeline *Pipeline
	for _, p := range []*Pipeline{nilPipeline, NewPipeline(), NewPipeline(nil)} {
		res, err := p.Then(terminal)(context.Background(), "M", nil, Default())
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
	}
	assert.Equal(t, 3, calls)
}

func TestPipelineWithIsCopy(t *testing.T) {
	var trace []string
	base := NewPipeline(recorder("A", &trace))
	extended := base.With(recorder("B", &trace))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
}
