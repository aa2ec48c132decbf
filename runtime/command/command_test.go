package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/converter"

	"goa.design/goa-temporal/runtime/header"
	"goa.design/goa-temporal/runtime/values"
)

func TestNewRequestDefaults(t *testing.T) {
	req, err := NewRequest("DoSomething", RequestParams{})
	require.NoError(t, err)

	assert.NotZero(t, req.ID())
	assert.Equal(t, "DoSomething", req.Name())
	assert.True(t, req.Payloads().IsEmpty())
	assert.Equal(t, 0, req.Header().Len())
	assert.Nil(t, req.Failure())
	assert.Equal(t, 0, req.HistoryLength())
	assert.Empty(t, req.Options())
}

func TestNewRequestValidation(t *testing.T) {
	_, err := NewRequest("", RequestParams{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRequest("x", RequestParams{HistoryLength: -1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewRequest("x", RequestParams{Options: map[string]any{"": 1}})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRequestIDsAreUnique(t *testing.T) {
	a, err := NewRequest("a", RequestParams{})
	require.NoError(t, err)
	b, err := NewRequest("b", RequestParams{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, Same(a, b))

	c, err := NewRequest("c", RequestParams{ID: 99})
	require.NoError(t, err)
	assert.Equal(t, ID(99), c.ID())
}

func TestRequestOptionsAreCopied(t *testing.T) {
	opts := map[string]any{"k": "v"}
	req, err := NewRequest("x", RequestParams{Options: opts})
	require.NoError(t, err)

	opts["k"] = "mutated"
	got, ok := req.Option("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	req.Options()["k"] = "mutated"
	got, _ = req.Option("k")
	assert.Equal(t, "v", got)
}

func TestWithHeaderSharesIdentity(t *testing.T) {
	dc := converter.GetDefaultDataConverter()
	payloads, err := values.Encode(dc, "arg")
	require.NoError(t, err)
	failure := errors.New("boom")
	req, err := NewRequest("x", RequestParams{Payloads: payloads, Failure: failure, HistoryLength: 3})
	require.NoError(t, err)

	h := header.Empty().With("trace", "abc")
	clone := req.WithHeader(h)

	assert.NotSame(t, req, clone)
	assert.True(t, Same(req, clone))
	assert.Equal(t, req.Name(), clone.Name())
	assert.Equal(t, req.Payloads().Len(), clone.Payloads().Len())
	assert.Equal(t, failure, clone.Failure())
	assert.Equal(t, 3, clone.HistoryLength())

	assert.Equal(t, 0, req.Header().Len())
	v, ok := clone.Header().Value("trace")
	require.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestCancel(t *testing.T) {
	_, err := NewCancel()
	require.ErrorIs(t, err, ErrInvalidArgument)

	c, err := NewCancel(5, 7)
	require.NoError(t, err)
	assert.Equal(t, []ID{5, 7}, c.RequestIDs())
	assert.Equal(t, CancelName, c.Name())
	ids, ok := c.Option("ids")
	require.True(t, ok)
	assert.Equal(t, []ID{5, 7}, ids)

	c.RequestIDs()[0] = 42
	assert.Equal(t, []ID{5, 7}, c.RequestIDs())

	withHeader := c.WithHeader(header.Empty().With("k", "v"))
	assert.Equal(t, []ID{5, 7}, withHeader.RequestIDs())
	assert.True(t, Same(c, withHeader))
}

func TestCompleteWorkflow(t *testing.T) {
	dc := converter.GetDefaultDataConverter()
	result, err := values.Encode(dc, "done")
	require.NoError(t, err)
	failure := errors.New("workflow failed")

	cw := NewCompleteWorkflow(result, header.Empty().With("k", "v"), failure)
	assert.Equal(t, CompleteWorkflowName, cw.Name())
	assert.Equal(t, failure, cw.Failure())
	assert.Equal(t, 1, cw.Payloads().Len())
	assert.Equal(t, 1, cw.Header().Len())

	ok := NewCompleteWorkflow(values.Empty(), header.Empty(), nil)
	assert.Nil(t, ok.Failure())
}

func TestExecuteLocalActivity(t *testing.T) {
	_, err := NewExecuteLocalActivity("", values.Empty(), nil, header.Empty())
	require.ErrorIs(t, err, ErrInvalidArgument)

	opts := map[string]any{"ScheduleToCloseTimeout": 5}
	ela, err := NewExecuteLocalActivity("SendEmail", values.Empty(), opts, header.Empty())
	require.NoError(t, err)
	assert.Equal(t, ExecuteLocalActivityName, ela.Name())
	assert.Equal(t, "SendEmail", ela.ActivityName())

	name, _ := ela.Option("name")
	assert.Equal(t, "SendEmail", name)
	nested, _ := ela.Option("options")
	assert.Equal(t, opts, nested)

	moved := ela.WithHeader(header.Empty().With("a", "b"))
	assert.Equal(t, "SendEmail", moved.ActivityName())
	assert.Equal(t, ela.ID(), moved.ID())

	var _ Carrier = ela
}

func TestResponses(t *testing.T) {
	ok := NewSuccessResponse(3, values.Empty(), 10)
	assert.Equal(t, ID(3), ok.ID())
	assert.Equal(t, 10, ok.HistoryLength())
	assert.True(t, ok.Result().IsEmpty())

	failure := errors.New("nope")
	bad := NewFailureResponse(4, failure, 11)
	assert.Equal(t, ID(4), bad.ID())
	assert.Equal(t, failure, bad.Failure())
	assert.Equal(t, 11, bad.HistoryLength())
}
