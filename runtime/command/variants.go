package command

import (
	"fmt"
	"slices"

	"goa.design/goa-temporal/runtime/header"
	"goa.design/goa-temporal/runtime/values"
)

// Names of the built-in request variants.
const (
	CancelName               = "Cancel"
	CompleteWorkflowName     = "CompleteWorkflow"
	ExecuteLocalActivityName = "ExecuteLocalActivity"
)

type (
	// Cancel asks the counterparty to cancel previously sent commands.
	Cancel struct {
		*Request
		ids []ID
	}

	// CompleteWorkflow reports the completion of a workflow run. A non-nil
	// failure signals abnormal completion.
	CompleteWorkflow struct {
		*Request
	}

	// ExecuteLocalActivity asks the host to run an activity in-process.
	ExecuteLocalActivity struct {
		*Request
		activityName string
	}
)

// NewCancel builds a Cancel request targeting ids. At least one id is required.
func NewCancel(ids ...ID) (*Cancel, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: cancel requires at least one request id", ErrInvalidArgument)
	}
	ids = slices.Clone(ids)
	req, err := NewRequest(CancelName, RequestParams{
		Options: map[string]any{"ids": slices.Clone(ids)},
	})
	if err != nil {
		return nil, err
	}
	return &Cancel{Request: req, ids: ids}, nil
}

// RequestIDs returns the ids targeted by the cancellation, in order.
func (c *Cancel) RequestIDs() []ID {
	return slices.Clone(c.ids)
}

// WithHeader returns a copy of c with h as its header.
func (c *Cancel) WithHeader(h header.Header) *Cancel {
	return &Cancel{Request: c.Request.WithHeader(h), ids: c.ids}
}

// NewCompleteWorkflow builds a CompleteWorkflow request carrying the workflow
// result and an optional failure.
func NewCompleteWorkflow(result values.Values, h header.Header, failure error) *CompleteWorkflow {
	// The name is a non-empty constant so construction cannot fail.
	req, _ := NewRequest(CompleteWorkflowName, RequestParams{
		Payloads: result,
		Header:   h,
		Failure:  failure,
	})
	return &CompleteWorkflow{Request: req}
}

// WithHeader returns a copy of c with h as its header.
func (c *CompleteWorkflow) WithHeader(h header.Header) *CompleteWorkflow {
	return &CompleteWorkflow{Request: c.Request.WithHeader(h)}
}

// NewExecuteLocalActivity builds an ExecuteLocalActivity request. name is the
// activity type and must be non-empty; options are the local activity options
// forwarded to the host.
func NewExecuteLocalActivity(name string, args values.Values, options map[string]any, h header.Header) (*ExecuteLocalActivity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: local activity name must not be empty", ErrInvalidArgument)
	}
	opts := make(map[string]any, len(options))
	for k, v := range options {
		opts[k] = v
	}
	req, err := NewRequest(ExecuteLocalActivityName, RequestParams{
		Options:  map[string]any{"name": name, "options": opts},
		Payloads: args,
		Header:   h,
	})
	if err != nil {
		return nil, err
	}
	return &ExecuteLocalActivity{Request: req, activityName: name}, nil
}

// ActivityName returns the activity type to execute.
func (e *ExecuteLocalActivity) ActivityName() string {
	return e.activityName
}

// WithHeader returns a copy of e with h as its header.
func (e *ExecuteLocalActivity) WithHeader(h header.Header) *ExecuteLocalActivity {
	return &ExecuteLocalActivity{Request: e.Request.WithHeader(h), activityName: e.activityName}
}
