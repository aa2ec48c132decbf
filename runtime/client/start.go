package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	commonpb "go.temporal.io/api/common/v1"
	taskqueuepb "go.temporal.io/api/taskqueue/v1"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/protobuf/types/known/durationpb"

	"goa.design/goa-temporal/runtime/cron"
	"goa.design/goa-temporal/runtime/header"
	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/values"
)

// StartWorkflowOptions describes a workflow start.
type StartWorkflowOptions struct {
	// ID is the workflow ID. Required.
	ID string
	// WorkflowType is the registered workflow type name. Required.
	WorkflowType string
	// TaskQueue is the task queue the workflow is dispatched to. Required.
	TaskQueue string
	// Args are the encoded workflow arguments.
	Args values.Values
	// Header is propagated to the workflow. When it has no converter the
	// client converter is used.
	Header header.Header
	// Cron runs the workflow on a schedule when set.
	Cron cron.Schedule
	// ExecutionTimeout bounds the whole execution including retries and
	// continue-as-new.
	ExecutionTimeout time.Duration
	// RunTimeout bounds a single run.
	RunTimeout time.Duration
	// TaskTimeout bounds a single workflow task.
	TaskTimeout time.Duration
	// RequestID deduplicates starts. Generated when empty.
	RequestID string
}

// StartWorkflow starts a workflow described by opts and returns its
// execution.
func (c *Client) StartWorkflow(ctx context.Context, opts StartWorkflowOptions, cc *rpc.CallContext) (*commonpb.WorkflowExecution, error) {
	req, err := c.startRequest(opts)
	if err != nil {
		return nil, err
	}
	resp, err := c.StartWorkflowExecution(ctx, req, cc)
	if err != nil {
		return nil, err
	}
	return &commonpb.WorkflowExecution{WorkflowId: opts.ID, RunId: resp.GetRunId()}, nil
}

func (c *Client) startRequest(opts StartWorkflowOptions) (*workflowservice.StartWorkflowExecutionRequest, error) {
	switch {
	case opts.ID == "":
		return nil, errors.New("client: workflow ID is required")
	case opts.WorkflowType == "":
		return nil, errors.New("client: workflow type is required")
	case opts.TaskQueue == "":
		return nil, errors.New("client: task queue is required")
	}
	req := &workflowservice.StartWorkflowExecutionRequest{
		WorkflowId:   opts.ID,
		WorkflowType: &commonpb.WorkflowType{Name: opts.WorkflowType},
		TaskQueue:    &taskqueuepb.TaskQueue{Name: opts.TaskQueue},
		CronSchedule: opts.Cron.CanonicalString(),
		RequestId:    opts.RequestID,
	}
	if !opts.Args.IsEmpty() {
		req.Input = opts.Args.ToPayloads()
	}
	h, err := c.wireHeader(opts.Header)
	if err != nil {
		return nil, err
	}
	req.Header = h
	if opts.ExecutionTimeout > 0 {
		req.WorkflowExecutionTimeout = durationpb.New(opts.ExecutionTimeout)
	}
	if opts.RunTimeout > 0 {
		req.WorkflowRunTimeout = durationpb.New(opts.RunTimeout)
	}
	if opts.TaskTimeout > 0 {
		req.WorkflowTaskTimeout = durationpb.New(opts.TaskTimeout)
	}
	return req, nil
}

// wireHeader encodes h, falling back to the client converter. An empty
// header is omitted from the request.
func (c *Client) wireHeader(h header.Header) (*commonpb.Header, error) {
	if h.Len() == 0 {
		return nil, nil
	}
	if h.Converter() == nil {
		h = h.WithConverter(c.dc)
	}
	wire, err := h.ToPayloads()
	if err != nil {
		return nil, fmt.Errorf("client: encode header: %w", err)
	}
	return wire, nil
}
