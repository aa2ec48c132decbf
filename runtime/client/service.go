package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"goa.design/goa-temporal/runtime/rpc"
)

// GetSystemInfo returns the server capabilities.
func (c *Client) GetSystemInfo(ctx context.Context, cc *rpc.CallContext) (*workflowservice.GetSystemInfoResponse, error) {
	return invoke[*workflowservice.GetSystemInfoResponse](ctx, c, "GetSystemInfo", &workflowservice.GetSystemInfoRequest{}, cc)
}

// DescribeNamespace describes the namespace named name, or the client
// namespace when name is empty.
func (c *Client) DescribeNamespace(ctx context.Context, name string, cc *rpc.CallContext) (*workflowservice.DescribeNamespaceResponse, error) {
	if name == "" {
		name = c.namespace
	}
	req := &workflowservice.DescribeNamespaceRequest{Namespace: name}
	return invoke[*workflowservice.DescribeNamespaceResponse](ctx, c, "DescribeNamespace", req, cc)
}

// StartWorkflowExecution starts a workflow. Namespace, identity and request
// ID are filled in when req leaves them empty; req itself is not modified.
func (c *Client) StartWorkflowExecution(ctx context.Context, req *workflowservice.StartWorkflowExecutionRequest, cc *rpc.CallContext) (*workflowservice.StartWorkflowExecutionResponse, error) {
	req, err := cloneRequest("StartWorkflowExecution", req)
	if err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	if req.Identity == "" {
		req.Identity = c.identity
	}
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}
	return invoke[*workflowservice.StartWorkflowExecutionResponse](ctx, c, "StartWorkflowExecution", req, cc)
}

// SignalWorkflowExecution sends a signal to a running workflow.
func (c *Client) SignalWorkflowExecution(ctx context.Context, req *workflowservice.SignalWorkflowExecutionRequest, cc *rpc.CallContext) (*workflowservice.SignalWorkflowExecutionResponse, error) {
	req, err := cloneRequest("SignalWorkflowExecution", req)
	if err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	if req.Identity == "" {
		req.Identity = c.identity
	}
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}
	return invoke[*workflowservice.SignalWorkflowExecutionResponse](ctx, c, "SignalWorkflowExecution", req, cc)
}

// QueryWorkflow queries a workflow.
func (c *Client) QueryWorkflow(ctx context.Context, req *workflowservice.QueryWorkflowRequest, cc *rpc.CallContext) (*workflowservice.QueryWorkflowResponse, error) {
	req, err := cloneRequest("QueryWorkflow", req)
	if err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	return invoke[*workflowservice.QueryWorkflowResponse](ctx, c, "QueryWorkflow", req, cc)
}

// RequestCancelWorkflowExecution requests cancellation of a workflow.
func (c *Client) RequestCancelWorkflowExecution(ctx context.Context, req *workflowservice.RequestCancelWorkflowExecutionRequest, cc *rpc.CallContext) (*workflowservice.RequestCancelWorkflowExecutionResponse, error) {
	req, err := cloneRequest("RequestCancelWorkflowExecution", req)
	if err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	if req.Identity == "" {
		req.Identity = c.identity
	}
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}
	return invoke[*workflowservice.RequestCancelWorkflowExecutionResponse](ctx, c, "RequestCancelWorkflowExecution", req, cc)
}

// TerminateWorkflowExecution terminates a workflow.
func (c *Client) TerminateWorkflowExecution(ctx context.Context, req *workflowservice.TerminateWorkflowExecutionRequest, cc *rpc.CallContext) (*workflowservice.TerminateWorkflowExecutionResponse, error) {
	req, err := cloneRequest("TerminateWorkflowExecution", req)
	if err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	if req.Identity == "" {
		req.Identity = c.identity
	}
	return invoke[*workflowservice.TerminateWorkflowExecutionResponse](ctx, c, "TerminateWorkflowExecution", req, cc)
}

// DescribeWorkflowExecution describes a workflow execution.
func (c *Client) DescribeWorkflowExecution(ctx context.Context, req *workflowservice.DescribeWorkflowExecutionRequest, cc *rpc.CallContext) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	req, err := cloneRequest("DescribeWorkflowExecution", req)
	if err != nil {
		return nil, err
	}
	if req.Namespace == "" {
		req.Namespace = c.namespace
	}
	return invoke[*workflowservice.DescribeWorkflowExecutionResponse](ctx, c, "DescribeWorkflowExecution", req, cc)
}

// cloneRequest returns a copy of req that the typed methods can complete
// with client defaults. A nil request is rejected with INVALID_ARGUMENT.
func cloneRequest[T proto.Message](method string, req T) (T, error) {
	if !req.ProtoReflect().IsValid() {
		var zero T
		return zero, status.Errorf(codes.InvalidArgument, "client: %s request is nil", method)
	}
	return proto.Clone(req).(T), nil
}

// invoke calls method through the pipeline and asserts the reply type.
func invoke[R proto.Message](ctx context.Context, c *Client, method string, req proto.Message, cc *rpc.CallContext) (R, error) {
	var zero R
	res, err := c.Invoke(ctx, method, req, cc)
	if err != nil {
		return zero, err
	}
	out, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("client: %s: unexpected reply type %T", method, res)
	}
	return out, nil
}
