package client

import (
	"context"
	"fmt"

	commonpb "go.temporal.io/api/common/v1"
	querypb "go.temporal.io/api/query/v1"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/protobuf/proto"

	"goa.design/goa-temporal/runtime/header"
	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/values"
)

// QueryInput describes a workflow query. It is immutable; the With methods
// return modified copies.
type QueryInput struct {
	execution    *commonpb.WorkflowExecution
	workflowType string
	queryType    string
	args         values.Values
	header       header.Header
}

// NewQueryInput returns a query of queryType against the given workflow run.
// An empty runID targets the latest run.
func NewQueryInput(workflowID, runID, queryType string, args values.Values, h header.Header) QueryInput {
	return QueryInput{
		execution: &commonpb.WorkflowExecution{WorkflowId: workflowID, RunId: runID},
		queryType: queryType,
		args:      args,
		header:    h,
	}
}

// Execution returns a copy of the target execution.
func (q QueryInput) Execution() *commonpb.WorkflowExecution {
	if q.execution == nil {
		return &commonpb.WorkflowExecution{}
	}
	return proto.Clone(q.execution).(*commonpb.WorkflowExecution)
}

// WorkflowType returns the type of the queried workflow, or "" when it is
// not known.
func (q QueryInput) WorkflowType() string { return q.workflowType }

// QueryType returns the query name.
func (q QueryInput) QueryType() string { return q.queryType }

// Arguments returns the query arguments.
func (q QueryInput) Arguments() values.Values { return q.args }

// Header returns the propagated header.
func (q QueryInput) Header() header.Header { return q.header }

// WithExecution returns a copy of q targeting execution.
func (q QueryInput) WithExecution(execution *commonpb.WorkflowExecution) QueryInput {
	q.execution = proto.Clone(execution).(*commonpb.WorkflowExecution)
	return q
}

// WithWorkflowType returns a copy of q recording the queried workflow type.
// The type is informational and is not sent to the server.
func (q QueryInput) WithWorkflowType(workflowType string) QueryInput {
	q.workflowType = workflowType
	return q
}

// WithQueryType returns a copy of q with the given query name.
func (q QueryInput) WithQueryType(queryType string) QueryInput {
	q.queryType = queryType
	return q
}

// WithArguments returns a copy of q with the given arguments.
func (q QueryInput) WithArguments(args values.Values) QueryInput {
	q.args = args
	return q
}

// WithHeader returns a copy of q with the given header.
func (q QueryInput) WithHeader(h header.Header) QueryInput {
	q.header = h
	return q
}

// Query runs q and returns the query result decoded with the client
// converter. It returns an error wrapping ErrQueryRejected when the server
// rejected the query.
func (c *Client) Query(ctx context.Context, q QueryInput, cc *rpc.CallContext) (values.Values, error) {
	if q.queryType == "" {
		return values.Values{}, fmt.Errorf("client: query type is required")
	}
	h, err := c.wireHeader(q.header)
	if err != nil {
		return values.Values{}, err
	}
	query := &querypb.WorkflowQuery{QueryType: q.queryType, Header: h}
	if !q.args.IsEmpty() {
		query.QueryArgs = q.args.ToPayloads()
	}
	resp, err := c.QueryWorkflow(ctx, &workflowservice.QueryWorkflowRequest{
		Execution: q.Execution(),
		Query:     query,
	}, cc)
	if err != nil {
		return values.Values{}, err
	}
	if rej := resp.GetQueryRejected(); rej != nil {
		return values.Values{}, fmt.Errorf("%w: workflow status %s", ErrQueryRejected, rej.GetStatus())
	}
	return values.FromPayloads(resp.GetQueryResult(), c.dc), nil
}
