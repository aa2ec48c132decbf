package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"goa.design/goa-temporal/runtime/rpc"
)

// stubWorkflowService answers GetSystemInfo and records incoming metadata.
type stubWorkflowService struct {
	workflowservice.UnimplementedWorkflowServiceServer

	md       chan metadata.MD
	failures []codes.Code
}

func (s *stubWorkflowService) GetSystemInfo(ctx context.Context, _ *workflowservice.GetSystemInfoRequest) (*workflowservice.GetSystemInfoResponse, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	select {
	case s.md <- md:
	default:
	}
	if len(s.failures) > 0 {
		code := s.failures[0]
		s.failures = s.failures[1:]
		return nil, status.Error(code, "scripted failure")
	}
	return &workflowservice.GetSystemInfoResponse{ServerVersion: "1.25.0"}, nil
}

func startStubServer(t *testing.T, svc *stubWorkflowService) *GRPCTransport {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	workflowservice.RegisterWorkflowServiceServer(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	tr := NewGRPCTransport(conn, "")
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestGRPCTransportInvoke(t *testing.T) {
	svc := &stubWorkflowService{md: make(chan metadata.MD, 1)}
	tr := startStubServer(t, svc)

	res, err := tr.Invoke(context.Background(), "GetSystemInfo", &workflowservice.GetSystemInfoRequest{},
		metadata.Pairs("x-tenant", "acme"),
		rpc.AttemptOptions{Timeout: 5 * time.Second, HasTimeout: true})
	require.NoError(t, err)
	reply, ok := res.(*workflowservice.GetSystemInfoResponse)
	require.True(t, ok)
	assert.Equal(t, "1.25.0", reply.GetServerVersion())

	md := <-svc.md
	assert.Equal(t, []string{"acme"}, md.Get("x-tenant"))
}

func TestGRPCTransportRejectsBadArguments(t *testing.T) {
	tr := startStubServer(t, &stubWorkflowService{md: make(chan metadata.MD, 1)})
	ctx := context.Background()

	_, err := tr.Invoke(ctx, "GetSystemInfo", "not a message", nil, rpc.AttemptOptions{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = tr.Invoke(ctx, "GetSystemInfo", &workflowservice.DescribeNamespaceRequest{}, nil, rpc.AttemptOptions{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = tr.Invoke(ctx, "NoSuchMethod", &workflowservice.GetSystemInfoRequest{}, nil, rpc.AttemptOptions{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestGRPCTransportUnknownService(t *testing.T) {
	tr := NewGRPCTransport(nil, "example.v1.Missing")
	_, err := tr.Invoke(context.Background(), "Get", &workflowservice.GetSystemInfoRequest{}, nil, rpc.AttemptOptions{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestGRPCTransportExpiredTimeout(t *testing.T) {
	tr := startStubServer(t, &stubWorkflowService{md: make(chan metadata.MD, 1)})

	_, err := tr.Invoke(context.Background(), "GetSystemInfo", &workflowservice.GetSystemInfoRequest{}, nil,
		rpc.AttemptOptions{Timeout: -time.Second, HasTimeout: true})
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestClientOverGRPCRetriesUnavailable(t *testing.T) {
	svc := &stubWorkflowService{
		md:       make(chan metadata.MD, 4),
		failures: []codes.Code{codes.Unavailable},
	}
	tr := startStubServer(t, svc)
	c, err := New(Options{Transport: tr})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }

	info, err := c.GetSystemInfo(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "1.25.0", info.GetServerVersion())

	svc.failures = []codes.Code{codes.NotFound}
	_, err = c.GetSystemInfo(context.Background(), nil)
	var nonRetryable *NonRetryableError
	require.ErrorAs(t, err, &nonRetryable)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestMessageTypes(t *testing.T) {
	in, out, err := MessageTypes("", "StartWorkflowExecution")
	require.NoError(t, err)
	assert.Equal(t, "temporal.api.workflowservice.v1.StartWorkflowExecutionRequest", string(in.Descriptor().FullName()))
	assert.Equal(t, "temporal.api.workflowservice.v1.StartWorkflowExecutionResponse", string(out.Descriptor().FullName()))

	_, _, err = MessageTypes(WorkflowServiceName, "Bogus")
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
