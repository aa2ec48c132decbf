package client

import (
	"context"

	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"goa.design/goa-temporal/runtime/rpc"
)

type (
	// Transport performs a single attempt of a remote call. Implementations
	// report failures as gRPC status errors so the client can classify them.
	Transport interface {
		// Invoke performs method with arg and returns the reply.
		Invoke(ctx context.Context, method string, arg any, md metadata.MD, opts rpc.AttemptOptions) (any, error)
		// Close releases the underlying connection.
		Close() error
	}

	// GRPCTransport is a Transport backed by a gRPC client connection. Reply
	// types are resolved from the service descriptor registered with the
	// protobuf runtime, so any method of the service can be invoked by name.
	GRPCTransport struct {
		conn    *grpc.ClientConn
		service protoreflect.FullName
	}
)

// WorkflowServiceName is the fully qualified name of the workflow service.
var WorkflowServiceName = workflowservice.WorkflowService_ServiceDesc.ServiceName

// NewGRPCTransport returns a transport that invokes methods of service over
// conn. An empty service selects WorkflowServiceName. The transport owns conn.
func NewGRPCTransport(conn *grpc.ClientConn, service string) *GRPCTransport {
	if service == "" {
		service = WorkflowServiceName
	}
	return &GRPCTransport{conn: conn, service: protoreflect.FullName(service)}
}

// Invoke performs a unary call. arg must be a protobuf message matching the
// method input type.
func (t *GRPCTransport) Invoke(ctx context.Context, method string, arg any, md metadata.MD, opts rpc.AttemptOptions) (any, error) {
	req, ok := arg.(proto.Message)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "client: %s argument must be a protobuf message, got %T", method, arg)
	}
	in, out, err := MessageTypes(string(t.service), method)
	if err != nil {
		return nil, err
	}
	if got, want := req.ProtoReflect().Descriptor().FullName(), in.Descriptor().FullName(); got != want {
		return nil, status.Errorf(codes.InvalidArgument, "client: %s expects %s, got %s", method, want, got)
	}
	reply := out.New().Interface()

	if opts.HasTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if md.Len() > 0 {
		if existing, ok := metadata.FromOutgoingContext(ctx); ok {
			md = metadata.Join(existing, md)
		}
		ctx = metadata.NewOutgoingContext(ctx, md)
	}
	var callOpts []grpc.CallOption
	if v, ok := opts.Options[rpc.OptionWaitForReady].(bool); ok {
		callOpts = append(callOpts, grpc.WaitForReady(v))
	}

	if err := t.conn.Invoke(ctx, "/"+string(t.service)+"/"+method, req, reply, callOpts...); err != nil {
		return nil, err
	}
	return reply, nil
}

// Close closes the connection.
func (t *GRPCTransport) Close() error {
	return t.conn.Close()
}

// MessageTypes returns the request and reply types of a unary method of
// service. An empty service selects WorkflowServiceName. Errors are
// UNIMPLEMENTED status errors.
func MessageTypes(service, method string) (in, out protoreflect.MessageType, err error) {
	if service == "" {
		service = WorkflowServiceName
	}
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(protoreflect.FullName(service))
	if err != nil {
		return nil, nil, status.Errorf(codes.Unimplemented, "client: unknown service %s", service)
	}
	sd, ok := d.(protoreflect.ServiceDescriptor)
	if !ok {
		return nil, nil, status.Errorf(codes.Unimplemented, "client: %s is not a service", service)
	}
	md := sd.Methods().ByName(protoreflect.Name(method))
	if md == nil || md.IsStreamingClient() || md.IsStreamingServer() {
		return nil, nil, status.Errorf(codes.Unimplemented, "client: unknown unary method %s/%s", service, method)
	}
	if in, err = protoregistry.GlobalTypes.FindMessageByName(md.Input().FullName()); err != nil {
		return nil, nil, status.Errorf(codes.Unimplemented, "client: %s request type: %v", method, err)
	}
	if out, err = protoregistry.GlobalTypes.FindMessageByName(md.Output().FullName()); err != nil {
		return nil, nil, status.Errorf(codes.Unimplemented, "client: %s reply type: %v", method, err)
	}
	return in, out, nil
}
