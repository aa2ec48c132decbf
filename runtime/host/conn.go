// Package host exchanges commands with a co-located execution host over a
// byte stream. Frames are newline delimited JSON objects; each request carries
// a unique ID that the host echoes in its response, so several requests may
// be in flight at once.
//
// Conn implements the client transport contract, which lets commands flow
// through the same interceptor pipeline and retry loop as remote service
// calls:
//
//	conn := host.NewConn(rwc, host.Options{Logger: logger})
//	c, err := client.New(client.Options{Transport: conn})
//	...
//	cancel, err := command.NewCancel(id)
//	res, err := c.Invoke(ctx, cancel.Name(), cancel, nil)
package host

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"go.temporal.io/sdk/converter"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"goa.design/goa-temporal/runtime/command"
	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/telemetry"
)

type (
	// Options configures a Conn.
	Options struct {
		// DataConverter encodes headers and payloads. Defaults to the SDK
		// default data converter.
		DataConverter converter.DataConverter
		// FailureConverter encodes failures. Defaults to the SDK default
		// failure converter.
		FailureConverter converter.FailureConverter
		// Logger receives protocol errors.
		Logger telemetry.Logger
	}

	// Conn is a command connection to the host. It is safe for concurrent
	// use.
	Conn struct {
		rwc    io.ReadWriteCloser
		codec  *Codec
		logger telemetry.Logger

		writeMu sync.Mutex
		w       *bufio.Writer

		mu      sync.Mutex
		waiters map[command.ID]chan command.Command
		err     error

		closeOnce sync.Once
		closeErr  error
		done      chan struct{}
	}
)

// ErrConnClosed is reported to requests pending when the connection closes.
var ErrConnClosed = errors.New("host: connection closed")

// NewConn starts reading responses from rwc. The connection owns rwc.
func NewConn(rwc io.ReadWriteCloser, opts Options) *Conn {
	c := &Conn{
		rwc:     rwc,
		codec:   NewCodec(opts.DataConverter, opts.FailureConverter),
		logger:  telemetry.LoggerOrNoop(opts.Logger),
		w:       bufio.NewWriter(rwc),
		waiters: make(map[command.ID]chan command.Command),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Codec returns the codec used to encode frames.
func (c *Conn) Codec() *Codec {
	return c.codec
}

// Send writes req and waits for the matching response, which is either a
// *command.SuccessResponse or a *command.FailureResponse.
func (c *Conn) Send(ctx context.Context, req command.Carrier) (command.Command, error) {
	r := req.AsRequest()
	f, err := c.codec.EncodeRequest(r)
	if err != nil {
		return nil, err
	}
	ch, err := c.register(r.ID())
	if err != nil {
		return nil, err
	}
	if err := c.write(f); err != nil {
		c.unregister(r.ID())
		return nil, err
	}
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, c.failure()
		}
		return resp, nil
	case <-ctx.Done():
		c.unregister(r.ID())
		return nil, ctx.Err()
	}
}

// Invoke sends the command carried by arg and returns the result values of a
// successful response. Metadata entries missing from the request header are
// added to it. Failures are reported as status errors: a failure response
// maps to ABORTED, a closed connection to UNAVAILABLE and an elapsed attempt
// timeout to DEADLINE_EXCEEDED.
func (c *Conn) Invoke(ctx context.Context, method string, arg any, md metadata.MD, opts rpc.AttemptOptions) (any, error) {
	carrier, ok := arg.(command.Carrier)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "host: %s argument must be a command, got %T", method, arg)
	}
	req := carrier.AsRequest()
	if method != req.Name() {
		return nil, status.Errorf(codes.InvalidArgument, "host: method %s does not match command %s", method, req.Name())
	}
	if md.Len() > 0 {
		h := req.Header()
		for k, vs := range md {
			if _, exists := h.Value(k); !exists && len(vs) > 0 {
				h = h.With(k, vs[0])
			}
		}
		req = req.WithHeader(h)
	}
	if opts.HasTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		if errors.Is(err, ErrConnClosed) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	switch r := resp.(type) {
	case *command.SuccessResponse:
		return r.Result(), nil
	case *command.FailureResponse:
		return nil, status.Errorf(codes.Aborted, "host: %s failed: %v", method, r.Failure())
	default:
		return nil, status.Errorf(codes.Internal, "host: unexpected response %T", resp)
	}
}

// Close closes the stream and fails pending requests. It is safe to call
// Close more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rwc.Close()
		c.shutdown(ErrConnClosed)
	})
	return c.closeErr
}

// Done is closed once the connection stopped reading.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) register(id command.ID) (chan command.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if _, dup := c.waiters[id]; dup {
		return nil, status.Errorf(codes.AlreadyExists, "host: request %d already in flight", id)
	}
	ch := make(chan command.Command, 1)
	c.waiters[id] = ch
	return ch, nil
}

func (c *Conn) unregister(id command.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, id)
}

func (c *Conn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) write(f *Frame) error {
	b, err := Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(append(b, '\n')); err != nil {
		return errors.Join(ErrConnClosed, err)
	}
	if err := c.w.Flush(); err != nil {
		return errors.Join(ErrConnClosed, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	r := bufio.NewReader(c.rwc)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Warn(context.Background(), "host stream read failed", "err", err)
			}
			c.shutdown(ErrConnClosed)
			return
		}
	}
}

func (c *Conn) dispatch(line []byte) {
	ctx := context.Background()
	f, err := Unmarshal(line)
	if err != nil {
		c.logger.Warn(ctx, "dropping malformed host frame", "err", err)
		return
	}
	resp, err := c.codec.DecodeResponse(f)
	if err != nil {
		c.logger.Warn(ctx, "undecodable host frame", "id", f.ID, "err", err)
		resp = command.NewFailureResponse(f.ID, err, f.HistoryLength)
	}
	c.mu.Lock()
	ch, ok := c.waiters[f.ID]
	delete(c.waiters, f.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Warn(ctx, "dropping host response for unknown request", "id", f.ID)
		return
	}
	ch <- resp
}

// shutdown records err and releases every waiter.
func (c *Conn) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	for id, ch := range c.waiters {
		close(ch)
		delete(c.waiters, id)
	}
}
