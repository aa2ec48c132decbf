// Package client issues calls against the workflow service. Every call flows
// through an optional interceptor pipeline into a retrying invoker that
// enforces the call deadline, retries RESOURCE_EXHAUSTED, UNAVAILABLE and
// UNKNOWN failures with an additive backoff, and classifies terminal failures
// as TimeoutError, NonRetryableError or ExhaustedError.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.temporal.io/sdk/converter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/telemetry"
)

type (
	// Options configures a Client. Nil collaborators are replaced with noop
	// implementations.
	Options struct {
		// Transport performs individual attempts. Required by New.
		Transport Transport
		// Pipeline is the interceptor pipeline wrapped around every call.
		Pipeline *rpc.Pipeline
		// DataConverter encodes headers and arguments of typed calls.
		// Defaults to the SDK default data converter.
		DataConverter converter.DataConverter
		// Namespace is applied to typed requests that do not set one.
		Namespace string
		// Identity is applied to typed requests that do not set one.
		Identity string
		// Logger receives retry and failure logs.
		Logger telemetry.Logger
		// Metrics records attempt, retry and duration metrics.
		Metrics telemetry.Metrics
		// DialOptions are appended to the options used by Dial and DialTLS.
		DialOptions []grpc.DialOption
	}

	// TLSOptions configures DialTLS. Certificates may be given as files or
	// inline PEM; inline PEM wins when both are set.
	TLSOptions struct {
		// CAFile is the path to the PEM encoded root CA bundle.
		CAFile string
		// CAPEM is the PEM encoded root CA bundle.
		CAPEM []byte
		// CertFile and KeyFile are the client certificate pair.
		CertFile string
		KeyFile  string
		// CertPEM and KeyPEM are the inline client certificate pair.
		CertPEM []byte
		KeyPEM  []byte
		// ServerName overrides the server name used for verification and as
		// the :authority of requests.
		ServerName string
	}

	// Client is the entry point for calls against the workflow service. A
	// Client is safe for concurrent use. Copies produced by WithPipeline
	// share the underlying connection.
	Client struct {
		transport Transport
		pipeline  *rpc.Pipeline
		handler   rpc.Handler
		dc        converter.DataConverter
		namespace string
		identity  string
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		conn      *connection

		sleep func(ctx context.Context, d time.Duration) error
		now   func() time.Time
	}

	// connection owns the transport and closes it exactly once.
	connection struct {
		transport Transport
		once      sync.Once
		closed    chan struct{}
		err       error
		cleanup   runtime.Cleanup
	}
)

// New returns a client that issues calls through opts.Transport.
func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("client: transport is required")
	}
	conn := &connection{transport: opts.Transport, closed: make(chan struct{})}
	conn.cleanup = runtime.AddCleanup(conn, func(t Transport) { _ = t.Close() }, opts.Transport)

	c := &Client{
		transport: opts.Transport,
		dc:        opts.DataConverter,
		namespace: opts.Namespace,
		identity:  opts.Identity,
		logger:    telemetry.LoggerOrNoop(opts.Logger),
		metrics:   telemetry.MetricsOrNoop(opts.Metrics),
		conn:      conn,
		sleep:     sleepContext,
		now:       time.Now,
	}
	if c.dc == nil {
		c.dc = converter.GetDefaultDataConverter()
	}
	c.setPipeline(opts.Pipeline)
	return c, nil
}

// Dial connects to address without transport security.
func Dial(address string, opts Options) (*Client, error) {
	return dial(address, insecure.NewCredentials(), "", opts)
}

// DialTLS connects to address over TLS.
func DialTLS(address string, tlsOpts TLSOptions, opts Options) (*Client, error) {
	cfg, err := tlsOpts.config()
	if err != nil {
		return nil, err
	}
	return dial(address, credentials.NewTLS(cfg), tlsOpts.ServerName, opts)
}

func dial(address string, creds credentials.TransportCredentials, authority string, opts Options) (*Client, error) {
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if authority != "" {
		dialOpts = append(dialOpts, grpc.WithAuthority(authority))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)
	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", address, err)
	}
	opts.Transport = NewGRPCTransport(conn, "")
	return New(opts)
}

func (o TLSOptions) config() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: o.ServerName}
	ca, err := pemOrFile(o.CAPEM, o.CAFile)
	if err != nil {
		return nil, fmt.Errorf("client: read CA: %w", err)
	}
	if len(ca) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(ca) {
			return nil, errors.New("client: no certificates found in CA bundle")
		}
		cfg.RootCAs = pool
	}
	cert, err := pemOrFile(o.CertPEM, o.CertFile)
	if err != nil {
		return nil, fmt.Errorf("client: read certificate: %w", err)
	}
	key, err := pemOrFile(o.KeyPEM, o.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("client: read key: %w", err)
	}
	if len(cert) > 0 || len(key) > 0 {
		pair, err := tls.X509KeyPair(cert, key)
		if err != nil {
			return nil, fmt.Errorf("client: load key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}
	return cfg, nil
}

func pemOrFile(pem []byte, path string) ([]byte, error) {
	if len(pem) > 0 || path == "" {
		return pem, nil
	}
	return os.ReadFile(path)
}

// WithPipeline returns a copy of c that routes calls through p. The copy
// shares the connection of c; c is left unmodified.
func (c *Client) WithPipeline(p *rpc.Pipeline) *Client {
	out := *c
	out.setPipeline(p)
	return &out
}

// WithInterceptors returns a copy of c using a pipeline built from
// interceptors.
func (c *Client) WithInterceptors(interceptors ...rpc.Interceptor) *Client {
	return c.WithPipeline(rpc.NewPipeline(interceptors...))
}

// Pipeline returns the attached pipeline.
func (c *Client) Pipeline() *rpc.Pipeline {
	return c.pipeline
}

// DataConverter returns the converter used by typed calls.
func (c *Client) DataConverter() converter.DataConverter {
	return c.dc
}

// Invoke calls method with arg. A nil cc selects rpc.Default(). The call runs
// through the attached pipeline whose innermost stage is the retry loop.
func (c *Client) Invoke(ctx context.Context, method string, arg any, cc *rpc.CallContext) (any, error) {
	return c.handler(ctx, method, arg, rpc.OrDefault(cc))
}

// Close closes the underlying connection. It is safe to call Close more than
// once and from any copy of the client; the connection is closed once.
func (c *Client) Close() error {
	return c.conn.close()
}

func (c *Client) setPipeline(p *rpc.Pipeline) {
	c.pipeline = p
	c.handler = p.Then(c.call)
}

// call performs method with retries. The wait before the first retry is the
// initial interval; every following wait grows by the backoff coefficient in
// milliseconds, capped at the maximum interval.
func (c *Client) call(ctx context.Context, method string, arg any, cc *rpc.CallContext) (any, error) {
	if c.conn.isClosed() {
		return nil, ErrClosed
	}
	cc = rpc.OrDefault(cc)
	retry := cc.RetryOptions()
	wait := retry.FirstInterval()
	start := c.now()
	md := cc.Metadata()

	for attempt := 1; ; attempt++ {
		c.metrics.IncCounter(telemetry.MetricCallAttempts, 1, telemetry.TagMethod, method)
		res, err := c.transport.Invoke(ctx, method, arg, md, cc.AttemptOptions(c.now()))
		if err == nil {
			c.record(method, start, "ok", nil)
			return res, nil
		}

		code := Code(err)
		if !IsRetryable(code) {
			if code == codes.DeadlineExceeded {
				return nil, c.timeout(ctx, method, attempt, start, err)
			}
			c.record(method, start, "error", err)
			return nil, &NonRetryableError{Method: method, Attempts: attempt, Cause: err}
		}
		if retry.Exhausted(attempt) {
			c.record(method, start, "exhausted", err)
			c.logger.Warn(ctx, "call retries exhausted", "method", method, "attempts", attempt, "code", code.String())
			return nil, &ExhaustedError{Method: method, Attempts: attempt, LastError: err}
		}
		if deadline, ok := cc.Deadline(); ok && !c.now().Before(deadline) {
			return nil, c.timeout(ctx, method, attempt, start, err)
		}

		c.logger.Debug(ctx, "retrying call", "method", method, "attempt", attempt, "code", code.String(), "wait", wait)
		c.metrics.IncCounter(telemetry.MetricCallRetries, 1, telemetry.CallTags(method, err)...)
		if err := c.sleep(ctx, wait); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, c.timeout(ctx, method, attempt, start, err)
			}
			c.record(method, start, "canceled", err)
			return nil, &NonRetryableError{Method: method, Attempts: attempt, Cause: status.FromContextError(err).Err()}
		}
		wait = retry.NextInterval(wait)
	}
}

func (c *Client) timeout(ctx context.Context, method string, attempts int, start time.Time, cause error) error {
	c.record(method, start, "timeout", cause)
	c.logger.Warn(ctx, "call timed out", "method", method, "attempts", attempts)
	return &TimeoutError{Method: method, Attempts: attempts, Cause: cause}
}

// record records the duration of a call to method. err is the last error
// seen, nil on success.
func (c *Client) record(method string, start time.Time, outcome string, err error) {
	tags := append(telemetry.CallTags(method, err), telemetry.TagOutcome, outcome)
	c.metrics.RecordTimer(telemetry.MetricCallDuration, c.now().Sub(start), tags...)
}

func (c *connection) close() error {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.closed)
		c.err = c.transport.Close()
	})
	return c.err
}

func (c *connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
