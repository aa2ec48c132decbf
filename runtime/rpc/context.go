package rpc

import (
	"maps"
	"time"

	"google.golang.org/grpc/metadata"
)

// OptionWaitForReady is a recognized call option. When true the transport
// blocks until the connection is ready instead of failing fast.
const OptionWaitForReady = "wait_for_ready"

// CallContext holds the parameters of a single call. It is immutable.
type CallContext struct {
	deadline     time.Time
	metadata     metadata.MD
	retryOptions RetryOptions
	options      map[string]any
}

var defaultCallContext = &CallContext{retryOptions: DefaultRetryOptions()}

// Default returns the process-wide default call context: no deadline, empty
// metadata, and DefaultRetryOptions.
func Default() *CallContext {
	return defaultCallContext
}

// OrDefault returns cc, or Default() when cc is nil.
func OrDefault(cc *CallContext) *CallContext {
	if cc == nil {
		return Default()
	}
	return cc
}

// Deadline returns the absolute deadline and whether one is set.
func (c *CallContext) Deadline() (time.Time, bool) {
	return c.deadline, !c.deadline.IsZero()
}

// Metadata returns a copy of the transport metadata.
func (c *CallContext) Metadata() metadata.MD {
	return c.metadata.Copy()
}

// RetryOptions returns the retry policy.
func (c *CallContext) RetryOptions() RetryOptions {
	return c.retryOptions
}

// Options returns a copy of the call-specific options.
func (c *CallContext) Options() map[string]any {
	return maps.Clone(c.options)
}

// Option returns a single call option.
func (c *CallContext) Option(key string) (any, bool) {
	v, ok := c.options[key]
	return v, ok
}

// WithDeadline returns a copy of c with an absolute deadline. The zero time
// clears the deadline.
func (c *CallContext) WithDeadline(deadline time.Time) *CallContext {
	out := c.clone()
	out.deadline = deadline
	return out
}

// WithTimeout returns a copy of c whose deadline is timeout from now.
func (c *CallContext) WithTimeout(timeout time.Duration) *CallContext {
	return c.WithDeadline(time.Now().Add(timeout))
}

// WithMetadata returns a copy of c with md replacing the metadata.
func (c *CallContext) WithMetadata(md metadata.MD) *CallContext {
	out := c.clone()
	out.metadata = md.Copy()
	return out
}

// WithMetadataValue returns a copy of c with key set to vals in the metadata.
func (c *CallContext) WithMetadataValue(key string, vals ...string) *CallContext {
	out := c.clone()
	md := c.metadata.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(key, vals...)
	out.metadata = md
	return out
}

// WithRetryOptions returns a copy of c with the given retry policy.
func (c *CallContext) WithRetryOptions(o RetryOptions) *CallContext {
	out := c.clone()
	out.retryOptions = o
	return out
}

// WithOptions returns a copy of c with opts replacing the call options.
func (c *CallContext) WithOptions(opts map[string]any) *CallContext {
	out := c.clone()
	out.options = maps.Clone(opts)
	return out
}

// WithOption returns a copy of c with a single call option set.
func (c *CallContext) WithOption(key string, value any) *CallContext {
	out := c.clone()
	opts := maps.Clone(c.options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts[key] = value
	out.options = opts
	return out
}

// AttemptOptions returns the transport options for an attempt started at
// now. When a deadline is set, Timeout is the time remaining until it.
func (c *CallContext) AttemptOptions(now time.Time) AttemptOptions {
	ao := AttemptOptions{Options: maps.Clone(c.options)}
	if deadline, ok := c.Deadline(); ok {
		ao.Timeout = deadline.Sub(now)
		ao.HasTimeout = true
	}
	return ao
}

// clone returns a shallow copy; the metadata and options maps are shared and
// must be copied before mutation.
func (c *CallContext) clone() *CallContext {
	out := *c
	return &out
}

// AttemptOptions are the transport-level options of a single attempt.
type AttemptOptions struct {
	// Timeout is the time remaining until the call deadline. Only meaningful
	// when HasTimeout is true; it may be zero or negative when the deadline
	// has already passed.
	Timeout time.Duration
	// HasTimeout reports whether the call has a deadline.
	HasTimeout bool
	// Options are the call-specific options.
	Options map[string]any
}
