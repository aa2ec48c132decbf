package command

import (
	"fmt"
	"maps"

	"goa.design/goa-temporal/runtime/header"
	"goa.design/goa-temporal/runtime/values"
)

type (
	// Request carries a named operation for the host or the remote service
	// together with its payloads, propagated header, and optional failure.
	Request struct {
		id            ID
		name          string
		options       map[string]any
		payloads      values.Values
		header        header.Header
		failure       error
		historyLength int
	}

	// RequestParams holds the optional fields of a Request. The zero value
	// yields a request with a fresh ID, no options, empty payloads, and an
	// empty header.
	RequestParams struct {
		// ID overrides the generated ID. Used when rebuilding a request
		// received from a counterparty.
		ID ID
		// Options is interpreted by the specific operation. Keys must be
		// non-empty. The map is copied.
		Options map[string]any
		// Payloads holds the serialized business arguments.
		Payloads values.Values
		// Header is the propagated cross-cutting context.
		Header header.Header
		// Failure is the terminal error attached to the request, if any.
		Failure error
		// HistoryLength is the number of host-side events observed so far.
		HistoryLength int
	}

	// Carrier is implemented by Request and every named variant so transports
	// can access the common request fields.
	Carrier interface {
		Command
		AsRequest() *Request
	}
)

// NewRequest builds a Request. name must be non-empty and HistoryLength must
// not be negative.
func NewRequest(name string, p RequestParams) (*Request, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: request name must not be empty", ErrInvalidArgument)
	}
	if p.HistoryLength < 0 {
		return nil, fmt.Errorf("%w: history length must not be negative, got %d", ErrInvalidArgument, p.HistoryLength)
	}
	for k := range p.Options {
		if k == "" {
			return nil, fmt.Errorf("%w: option keys must not be empty", ErrInvalidArgument)
		}
	}
	id := p.ID
	if id == 0 {
		id = NextID()
	}
	return &Request{
		id:            id,
		name:          name,
		options:       maps.Clone(p.Options),
		payloads:      p.Payloads,
		header:        p.Header,
		failure:       p.Failure,
		historyLength: p.HistoryLength,
	}, nil
}

// ID returns the request identifier.
func (r *Request) ID() ID { return r.id }

// Name returns the operation identifier.
func (r *Request) Name() string { return r.name }

// Options returns a copy of the operation options.
func (r *Request) Options() map[string]any { return maps.Clone(r.options) }

// Option returns a single option value.
func (r *Request) Option(key string) (any, bool) {
	v, ok := r.options[key]
	return v, ok
}

// Payloads returns the serialized arguments.
func (r *Request) Payloads() values.Values { return r.payloads }

// Header returns the propagated header.
func (r *Request) Header() header.Header { return r.header }

// Failure returns the attached failure, or nil.
func (r *Request) Failure() error { return r.failure }

// HistoryLength returns the number of host-side events observed when the
// request was produced.
func (r *Request) HistoryLength() int { return r.historyLength }

// AsRequest returns r.
func (r *Request) AsRequest() *Request { return r }

// WithHeader returns a shallow copy of r with h as its header. The copy keeps
// r's ID: it is the same logical operation with a different propagated
// context.
func (r *Request) WithHeader(h header.Header) *Request {
	clone := *r
	clone.header = h
	return &clone
}
