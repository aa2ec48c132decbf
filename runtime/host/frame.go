package host

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	commonpb "go.temporal.io/api/common/v1"
	failurepb "go.temporal.io/api/failure/v1"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/temporal"
	"google.golang.org/protobuf/proto"

	"goa.design/goa-temporal/runtime/command"
	"goa.design/goa-temporal/runtime/header"
	"goa.design/goa-temporal/runtime/values"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// Frame is a single message exchanged with the host. Requests carry a
	// command name; responses carry either a result or a failure. Protobuf
	// fields are sent as base64 encoded bytes.
	Frame struct {
		// ID correlates a response with its request.
		ID command.ID `json:"id"`
		// Command is the command name. Empty for responses.
		Command string `json:"command,omitempty"`
		// Options are the command options.
		Options jsoniter.RawMessage `json:"options,omitempty"`
		// Payloads is the serialized commonpb.Payloads.
		Payloads []byte `json:"payloads,omitempty"`
		// Header is the serialized commonpb.Header.
		Header []byte `json:"header,omitempty"`
		// Failure is the serialized failurepb.Failure.
		Failure []byte `json:"failure,omitempty"`
		// HistoryLength is the host history length.
		HistoryLength int `json:"historyLength,omitempty"`
	}

	// Codec converts commands to and from frames.
	Codec struct {
		dc converter.DataConverter
		fc converter.FailureConverter
	}
)

// ErrMalformedFrame is returned when a frame cannot be decoded.
var ErrMalformedFrame = errors.New("host: malformed frame")

// NewCodec returns a codec. Nil converters select the SDK defaults.
func NewCodec(dc converter.DataConverter, fc converter.FailureConverter) *Codec {
	if dc == nil {
		dc = converter.GetDefaultDataConverter()
	}
	if fc == nil {
		fc = temporal.GetDefaultFailureConverter()
	}
	return &Codec{dc: dc, fc: fc}
}

// EncodeRequest converts r into a frame. A header without a converter is
// encoded with the codec data converter.
func (c *Codec) EncodeRequest(r *command.Request) (*Frame, error) {
	f := &Frame{ID: r.ID(), Command: r.Name(), HistoryLength: r.HistoryLength()}
	if opts := r.Options(); len(opts) > 0 {
		raw, err := json.Marshal(opts)
		if err != nil {
			return nil, fmt.Errorf("host: encode %s options: %w", r.Name(), err)
		}
		f.Options = raw
	}
	var err error
	if f.Payloads, err = c.encodeValues(r.Payloads()); err != nil {
		return nil, err
	}
	if f.Header, err = c.encodeHeader(r.Header()); err != nil {
		return nil, err
	}
	if f.Failure, err = c.encodeFailure(r.Failure()); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeRequest converts a request frame back into a request.
func (c *Codec) DecodeRequest(f *Frame) (*command.Request, error) {
	if f.Command == "" {
		return nil, fmt.Errorf("%w: frame %d has no command", ErrMalformedFrame, f.ID)
	}
	var opts map[string]any
	if len(f.Options) > 0 {
		if err := json.Unmarshal(f.Options, &opts); err != nil {
			return nil, fmt.Errorf("%w: options: %v", ErrMalformedFrame, err)
		}
	}
	payloads, err := c.decodeValues(f.Payloads)
	if err != nil {
		return nil, err
	}
	h, err := c.decodeHeader(f.Header)
	if err != nil {
		return nil, err
	}
	failure, err := c.decodeFailure(f.Failure)
	if err != nil {
		return nil, err
	}
	return command.NewRequest(f.Command, command.RequestParams{
		ID:            f.ID,
		Options:       opts,
		Payloads:      payloads,
		Header:        h,
		Failure:       failure,
		HistoryLength: f.HistoryLength,
	})
}

// EncodeResponse converts a *command.SuccessResponse or
// *command.FailureResponse into a frame.
func (c *Codec) EncodeResponse(resp command.Command) (*Frame, error) {
	switch r := resp.(type) {
	case *command.SuccessResponse:
		payloads, err := c.encodeValues(r.Result())
		if err != nil {
			return nil, err
		}
		return &Frame{ID: r.ID(), Payloads: payloads, HistoryLength: r.HistoryLength()}, nil
	case *command.FailureResponse:
		failure, err := c.encodeFailure(r.Failure())
		if err != nil {
			return nil, err
		}
		return &Frame{ID: r.ID(), Failure: failure, HistoryLength: r.HistoryLength()}, nil
	default:
		return nil, fmt.Errorf("host: cannot encode %T as a response", resp)
	}
}

// DecodeResponse converts a response frame into a *command.SuccessResponse
// or a *command.FailureResponse.
func (c *Codec) DecodeResponse(f *Frame) (command.Command, error) {
	if f.Command != "" {
		return nil, fmt.Errorf("%w: frame %d is a %s request", ErrMalformedFrame, f.ID, f.Command)
	}
	if len(f.Failure) > 0 {
		failure, err := c.decodeFailure(f.Failure)
		if err != nil {
			return nil, err
		}
		return command.NewFailureResponse(f.ID, failure, f.HistoryLength), nil
	}
	result, err := c.decodeValues(f.Payloads)
	if err != nil {
		return nil, err
	}
	return command.NewSuccessResponse(f.ID, result, f.HistoryLength), nil
}

// Marshal returns the wire form of f without the trailing newline.
func Marshal(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal parses a single frame.
func Unmarshal(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return &f, nil
}

func (c *Codec) encodeValues(v values.Values) ([]byte, error) {
	if v.IsEmpty() {
		return nil, nil
	}
	b, err := proto.Marshal(v.ToPayloads())
	if err != nil {
		return nil, fmt.Errorf("host: encode payloads: %w", err)
	}
	return b, nil
}

func (c *Codec) decodeValues(b []byte) (values.Values, error) {
	if len(b) == 0 {
		return values.Empty().WithConverter(c.dc), nil
	}
	var p commonpb.Payloads
	if err := proto.Unmarshal(b, &p); err != nil {
		return values.Values{}, fmt.Errorf("%w: payloads: %v", ErrMalformedFrame, err)
	}
	return values.FromPayloads(&p, c.dc), nil
}

func (c *Codec) encodeHeader(h header.Header) ([]byte, error) {
	if h.Len() == 0 {
		return nil, nil
	}
	if h.Converter() == nil {
		h = h.WithConverter(c.dc)
	}
	wire, err := h.ToPayloads()
	if err != nil {
		return nil, fmt.Errorf("host: encode header: %w", err)
	}
	b, err := proto.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("host: encode header: %w", err)
	}
	return b, nil
}

func (c *Codec) decodeHeader(b []byte) (header.Header, error) {
	if len(b) == 0 {
		return header.Empty().WithConverter(c.dc), nil
	}
	var wire commonpb.Header
	if err := proto.Unmarshal(b, &wire); err != nil {
		return header.Header{}, fmt.Errorf("%w: header: %v", ErrMalformedFrame, err)
	}
	return header.FromPayloads(&wire, c.dc), nil
}

func (c *Codec) encodeFailure(err error) ([]byte, error) {
	if err == nil {
		return nil, nil
	}
	b, merr := proto.Marshal(c.fc.ErrorToFailure(err))
	if merr != nil {
		return nil, fmt.Errorf("host: encode failure: %w", merr)
	}
	return b, nil
}

func (c *Codec) decodeFailure(b []byte) (error, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var failure failurepb.Failure
	if err := proto.Unmarshal(b, &failure); err != nil {
		return nil, fmt.Errorf("%w: failure: %v", ErrMalformedFrame, err)
	}
	return c.fc.FailureToError(&failure), nil
}
