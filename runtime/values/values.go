// Package values provides the opaque, immutable container used to carry
// serialized business arguments and results in commands and remote calls.
package values

import (
	"errors"
	"fmt"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
	"google.golang.org/protobuf/proto"
)

// ErrNoConverter is returned when values must be decoded or encoded but no
// data converter is available.
var ErrNoConverter = errors.New("values: no data converter attached")

// Values is an immutable sequence of encoded payloads. The zero value is an
// empty container.
type Values struct {
	payloads []*commonpb.Payload
	dc       converter.DataConverter
}

// Empty returns a container with no values.
func Empty() Values {
	return Values{}
}

// Encode serializes args with dc into a new container that keeps dc attached
// for later decoding.
func Encode(dc converter.DataConverter, args ...any) (Values, error) {
	if dc == nil {
		return Values{}, ErrNoConverter
	}
	if len(args) == 0 {
		return Values{dc: dc}, nil
	}
	ps, err := dc.ToPayloads(args...)
	if err != nil {
		return Values{}, fmt.Errorf("values: encode: %w", err)
	}
	return Values{payloads: ps.GetPayloads(), dc: dc}, nil
}

// FromPayloads wraps wire payloads. The payloads are cloned so later mutation
// of p does not affect the container.
func FromPayloads(p *commonpb.Payloads, dc converter.DataConverter) Values {
	if p == nil || len(p.GetPayloads()) == 0 {
		return Values{dc: dc}
	}
	cloned := make([]*commonpb.Payload, len(p.GetPayloads()))
	for i, pl := range p.GetPayloads() {
		cloned[i] = proto.Clone(pl).(*commonpb.Payload)
	}
	return Values{payloads: cloned, dc: dc}
}

// Len returns the number of values.
func (v Values) Len() int {
	return len(v.payloads)
}

// IsEmpty reports whether v holds no values.
func (v Values) IsEmpty() bool {
	return len(v.payloads) == 0
}

// WithConverter returns a copy of v that decodes with dc.
func (v Values) WithConverter(dc converter.DataConverter) Values {
	v.dc = dc
	return v
}

// Get decodes the value at index into ptr.
func (v Values) Get(index int, ptr any) error {
	if index < 0 || index >= len(v.payloads) {
		return fmt.Errorf("values: index %d out of range [0,%d)", index, len(v.payloads))
	}
	if v.dc == nil {
		return ErrNoConverter
	}
	if err := v.dc.FromPayload(v.payloads[index], ptr); err != nil {
		return fmt.Errorf("values: decode %d: %w", index, err)
	}
	return nil
}

// ToPayloads returns the wire form of v. The returned message is a copy.
func (v Values) ToPayloads() *commonpb.Payloads {
	out := &commonpb.Payloads{Payloads: make([]*commonpb.Payload, len(v.payloads))}
	for i, p := range v.payloads {
		out.Payloads[i] = proto.Clone(p).(*commonpb.Payload)
	}
	return out
}
