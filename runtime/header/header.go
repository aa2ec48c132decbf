// Package header implements the propagated key/value context attached to
// every command and remote call.
//
// A Header is an immutable, insertion-ordered mapping from non-empty string
// keys to string values. Application code grows a Header with WithValue; each
// call returns a new Header and leaves the receiver untouched, so Headers can
// be shared freely across goroutines.
//
// The wire form of a Header is a Temporal commonpb.Header whose fields are
// payloads produced by a converter.DataConverter. The converter is a
// capability attached with WithConverter; converting a Header that has none
// fails with ErrNoConverter instead of silently producing an empty header.
package header

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
)

var (
	// ErrNoConverter is returned when a Header is converted to its wire form
	// without a conversion capability attached.
	ErrNoConverter = errors.New("header: no data converter attached")

	// ErrEmptyKey is returned when a value is stored under an empty key.
	ErrEmptyKey = errors.New("header: key must not be empty")
)

// Header is an immutable ordered string mapping. The zero value is an empty
// Header without a converter.
type Header struct {
	keys   []string
	values map[string]string
	dc     converter.DataConverter
}

// Empty returns a Header with no entries.
func Empty() Header {
	return Header{}
}

// FromValues builds a Header from an arbitrary key/value mapping, coercing each
// value to its canonical string form (see Coerce). Go maps are unordered, so
// keys are inserted in lexical order to keep the result deterministic; use
// FromPairs when insertion order matters.
func FromValues(values map[string]any) (Header, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{Key: k, Value: values[k]})
	}
	return FromPairs(pairs...)
}

// Pair is a single key/value entry used to seed a Header in order.
type Pair struct {
	Key   string
	Value any
}

// FromPairs builds a Header from ordered pairs. A key that appears more than
// once keeps its first position and its last value.
func FromPairs(pairs ...Pair) (Header, error) {
	h := Header{values: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		if p.Key == "" {
			return Header{}, ErrEmptyKey
		}
		v, err := Coerce(p.Value)
		if err != nil {
			return Header{}, fmt.Errorf("header: value for %q: %w", p.Key, err)
		}
		if _, ok := h.values[p.Key]; !ok {
			h.keys = append(h.keys, p.Key)
		}
		h.values[p.Key] = v
	}
	return h, nil
}

// WithValue returns a copy of h with key set to the canonical string form of
// value. An existing key keeps its position; a new key is appended. h is left
// unmodified.
func (h Header) WithValue(key string, value any) (Header, error) {
	if key == "" {
		return h, ErrEmptyKey
	}
	v, err := Coerce(value)
	if err != nil {
		return h, fmt.Errorf("header: value for %q: %w", key, err)
	}
	out := h.clone()
	if _, ok := out.values[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.values[key] = v
	return out, nil
}

// With is WithValue for string values. It panics if key is empty.
func (h Header) With(key, value string) Header {
	out, err := h.WithValue(key, value)
	if err != nil {
		panic(err)
	}
	return out
}

// Value returns the value stored under key and whether it was present.
func (h Header) Value(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Len returns the number of entries.
func (h Header) Len() int {
	return len(h.keys)
}

// Keys returns the keys in insertion order.
func (h Header) Keys() []string {
	return slices.Clone(h.keys)
}

// All iterates over the entries in insertion order.
func (h Header) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range h.keys {
			if !yield(k, h.values[k]) {
				return
			}
		}
	}
}

// Converter returns the attached conversion capability, if any.
func (h Header) Converter() converter.DataConverter {
	return h.dc
}

// WithConverter returns a copy of h with dc attached as its conversion
// capability.
func (h Header) WithConverter(dc converter.DataConverter) Header {
	out := h.clone()
	out.dc = dc
	return out
}

// ToPayloads converts h into its wire form. Each value is serialized
// independently with the attached converter. It returns ErrNoConverter when no
// converter is attached and never returns a partially populated header.
func (h Header) ToPayloads() (*commonpb.Header, error) {
	if h.dc == nil {
		return nil, ErrNoConverter
	}
	fields := make(map[string]*commonpb.Payload, len(h.keys))
	for _, k := range h.keys {
		p, err := h.dc.ToPayload(h.values[k])
		if err != nil {
			return nil, fmt.Errorf("header: encode %q: %w", k, err)
		}
		fields[k] = p
	}
	return &commonpb.Header{Fields: fields}, nil
}

// FromPayloads decodes a wire header with dc and returns a Header with dc
// attached. Fields that are nil or cannot be decoded into a string are
// skipped. Wire fields are unordered, so keys are inserted in lexical order.
func FromPayloads(wire *commonpb.Header, dc converter.DataConverter) Header {
	h := Header{values: make(map[string]string), dc: dc}
	if wire == nil || dc == nil {
		return h
	}
	keys := make([]string, 0, len(wire.GetFields()))
	for k := range wire.GetFields() {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		p := wire.GetFields()[k]
		if k == "" || p == nil {
			continue
		}
		var v string
		if err := dc.FromPayload(p, &v); err != nil {
			continue
		}
		h.keys = append(h.keys, k)
		h.values[k] = v
	}
	return h
}

// Equal reports whether h and other hold the same entries in the same order.
// The attached converter is not compared.
func (h Header) Equal(other Header) bool {
	if !slices.Equal(h.keys, other.keys) {
		return false
	}
	for _, k := range h.keys {
		if h.values[k] != other.values[k] {
			return false
		}
	}
	return true
}

func (h Header) clone() Header {
	values := make(map[string]string, len(h.values)+1)
	for k, v := range h.values {
		values[k] = v
	}
	return Header{
		keys:   slices.Clone(h.keys),
		values: values,
		dc:     h.dc,
	}
}
