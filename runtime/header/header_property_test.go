package header

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.temporal.io/sdk/converter"
)

func genPairs() gopter.Gen {
	return gen.SliceOf(gen.Identifier()).Map(func(keys []string) []Pair {
		pairs := make([]Pair, 0, len(keys))
		for i, k := range keys {
			pairs = append(pairs, Pair{Key: k, Value: i})
		}
		return pairs
	})
}

// TestHeaderProperties verifies the immutability, ordering, and wire round
// trip invariants of Header.
func TestHeaderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("WithValue stores coerced value and leaves receiver unchanged", prop.ForAll(
		func(pairs []Pair, key string, value int) bool {
			h, err := FromPairs(pairs...)
			if err != nil {
				return false
			}
			before := h.Keys()
			next, err := h.WithValue(key, value)
			if err != nil {
				return false
			}
			got, ok := next.Value(key)
			want, _ := Coerce(value)
			if !ok || got != want {
				return false
			}
			after := h.Keys()
			if len(before) != len(after) {
				return false
			}
			for i := range before {
				if before[i] != after[i] {
					return false
				}
			}
			return true
		},
		genPairs(),
		gen.Identifier(),
		gen.Int(),
	))

	properties.Property("overwrite keeps position, new keys append", prop.ForAll(
		func(pairs []Pair, key string) bool {
			h, err := FromPairs(pairs...)
			if err != nil {
				return false
			}
			keys := h.Keys()
			next := h.With(key, "x")
			nextKeys := next.Keys()
			idx := -1
			for i, k := range keys {
				if k == key {
					idx = i
				}
			}
			if idx >= 0 {
				if len(nextKeys) != len(keys) || nextKeys[idx] != key {
					return false
				}
			} else if len(nextKeys) != len(keys)+1 || nextKeys[len(keys)] != key {
				return false
			}
			for i, k := range keys {
				if nextKeys[i] != k {
					return false
				}
			}
			return true
		},
		genPairs(),
		gen.Identifier(),
	))

	properties.Property("wire round trip preserves entries", prop.ForAll(
		func(pairs []Pair) bool {
			dc := converter.GetDefaultDataConverter()
			h, err := FromPairs(pairs...)
			if err != nil {
				return false
			}
			wire, err := h.WithConverter(dc).ToPayloads()
			if err != nil {
				return false
			}
			back := FromPayloads(wire, dc)
			if back.Len() != h.Len() {
				return false
			}
			for k, v := range h.All() {
				got, ok := back.Value(k)
				if !ok || got != v {
					return false
				}
			}
			return true
		},
		genPairs(),
	))

	properties.Property("ToPayloads without converter always fails", prop.ForAll(
		func(pairs []Pair) bool {
			h, err := FromPairs(pairs...)
			if err != nil {
				return false
			}
			wire, err := h.ToPayloads()
			return wire == nil && err == ErrNoConverter
		},
		genPairs(),
	))

	properties.TestingRun(t)
}
