package header

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnsupportedValue is returned when a value has no canonical string form.
var ErrUnsupportedValue = errors.New("unsupported header value type")

// CanonicalStringer is implemented by values that know their canonical header
// representation.
type CanonicalStringer interface {
	CanonicalString() string
}

// Coerce returns the canonical string form of a header value:
//
//   - nil and false become the empty string, true becomes "1"
//   - integers and floats use their shortest decimal form (0.5 -> "0.5")
//   - []byte is used verbatim
//   - CanonicalStringer values use CanonicalString
//
// Any other type yields ErrUnsupportedValue.
func Coerce(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case CanonicalStringer:
		return v.CanonicalString(), nil
	case bool:
		return coerceBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}

func coerceBool(b bool) string {
	if b {
		return "1"
	}
	return ""
}
