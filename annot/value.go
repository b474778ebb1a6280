package annot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a missing annotation value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
)

// Value is a small typed annotation value.
//
// The representation is designed to make filtering fast and predictable:
// no reflection and no fmt-based stringification. Values are immutable
// once constructed.
type Value struct {
	kind Kind
	i64  int64
	f64  float64
	str  string
	b    bool
}

// Null returns a null Value.
func Null() Value { return Value{kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{kind: KindInt, i64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{kind: KindFloat, f64: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Kind returns the concrete type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null or invalid.
func (v Value) IsNull() bool { return v.kind == KindNull || v.kind == KindInvalid }

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i64, true
}

// AsFloat64 returns the float64 value if Kind is KindFloat. Integer
// values are widened so numeric annotations can be read uniformly.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f64, true
	case KindInt:
		return float64(v.i64), true
	default:
		return 0, false
	}
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i64 == other.i64
	case KindFloat:
		return math.Float64bits(v.f64) == math.Float64bits(other.f64)
	case KindString:
		return v.str == other.str
	case KindBool:
		return v.b == other.b
	default:
		return true
	}
}

// Key returns a stable string representation for use in index maps.
//
// It must remain stable across versions because persisted ingestions are
// re-indexed from serialized annotations.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.i64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.f64), 16)
	case KindString:
		return "s:" + v.str
	case KindBool:
		if v.b {
			return "b:1"
		}
		return "b:0"
	default:
		return "invalid"
	}
}

// GoString returns a human readable form for logs and error messages.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "invalid"
	}
}

// MarshalJSON implements json.Marshaler. Values serialize as natural
// JSON scalars, not as tagged unions.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull, KindInvalid:
		return []byte("null"), nil
	case KindInt:
		return json.Marshal(v.i64)
	case KindFloat:
		return json.Marshal(v.f64)
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a decimal
// point or exponent decode as KindInt, everything else as KindFloat.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty annotation value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	default:
		if !bytes.ContainsAny(data, ".eE") {
			if i, err := strconv.ParseInt(string(data), 10, 64); err == nil {
				*v = Int(i)
				return nil
			}
		}
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Float(f)
		return nil
	}
}

// Parse types a raw cell from a delimited annotation table. It tries
// bool, int and float in that order and falls back to string. Empty
// cells and the common NA markers become null.
func Parse(cell string) Value {
	switch cell {
	case "", "NA", "N/A", "NaN", "nan", "null", "None":
		return Null()
	case "true", "True", "TRUE":
		return Bool(true)
	case "false", "False", "FALSE":
		return Bool(false)
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsInf(f, 0) {
		return Float(f)
	}
	return String(cell)
}
