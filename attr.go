package spanwire

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// ValueKind identifies which scalar variant a Value holds.
type ValueKind int

const (
	// KindString is a string-valued tag.
	KindString ValueKind = iota
	// KindInt is an int64-valued tag.
	KindInt
	// KindFloat is a float64-valued tag.
	KindFloat
	// KindBool is a bool-valued tag.
	KindBool
)

// Value is a span tag value restricted to a closed set of scalar kinds.
// The zero Value is the empty string.
type Value struct {
	str  string
	i    int64
	f    float64
	b    bool
	kind ValueKind
}

// StringValue returns a string-kinded Value.
func StringValue(v string) Value { return Value{kind: KindString, str: v} }

// IntValue returns an int-kinded Value.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue returns a float-kinded Value.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// BoolValue returns a bool-kinded Value.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// Kind reports which scalar variant the Value holds.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string payload. Zero value for other kinds.
func (v Value) AsString() string { return v.str }

// AsInt returns the int64 payload. Zero value for other kinds.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the float64 payload. Zero value for other kinds.
func (v Value) AsFloat() float64 { return v.f }

// AsBool returns the bool payload. Zero value for other kinds.
func (v Value) AsBool() bool { return v.b }

// String renders the payload as text regardless of kind.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// MarshalJSON emits the underlying scalar directly, so exported spans
// carry plain JSON values rather than a wrapper object.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON accepts any of the scalar kinds. Numbers without a
// fractional part decode as ints.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case bool:
		*v = BoolValue(x)
	case float64:
		if i := int64(x); float64(i) == x {
			*v = IntValue(i)
		} else {
			*v = FloatValue(x)
		}
	case string:
		*v = StringValue(x)
	default:
		// Non-scalar input collapses to its textual form.
		*v = StringValue(string(data))
	}
	return nil
}
