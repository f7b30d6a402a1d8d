// Package statetree implements the canonical JSON-like value model used to
// snapshot and diff land state: a Value tree, flattened field paths, and the
// minimal patch list a subscriber needs to catch up.
package statetree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the canonical value shapes: null | bool | int | double |
// string | array | object.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the canonical JSON-like value: null, bool, int, double, string,
// array, or object. Only the field matching Kind is meaningful.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Double float64
	Str    string
	Array  []Value
	Object map[string]Value
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func IntValue(i int64) Value     { return Value{Kind: KindInt, Int: i} }
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Double: f} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

func ArrayValue(items ...Value) Value {
	return Value{Kind: KindArray, Array: items}
}

func ObjectValue(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindObject, Object: fields}
}

// Equal reports whether two values are structurally identical.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindInt:
		return v.Int == other.Int
	case KindDouble:
		return v.Double == other.Double
	case KindString:
		return v.Str == other.Str
	case KindArray:
		if len(v.Array) != len(other.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(other.Array[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Object) != len(other.Object) {
			return false
		}
		for k, lv := range v.Object {
			rv, ok := other.Object[k]
			if !ok || !lv.Equal(rv) {
				return false
			}
		}
		return true
	}
	return false
}

// FromAny converts a generic JSON-decoded value (nil, bool, float64,
// json.Number, string, []any, map[string]any) into a Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return BoolValue(t)
	case string:
		return StringValue(t)
	case float64:
		if t == float64(int64(t)) {
			return IntValue(int64(t))
		}
		return DoubleValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntValue(i)
		}
		f, _ := t.Float64()
		return DoubleValue(f)
	case int:
		return IntValue(int64(t))
	case int8:
		return IntValue(int64(t))
	case int16:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return IntValue(int64(t))
	case uint8:
		return IntValue(int64(t))
	case uint16:
		return IntValue(int64(t))
	case uint32:
		return IntValue(int64(t))
	case uint64:
		return IntValue(int64(t))
	case float32:
		return DoubleValue(float64(t))
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return Value{Kind: KindArray, Array: items}
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = FromAny(e)
		}
		return Value{Kind: KindObject, Object: fields}
	case map[any]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[fmt.Sprintf("%v", k)] = FromAny(e)
		}
		return Value{Kind: KindObject, Object: fields}
	default:
		// Unrecognized concrete type: best-effort via a JSON round-trip.
		data, err := json.Marshal(t)
		if err != nil {
			return Null
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return Null
		}
		return FromAny(generic)
	}
}

// ToAny converts a Value back into the generic interface{} shape that
// encoding/json and encoding/gob-style tools expect.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int
	case KindDouble:
		return v.Double
	case KindString:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Array))
		for i, e := range v.Array {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for k, e := range v.Object {
			out[k] = e.ToAny()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler by delegating through ToAny, so a
// Value serializes exactly as the plain JSON value it represents.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler using json.Number so integers
// round-trip without floating point drift.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("statetree: decode value: %w", err)
	}
	*v = FromAny(generic)
	return nil
}

// ToStruct decodes v into out (a pointer) by round-tripping through JSON.
func (v Value) ToStruct(out any) error {
	data, err := json.Marshal(v.ToAny())
	if err != nil {
		return fmt.Errorf("statetree: marshal intermediate: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("statetree: unmarshal into target: %w", err)
	}
	return nil
}

// FromStruct serializes an arbitrary Go value (typically a land state
// struct) into its canonical Value tree via a JSON round trip, which also
// picks up `json:"..."` struct tags as field names.
func FromStruct(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Null, fmt.Errorf("statetree: marshal state: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return Null, fmt.Errorf("statetree: decode state: %w", err)
	}
	return FromAny(generic), nil
}

// SortedKeys returns an object's field names sorted lexicographically by
// byte value.
func (v Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.Object))
	for k := range v.Object {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
