package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ValueKind identifies which variant a Value holds.
type ValueKind int

const (
	// ValueInvalid is the zero Value. It cannot be stored or serialized.
	ValueInvalid ValueKind = iota
	ValueString
	ValueNumber
	ValueBool
	ValueList
	ValueMap
)

// String returns the lowercase name of the kind.
func (k ValueKind) String() string {
	switch k {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueBool:
		return "bool"
	case ValueList:
		return "list"
	case ValueMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a tagged attribute value: a string, a number, a boolean, a list of
// values or a string-keyed map of values.
//
// Values are immutable once constructed; constructors copy their inputs.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

// String creates a string value.
func String(s string) Value { return Value{kind: ValueString, str: s} }

// Number creates a numeric value.
func Number(f float64) Value { return Value{kind: ValueNumber, num: f} }

// Int creates a numeric value from an int.
func Int(i int) Value { return Value{kind: ValueNumber, num: float64(i)} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// List creates a list value.
func List(items ...Value) Value {
	l := make([]Value, len(items))
	for i, it := range items {
		l[i] = it.Clone()
	}
	return Value{kind: ValueList, list: l}
}

// Map creates a map value.
func Map(m map[string]Value) Value {
	c := make(map[string]Value, len(m))
	for k, v := range m {
		c[k] = v.Clone()
	}
	return Value{kind: ValueMap, m: c}
}

// Kind reports the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsValid reports whether v holds one of the supported variants.
func (v Value) IsValid() bool { return v.kind != ValueInvalid }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.str, v.kind == ValueString }

// AsNumber returns the numeric payload.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == ValueNumber }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }

// AsList returns a copy of the list payload.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != ValueList {
		return nil, false
	}
	return List(v.list...).list, true
}

// AsMap returns a copy of the map payload.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != ValueMap {
		return nil, false
	}
	return Map(v.m).m, true
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case ValueList:
		return List(v.list...)
	case ValueMap:
		return Map(v.m)
	default:
		return v
	}
}

// Equal reports structural equality. Map key order is irrelevant, list order
// is significant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueString:
		return v.str == o.str
	case ValueNumber:
		return v.num == o.num
	case ValueBool:
		return v.b == o.b
	case ValueList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case ValueMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Interface converts v to plain Go data: string, float64, bool, []any or
// map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueNumber:
		return v.num
	case ValueBool:
		return v.b
	case ValueList:
		out := make([]any, len(v.list))
		for i, it := range v.list {
			out[i] = it.Interface()
		}
		return out
	case ValueMap:
		out := make(map[string]any, len(v.m))
		for k, it := range v.m {
			out[k] = it.Interface()
		}
		return out
	default:
		return nil
	}
}

// String renders v for logs and facts.
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.str
	case ValueInvalid:
		return "<invalid>"
	default:
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprintf("%v", v.Interface())
		}
		return string(data)
	}
}

// FromInterface converts decoded JSON/YAML data or common Go scalars into a
// Value. nil and unsupported types are rejected.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, fmt.Errorf("null attribute values are not supported")
	case Value:
		if !t.IsValid() {
			return Value{}, fmt.Errorf("invalid attribute value")
		}
		return t.Clone(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(t), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return checkedNumber(float64(t))
	case float64:
		return checkedNumber(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return checkedNumber(f)
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Value{kind: ValueList, list: items}, nil
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := FromInterface(it)
			if err != nil {
				return Value{}, fmt.Errorf("list item %d: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: ValueList, list: items}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			v, err := FromInterface(it)
			if err != nil {
				return Value{}, fmt.Errorf("map key %q: %w", k, err)
			}
			m[k] = v
		}
		return Value{kind: ValueMap, m: m}, nil
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, it := range t {
			ks, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("map key %v is not a string", k)
			}
			v, err := FromInterface(it)
			if err != nil {
				return Value{}, fmt.Errorf("map key %q: %w", ks, err)
			}
			m[ks] = v
		}
		return Value{kind: ValueMap, m: m}, nil
	default:
		return Value{}, fmt.Errorf("unsupported attribute value type %T", x)
	}
}

func checkedNumber(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("non-finite number %v", f)
	}
	return Number(f), nil
}

// MarshalJSON encodes v as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid attribute value")
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON value except null.
func (v *Value) UnmarshalJSON(data []byte) error {
	var x any
	if err := json.Unmarshal(data, &x); err != nil {
		return err
	}
	decoded, err := FromInterface(x)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalYAML encodes v as its natural YAML form.
func (v Value) MarshalYAML() (any, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid attribute value")
	}
	return v.Interface(), nil
}

// UnmarshalYAML decodes any YAML node except null.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var x any
	if err := node.Decode(&x); err != nil {
		return err
	}
	decoded, err := FromInterface(x)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Attributes is an open key/value bag attached to nodes and edges.
type Attributes map[string]Value

// Clone returns a deep copy. A nil bag stays nil.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v.Clone()
	}
	return c
}

// Equal compares two bags; nil and empty are equal.
func (a Attributes) Equal(b Attributes) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		o, ok := b[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// Keys returns the keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate rejects invalid (zero) values, non-finite numbers and text that is
// not valid UTF-8 anywhere in the bag, keys included.
func (a Attributes) Validate() error {
	for k, v := range a {
		if !utf8.ValidString(k) {
			return fmt.Errorf("attribute key %q: %w", k, ErrInvalidText)
		}
		if err := validateValue(v); err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
	}
	return nil
}

func validateValue(v Value) error {
	switch v.kind {
	case ValueInvalid:
		return fmt.Errorf("invalid attribute value")
	case ValueNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return fmt.Errorf("non-finite number %v", v.num)
		}
	case ValueString:
		if !utf8.ValidString(v.str) {
			return fmt.Errorf("string %q: %w", v.str, ErrInvalidText)
		}
	case ValueList:
		for i, it := range v.list {
			if err := validateValue(it); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	case ValueMap:
		for k, it := range v.m {
			if !utf8.ValidString(k) {
				return fmt.Errorf("map key %q: %w", k, ErrInvalidText)
			}
			if err := validateValue(it); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
	}
	return nil
}

// AttributesFrom converts a plain map into Attributes.
func AttributesFrom(m map[string]any) (Attributes, error) {
	if m == nil {
		return nil, nil
	}
	out := make(Attributes, len(m))
	for k, x := range m {
		v, err := FromInterface(x)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}
