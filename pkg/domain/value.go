package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an interpreter-independent datum used to carry data across the
// boundary between two Interpreter States. A Value never references memory
// owned by an interpreter.
//
// The zero Value is Nil.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     string // string payload, or the foreign kind name for Unsupported
	table *Table
}

// Nil returns the nil Value.
func Nil() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating-point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// TableValue wraps a table.
func TableValue(t *Table) Value {
	if t == nil {
		t = NewTable()
	}
	return Value{kind: KindTable, table: t}
}

// Unsupported records a foreign value kind (function, userdata, thread...)
// that cannot cross an interpreter boundary.
func Unsupported(kind string) Value { return Value{kind: KindUnsupported, s: kind} }

// Number picks Int for integral values that fit an int64 and Float otherwise.
func Number(n float64) Value {
	if n == math.Trunc(n) && !math.IsInf(n, 0) && n >= math.MinInt64 && n < math.MaxInt64 {
		return Int(int64(n))
	}
	return Float(n)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

// AsBool returns the boolean payload; ok is false for other kinds.
func (v Value) AsBool() (b, ok bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload; ok is false for other kinds.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float payload; ok is false for other kinds.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload; ok is false for other kinds.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsTable returns the table payload; ok is false for other kinds.
func (v Value) AsTable() (*Table, bool) { return v.table, v.kind == KindTable }

// ForeignKind names the foreign kind carried by an Unsupported value.
func (v Value) ForeignKind() string {
	if v.kind != KindUnsupported {
		return ""
	}
	return v.s
}

// Equal reports deep equality. Tables compare by content, ints and floats
// never compare equal to each other.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString, KindUnsupported:
		return v.s == o.s
	case KindTable:
		return v.table.Equal(o.table)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindTable:
		return v.table.String()
	case KindUnsupported:
		return "<" + v.s + ">"
	}
	return "?"
}

// Key is a table key. Keys are distinguished by kind first, so Int(1) and
// String("1") are different keys.
type Key struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// KeyOf converts a scalar Value into a Key. Nil and tables are not valid keys.
func KeyOf(v Value) (Key, bool) {
	switch v.kind {
	case KindBool, KindInt, KindFloat, KindString, KindUnsupported:
		return Key{kind: v.kind, b: v.b, i: v.i, f: v.f, s: v.s}, true
	}
	return Key{}, false
}

// IntKey is shorthand for KeyOf(Int(i)).
func IntKey(i int64) Key { return Key{kind: KindInt, i: i} }

// StringKey is shorthand for KeyOf(String(s)).
func StringKey(s string) Key { return Key{kind: KindString, s: s} }

// Value converts the key back into a Value.
func (k Key) Value() Value {
	return Value{kind: k.kind, b: k.b, i: k.i, f: k.f, s: k.s}
}

func (k Key) Kind() Kind { return k.kind }

// Table is an associative container of Values. Iteration order is unspecified.
type Table struct {
	entries map[Key]Value
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]Value)}
}

// List builds a 1-indexed sequence table.
func List(values ...Value) *Table {
	t := NewTable()
	for i, v := range values {
		t.Set(IntKey(int64(i+1)), v)
	}
	return t
}

// Set stores v under k. Setting Nil removes the entry.
func (t *Table) Set(k Key, v Value) {
	if v.kind == KindNil {
		delete(t.entries, k)
		return
	}
	t.entries[k] = v
}

// Get returns the value stored under k.
func (t *Table) Get(k Key) (Value, bool) {
	v, ok := t.entries[k]
	return v, ok
}

func (t *Table) Len() int { return len(t.entries) }

// Range calls fn for every entry until fn returns false.
func (t *Table) Range(fn func(Key, Value) bool) {
	for k, v := range t.entries {
		if !fn(k, v) {
			return
		}
	}
}

func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.entries) != len(o.entries) {
		return false
	}
	for k, v := range t.entries {
		ov, ok := o.entries[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// String renders the table with keys sorted by their printed form, for
// diagnostics only.
func (t *Table) String() string {
	parts := make([]string, 0, len(t.entries))
	for k, v := range t.entries {
		parts = append(parts, "["+k.Value().String()+"]="+v.String())
	}
	sort.Strings(parts)
	out := "{"
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out + "}"
}

// FromGo converts plain Go data (as produced by yaml/json decoding) into a
// Value. Maps with non-string keys and unknown types become Unsupported.
func FromGo(x any) Value {
	switch v := x.(type) {
	case nil:
		return Nil()
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return Float(float64(v))
		}
		return Int(int64(v))
	case uint:
		return FromGo(uint64(v))
	case float32:
		return Float(float64(v))
	case float64:
		return Float(v)
	case string:
		return String(v)
	case Value:
		return v
	case []any:
		vals := make([]Value, len(v))
		for i, e := range v {
			vals[i] = FromGo(e)
		}
		return TableValue(List(vals...))
	case []string:
		vals := make([]Value, len(v))
		for i, e := range v {
			vals[i] = String(e)
		}
		return TableValue(List(vals...))
	case map[string]any:
		t := NewTable()
		for k, e := range v {
			t.Set(StringKey(k), FromGo(e))
		}
		return TableValue(t)
	case map[any]any:
		t := NewTable()
		for k, e := range v {
			key, ok := KeyOf(FromGo(k))
			if !ok {
				return Unsupported(fmt.Sprintf("%T", k))
			}
			t.Set(key, FromGo(e))
		}
		return TableValue(t)
	}
	return Unsupported(fmt.Sprintf("%T", x))
}
