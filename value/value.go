// Package value defines the runtime value model shared between the compiler
// and the virtual machine: tagged values, interned symbol tables, and module
// objects. The compiler only constructs values; it never executes them.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind discriminates the payload of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNum
	KindString
	KindList
	KindMap
	KindRange
	KindObj // host object (e.g. a compiled function artifact)
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindNum:    "num",
	KindString: "string",
	KindList:   "list",
	KindMap:    "map",
	KindRange:  "range",
	KindObj:    "obj",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Value is a tagged runtime value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	obj  any // string, *List, *Map, *Range, or a host object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num wraps a number.
func Num(n float64) Value { return Value{kind: KindNum, num: n} }

// Str wraps a string.
func Str(s string) Value { return Value{kind: KindString, obj: s} }

// NewList wraps a list.
func NewList(l *List) Value { return Value{kind: KindList, obj: l} }

// NewMap wraps a map.
func NewMap(m *Map) Value { return Value{kind: KindMap, obj: m} }

// Obj wraps a host object such as a compiled function.
func Obj(o any) Value { return Value{kind: KindObj, obj: o} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) IsNum() bool   { return v.kind == KindNum }
func (v Value) AsBool() bool  { return v.b }
func (v Value) AsNum() float64 {
	return v.num
}

// AsString returns the string payload. Only valid for KindString.
func (v Value) AsString() string {
	s, _ := v.obj.(string)
	return s
}

// AsList returns the list payload, or nil.
func (v Value) AsList() *List {
	l, _ := v.obj.(*List)
	return l
}

// AsMap returns the map payload, or nil.
func (v Value) AsMap() *Map {
	m, _ := v.obj.(*Map)
	return m
}

// AsObj returns the host object payload.
func (v Value) AsObj() any { return v.obj }

// Equals reports value equality: null, booleans and numbers compare by
// value, strings by content, everything else by object identity. This is
// the equality the constant pool interns under.
func (v Value) Equals(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNum:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindString:
		return v.obj.(string) == o.obj.(string)
	default:
		return v.obj == o.obj
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNum:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.obj.(string))
	case KindList:
		return fmt.Sprintf("list(%d)", v.AsList().Len())
	case KindMap:
		return fmt.Sprintf("map(%d)", v.AsMap().Len())
	default:
		return fmt.Sprintf("%v", v.obj)
	}
}

// List is a growable sequence of values.
type List struct {
	Elems []Value
}

func (l *List) Len() int { return len(l.Elems) }

func (l *List) Add(v Value) { l.Elems = append(l.Elems, v) }

// Map is an insertion-ordered value-to-value map. Keys compare with
// Value.Equals. It is small and linear; the compiler only builds attribute
// maps with a handful of entries.
type Map struct {
	keys []Value
	vals []Value
}

func (m *Map) Len() int { return len(m.keys) }

// Get returns the value for key, and whether it was present.
func (m *Map) Get(key Value) (Value, bool) {
	for i, k := range m.keys {
		if k.Equals(key) {
			return m.vals[i], true
		}
	}
	return Null(), false
}

// Set inserts or replaces the value for key.
func (m *Map) Set(key, val Value) {
	for i, k := range m.keys {
		if k.Equals(key) {
			m.vals[i] = val
			return
		}
	}
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(key, val Value)) {
	for i, k := range m.keys {
		fn(k, m.vals[i])
	}
}
