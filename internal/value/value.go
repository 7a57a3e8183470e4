// Package value implements GraphLite's primitive value model: a
// tagged union shared by literals, property values and row bindings.
package value

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Kind tags the concrete type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindDate
	KindTime
	KindDateTime
	KindList
	KindMap
	KindNode
	KindEdge
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindBool:
		return "BOOLEAN"
	case KindInt:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindDate:
		return "DATE"
	case KindTime:
		return "TIME"
	case KindDateTime:
		return "DATETIME"
	case KindList:
		return "LIST"
	case KindMap:
		return "MAP"
	case KindNode:
		return "NODE"
	case KindEdge:
		return "EDGE"
	case KindPath:
		return "PATH"
	default:
		return "UNKNOWN"
	}
}

// Value is GraphLite's tagged-union runtime value. The zero Value is
// null. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Time  time.Time // Date / Time / DateTime payload
	List  []Value
	Map   map[string]Value
	Node  *Node
	Edge  *Edge
	Path  *Path
}

// Null is the canonical null value.
var Null = Value{Kind: KindNull}

func Bool(b bool) Value    { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value    { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value   { return Value{Kind: KindString, Str: s} }
func Date(t time.Time) Value     { return Value{Kind: KindDate, Time: t} }
func TimeOfDay(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func DateTime(t time.Time) Value  { return Value{Kind: KindDateTime, Time: t} }
func List(vs []Value) Value { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }
func NodeVal(n *Node) Value { return Value{Kind: KindNode, Node: n} }
func EdgeVal(e *Edge) Value { return Value{Kind: KindEdge, Edge: e} }
func PathVal(p *Path) Value { return Value{Kind: KindPath, Path: p} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy implements GQL boolean coercion for WHERE/HAVING predicates:
// only a non-null boolean true is truthy; anything else (including
// null) is not.
func (v Value) Truthy() bool {
	return v.Kind == KindBool && v.Bool
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindDate:
		return v.Time.Format("2006-01-02")
	case KindTime:
		return v.Time.Format("15:04:05")
	case KindDateTime:
		return v.Time.Format(time.RFC3339)
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, v.Map[k].String())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindNode:
		return v.Node.String()
	case KindEdge:
		return v.Edge.String()
	case KindPath:
		return v.Path.String()
	default:
		return "?"
	}
}

// Equal implements structural equality. null equals only null.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return numericEqual(a, b)
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.Str == b.Str
	case KindDate, KindTime, KindDateTime:
		return a.Time.Equal(b.Time)
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case KindNode:
		return a.Node != nil && b.Node != nil && a.Node.ID == b.Node.ID
	case KindEdge:
		return a.Edge != nil && b.Edge != nil && a.Edge.ID == b.Edge.ID
	case KindPath:
		return a.Path != nil && b.Path != nil && a.Path.Equal(b.Path)
	default:
		return false
	}
}

func numericEqual(a, b Value) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func asFloat(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// Compare orders a against b for ORDER BY / range predicates. ok is
// false when the two values are not comparable (different,
// non-numeric kinds) — the GQL result is then a null comparison.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.Kind == KindNull || b.Kind == KindNull {
		return 0, false
	}
	if (a.Kind == KindInt || a.Kind == KindFloat) && (b.Kind == KindInt || b.Kind == KindFloat) {
		af, _ := asFloat(a)
		bf, _ := asFloat(b)
		return compareFloat(af, bf), true
	}
	if a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case KindString:
		return strings.Compare(a.Str, b.Str), true
	case KindBool:
		if a.Bool == b.Bool {
			return 0, true
		}
		if !a.Bool {
			return -1, true
		}
		return 1, true
	case KindDate, KindTime, KindDateTime:
		switch {
		case a.Time.Before(b.Time):
			return -1, true
		case a.Time.After(b.Time):
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Arithmetic helpers used by the expression evaluator (internal/exec).

func Add(a, b Value) (Value, bool) {
	if a.Kind == KindString && b.Kind == KindString {
		return Str(a.Str + b.Str), true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return Null, false
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.Int + b.Int), true
	}
	return Float(af + bf), true
}

func Sub(a, b Value) (Value, bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return Null, false
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.Int - b.Int), true
	}
	return Float(af - bf), true
}

func Mul(a, b Value) (Value, bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return Null, false
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.Int * b.Int), true
	}
	return Float(af * bf), true
}

// Div implements GQL division. A division by zero is a TypeError at
// the call site (internal/exec), signalled by the divByZero flag.
func Div(a, b Value) (result Value, ok bool, divByZero bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return Null, false, false
	}
	if bf == 0 {
		return Null, false, true
	}
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.Int / b.Int), true, false
	}
	return Float(af / bf), true, false
}

// IsNumber reports whether v is int or float.
func (v Value) IsNumber() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// AsFloat64 exposes the numeric coercion used by math functions.
func (v Value) AsFloat64() (float64, bool) {
	return asFloat(v)
}

// NaNSafeFloat guards math functions against producing NaN/Inf that
// would otherwise silently propagate as a Value.
func NaNSafeFloat(f float64) (Value, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null, false
	}
	return Float(f), true
}
