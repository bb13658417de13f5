package gridline

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ValueKind identifies the variant held by a Value.
type ValueKind uint8

const (
	ValueEmpty ValueKind = iota
	ValueNumber
	ValueText
	ValueBool
	ValueArray
	ValueChart
	ValueError
)

func (k ValueKind) String() string {
	switch k {
	case ValueEmpty:
		return "empty"
	case ValueNumber:
		return "number"
	case ValueText:
		return "text"
	case ValueBool:
		return "bool"
	case ValueArray:
		return "array"
	case ValueChart:
		return "chart"
	case ValueError:
		return "error"
	}
	return "unknown"
}

// Value is a computed or literal cell value. The zero Value is empty.
// Values are immutable once built; Arr must not be modified after construction.
type Value struct {
	Kind  ValueKind
	Num   float64
	Str   string
	Bool  bool
	Arr   []Value
	Chart *ChartSpec
	Err   error
}

// ChartSpec describes a chart produced by a formula. Rendering is left to callers.
type ChartSpec struct {
	Kind   string // "bar", "line" or "scatter"
	Title  string
	Source RangeRef
	Series []float64
	XS     []float64 // scatter only
}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// Text returns a text Value.
func Text(s string) Value { return Value{Kind: ValueText, Str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// Array returns an array Value over vs.
func Array(vs []Value) Value { return Value{Kind: ValueArray, Arr: vs} }

// Chart returns a chart Value.
func Chart(c *ChartSpec) Value { return Value{Kind: ValueChart, Chart: c} }

// ErrorValue wraps err as a Value.
func ErrorValue(err error) Value { return Value{Kind: ValueError, Err: err} }

// IsEmpty reports whether v is the empty value.
func (v Value) IsEmpty() bool { return v.Kind == ValueEmpty }

// String renders v for display.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return FormatNumber(v.Num)
	case ValueText:
		return v.Str
	case ValueBool:
		if v.Bool {
			return "TRUE"
		}
		return "FALSE"
	case ValueArray:
		parts := make([]string, len(v.Arr))
		for i, e := range v.Arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ValueChart:
		return "<" + v.Chart.Kind + " chart>"
	case ValueError:
		return ErrorCode(v.Err)
	}
	return ""
}

// FormatNumber prints integral values without a fractional part and
// everything else in the shortest form that round-trips.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// toAny converts v to the plain Go value handed to the expression runtime.
func (v Value) toAny() any {
	switch v.Kind {
	case ValueNumber:
		return v.Num
	case ValueText:
		return v.Str
	case ValueBool:
		return v.Bool
	case ValueArray:
		out := make([]any, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.toAny()
		}
		return out
	case ValueChart:
		return v.Chart
	}
	return ""
}

// ValueOf converts a result produced by the expression runtime into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case float64:
		return numberOf(t)
	case float32:
		return numberOf(float64(t))
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case string:
		return Text(t), nil
	case bool:
		return Bool(t), nil
	case *ChartSpec:
		return Chart(t), nil
	case ChartSpec:
		return Chart(&t), nil
	case []any:
		return arrayOf(len(t), func(i int) any { return t[i] })
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return arrayOf(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Int, reflect.Int8, reflect.Int16:
		return Number(float64(rv.Int())), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Number(float64(rv.Uint())), nil
	}
	return Value{}, fmt.Errorf("unsupported result type %T", x)
}

func numberOf(f float64) (Value, error) {
	switch {
	case math.IsInf(f, 0):
		return Value{}, fmt.Errorf("division by zero")
	case math.IsNaN(f):
		return Value{}, fmt.Errorf("result is not a number")
	}
	return Number(f), nil
}

func arrayOf(n int, at func(int) any) (Value, error) {
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		v, err := ValueOf(at(i))
		if err != nil {
			return Value{}, fmt.Errorf("array element %d: %w", i, err)
		}
		if v.Kind == ValueArray {
			return Value{}, fmt.Errorf("array element %d: nested arrays cannot spill", i)
		}
		out[i] = v
	}
	return Array(out), nil
}
