package gridline

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// GridView is the read-only view of settled cell values handed to an Evaluator.
type GridView interface {
	Cell(ref CellRef) Value
}

// Evaluator runs preprocessed formula text for the cell at.
type Evaluator interface {
	Evaluate(at CellRef, preprocessed string, view GridView) (Value, error)
}

// DefaultMaxRangeCells caps the number of cells a single range may cover.
const DefaultMaxRangeCells = 1_000_000

// ExprEvaluator implements Evaluator using expr-lang/expr. Accessors are
// exposed to formulas as CELL, VALUE and the *_RANGE helpers.
type ExprEvaluator struct {
	cache sync.Map // preprocessed text → compiled *vm.Program

	mu            sync.RWMutex
	funcs         map[string]any
	maxRangeCells int
}

// NewExprEvaluator creates an evaluator with the built-in function library.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{funcs: make(map[string]any), maxRangeCells: DefaultMaxRangeCells}
}

// SetMaxRangeCells changes the range size cap.
func (e *ExprEvaluator) SetMaxRangeCells(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxRangeCells = n
}

// RegisterFunction makes fn callable from formulas as name. Accessor names
// cannot be replaced.
func (e *ExprEvaluator) RegisterFunction(name string, fn any) error {
	if name == "CELL" || name == "VALUE" || strings.HasSuffix(name, "_RANGE") {
		return fmt.Errorf("register function %q: name is reserved", name)
	}
	if fn == nil {
		return fmt.Errorf("register function %q: nil function", name)
	}
	e.mu.Lock()
	e.funcs[name] = fn
	e.mu.Unlock()
	e.cache.Clear()
	return nil
}

// Evaluate compiles (or reuses) the program for preprocessed and runs it
// against view.
func (e *ExprEvaluator) Evaluate(at CellRef, preprocessed string, view GridView) (Value, error) {
	c := &callEnv{at: at, view: view}
	env := e.env(c)
	program, err := e.compile(preprocessed, env)
	if err != nil {
		return Value{}, &EvalError{Ref: at, Err: fmt.Errorf("compile formula: %w", err)}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		if c.cause != nil {
			err = c.cause
		}
		return Value{}, &EvalError{Ref: at, Source: c.poisonedBy, Err: err}
	}
	v, err := ValueOf(out)
	if err != nil {
		return Value{}, &EvalError{Ref: at, Err: err}
	}
	return v, nil
}

// Check compiles preprocessed without running it, reporting syntax errors
// and calls to unknown functions.
func (e *ExprEvaluator) Check(preprocessed string) error {
	_, err := e.compile(preprocessed, e.env(&callEnv{}))
	return err
}

func (e *ExprEvaluator) compile(text string, env map[string]any) (*vm.Program, error) {
	if cached, ok := e.cache.Load(text); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(text, expr.Env(env))
	if err != nil {
		return nil, err
	}
	e.cache.Store(text, program)
	return program, nil
}

// callEnv carries the state of one evaluation.
type callEnv struct {
	at         CellRef
	view       GridView
	maxCells   int
	poisonedBy *CellRef
	cause      error // first accessor failure, reported instead of the runtime's wrapping
}

func (c *callEnv) fail(err error) error {
	if c.cause == nil {
		c.cause = err
	}
	return err
}

func (c *callEnv) read(ref CellRef) (Value, error) {
	if !ref.Valid() {
		return Value{}, fmt.Errorf("reference out of range")
	}
	v := c.view.Cell(ref)
	if v.Kind == ValueError {
		if c.poisonedBy == nil {
			src := ref
			c.poisonedBy = &src
		}
		return Value{}, c.fail(fmt.Errorf("%s has error %s", ref, ErrorCode(v.Err)))
	}
	return v, nil
}

func (c *callEnv) cells(r RangeRef) ([]Value, error) {
	if r.Size() > c.maxCells {
		return nil, c.fail(fmt.Errorf("%s covers %d cells: %w", r, r.Size(), ErrRangeTooLarge))
	}
	refs := r.Cells()
	out := make([]Value, len(refs))
	for i, ref := range refs {
		v, err := c.read(ref)
		if err != nil {
			return nil, err
		}
		// An array origin occupies one cell of the range: its first element.
		if v.Kind == ValueArray {
			if len(v.Arr) > 0 {
				v = v.Arr[0]
			} else {
				v = Value{}
			}
		}
		out[i] = v
	}
	return out, nil
}

func (e *ExprEvaluator) env(c *callEnv) map[string]any {
	e.mu.RLock()
	c.maxCells = e.maxRangeCells
	env := make(map[string]any, len(builtins)+len(e.funcs)+2)
	for name, fn := range e.funcs {
		env[name] = fn
	}
	e.mu.RUnlock()

	for name, fn := range builtins {
		env[name] = fn
	}
	env["CELL"] = func(col, row int) (any, error) {
		v, err := c.read(CellRef{Row: row, Col: col})
		if err != nil {
			return nil, err
		}
		return structural(v), nil
	}
	env["VALUE"] = func(col, row int) (any, error) {
		v, err := c.read(CellRef{Row: row, Col: col})
		if err != nil {
			return nil, err
		}
		return v.toAny(), nil
	}
	for name, fn := range rangeBuiltins {
		env[name] = func(args ...any) (any, error) { return fn(c, args) }
	}
	return env
}

// structural converts a cell value to the number CELL reports: empty is 0,
// booleans are 1 or 0, anything non-numeric is NaN.
func structural(v Value) float64 {
	switch v.Kind {
	case ValueEmpty:
		return 0
	case ValueNumber:
		return v.Num
	case ValueBool:
		if v.Bool {
			return 1
		}
		return 0
	case ValueArray:
		if len(v.Arr) > 0 {
			return structural(v.Arr[0])
		}
	}
	return math.NaN()
}

type rangeBuiltin func(c *callEnv, args []any) (any, error)

var rangeBuiltins = map[string]rangeBuiltin{
	"SUM_RANGE":     numericRange(sumOf),
	"AVG_RANGE":     numericRange(meanOf),
	"COUNT_RANGE":   numericRange(func(xs []float64) (float64, error) { return float64(len(xs)), nil }),
	"MIN_RANGE":     numericRange(minOf),
	"MAX_RANGE":     numericRange(maxOf),
	"PRODUCT_RANGE": numericRange(productOf),
	"MEDIAN_RANGE":  numericRange(medianOf),
	"CONCAT_RANGE": func(c *callEnv, args []any) (any, error) {
		r, rest, err := boundsArg(args, 0)
		if err != nil {
			return nil, err
		}
		sep := ""
		if len(rest) > 0 {
			sep = fmt.Sprint(rest[0])
		}
		vals, err := c.cells(r.Normalized())
		if err != nil {
			return nil, err
		}
		var parts []string
		for _, v := range vals {
			if !v.IsEmpty() {
				parts = append(parts, v.String())
			}
		}
		return strings.Join(parts, sep), nil
	},
	"VEC_RANGE": func(c *callEnv, args []any) (any, error) {
		r, _, err := boundsArg(args, 0)
		if err != nil {
			return nil, err
		}
		vals, err := c.cells(r)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(vals))
		for i, v := range vals {
			out[i] = v.toAny()
		}
		return out, nil
	},
	"LOOKUP_RANGE": func(c *callEnv, args []any) (any, error) {
		if len(args) < 9 {
			return nil, fmt.Errorf("LOOKUP expects a value and two ranges")
		}
		keys, _, err := boundsArg(args, 1)
		if err != nil {
			return nil, err
		}
		results, _, err := boundsArg(args, 5)
		if err != nil {
			return nil, err
		}
		kv, err := c.cells(keys)
		if err != nil {
			return nil, err
		}
		rc := results.Cells()
		for i, v := range kv {
			if i < len(rc) && matches(v, args[0]) {
				out, err := c.read(rc[i])
				if err != nil {
					return nil, err
				}
				return out.toAny(), nil
			}
		}
		return nil, fmt.Errorf("LOOKUP: %v not found", args[0])
	},
	"BARCHART_RANGE":  seriesChart("bar"),
	"LINECHART_RANGE": seriesChart("line"),
	"SCATTER_RANGE": func(c *callEnv, args []any) (any, error) {
		xr, _, err := boundsArg(args, 0)
		if err != nil {
			return nil, err
		}
		yr, rest, err := boundsArg(args, 4)
		if err != nil {
			return nil, err
		}
		xs, err := numbersIn(c, xr)
		if err != nil {
			return nil, err
		}
		ys, err := numbersIn(c, yr)
		if err != nil {
			return nil, err
		}
		return &ChartSpec{Kind: "scatter", Title: titleArg(rest), Source: yr, XS: xs, Series: ys}, nil
	},
}

func seriesChart(kind string) rangeBuiltin {
	return func(c *callEnv, args []any) (any, error) {
		r, rest, err := boundsArg(args, 0)
		if err != nil {
			return nil, err
		}
		ys, err := numbersIn(c, r)
		if err != nil {
			return nil, err
		}
		return &ChartSpec{Kind: kind, Title: titleArg(rest), Source: r, Series: ys}, nil
	}
}

func titleArg(rest []any) string {
	if len(rest) == 0 {
		return ""
	}
	return fmt.Sprint(rest[0])
}

func numericRange(agg func([]float64) (float64, error)) rangeBuiltin {
	return func(c *callEnv, args []any) (any, error) {
		r, _, err := boundsArg(args, 0)
		if err != nil {
			return nil, err
		}
		xs, err := numbersIn(c, r.Normalized())
		if err != nil {
			return nil, err
		}
		return agg(xs)
	}
}

// numbersIn collects the numeric cells of r in reading order.
func numbersIn(c *callEnv, r RangeRef) ([]float64, error) {
	vals, err := c.cells(r)
	if err != nil {
		return nil, err
	}
	xs := make([]float64, 0, len(vals))
	for _, v := range vals {
		if v.Kind == ValueNumber {
			xs = append(xs, v.Num)
		}
	}
	return xs, nil
}

// boundsArg reads four integer bounds starting at args[i] as col1, row1, col2, row2.
func boundsArg(args []any, i int) (RangeRef, []any, error) {
	if len(args) < i+4 {
		return RangeRef{}, nil, fmt.Errorf("missing range bounds")
	}
	var b [4]int
	for k := range b {
		n, ok := args[i+k].(int)
		if !ok || n < 0 {
			return RangeRef{}, nil, fmt.Errorf("range bound %d is %v, want a non-negative integer", k+1, args[i+k])
		}
		b[k] = n
	}
	r := RangeRef{Start: CellRef{Col: b[0], Row: b[1]}, End: CellRef{Col: b[2], Row: b[3]}}
	return r, args[i+4:], nil
}

func matches(v Value, want any) bool {
	if f, ok := toFloat(want); ok {
		return v.Kind == ValueNumber && v.Num == f
	}
	switch w := want.(type) {
	case string:
		return v.Kind == ValueText && v.Str == w
	case bool:
		return v.Kind == ValueBool && v.Bool == w
	}
	return false
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// flatten collects numbers from scalars and arrays, skipping everything else.
func flatten(args []any) []float64 {
	var xs []float64
	for _, a := range args {
		if f, ok := toFloat(a); ok {
			xs = append(xs, f)
			continue
		}
		if arr, ok := a.([]any); ok {
			xs = append(xs, flatten(arr)...)
		}
	}
	return xs
}

func sumOf(xs []float64) (float64, error) {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s, nil
}

func meanOf(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, fmt.Errorf("average of no values: division by zero")
	}
	s, _ := sumOf(xs)
	return s / float64(len(xs)), nil
}

func minOf(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, nil
	}
	return slices.Min(xs), nil
}

func maxOf(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, nil
	}
	return slices.Max(xs), nil
}

func productOf(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, nil
	}
	p := 1.0
	for _, x := range xs {
		p *= x
	}
	return p, nil
}

func medianOf(xs []float64) (float64, error) {
	if len(xs) == 0 {
		return 0, fmt.Errorf("median of no values")
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], nil
	}
	return (s[mid-1] + s[mid]) / 2, nil
}

func variadic(agg func([]float64) (float64, error)) func(args ...any) (any, error) {
	return func(args ...any) (any, error) { return agg(flatten(args)) }
}

// builtins are the scalar functions available to every formula.
var builtins = map[string]any{
	"SUM":     variadic(sumOf),
	"AVG":     variadic(meanOf),
	"AVERAGE": variadic(meanOf),
	"MIN":     variadic(minOf),
	"MAX":     variadic(maxOf),
	"PRODUCT": variadic(productOf),
	"MEDIAN":  variadic(medianOf),
	"COUNT":   variadic(func(xs []float64) (float64, error) { return float64(len(xs)), nil }),
	"VEC": func(args ...any) (any, error) {
		return slices.Clone(args), nil
	},
	"IF": func(args ...any) (any, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("IF expects a condition and two values")
		}
		cond, ok := args[0].(bool)
		if !ok {
			return nil, fmt.Errorf("IF condition is %T, want bool", args[0])
		}
		if cond {
			return args[1], nil
		}
		return args[2], nil
	},
	"ROUND": func(args ...any) (any, error) {
		if len(args) == 0 || len(args) > 2 {
			return nil, fmt.Errorf("ROUND expects a number and optional places")
		}
		x, ok := toFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("ROUND of %T", args[0])
		}
		places := 0.0
		if len(args) == 2 {
			if places, ok = toFloat(args[1]); !ok {
				return nil, fmt.Errorf("ROUND places is %T", args[1])
			}
		}
		p := math.Pow(10, places)
		return math.Round(x*p) / p, nil
	},
}
