package gridline

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalFormula(t *testing.T, ev *ExprEvaluator, view GridView, formula string) (Value, error) {
	t.Helper()
	pre, err := PreprocessAt(formula, ref("Z1"))
	require.NoError(t, err)
	return ev.Evaluate(ref("Z1"), pre, view)
}

func TestExprEvaluator_Arithmetic(t *testing.T) {
	view := gridView{ref("A1"): Number(10), ref("A2"): Number(20), ref("B1"): Bool(true)}
	ev := NewExprEvaluator()

	cases := map[string]Value{
		"A1 + A2":            Number(30),
		"A1 * 2 - 1":         Number(19),
		"A1 / 4":             Number(2.5),
		"B1 + 1":             Number(2),
		"C9 + 1":             Number(1),
		"A1 > 5":             Bool(true),
		"@A1 == 10":          Bool(true),
		`"n=" + string(@A1)`: Text("n=10"),
		"ROUND(A1 / 3, 2)":   Number(3.33),
		"IF(A1 > A2, 1, 2)":  Number(2),
		"MAX(A1, A2, 5)":     Number(20),
		"ROW() + COL()":      Number(27),
	}
	for formula, want := range cases {
		got, err := evalFormula(t, ev, view, formula)
		require.NoError(t, err, formula)
		assert.Equal(t, want, got, formula)
	}
}

func TestExprEvaluator_RangeFunctions(t *testing.T) {
	view := gridView{
		ref("A1"): Number(1), ref("A2"): Number(2), ref("A3"): Number(3),
		ref("B1"): Text("x"), ref("B2"): Text("y"), ref("B3"): Text("z"),
	}
	ev := NewExprEvaluator()

	cases := map[string]Value{
		"SUM(A1:A3)":                Number(6),
		"AVERAGE(A1:A3)":            Number(2),
		"COUNT(A1:B3)":              Number(3),
		"MIN(A1:A3)":                Number(1),
		"MAX(A1:A3)":                Number(3),
		"PRODUCT(A1:A3)":            Number(6),
		"MEDIAN(A1:A3)":             Number(2),
		`CONCAT(B1:B3, "-")`:        Text("x-y-z"),
		`LOOKUP(2, A1:A3, B1:B3)`:   Text("y"),
		`LOOKUP("z", B1:B3, A1:A3)`: Number(3),
	}
	for formula, want := range cases {
		got, err := evalFormula(t, ev, view, formula)
		require.NoError(t, err, formula)
		assert.Equal(t, want, got, formula)
	}
}

func TestExprEvaluator_VecKeepsDirection(t *testing.T) {
	view := gridView{ref("A1"): Number(1), ref("A2"): Number(2), ref("A3"): Number(3)}
	got, err := evalFormula(t, NewExprEvaluator(), view, "VEC(A3:A1)")
	require.NoError(t, err)
	assert.Equal(t, Array([]Value{Number(3), Number(2), Number(1)}), got)
}

func TestExprEvaluator_Charts(t *testing.T) {
	view := gridView{ref("A1"): Number(1), ref("A2"): Number(4), ref("B1"): Number(2), ref("B2"): Number(8)}
	ev := NewExprEvaluator()

	got, err := evalFormula(t, ev, view, `BARCHART(A1:A2, "Sales")`)
	require.NoError(t, err)
	require.Equal(t, ValueChart, got.Kind)
	assert.Equal(t, "bar", got.Chart.Kind)
	assert.Equal(t, "Sales", got.Chart.Title)
	assert.Equal(t, []float64{1, 4}, got.Chart.Series)
	assert.Equal(t, "<bar chart>", got.String())

	got, err = evalFormula(t, ev, view, "SCATTER(A1:A2, B1:B2)")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, got.Chart.XS)
	assert.Equal(t, []float64{2, 8}, got.Chart.Series)
}

func TestExprEvaluator_Errors(t *testing.T) {
	view := gridView{
		ref("A1"): Number(0),
		ref("A2"): ErrorValue(&EvalError{Ref: ref("A2"), Err: errors.New("boom")}),
		ref("A3"): Text("x"),
	}
	ev := NewExprEvaluator()

	_, err := evalFormula(t, ev, view, "1 / A1")
	require.Error(t, err)
	assert.Equal(t, "#DIV/0!", ErrorCode(err))

	_, err = evalFormula(t, ev, view, "A2 + 1")
	var evalErr *EvalError
	require.True(t, errors.As(err, &evalErr))
	require.NotNil(t, evalErr.Source)
	assert.Equal(t, ref("A2"), *evalErr.Source)

	_, err = evalFormula(t, ev, view, "A3 * 2")
	assert.Error(t, err, "text read through CELL is not a number")

	_, err = evalFormula(t, ev, view, "AVG(B1:B3)")
	assert.Equal(t, "#DIV/0!", ErrorCode(err))

	_, err = evalFormula(t, ev, view, "1 +")
	assert.Error(t, err)
}

func TestExprEvaluator_MaxRangeCells(t *testing.T) {
	ev := NewExprEvaluator()
	ev.SetMaxRangeCells(10)

	_, err := evalFormula(t, ev, gridView{}, "SUM(A1:A11)")
	assert.ErrorIs(t, err, ErrRangeTooLarge)
	assert.Equal(t, "#RANGE!", ErrorCode(err))

	got, err := evalFormula(t, ev, gridView{}, "SUM(A1:B5)")
	require.NoError(t, err)
	assert.Equal(t, Number(0), got)
}

func TestExprEvaluator_RegisterFunction(t *testing.T) {
	ev := NewExprEvaluator()
	require.NoError(t, ev.RegisterFunction("SHOUT", func(s string) string { return strings.ToUpper(s) + "!" }))
	assert.Error(t, ev.RegisterFunction("CELL", func() int { return 0 }))
	assert.Error(t, ev.RegisterFunction("SUM_RANGE", func() int { return 0 }))
	assert.Error(t, ev.RegisterFunction("NOTHING", nil))

	got, err := evalFormula(t, ev, gridView{ref("A1"): Text("hi")}, "SHOUT(@A1)")
	require.NoError(t, err)
	assert.Equal(t, Text("HI!"), got)
}

func TestExprEvaluator_RangeSeesArrayOriginAsOneCell(t *testing.T) {
	view := gridView{
		ref("B1"): Array([]Value{Number(3), Number(1), Number(2)}),
		ref("B2"): Number(1),
		ref("B3"): Number(2),
	}
	got, err := evalFormula(t, NewExprEvaluator(), view, "SUM(B1:B3)")
	require.NoError(t, err)
	assert.Equal(t, Number(6), got)

	got, err = evalFormula(t, NewExprEvaluator(), view, "B1 + 1")
	require.NoError(t, err)
	assert.Equal(t, Number(4), got)
}
