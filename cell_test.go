package gridline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInput_Classification(t *testing.T) {
	cases := []struct {
		in   string
		kind CellKind
	}{
		{"", CellEmpty},
		{"   ", CellEmpty},
		{"42", CellNumber},
		{"-1.5e3", CellNumber},
		{".5", CellNumber},
		{"true", CellBool},
		{"FALSE", CellBool},
		{`"42"`, CellText},
		{"hello", CellText},
		{"1e999", CellText},
		{"=A1+1", CellFormula},
	}
	for _, tc := range cases {
		c, err := ParseInput(tc.in, CellRef{})
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.kind, c.Kind, "input %q", tc.in)
	}
}

func TestParseInput_Formula(t *testing.T) {
	c, err := ParseInput("= SUM(A1:A3) * 2", ref("B1"))
	require.NoError(t, err)
	assert.Equal(t, "SUM(A1:A3) * 2", c.Formula.Raw)
	assert.Equal(t, "SUM_RANGE(0, 0, 0, 2) * 2", c.Formula.Preprocessed)
	assert.Equal(t, "=SUM(A1:A3) * 2", c.Input())
}

func TestParseInput_MalformedFormula(t *testing.T) {
	_, err := ParseInput("=A1:B2", CellRef{})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "A1:B2", perr.Span())
}

func TestParseInput_QuotedText(t *testing.T) {
	c, err := ParseInput(`"say \"hi\"\nbye"`, CellRef{})
	require.NoError(t, err)
	assert.Equal(t, "say \"hi\"\nbye", c.Text)
}

func TestNeedsQuote(t *testing.T) {
	assert.False(t, needsQuote("hello"))
	assert.True(t, needsQuote("42"))
	assert.True(t, needsQuote("TRUE"))
	assert.True(t, needsQuote("=A1"))
	assert.True(t, needsQuote(" padded"))
	assert.True(t, needsQuote("two\nlines"))

	for _, s := range []string{"42", "=A1", "two\nlines", `back\slash "q"`} {
		c, err := ParseInput(quote(s), CellRef{})
		require.NoError(t, err)
		assert.Equal(t, TextCell(s), c, "round trip of %q", s)
	}
}

func TestCell_Input(t *testing.T) {
	assert.Equal(t, "3", NumberCell(3).Input())
	assert.Equal(t, "0.25", NumberCell(0.25).Input())
	assert.Equal(t, "TRUE", BoolCell(true).Input())
	assert.Equal(t, "", Cell{}.Input())
}

func TestValueOf(t *testing.T) {
	v, err := ValueOf(3)
	require.NoError(t, err)
	assert.Equal(t, Number(3), v)

	v, err = ValueOf([]any{1.0, "a", true})
	require.NoError(t, err)
	assert.Equal(t, Array([]Value{Number(1), Text("a"), Bool(true)}), v)

	v, err = ValueOf([]int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, Array([]Value{Number(1), Number(2)}), v)

	_, err = ValueOf([]any{[]any{1}})
	assert.Error(t, err)

	_, err = ValueOf(map[string]int{})
	assert.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "30", FormatNumber(30))
	assert.Equal(t, "-2", FormatNumber(-2))
	assert.Equal(t, "0.1", FormatNumber(0.1))
	assert.Equal(t, "1e+20", FormatNumber(1e20))
}
