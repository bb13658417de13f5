package gridline

import (
	"math"
	"strconv"
	"strings"
)

// CellKind identifies the variant held by a Cell.
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellNumber
	CellText
	CellBool
	CellFormula
	CellSpillChild
)

func (k CellKind) String() string {
	switch k {
	case CellEmpty:
		return "empty"
	case CellNumber:
		return "number"
	case CellText:
		return "text"
	case CellBool:
		return "bool"
	case CellFormula:
		return "formula"
	case CellSpillChild:
		return "spill"
	}
	return "unknown"
}

// Cell is the content stored at one address. Only the fields matching Kind are meaningful.
type Cell struct {
	Kind    CellKind
	Number  float64
	Text    string
	Bool    bool
	Formula Formula
	Owner   CellRef // spill children only
}

// Formula holds a formula's source and its last evaluation outcome.
type Formula struct {
	Raw          string // without the leading '='
	Preprocessed string
	Cached       *Value // most recent successful result, nil before the first one
	Err          error  // error from the most recent evaluation, if it failed
}

// NumberCell returns a number cell.
func NumberCell(f float64) Cell { return Cell{Kind: CellNumber, Number: f} }

// TextCell returns a text cell.
func TextCell(s string) Cell { return Cell{Kind: CellText, Text: s} }

// BoolCell returns a boolean cell.
func BoolCell(b bool) Cell { return Cell{Kind: CellBool, Bool: b} }

// FormulaCell returns a formula cell that has not been evaluated yet.
func FormulaCell(raw, preprocessed string) Cell {
	return Cell{Kind: CellFormula, Formula: Formula{Raw: raw, Preprocessed: preprocessed}}
}

func spillChild(owner CellRef) Cell { return Cell{Kind: CellSpillChild, Owner: owner} }

// IsEmpty reports whether c holds nothing.
func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// Input returns the text a user would type to recreate c.
func (c Cell) Input() string {
	switch c.Kind {
	case CellNumber:
		return FormatNumber(c.Number)
	case CellText:
		return c.Text
	case CellBool:
		return Bool(c.Bool).String()
	case CellFormula:
		return "=" + c.Formula.Raw
	}
	return ""
}

// literal returns the value of a non-formula, non-spill cell.
func (c Cell) literal() Value {
	switch c.Kind {
	case CellNumber:
		return Number(c.Number)
	case CellText:
		return Text(c.Text)
	case CellBool:
		return Bool(c.Bool)
	}
	return Value{}
}

// ParseInput classifies raw user input for the cell at. Empty or blank input
// gives an empty cell, a leading '=' a formula, a double-quoted string text,
// TRUE/FALSE a bool, a finite number a number, and anything else text.
// Formula bodies are preprocessed; malformed references return a *ParseError.
func ParseInput(input string, at CellRef) (Cell, error) {
	trimmed := strings.TrimSpace(input)
	switch {
	case trimmed == "":
		return Cell{}, nil
	case trimmed[0] == '=':
		raw := strings.TrimSpace(trimmed[1:])
		pre, err := PreprocessAt(raw, at)
		if err != nil {
			return Cell{}, err
		}
		return FormulaCell(raw, pre), nil
	case len(trimmed) >= 2 && trimmed[0] == '"' && trimmed[len(trimmed)-1] == '"':
		return TextCell(unquote(trimmed[1 : len(trimmed)-1])), nil
	case strings.EqualFold(trimmed, "TRUE"):
		return BoolCell(true), nil
	case strings.EqualFold(trimmed, "FALSE"):
		return BoolCell(false), nil
	}
	if f, ok := parseNumber(trimmed); ok {
		return NumberCell(f), nil
	}
	return TextCell(input), nil
}

func parseNumber(s string) (float64, bool) {
	if !isDigit(s[0]) && s[0] != '-' && s[0] != '+' && s[0] != '.' {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// unquote undoes the \", \\ and \n escapes of a quoted text literal.
func unquote(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\':
				i++
			case 'n':
				i++
				b.WriteByte('\n')
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// quote wraps s in double quotes, escaping backslashes, quotes and newlines.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// needsQuote reports whether s would not come back as the same text when
// re-read through ParseInput.
func needsQuote(s string) bool {
	if strings.TrimSpace(s) != s || strings.ContainsAny(s, "\n\r") {
		return true
	}
	c, err := ParseInput(s, CellRef{})
	return err != nil || c.Kind != CellText || c.Text != s
}
