package gridline

import "strings"

// refError is written in place of a reference that no longer points anywhere.
const refError = "#REF!"

// Axis selects rows or columns for structural edits.
type Axis uint8

const (
	AxisRow Axis = iota
	AxisCol
)

func (a Axis) String() string {
	if a == AxisCol {
		return "column"
	}
	return "row"
}

// coord returns ref's coordinate along a.
func (a Axis) coord(ref CellRef) int {
	if a == AxisCol {
		return ref.Col
	}
	return ref.Row
}

// with returns ref with its coordinate along a replaced by n.
func (a Axis) with(ref CellRef, n int) CellRef {
	if a == AxisCol {
		ref.Col = n
	} else {
		ref.Row = n
	}
	return ref
}

// Shift describes a row or column insert or delete at index At.
type Shift struct {
	Axis   Axis
	At     int
	Delete bool
}

// Apply moves ref the way the structural edit moves cells. It returns false
// when ref lies on a deleted row or column.
func (s Shift) Apply(ref CellRef) (CellRef, bool) {
	n := s.Axis.coord(ref)
	switch {
	case n < s.At:
		return ref, true
	case s.Delete && n == s.At:
		return ref, false
	case s.Delete:
		return s.Axis.with(ref, n-1), true
	}
	return s.Axis.with(ref, n+1), true
}

// ShiftReferences rewrites every reference in a raw formula body as if the
// structural edit s had been applied to the sheet. References to a deleted row
// or column, and ranges with such a corner, become #REF!. The second result
// reports whether any #REF! was produced.
func ShiftReferences(raw string, s Shift) (string, bool, error) {
	return rewriteRefs(raw, s.Apply)
}

// OffsetReferences moves every reference in a raw formula body by dr rows and
// dc columns, as when a formula is copied to another cell. References that
// would leave the sheet become #REF!.
func OffsetReferences(raw string, dr, dc int) (string, bool, error) {
	return rewriteRefs(raw, func(ref CellRef) (CellRef, bool) {
		moved := ref.Offset(dr, dc)
		return moved, moved.Valid()
	})
}

func rewriteRefs(raw string, move func(CellRef) (CellRef, bool)) (string, bool, error) {
	toks, err := lexFormula(raw)
	if err != nil {
		return "", false, err
	}
	var (
		b      strings.Builder
		broken bool
	)
	isRef := func(i int) bool {
		if i < 0 || i >= len(toks) || toks[i].kind != tokIdent || !looksLikeRef(toks[i].text) {
			return false
		}
		if j := nextSolid(toks, i); j >= 0 && toks[j].is("(") {
			return false
		}
		if j := prevSolid(toks, i); j >= 0 && (toks[j].is(".") || toks[j].is("?.")) {
			return false
		}
		return true
	}
	name := func(text string) (string, bool) {
		ref, err := ParseCellRef(text)
		if err != nil {
			return text, true
		}
		moved, ok := move(ref)
		if !ok {
			return refError, false
		}
		return moved.String(), true
	}

	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		switch {
		case tok.kind == tokTypedRef:
			n, ok := name(tok.text[1:])
			if !ok {
				broken = true
				b.WriteString(refError)
				continue
			}
			b.WriteString("@" + n)
		case isRef(i):
			c := nextSolid(toks, i)
			if c >= 0 && toks[c].is(":") && isRef(nextSolid(toks, c)) {
				e := nextSolid(toks, c)
				start, ok1 := name(tok.text)
				end, ok2 := name(toks[e].text)
				if !ok1 || !ok2 {
					broken = true
					b.WriteString(refError)
				} else {
					b.WriteString(start + raw[tok.end():toks[e].start] + end)
				}
				i = e
				continue
			}
			n, ok := name(tok.text)
			broken = broken || !ok
			b.WriteString(n)
		default:
			b.WriteString(tok.text)
		}
	}
	return b.String(), broken, nil
}

func nextSolid(toks []token, i int) int {
	for j := i + 1; j < len(toks); j++ {
		if toks[j].kind != tokSpace {
			return j
		}
	}
	return -1
}

func prevSolid(toks []token, i int) int {
	for j := i - 1; j >= 0; j-- {
		if toks[j].kind != tokSpace {
			return j
		}
	}
	return -1
}
