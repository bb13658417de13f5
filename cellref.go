package gridline

import (
	"fmt"
	"strconv"
	"strings"
)

// maxColumnLetters bounds column names so NameToCol cannot overflow.
const maxColumnLetters = 7

// CellRef is a zero-based (row, column) cell address.
type CellRef struct {
	Row int // 0-based row index
	Col int // 0-based column index
}

// NewCellRef creates a CellRef from zero-based row and column.
func NewCellRef(row, col int) CellRef {
	return CellRef{Row: row, Col: col}
}

// ParseCellRef parses a cell reference string like "A1" or "$B$5".
func ParseCellRef(s string) (CellRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CellRef{}, fmt.Errorf("empty cell reference")
	}
	name := strings.ReplaceAll(s, "$", "")
	col, row, err := parseCellName(name)
	if err != nil {
		return CellRef{}, fmt.Errorf("invalid cell reference %q: %w", s, err)
	}
	return CellRef{Row: row, Col: col}, nil
}

// MustParseCellRef is like ParseCellRef but panics on error.
func MustParseCellRef(s string) CellRef {
	ref, err := ParseCellRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// parseCellName parses "A1" into col=0, row=0.
func parseCellName(name string) (col, row int, err error) {
	i := 0
	for i < len(name) && isAlpha(name[i]) {
		i++
	}
	if i == 0 || i == len(name) {
		return 0, 0, fmt.Errorf("invalid cell name: %q", name)
	}
	if i > maxColumnLetters {
		return 0, 0, fmt.Errorf("column out of range in cell name: %q", name)
	}

	col, err = NameToCol(name[:i])
	if err != nil {
		return 0, 0, err
	}

	rowStr := name[i:]
	for j := 0; j < len(rowStr); j++ {
		if rowStr[j] < '0' || rowStr[j] > '9' {
			return 0, 0, fmt.Errorf("invalid row in cell name: %q", name)
		}
	}
	rowNum, err := strconv.Atoi(rowStr)
	if err != nil || rowNum < 1 {
		return 0, 0, fmt.Errorf("invalid row number in cell name: %q", name)
	}
	return col, rowNum - 1, nil
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// String formats the CellRef as "A1".
func (c CellRef) String() string {
	return ColToName(c.Col) + strconv.Itoa(c.Row+1)
}

// Less orders references by row, then column.
func (c CellRef) Less(o CellRef) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

// Compare returns -1, 0 or +1 following Less.
func (c CellRef) Compare(o CellRef) int {
	switch {
	case c.Less(o):
		return -1
	case o.Less(c):
		return 1
	}
	return 0
}

// Offset returns the reference moved by dr rows and dc columns.
func (c CellRef) Offset(dr, dc int) CellRef {
	return CellRef{Row: c.Row + dr, Col: c.Col + dc}
}

// Valid reports whether both coordinates are non-negative.
func (c CellRef) Valid() bool {
	return c.Row >= 0 && c.Col >= 0
}

// ColToName converts a 0-based column index to a column name.
// 0→"A", 25→"Z", 26→"AA", 702→"AAA"
func ColToName(col int) string {
	var buf [maxColumnLetters + 1]byte
	i := len(buf)
	col++
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}

// NameToCol converts a column name to a 0-based column index.
// "A"→0, "Z"→25, "AA"→26
func NameToCol(name string) (int, error) {
	name = strings.ToUpper(name)
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	col := 0
	for _, ch := range name {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column name: %q", name)
		}
		col = col*26 + int(ch-'A') + 1
	}
	return col - 1, nil
}

// RangeRef is a rectangular range given by two corners in the order written.
// A3:A1 keeps Start=A3, End=A1 so direction-sensitive readers can honor it.
type RangeRef struct {
	Start CellRef
	End   CellRef
}

// NewRangeRef creates a RangeRef from two corners.
func NewRangeRef(start, end CellRef) RangeRef {
	return RangeRef{Start: start, End: end}
}

// ParseRangeRef parses a range string like "A1:C5".
func ParseRangeRef(s string) (RangeRef, error) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return RangeRef{}, fmt.Errorf("invalid range reference (missing ':'): %q", s)
	}
	start, err := ParseCellRef(parts[0])
	if err != nil {
		return RangeRef{}, fmt.Errorf("invalid range reference %q: %w", s, err)
	}
	end, err := ParseCellRef(parts[1])
	if err != nil {
		return RangeRef{}, fmt.Errorf("invalid range reference %q: %w", s, err)
	}
	return RangeRef{Start: start, End: end}, nil
}

// String formats the range as "A1:C5".
func (r RangeRef) String() string {
	return r.Start.String() + ":" + r.End.String()
}

// Normalized returns the range with Start at the top-left corner.
func (r RangeRef) Normalized() RangeRef {
	return RangeRef{
		Start: CellRef{Row: min(r.Start.Row, r.End.Row), Col: min(r.Start.Col, r.End.Col)},
		End:   CellRef{Row: max(r.Start.Row, r.End.Row), Col: max(r.Start.Col, r.End.Col)},
	}
}

// Contains returns true if ref lies inside the range.
func (r RangeRef) Contains(ref CellRef) bool {
	n := r.Normalized()
	return ref.Row >= n.Start.Row && ref.Row <= n.End.Row &&
		ref.Col >= n.Start.Col && ref.Col <= n.End.Col
}

// Size returns the number of cells covered by the range.
func (r RangeRef) Size() int {
	n := r.Normalized()
	return (n.End.Row - n.Start.Row + 1) * (n.End.Col - n.Start.Col + 1)
}

// Cells lists the range's cells in written order: rows step from Start.Row
// toward End.Row, and within a row columns step from Start.Col toward End.Col.
func (r RangeRef) Cells() []CellRef {
	dr, dc := step(r.Start.Row, r.End.Row), step(r.Start.Col, r.End.Col)
	cells := make([]CellRef, 0, r.Size())
	for row := r.Start.Row; ; row += dr {
		for col := r.Start.Col; ; col += dc {
			cells = append(cells, CellRef{Row: row, Col: col})
			if col == r.End.Col {
				break
			}
		}
		if row == r.End.Row {
			break
		}
	}
	return cells
}

func step(from, to int) int {
	if to < from {
		return -1
	}
	return 1
}
