package gridline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- CellRef Tests ---

func TestParseCellRef_SimpleCell(t *testing.T) {
	r, err := ParseCellRef("A1")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Row)
	assert.Equal(t, 0, r.Col)
}

func TestParseCellRef_AbsoluteRef(t *testing.T) {
	r, err := ParseCellRef("$B$5")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Row) // 0-based
	assert.Equal(t, 1, r.Col)
}

func TestParseCellRef_LowerCase(t *testing.T) {
	r, err := ParseCellRef("aa10")
	require.NoError(t, err)
	assert.Equal(t, CellRef{Row: 9, Col: 26}, r)
}

func TestParseCellRef_Invalid(t *testing.T) {
	for _, s := range []string{"", "A", "123", "A0", "A-1", "1A", "ABCDEFGH1", "A1B"} {
		_, err := ParseCellRef(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestCellRef_String(t *testing.T) {
	assert.Equal(t, "A1", CellRef{}.String())
	assert.Equal(t, "Z3", NewCellRef(2, 25).String())
	assert.Equal(t, "AA100", NewCellRef(99, 26).String())
}

func TestCellRef_Compare(t *testing.T) {
	assert.True(t, ref("B1").Less(ref("A2")), "row comes first")
	assert.True(t, ref("A1").Less(ref("B1")))
	assert.Equal(t, 0, ref("C3").Compare(ref("C3")))
	assert.Equal(t, 1, ref("A2").Compare(ref("Z1")))
}

func TestCellRef_Offset(t *testing.T) {
	assert.Equal(t, ref("C4"), ref("B2").Offset(2, 1))
	assert.False(t, ref("A1").Offset(-1, 0).Valid())
}

func TestColToName_RoundTrip(t *testing.T) {
	cases := map[int]string{0: "A", 25: "Z", 26: "AA", 51: "AZ", 701: "ZZ", 702: "AAA"}
	for col, name := range cases {
		assert.Equal(t, name, ColToName(col))
		got, err := NameToCol(name)
		require.NoError(t, err)
		assert.Equal(t, col, got)
	}
}

// --- RangeRef Tests ---

func TestParseRangeRef(t *testing.T) {
	r, err := ParseRangeRef("A1:C5")
	require.NoError(t, err)
	assert.Equal(t, ref("A1"), r.Start)
	assert.Equal(t, ref("C5"), r.End)
	assert.Equal(t, "A1:C5", r.String())
	assert.Equal(t, 15, r.Size())

	_, err = ParseRangeRef("A1")
	assert.Error(t, err)
}

func TestRangeRef_KeepsWrittenOrder(t *testing.T) {
	r, err := ParseRangeRef("A3:A1")
	require.NoError(t, err)
	assert.Equal(t, []CellRef{ref("A3"), ref("A2"), ref("A1")}, r.Cells())
	assert.Equal(t, "A1:A3", r.Normalized().String())
	assert.True(t, r.Contains(ref("A2")))
	assert.False(t, r.Contains(ref("B2")))
}

func TestRangeRef_CellsRowMajor(t *testing.T) {
	r := NewRangeRef(ref("A1"), ref("B2"))
	assert.Equal(t, []CellRef{ref("A1"), ref("B1"), ref("A2"), ref("B2")}, r.Cells())
}
