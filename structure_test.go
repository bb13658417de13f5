package gridline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRow_MovesCellsAndReferences(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "A3", "=A1 + A2")
	before := doc.snapshot()

	require.NoError(t, doc.InsertRow(1))
	assert.True(t, doc.Cell(ref("A2")).IsEmpty())
	assert.Equal(t, Number(2), doc.Value(ref("A3")))
	assert.Equal(t, "=A1 + A3", doc.Cell(ref("A4")).Input())
	assert.Equal(t, Number(3), doc.Value(ref("A4")))

	require.NoError(t, doc.SetCell(ref("A2"), "100"))
	assert.Equal(t, Number(3), doc.Value(ref("A4")), "new row is not referenced")

	require.NoError(t, doc.Undo())
	require.NoError(t, doc.Undo())
	assert.Equal(t, before, doc.snapshot())
}

func TestDeleteRow_BreaksLostReferences(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "A3", "=A1 + A2", "A4", "=A1 * 5")
	before := doc.snapshot()

	require.NoError(t, doc.DeleteRow(1))
	lost := doc.Cell(ref("A2"))
	assert.Equal(t, CellText, lost.Kind)
	assert.Equal(t, "=A1 + #REF!", lost.Text)
	assert.Equal(t, "=A1 * 5", doc.Cell(ref("A3")).Input())
	assert.Equal(t, Number(5), doc.Value(ref("A3")))
	assert.True(t, doc.Cell(ref("A4")).IsEmpty())

	require.NoError(t, doc.Undo())
	assert.Equal(t, before, doc.snapshot())
	assert.Equal(t, Number(3), doc.Value(ref("A3")))
}

func TestInsertAndDeleteColumn(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "B1", "2", "C1", "3", "E2", "=SUM(A1:C1)")

	require.NoError(t, doc.InsertColumn(1))
	assert.Equal(t, "=SUM(A1:D1)", doc.Cell(ref("F2")).Input())
	assert.Equal(t, Number(6), doc.Value(ref("F2")))

	require.NoError(t, doc.DeleteColumn(1))
	require.NoError(t, doc.DeleteColumn(1))
	assert.Equal(t, "=SUM(A1:B1)", doc.Cell(ref("D2")).Input())
	assert.Equal(t, Number(4), doc.Value(ref("D2")))
}

func TestInsertRow_RespillsArrays(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "A3", "3", "B1", "=VEC(A1:A3)")

	require.NoError(t, doc.InsertRow(0))
	assert.Equal(t, "=VEC(A2:A4)", doc.Cell(ref("B2")).Input())
	assert.Equal(t, []string{"1", "2", "3"}, displays(doc, "B2", "B3", "B4"))
	owner, ok := doc.SpillOwner(ref("B4"))
	require.True(t, ok)
	assert.Equal(t, ref("B2"), owner)
	assert.True(t, doc.Cell(ref("B1")).IsEmpty())
}

func TestShift_NegativeIndex(t *testing.T) {
	doc := newTestDocument(t)
	assert.Error(t, doc.InsertRow(-1))
	assert.False(t, doc.CanUndo())
}

func TestCopyPaste_RelativeReferences(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "B1", "=A1 * 10", "B2", "=A2 * 10")

	clip := doc.Copy(NewRangeRef(ref("B1"), ref("B2")))
	assert.Equal(t, 2, clip.Rows)
	assert.Equal(t, 1, clip.Cols)
	assert.Nil(t, clip.Cells[CellRef{}].Formula.Cached)

	require.NoError(t, doc.Paste(ref("C1"), clip))
	assert.Equal(t, "=B1 * 10", doc.Cell(ref("C1")).Input())
	assert.Equal(t, Number(100), doc.Value(ref("C1")))
	assert.Equal(t, Number(200), doc.Value(ref("C2")))

	require.NoError(t, doc.Undo())
	assert.True(t, doc.Cell(ref("C1")).IsEmpty())
	assert.True(t, doc.Cell(ref("C2")).IsEmpty())
}

func TestCopyPaste_OffSheetBecomesRef(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "B2", "=A1 + 1")

	require.NoError(t, doc.Paste(ref("B1"), doc.Copy(NewRangeRef(ref("B2"), ref("B2")))))
	c := doc.Cell(ref("B1"))
	assert.Equal(t, CellText, c.Kind)
	assert.Equal(t, "=#REF! + 1", c.Text)
}

func TestCopyPaste_ClearsTargetAndSkipsSpillChildren(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "B1", "=VEC(A1:A2)", "D2", "old")

	clip := doc.Copy(NewRangeRef(ref("B1"), ref("B2")))
	assert.Len(t, clip.Cells, 1)

	require.NoError(t, doc.Paste(ref("D1"), clip))
	assert.Equal(t, "=VEC(C1:C2)", doc.Cell(ref("D1")).Input())
	c := doc.Cell(ref("D2"))
	assert.Equal(t, CellSpillChild, c.Kind, "old content cleared, then spilled over")
	assert.Equal(t, ref("D1"), c.Owner)
}

func TestCopyPaste_OntoSpillChildFails(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "B1", "=VEC(A1:A2)", "C1", "x")
	before := doc.snapshot()

	err := doc.Paste(ref("B2"), doc.Copy(NewRangeRef(ref("C1"), ref("C1"))))
	assert.ErrorIs(t, err, ErrSpillChildLocked)
	assert.Equal(t, before, doc.snapshot())
}

func TestInsertRow_ReaderBeforeSpillOrigin(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A5", "=VEC(1, 2, 3)", "B1", "=A6 * 10")
	require.Equal(t, Number(20), doc.Value(ref("B1")))

	require.NoError(t, doc.InsertRow(1))
	assert.Equal(t, "=A7 * 10", doc.Cell(ref("B1")).Input())
	assert.Equal(t, Number(20), doc.Value(ref("B1")))

	require.NoError(t, doc.Undo())
	assert.Equal(t, "=A6 * 10", doc.Cell(ref("B1")).Input())
	assert.Equal(t, Number(20), doc.Value(ref("B1")))

	require.NoError(t, doc.Redo())
	assert.Equal(t, Number(20), doc.Value(ref("B1")))
}
