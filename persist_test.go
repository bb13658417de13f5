package gridline

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `# Gridline Spreadsheet
A1: 10
B1: "42"
C1: hello world
A2: 20
B2: TRUE
C2: =VEC(A1:A2)
A3: =SUM(A1:A2)
`

func TestReadLines(t *testing.T) {
	entries, err := ReadLines(strings.NewReader(sampleDocument))
	require.NoError(t, err)
	require.Len(t, entries, 7)
	assert.Equal(t, Entry{Ref: ref("A1"), Cell: NumberCell(10)}, entries[0])
	assert.Equal(t, TextCell("42"), entries[1].Cell)
	assert.Equal(t, TextCell("hello world"), entries[2].Cell)
	assert.Equal(t, BoolCell(true), entries[4].Cell)
	assert.Equal(t, CellFormula, entries[6].Cell.Kind)
	assert.Equal(t, ref("A3"), entries[6].Ref)
}

func TestReadLines_Errors(t *testing.T) {
	cases := map[string]string{
		"missing separator": "A1 10\n",
		"bad address":       "1A: 10\n",
		"bad formula":       "A1: =SUM(A1:\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadLines(strings.NewReader("# header\n\n" + input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "line 3")
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	doc := newTestDocument(t)
	require.NoError(t, doc.Load(strings.NewReader(sampleDocument)))
	assert.Equal(t, Number(30), doc.Value(ref("A3")))
	assert.Equal(t, "20", doc.Display(ref("C3")))
	assert.False(t, doc.CanUndo())

	var buf bytes.Buffer
	require.NoError(t, doc.Save(&buf))
	assert.Equal(t, sampleDocument, buf.String())

	reloaded := newTestDocument(t)
	require.NoError(t, reloaded.Load(&buf))
	assert.Equal(t, doc.snapshot(), reloaded.snapshot())
}

func TestSave_QuotesAmbiguousText(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", `"=not a formula"`, "A2", `"12"`, "A3", `"true"`, "A4", "plain")

	var buf bytes.Buffer
	require.NoError(t, doc.Save(&buf))

	reloaded := newTestDocument(t)
	require.NoError(t, reloaded.Load(&buf))
	assert.Equal(t, Text("=not a formula"), reloaded.Value(ref("A1")))
	assert.Equal(t, Text("12"), reloaded.Value(ref("A2")))
	assert.Equal(t, Text("true"), reloaded.Value(ref("A3")))
	assert.Equal(t, Text("plain"), reloaded.Value(ref("A4")))
}

func TestLoad_MarksCycles(t *testing.T) {
	doc := newTestDocument(t)
	require.NoError(t, doc.Load(strings.NewReader("A1: =B1 + 1\nB1: =A1 + 1\nC1: =A1 * 2\nD1: 5\n")))

	assert.Equal(t, Number(5), doc.Value(ref("D1")))
	assert.Equal(t, "#CYCLE!", doc.Display(ref("B1")))
	var cycleErr *CycleError
	assert.ErrorAs(t, doc.Cell(ref("B1")).Formula.Err, &cycleErr)
	assert.Error(t, doc.Cell(ref("A1")).Formula.Err, "reads a circular cell")

	require.NoError(t, doc.SetCell(ref("B1"), "1"))
	assert.Equal(t, Number(2), doc.Value(ref("A1")))
	assert.Equal(t, Number(4), doc.Value(ref("C1")))
}

func TestLoad_ReplacesContent(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "Z9", "old")
	require.NoError(t, doc.Load(strings.NewReader("A1: 1\n")))
	assert.True(t, doc.Cell(ref("Z9")).IsEmpty())
	assert.Equal(t, []CellRef{ref("A1")}, doc.Refs())
}

func TestSaveFileLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.grd")
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "2", "A2", "=A1 ^ 10")
	require.NoError(t, doc.SaveFile(path))

	loaded := newTestDocument(t)
	require.NoError(t, loaded.LoadFile(path))
	assert.Equal(t, Number(1024), loaded.Value(ref("A2")))

	assert.Error(t, loaded.LoadFile(filepath.Join(t.TempDir(), "missing.grd")))
}

func TestLoad_ReaderBeforeSpillOrigin(t *testing.T) {
	doc := newTestDocument(t)
	require.NoError(t, doc.Load(strings.NewReader("A5: =VEC(1, 2, 3)\nB1: =A6 * 10\n")))
	assert.Equal(t, Number(20), doc.Value(ref("B1")))

	var buf bytes.Buffer
	require.NoError(t, doc.Save(&buf))
	reloaded := newTestDocument(t)
	require.NoError(t, reloaded.Load(&buf))
	assert.Equal(t, Number(20), reloaded.Value(ref("B1")))
	assert.Equal(t, doc.snapshot(), reloaded.snapshot())
}
