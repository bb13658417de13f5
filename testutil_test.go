package gridline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// ref is shorthand for MustParseCellRef in tests.
func ref(s string) CellRef { return MustParseCellRef(s) }

func newTestDocument(t *testing.T, opts ...Option) *Document {
	t.Helper()
	doc, err := NewDocument(opts...)
	require.NoError(t, err)
	return doc
}

// setCells applies "A1", "input" pairs in order and fails the test on error.
func setCells(t *testing.T, doc *Document, pairs ...string) {
	t.Helper()
	require.Zero(t, len(pairs)%2, "setCells needs ref/input pairs")
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, doc.SetCell(ref(pairs[i]), pairs[i+1]), "set %s", pairs[i])
	}
}

// gridView is a map-backed GridView for evaluator tests.
type gridView map[CellRef]Value

func (g gridView) Cell(r CellRef) Value { return g[r] }
