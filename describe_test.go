package gridline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe_FormulaTree(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "10", "A2", "20", "A3", "=SUM(A1:A2)", "B1", "=A3 * 2")

	want := "B1: =A3 * 2 -> 60\n" +
		"  A3: =SUM(A1:A2) -> 30\n" +
		"    A1:A2 range (2x1)\n" +
		"      A1: 10\n" +
		"      A2: 20\n"
	assert.Equal(t, want, doc.Describe(ref("B1")))
}

func TestDescribe_Literals(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "hello")
	assert.Equal(t, "A1: hello\n", doc.Describe(ref("A1")))
	assert.Equal(t, "Z9: empty\n", doc.Describe(ref("Z9")))
}

func TestDescribe_SpillChild(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "C1", "=VEC(A1:A2)")

	out := doc.Describe(ref("C2"))
	assert.Contains(t, out, "C2: 2 (spilled from C1)\n")
	assert.Contains(t, out, "  C1: =VEC(A1:A2) -> 1 (spills to C2)\n")
}

func TestDescribe_SharedPrecedentShownOnce(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "2", "B1", "=A1 * 2", "C1", "=B1 + 1", "D1", "=B1 + C1")

	out := doc.Describe(ref("D1"))
	assert.Contains(t, out, "  B1: =A1 * 2 -> 4\n")
	assert.Contains(t, out, "(see above)")
}
