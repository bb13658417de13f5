package gridline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edgesOf(t *testing.T, formula string) Edges {
	t.Helper()
	pre, err := Preprocess(formula)
	require.NoError(t, err)
	e, err := ExtractEdges(pre)
	require.NoError(t, err)
	return e
}

func TestDependencyGraph_DependentsInOrder(t *testing.T) {
	g := NewDependencyGraph()
	g.SetEdges(ref("B1"), edgesOf(t, "A1 * 2"))
	g.SetEdges(ref("C1"), edgesOf(t, "B1 + A1"))
	g.SetEdges(ref("A2"), edgesOf(t, "SUM(A1:C1)"))

	assert.Equal(t, []CellRef{ref("B1"), ref("C1"), ref("A2")}, g.DependentsOf(ref("A1")))
	assert.Equal(t, []CellRef{ref("C1"), ref("A2")}, g.DependentsOf(ref("B1")))
	assert.Empty(t, g.DependentsOf(ref("A2")))
	assert.True(t, g.DependsOn(ref("A2"), ref("A1")))
	assert.False(t, g.DependsOn(ref("A1"), ref("A2")))
}

func TestDependencyGraph_RangeObservers(t *testing.T) {
	g := NewDependencyGraph()
	g.SetEdges(ref("B1"), edgesOf(t, "SUM(A1:A1000)"))

	assert.Equal(t, []CellRef{ref("B1")}, g.DependentsOf(ref("A500")))
	assert.Empty(t, g.DependentsOf(ref("A1001")))
}

func TestDependencyGraph_ReplaceAndRemoveEdges(t *testing.T) {
	g := NewDependencyGraph()
	g.SetEdges(ref("B1"), edgesOf(t, "A1"))
	g.SetEdges(ref("B1"), edgesOf(t, "A2"))

	assert.Empty(t, g.DependentsOf(ref("A1")))
	assert.Equal(t, []CellRef{ref("B1")}, g.DependentsOf(ref("A2")))

	g.RemoveEdges(ref("B1"))
	assert.Empty(t, g.DependentsOf(ref("A2")))
	assert.True(t, g.Precedents(ref("B1")).IsZero())
}

func TestDependencyGraph_FindCycle(t *testing.T) {
	g := NewDependencyGraph()
	g.SetEdges(ref("B1"), edgesOf(t, "A1"))
	g.SetEdges(ref("C1"), edgesOf(t, "B1"))

	via, cyclic := g.FindCycle(ref("A1"), edgesOf(t, "C1 + 1"))
	assert.True(t, cyclic)
	assert.Equal(t, ref("C1"), via)

	via, cyclic = g.FindCycle(ref("D1"), edgesOf(t, "D1"))
	assert.True(t, cyclic)
	assert.Equal(t, ref("D1"), via)

	assert.True(t, g.WouldCycle(ref("A1"), edgesOf(t, "SUM(A2:D2) + SUM(C1:C5)")))
	assert.False(t, g.WouldCycle(ref("A1"), edgesOf(t, "D1 + 1")))
}

func TestDependencyGraph_SpillChildrenDependOnOwner(t *testing.T) {
	g := NewDependencyGraph()
	g.SetEdges(ref("B1"), edgesOf(t, "A2 * 10"))
	g.SetSpill(ref("A1"), []CellRef{ref("A2"), ref("A3")})

	owner, ok := g.SpillOwner(ref("A3"))
	require.True(t, ok)
	assert.Equal(t, ref("A1"), owner)
	assert.Equal(t, []CellRef{ref("A2"), ref("B1"), ref("A3")}, g.DependentsOf(ref("A1")))

	g.SetSpill(ref("A1"), nil)
	_, ok = g.SpillOwner(ref("A3"))
	assert.False(t, ok)
	assert.Empty(t, g.DependentsOf(ref("A1")))
}

func TestDependencyGraph_OrderTieBreak(t *testing.T) {
	g := NewDependencyGraph()
	g.SetEdges(ref("A3"), edgesOf(t, "B5"))
	cells := []CellRef{ref("C1"), ref("B5"), ref("A3"), ref("A2")}
	assert.Equal(t, []CellRef{ref("C1"), ref("A2"), ref("B5"), ref("A3")}, g.Order(cells))
}
