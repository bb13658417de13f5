package gridline

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
)

// sheet owns the mutable state of a document. Every write goes through
// writeCell, writeSpillExtent or writeShift, which keep the dependency graph
// in step with the store and record the change in the open undo action.
type sheet struct {
	store  *CellStore
	graph  *DependencyGraph
	log    *UndoLog
	eval   Evaluator
	logger *slog.Logger
}

func newSheet(eval Evaluator, maxUndo int, logger *slog.Logger) *sheet {
	return &sheet{
		store:  NewCellStore(),
		graph:  NewDependencyGraph(),
		log:    NewUndoLog(maxUndo),
		eval:   eval,
		logger: logger,
	}
}

func (s *sheet) writeCell(ref CellRef, c Cell) {
	before := s.store.Get(ref)
	s.putCell(ref, c)
	s.log.Record(primitive{kind: opCell, ref: ref, before: before, after: c})
}

func (s *sheet) writeSpillExtent(owner CellRef, n int) {
	before := s.store.SpillExtent(owner)
	if before == n {
		return
	}
	s.putSpillExtent(owner, n)
	s.log.Record(primitive{kind: opSpill, ref: owner, extentBefore: before, extentAfter: n})
}

func (s *sheet) writeShift(sh Shift) {
	removed := s.store.shift(sh)
	s.rebuildGraph()
	s.log.Record(primitive{kind: opShift, shift: sh, removed: removed})
}

// putCell stores c and refreshes ref's outgoing edges.
func (s *sheet) putCell(ref CellRef, c Cell) {
	s.store.Set(ref, c)
	s.graph.RemoveEdges(ref)
	s.graph.ClearBlocked(ref)
	index(s.graph, ref, c)
}

// index adds the graph entries c needs at ref: formula edges unless the
// formula is marked circular, and the region of a blocked spill.
func index(g *DependencyGraph, ref CellRef, c Cell) {
	if c.Kind != CellFormula || isCycle(c.Formula.Err) {
		return
	}
	_ = g.SetFormulaEdges(ref, c.Formula.Preprocessed)
	var spillErr *SpillError
	if errors.As(c.Formula.Err, &spillErr) && spillErr.Want > 0 {
		g.SetBlocked(ref, RangeRef{Start: ref.Offset(1, 0), End: ref.Offset(spillErr.Want, 0)})
	}
}

func (s *sheet) putSpillExtent(owner CellRef, n int) {
	s.store.setSpillExtent(owner, n)
	s.graph.SetSpill(owner, spillCells(owner, n))
}

func (s *sheet) putShift(sh Shift, removed map[CellRef]Cell, inverse bool) {
	if !inverse {
		s.store.shift(sh)
	} else {
		s.store.shift(Shift{Axis: sh.Axis, At: sh.At, Delete: !sh.Delete})
		for ref, c := range removed {
			s.store.Set(ref, c)
		}
	}
	s.rebuildGraph()
}

// rebuildGraph derives the dependency graph from the store from scratch.
func (s *sheet) rebuildGraph() {
	g := NewDependencyGraph()
	for _, ref := range s.store.Refs() {
		index(g, ref, s.store.Get(ref))
	}
	for _, owner := range s.store.spillOwners() {
		g.SetSpill(owner, spillCells(owner, s.store.SpillExtent(owner)))
	}
	s.graph = g
}

// formulas lists every formula cell in (row, col) order.
func (s *sheet) formulas() []CellRef {
	var out []CellRef
	for _, ref := range s.store.Refs() {
		if s.store.Get(ref).Kind == CellFormula {
			out = append(out, ref)
		}
	}
	return out
}

// setSpill reconciles owner's spill children with n and returns the cells
// newly taken over and the cells released.
func (s *sheet) setSpill(owner CellRef, n int) (grown, freed []CellRef) {
	old := s.store.SpillExtent(owner)
	for i := n + 1; i <= old; i++ {
		ref := owner.Offset(i, 0)
		if c := s.store.Get(ref); c.Kind == CellSpillChild && c.Owner == owner {
			s.writeCell(ref, Cell{})
			freed = append(freed, ref)
		}
	}
	for i := 1; i <= n; i++ {
		ref := owner.Offset(i, 0)
		if c := s.store.Get(ref); c.Kind != CellSpillChild || c.Owner != owner {
			s.writeCell(ref, spillChild(owner))
			grown = append(grown, ref)
		}
	}
	s.writeSpillExtent(owner, n)
	return grown, freed
}

// releaseAllSpills clears every spill and returns the released cells.
func (s *sheet) releaseAllSpills() []CellRef {
	var freed []CellRef
	for _, owner := range s.store.spillOwners() {
		_, f := s.setSpill(owner, 0)
		freed = append(freed, f...)
	}
	return freed
}

// snapshot captures the store and graph for equality checks.
func (s *sheet) snapshot() sheetSnapshot {
	return sheetSnapshot{
		Cells:  maps.Clone(s.store.cells),
		Spills: maps.Clone(s.store.spills),
		Graph:  s.graph.Snapshot(),
	}
}

type sheetSnapshot struct {
	Cells  map[CellRef]Cell
	Spills map[CellRef]int
	Graph  GraphSnapshot
}

func spillCells(owner CellRef, n int) []CellRef {
	if n <= 0 {
		return nil
	}
	out := make([]CellRef, n)
	for i := range out {
		out[i] = owner.Offset(i+1, 0)
	}
	return out
}

func isCycle(err error) bool {
	_, ok := err.(*CycleError)
	return ok
}

// sortedRefs returns the keys of set in (row, col) order.
func sortedRefs(set map[CellRef]struct{}) []CellRef {
	refs := slices.Collect(maps.Keys(set))
	slices.SortFunc(refs, CellRef.Compare)
	return refs
}
