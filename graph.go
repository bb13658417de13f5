package gridline

import (
	"container/heap"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// Edges are the precedents one formula reads.
type Edges struct {
	Cells  []CellRef
	Ranges []RangeRef
}

// IsZero reports whether e has no precedents.
func (e Edges) IsZero() bool { return len(e.Cells) == 0 && len(e.Ranges) == 0 }

// reads reports whether e reads ref directly or through a range.
func (e Edges) reads(ref CellRef) bool {
	if slices.Contains(e.Cells, ref) {
		return true
	}
	for _, r := range e.Ranges {
		if r.Contains(ref) {
			return true
		}
	}
	return false
}

// normalize sorts and dedupes the edge lists so equal edge sets compare equal.
func (e Edges) normalize() Edges {
	cells := slices.Clone(e.Cells)
	slices.SortFunc(cells, CellRef.Compare)
	cells = slices.Compact(cells)

	var ranges []RangeRef
	for _, r := range e.Ranges {
		ranges = append(ranges, r.Normalized())
	}
	slices.SortFunc(ranges, func(a, b RangeRef) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
	ranges = slices.Compact(ranges)
	return Edges{Cells: cells, Ranges: ranges}
}

// ExtractEdges finds the cells and ranges a preprocessed formula reads by
// looking for CELL/VALUE calls and *_RANGE bound arguments. Accessor
// arguments must be integer literals; anything else is a *ParseError since
// its precedents could not be tracked.
func ExtractEdges(preprocessed string) (Edges, error) {
	toks, err := lexFormula(preprocessed)
	if err != nil {
		return Edges{}, err
	}
	var e Edges
	for i, tok := range toks {
		if tok.kind != tokIdent {
			continue
		}
		open := nextSolid(toks, i)
		if open < 0 || !toks[open].is("(") {
			continue
		}
		if p := prevSolid(toks, i); p >= 0 && (toks[p].is(".") || toks[p].is("?.")) {
			continue
		}
		slots, isRange := rangeSlots[tok.text]
		if tok.text != "CELL" && tok.text != "VALUE" && !isRange {
			continue
		}
		args, closed := splitArgs(toks, open)
		if !closed {
			return Edges{}, &ParseError{Input: preprocessed, Start: tok.start, End: len(preprocessed), Msg: "unclosed call"}
		}
		bad := func(msg string) error {
			return &ParseError{Input: preprocessed, Start: tok.start, End: toks[open].end(), Msg: msg}
		}
		if !isRange {
			if len(args) != 2 {
				return Edges{}, bad(tok.text + " takes a column and a row")
			}
			col, ok1 := intArg(args[0])
			row, ok2 := intArg(args[1])
			if !ok1 || !ok2 {
				return Edges{}, bad(tok.text + " arguments must be integer literals")
			}
			e.Cells = append(e.Cells, CellRef{Row: row, Col: col})
			continue
		}
		for _, slot := range slots {
			if slot+4 > len(args) {
				return Edges{}, bad(tok.text + " is missing range bounds")
			}
			var b [4]int
			for k := range b {
				n, ok := intArg(args[slot+k])
				if !ok {
					return Edges{}, bad(tok.text + " bounds must be integer literals")
				}
				b[k] = n
			}
			e.Ranges = append(e.Ranges, RangeRef{
				Start: CellRef{Col: b[0], Row: b[1]},
				End:   CellRef{Col: b[2], Row: b[3]},
			})
		}
	}
	return e.normalize(), nil
}

// splitArgs splits the call opened at toks[open] into its top-level arguments
// with surrounding whitespace removed.
func splitArgs(toks []token, open int) ([][]token, bool) {
	var (
		args  [][]token
		cur   []token
		depth int
	)
	for k := open; k < len(toks); k++ {
		t := toks[k]
		switch {
		case t.is("(") || t.is("[") || t.is("{"):
			depth++
			if depth == 1 {
				continue
			}
		case t.is(")") || t.is("]") || t.is("}"):
			depth--
			if depth == 0 {
				if len(cur) > 0 || len(args) > 0 {
					args = append(args, cur)
				}
				return args, true
			}
		case depth == 1 && t.is(","):
			args = append(args, cur)
			cur = nil
			continue
		}
		if t.kind != tokSpace {
			cur = append(cur, t)
		}
	}
	return nil, false
}

func intArg(arg []token) (int, bool) {
	if len(arg) != 1 || arg[0].kind != tokNumber {
		return 0, false
	}
	n, err := strconv.Atoi(arg[0].text)
	return n, err == nil && n >= 0
}

// DependencyGraph tracks which formulas read which cells. Edges point from a
// dependent formula to its precedents; reverse indexes answer "who reads this".
// Spill children are modeled as dependents of their owner.
type DependencyGraph struct {
	precedents map[CellRef]Edges
	dependents map[CellRef]map[CellRef]struct{}
	observers  map[RangeRef]map[CellRef]struct{}
	spillKids  map[CellRef][]CellRef
	spillOwner map[CellRef]CellRef
	blocked    map[CellRef]RangeRef // owner → region its blocked spill wants
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		precedents: make(map[CellRef]Edges),
		dependents: make(map[CellRef]map[CellRef]struct{}),
		observers:  make(map[RangeRef]map[CellRef]struct{}),
		spillKids:  make(map[CellRef][]CellRef),
		spillOwner: make(map[CellRef]CellRef),
		blocked:    make(map[CellRef]RangeRef),
	}
}

// SetFormulaEdges replaces ref's outgoing edges with those read by preprocessed.
func (g *DependencyGraph) SetFormulaEdges(ref CellRef, preprocessed string) error {
	e, err := ExtractEdges(preprocessed)
	if err != nil {
		return fmt.Errorf("extract edges for %s: %w", ref, err)
	}
	g.SetEdges(ref, e)
	return nil
}

// SetEdges replaces ref's outgoing edges with e.
func (g *DependencyGraph) SetEdges(ref CellRef, e Edges) {
	g.RemoveEdges(ref)
	e = e.normalize()
	if e.IsZero() {
		return
	}
	g.precedents[ref] = e
	for _, c := range e.Cells {
		addTo(g.dependents, c, ref)
	}
	for _, r := range e.Ranges {
		addTo(g.observers, r, ref)
	}
}

// RemoveEdges drops ref's outgoing edges.
func (g *DependencyGraph) RemoveEdges(ref CellRef) {
	e, ok := g.precedents[ref]
	if !ok {
		return
	}
	delete(g.precedents, ref)
	for _, c := range e.Cells {
		removeFrom(g.dependents, c, ref)
	}
	for _, r := range e.Ranges {
		removeFrom(g.observers, r, ref)
	}
}

// Precedents returns the edges recorded for ref.
func (g *DependencyGraph) Precedents(ref CellRef) Edges { return g.precedents[ref] }

// SetSpill records children as the spill cells owned by owner, replacing any
// previous set.
func (g *DependencyGraph) SetSpill(owner CellRef, children []CellRef) {
	for _, c := range g.spillKids[owner] {
		delete(g.spillOwner, c)
	}
	delete(g.spillKids, owner)
	if len(children) == 0 {
		return
	}
	g.spillKids[owner] = slices.Clone(children)
	for _, c := range children {
		g.spillOwner[c] = owner
	}
}

// SpillOwner returns the owner of a spill child.
func (g *DependencyGraph) SpillOwner(ref CellRef) (CellRef, bool) {
	o, ok := g.spillOwner[ref]
	return o, ok
}

// SetBlocked records that owner's spill over r is blocked. Blocked spills are
// not dependency edges: they only tell the scheduler to retry owner when a
// cell in r changes.
func (g *DependencyGraph) SetBlocked(owner CellRef, r RangeRef) { g.blocked[owner] = r }

// ClearBlocked forgets a blocked spill.
func (g *DependencyGraph) ClearBlocked(owner CellRef) { delete(g.blocked, owner) }

// BlockedBy returns the owners whose blocked spill region contains ref, in
// (row, col) order.
func (g *DependencyGraph) BlockedBy(ref CellRef) []CellRef {
	var out []CellRef
	for owner, r := range g.blocked {
		if r.Contains(ref) {
			out = append(out, owner)
		}
	}
	slices.SortFunc(out, CellRef.Compare)
	return out
}

// directDependents lists the cells that read ref without an intermediary.
func (g *DependencyGraph) directDependents(ref CellRef) []CellRef {
	var out []CellRef
	for d := range g.dependents[ref] {
		out = append(out, d)
	}
	for r, obs := range g.observers {
		if r.Contains(ref) {
			for d := range obs {
				out = append(out, d)
			}
		}
	}
	out = append(out, g.spillKids[ref]...)
	return out
}

// reach returns every cell transitively depending on any of roots, excluding
// the roots themselves unless they depend on each other.
func (g *DependencyGraph) reach(roots ...CellRef) map[CellRef]struct{} {
	seen := make(map[CellRef]struct{})
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range g.directDependents(cur) {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			queue = append(queue, d)
		}
	}
	return seen
}

// DependentsOf returns every cell that transitively depends on ref, ordered
// so precedents come before dependents, ties broken by (row, col).
func (g *DependencyGraph) DependentsOf(ref CellRef) []CellRef {
	set := g.reach(ref)
	delete(set, ref)
	return g.Order(slices.Collect(maps.Keys(set)))
}

// DependsOn reports whether dependent transitively reads precedent.
func (g *DependencyGraph) DependsOn(dependent, precedent CellRef) bool {
	_, ok := g.reach(precedent)[dependent]
	return ok
}

// FindCycle reports whether giving ref the edges e would close a cycle, and
// through which precedent. It does not modify the graph.
func (g *DependencyGraph) FindCycle(ref CellRef, e Edges) (CellRef, bool) {
	if e.reads(ref) {
		return ref, true
	}
	downstream := g.reach(ref)
	ordered := slices.Collect(maps.Keys(downstream))
	slices.SortFunc(ordered, CellRef.Compare)
	for _, d := range ordered {
		if e.reads(d) {
			return d, true
		}
	}
	return CellRef{}, false
}

// WouldCycle reports whether giving ref the edges e would close a cycle.
func (g *DependencyGraph) WouldCycle(ref CellRef, e Edges) bool {
	_, cyclic := g.FindCycle(ref, e)
	return cyclic
}

// Order sorts cells topologically with respect to the edges among them.
// Among cells whose precedents are all placed, the smallest (row, col) goes
// first.
func (g *DependencyGraph) Order(cells []CellRef) []CellRef {
	in := make(map[CellRef]struct{}, len(cells))
	for _, c := range cells {
		in[c] = struct{}{}
	}
	indegree := make(map[CellRef]int, len(in))
	next := make(map[CellRef][]CellRef, len(in))
	for c := range in {
		indegree[c] += 0
		for _, d := range g.directDependents(c) {
			if _, ok := in[d]; ok && d != c {
				next[c] = append(next[c], d)
				indegree[d]++
			}
		}
	}

	ready := &refHeap{}
	for c, n := range indegree {
		if n == 0 {
			heap.Push(ready, c)
		}
	}
	out := make([]CellRef, 0, len(in))
	for ready.Len() > 0 {
		c := heap.Pop(ready).(CellRef)
		out = append(out, c)
		for _, d := range next[c] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	if len(out) < len(in) {
		// Only reachable if the graph was corrupted into a cycle; keep a
		// deterministic order for what is left.
		var rest []CellRef
		for c, n := range indegree {
			if n > 0 {
				rest = append(rest, c)
			}
		}
		slices.SortFunc(rest, CellRef.Compare)
		out = append(out, rest...)
	}
	return out
}

// GraphSnapshot is a comparable copy of a graph's edges.
type GraphSnapshot struct {
	Precedents map[CellRef]Edges
	Spills     map[CellRef][]CellRef
}

// Snapshot copies the graph's edges.
func (g *DependencyGraph) Snapshot() GraphSnapshot {
	return GraphSnapshot{Precedents: maps.Clone(g.precedents), Spills: maps.Clone(g.spillKids)}
}

func addTo[K comparable](m map[K]map[CellRef]struct{}, k K, ref CellRef) {
	set, ok := m[k]
	if !ok {
		set = make(map[CellRef]struct{})
		m[k] = set
	}
	set[ref] = struct{}{}
}

func removeFrom[K comparable](m map[K]map[CellRef]struct{}, k K, ref CellRef) {
	set := m[k]
	delete(set, ref)
	if len(set) == 0 {
		delete(m, k)
	}
}

type refHeap []CellRef

func (h refHeap) Len() int           { return len(h) }
func (h refHeap) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h refHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *refHeap) Push(x any)        { *h = append(*h, x.(CellRef)) }
func (h *refHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
