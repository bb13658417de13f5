package gridline

import (
	"fmt"
	"strings"
)

// Describe returns a human-readable tree showing what the cell at ref
// contains, its current value, and everything it reads, recursively.
// Useful for debugging formulas.
func (d *Document) Describe(ref CellRef) string {
	defer d.rlock()()

	var b strings.Builder
	d.sh.describeCell(&b, ref, 0, make(map[CellRef]bool))
	return b.String()
}

// describeCell writes one line for ref and recurses into its precedents.
// Cells already written are marked "(see above)".
func (s *sheet) describeCell(b *strings.Builder, ref CellRef, indent int, seen map[CellRef]bool) {
	prefix := strings.Repeat("  ", indent)
	c := s.store.Get(ref)
	v := s.store.Display(ref)

	switch c.Kind {
	case CellEmpty:
		fmt.Fprintf(b, "%s%s: empty\n", prefix, ref)
		return
	case CellSpillChild:
		fmt.Fprintf(b, "%s%s: %s (spilled from %s)\n", prefix, ref, v, c.Owner)
	case CellFormula:
		fmt.Fprintf(b, "%s%s: %s -> %s%s\n", prefix, ref, c.Input(), v, spillNote(s.store, ref))
	default:
		fmt.Fprintf(b, "%s%s: %s\n", prefix, ref, c.Input())
		return
	}

	if seen[ref] {
		fmt.Fprintf(b, "%s  (see above)\n", prefix)
		return
	}
	seen[ref] = true

	if c.Kind == CellSpillChild {
		s.describeCell(b, c.Owner, indent+1, seen)
		return
	}
	e := s.graph.Precedents(ref)
	for _, p := range e.Cells {
		s.describeCell(b, p, indent+1, seen)
	}
	for _, r := range e.Ranges {
		n := r.Normalized()
		fmt.Fprintf(b, "%s  %s range (%dx%d)\n", prefix, r,
			n.End.Row-n.Start.Row+1, n.End.Col-n.Start.Col+1)
		for _, ref := range s.store.Refs() {
			if n.Contains(ref) {
				s.describeCell(b, ref, indent+2, seen)
			}
		}
	}
}

func spillNote(store *CellStore, ref CellRef) string {
	n := store.SpillExtent(ref)
	if n == 0 {
		return ""
	}
	return fmt.Sprintf(" (spills to %s)", ref.Offset(n, 0))
}
