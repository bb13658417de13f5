package gridline

import (
	"log/slog"
	"time"
)

// Report summarizes one recompute batch.
type Report struct {
	Evaluated []CellRef         // formulas evaluated, in evaluation order
	Errors    map[CellRef]error // formulas left with an error
	Elapsed   time.Duration
}

// storeView reads settled values straight from the store.
type storeView struct{ store *CellStore }

func (v storeView) Cell(ref CellRef) Value { return v.store.Value(ref) }

// recompute re-evaluates every formula affected by changed: the changed
// formulas themselves and everything that transitively reads a changed cell.
// Each formula is evaluated once, after its precedents.
func (s *sheet) recompute(changed []CellRef) Report {
	start := time.Now()
	report := Report{Errors: make(map[CellRef]error)}

	dirty := make(map[CellRef]struct{})
	for _, ref := range changed {
		if s.store.Get(ref).Kind == CellFormula {
			dirty[ref] = struct{}{}
		}
		for d := range s.graph.reach(ref) {
			dirty[d] = struct{}{}
		}
		s.retryBlocked(ref, dirty)
	}

	order := s.graph.Order(sortedRefs(dirty))
	done := make(map[CellRef]bool, len(order))
	evals := make(map[CellRef]int, len(order))
	// A formula is re-run when a spill evaluated after it changes what it
	// reads. Extents can only keep moving through a loop of spills feeding
	// each other, so the number of runs per formula is capped.
	maxEvals := len(order) + 1
	for i := 0; i < len(order); i++ {
		ref := order[i]
		if done[ref] {
			continue
		}
		done[ref] = true
		c := s.store.Get(ref)
		if c.Kind != CellFormula || isCycle(c.Formula.Err) {
			continue
		}
		evals[ref]++
		report.Evaluated = append(report.Evaluated, ref)
		grown, freed := s.evaluate(ref, c)
		if err := s.store.Get(ref).Formula.Err; err != nil {
			report.Errors[ref] = err
		} else {
			delete(report.Errors, ref)
		}
		if len(grown) == 0 && len(freed) == 0 {
			continue
		}
		// Readers of cells the spill just took over were not known to
		// depend on ref before it ran, and freed cells may unblock
		// another spill. Readers already evaluated in this batch saw the
		// old content and run again.
		extra := make(map[CellRef]struct{})
		for d := range s.graph.reach(grown...) {
			extra[d] = struct{}{}
		}
		for _, f := range freed {
			s.retryBlocked(f, extra)
		}
		pending := make(map[CellRef]struct{})
		for _, r := range order[i+1:] {
			if !done[r] {
				pending[r] = struct{}{}
			}
		}
		added := false
		for d := range extra {
			if _, ok := pending[d]; ok || d == ref {
				continue
			}
			if done[d] {
				if evals[d] >= maxEvals {
					s.logger.Warn("spill not settled",
						slog.String("cell", d.String()),
						slog.String("origin", ref.String()))
					continue
				}
				done[d] = false
			}
			pending[d] = struct{}{}
			added = true
		}
		if added {
			order = append(order[:i+1], s.graph.Order(sortedRefs(pending))...)
		}
	}

	report.Elapsed = time.Since(start)
	s.logger.Debug("recompute",
		slog.Int("changed", len(changed)),
		slog.Int("evaluated", len(report.Evaluated)),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("elapsed", report.Elapsed))
	return report
}

// retryBlocked adds to set every formula whose blocked spill covers ref,
// together with its dependents.
func (s *sheet) retryBlocked(ref CellRef, set map[CellRef]struct{}) {
	for _, owner := range s.graph.BlockedBy(ref) {
		set[owner] = struct{}{}
		for d := range s.graph.reach(owner) {
			set[d] = struct{}{}
		}
	}
}

// evaluate runs the formula at ref and stores the outcome, spilling array
// results. It returns the cells newly taken over by the spill and the cells
// it released.
func (s *sheet) evaluate(ref CellRef, c Cell) (grown, freed []CellRef) {
	v, err := s.eval.Evaluate(ref, c.Formula.Preprocessed, storeView{s.store})
	if err != nil {
		c.Formula.Err = err
		s.writeCell(ref, c)
		_, freed = s.setSpill(ref, 0)
		return nil, freed
	}

	n := 0
	if v.Kind == ValueArray && len(v.Arr) > 1 {
		n = len(v.Arr) - 1
	}
	if serr := s.spillBlocker(ref, n); serr != nil {
		s.logger.Warn("spill blocked",
			slog.String("origin", ref.String()),
			slog.String("blocker", serr.Blocker.String()),
			slog.String("reason", serr.Reason))
		c.Formula.Err = serr
		s.writeCell(ref, c)
		_, freed = s.setSpill(ref, 0)
		return nil, freed
	}

	c.Formula.Cached = &v
	c.Formula.Err = nil
	s.writeCell(ref, c)
	return s.setSpill(ref, n)
}

// spillBlocker checks the n cells below owner. A target blocks the spill
// when it holds content not owned by owner, or when owner reads it.
func (s *sheet) spillBlocker(owner CellRef, n int) *SpillError {
	var fresh []CellRef
	for i := 1; i <= n; i++ {
		ref := owner.Offset(i, 0)
		c := s.store.Get(ref)
		switch {
		case c.Kind == CellSpillChild && c.Owner == owner:
		case c.IsEmpty():
			fresh = append(fresh, ref)
		default:
			return &SpillError{Origin: owner, Blocker: ref, Want: n, Reason: "cell is not empty"}
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if _, reads := s.graph.reach(fresh...)[owner]; reads {
		for _, ref := range fresh {
			if s.graph.DependsOn(owner, ref) {
				return &SpillError{Origin: owner, Blocker: ref, Reason: "formula reads its own spill range"}
			}
		}
	}
	return nil
}
