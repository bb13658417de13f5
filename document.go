package gridline

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Document is a spreadsheet: a sparse grid of cells with dependency tracking,
// incremental recalculation and undo/redo. It is safe for concurrent use;
// edits are serialized and readers never observe a half-applied edit.
//
// Native functions called from formulas run on the goroutine that holds the
// write lock. They may read the document, seeing the recalculation in
// progress, but any edit they attempt fails with ErrReentrantEdit.
type Document struct {
	mu     sync.RWMutex
	writer atomic.Uint64 // goroutine holding mu for writing, 0 when none
	sh     *sheet
	opts   *Options
	funcs  interface {
		RegisterFunction(name string, fn any) error
	}
	userFuncs map[string]any // compiled FunctionDefs by name
	funcFiles []string
}

// NewDocument creates an empty document.
func NewDocument(opts ...Option) (*Document, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	ev := o.evaluator
	if ev == nil {
		exprEv := NewExprEvaluator()
		exprEv.SetMaxRangeCells(o.maxRangeCells)
		ev = exprEv
	}
	d := &Document{sh: newSheet(ev, o.maxUndo, o.logger), opts: o, userFuncs: make(map[string]any)}
	if reg, ok := ev.(interface {
		RegisterFunction(name string, fn any) error
	}); ok {
		d.funcs = reg
	}
	for name, fn := range o.functions {
		if err := d.RegisterFunction(name, fn); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// RegisterFunction makes a native function callable from formulas. Existing
// formulas are not re-evaluated; call RecomputeAll to pick it up everywhere.
// See Document for what fn may do with the document it is evaluated in.
func (d *Document) RegisterFunction(name string, fn any) error {
	if d.funcs == nil {
		return fmt.Errorf("register function %q: evaluator does not accept functions", name)
	}
	return d.funcs.RegisterFunction(name, fn)
}

// mutate runs fn as one undoable action under the write lock. If fn fails,
// everything it wrote is rolled back.
func (d *Document) mutate(label string, fn func() ([]CellRef, error)) (Report, error) {
	if err := d.lock(); err != nil {
		return Report{}, err
	}
	defer d.unlock()

	d.sh.log.Begin(label)
	changed, err := fn()
	if err != nil {
		d.sh.log.Rollback(d.sh)
		return Report{}, err
	}
	report := d.sh.recompute(changed)
	d.sh.log.Commit()
	return report, nil
}

// lock takes the write lock, waiting for any other writer. It fails only when
// the calling goroutine already holds it.
func (d *Document) lock() error {
	id := goroutineID()
	if d.writer.Load() == id {
		return ErrReentrantEdit
	}
	d.mu.Lock()
	d.writer.Store(id)
	return nil
}

func (d *Document) unlock() {
	d.writer.Store(0)
	d.mu.Unlock()
}

// rlock takes the read lock and returns its release. The writer's own
// goroutine reads without locking.
func (d *Document) rlock() func() {
	if w := d.writer.Load(); w != 0 && w == goroutineID() {
		return func() {}
	}
	d.mu.RLock()
	return d.mu.RUnlock
}

// SetCell classifies input (see ParseInput) and stores it at ref, then
// recomputes everything that depends on ref. Malformed formulas return a
// *ParseError and circular formulas a *CycleError, both without changing
// the document.
func (d *Document) SetCell(ref CellRef, input string) error {
	c, err := ParseInput(input, ref)
	if err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	return d.Put(ref, c)
}

// Put stores an already classified cell at ref.
func (d *Document) Put(ref CellRef, c Cell) error {
	if c.Kind == CellSpillChild {
		return fmt.Errorf("set %s: %w", ref, ErrSpillChildLocked)
	}
	_, err := d.mutate("set "+ref.String(), func() ([]CellRef, error) {
		return d.sh.put(ref, c)
	})
	return err
}

// ClearCell empties ref.
func (d *Document) ClearCell(ref CellRef) error {
	_, err := d.mutate("clear "+ref.String(), func() ([]CellRef, error) {
		return d.sh.put(ref, Cell{})
	})
	return err
}

// put validates and writes c at ref and returns the cells whose change
// must be propagated.
func (s *sheet) put(ref CellRef, c Cell) ([]CellRef, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("set %s: invalid cell reference", ref)
	}
	if cur := s.store.Get(ref); cur.Kind == CellSpillChild {
		return nil, fmt.Errorf("set %s: owned by %s: %w", ref, cur.Owner, ErrSpillChildLocked)
	}
	if c.Kind == CellFormula {
		edges, err := ExtractEdges(c.Formula.Preprocessed)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", ref, err)
		}
		if via, cyclic := s.graph.FindCycle(ref, edges); cyclic {
			return nil, fmt.Errorf("set %s: %w", ref, &CycleError{Ref: ref, Via: via})
		}
	}

	changed := []CellRef{ref}
	if c.Kind != CellFormula {
		_, freed := s.setSpill(ref, 0)
		changed = append(changed, freed...)
	} else if cur := s.store.Get(ref); cur.Kind == CellFormula {
		c.Formula.Cached = cur.Formula.Cached
	}
	s.writeCell(ref, c)
	return changed, nil
}

// Cell returns the stored content at ref.
func (d *Document) Cell(ref CellRef) Cell {
	defer d.rlock()()
	return d.sh.store.Get(ref)
}

// Value returns the settled value at ref. Array formulas return the whole array.
func (d *Document) Value(ref CellRef) Value {
	defer d.rlock()()
	return d.sh.store.Value(ref)
}

// Display returns the text shown in the cell at ref.
func (d *Document) Display(ref CellRef) string {
	defer d.rlock()()
	return d.sh.store.Display(ref).String()
}

// Refs returns the addresses of all non-empty cells in (row, col) order.
func (d *Document) Refs() []CellRef {
	defer d.rlock()()
	return d.sh.store.Refs()
}

// Dependents returns the cells that transitively depend on ref, in evaluation order.
func (d *Document) Dependents(ref CellRef) []CellRef {
	defer d.rlock()()
	return d.sh.graph.DependentsOf(ref)
}

// Precedents returns what the formula at ref reads.
func (d *Document) Precedents(ref CellRef) Edges {
	defer d.rlock()()
	return d.sh.graph.Precedents(ref)
}

// SpillOwner returns the formula whose array result occupies ref.
func (d *Document) SpillOwner(ref CellRef) (CellRef, bool) {
	defer d.rlock()()
	return d.sh.graph.SpillOwner(ref)
}

// RecomputeAll re-evaluates every formula. It is not recorded in the undo log.
func (d *Document) RecomputeAll() (Report, error) {
	if err := d.lock(); err != nil {
		return Report{}, err
	}
	defer d.unlock()
	return d.sh.recompute(d.sh.formulas()), nil
}

// Undo reverts the most recent action, including its whole recalculation cascade.
func (d *Document) Undo() error {
	return d.history("undo", d.sh.log.Undo)
}

// Redo reapplies the most recently undone action.
func (d *Document) Redo() error {
	return d.history("redo", d.sh.log.Redo)
}

func (d *Document) history(what string, step func(replayer) (*Action, error)) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unlock()

	a, err := step(d.sh)
	if err != nil {
		return err
	}
	changed := a.touched()
	if a.structural() {
		changed = d.sh.formulas()
	}
	report := d.sh.recompute(changed)
	d.sh.logger.Debug(what,
		slog.String("action", a.Label),
		slog.Int("touched", len(changed)),
		slog.Int("evaluated", len(report.Evaluated)))
	return nil
}

// CanUndo reports whether there is an action to undo.
func (d *Document) CanUndo() bool {
	defer d.rlock()()
	return d.sh.log.CanUndo()
}

// CanRedo reports whether there is an action to redo.
func (d *Document) CanRedo() bool {
	defer d.rlock()()
	return d.sh.log.CanRedo()
}

// snapshot is used by tests to compare whole-document state.
func (d *Document) snapshot() sheetSnapshot {
	defer d.rlock()()
	return d.sh.snapshot()
}
