package gridline

import (
	"maps"
	"slices"
)

type opKind uint8

const (
	opCell opKind = iota
	opSpill
	opShift
)

// primitive is one reversible store mutation.
type primitive struct {
	kind opKind
	ref  CellRef // cell for opCell, owner for opSpill

	before, after Cell // opCell

	extentBefore, extentAfter int // opSpill

	shift   Shift            // opShift
	removed map[CellRef]Cell // opShift: content of a deleted row or column
}

// Action is one undoable user command: every primitive it caused, in order.
type Action struct {
	Label string
	ops   []primitive
}

// structural reports whether the action moved cells.
func (a *Action) structural() bool {
	return slices.ContainsFunc(a.ops, func(p primitive) bool { return p.kind == opShift })
}

// touched lists the cells and spill owners the action wrote, in (row, col) order.
func (a *Action) touched() []CellRef {
	set := make(map[CellRef]struct{}, len(a.ops))
	for _, p := range a.ops {
		if p.kind != opShift {
			set[p.ref] = struct{}{}
		}
	}
	refs := slices.Collect(maps.Keys(set))
	slices.SortFunc(refs, CellRef.Compare)
	return refs
}

// replayer applies primitives without recording them.
type replayer interface {
	putCell(ref CellRef, c Cell)
	putSpillExtent(owner CellRef, n int)
	putShift(s Shift, removed map[CellRef]Cell, inverse bool)
}

func (p primitive) apply(r replayer, reverse bool) {
	switch p.kind {
	case opCell:
		if reverse {
			r.putCell(p.ref, p.before)
		} else {
			r.putCell(p.ref, p.after)
		}
	case opSpill:
		if reverse {
			r.putSpillExtent(p.ref, p.extentBefore)
		} else {
			r.putSpillExtent(p.ref, p.extentAfter)
		}
	case opShift:
		r.putShift(p.shift, p.removed, reverse)
	}
}

// UndoLog groups mutations into actions and keeps bounded undo and redo stacks.
type UndoLog struct {
	undo    []*Action
	redo    []*Action
	current *Action
	limit   int
}

// NewUndoLog creates a log keeping at most limit actions (limit <= 0 means unbounded).
func NewUndoLog(limit int) *UndoLog {
	return &UndoLog{limit: limit}
}

// Begin opens an action. Mutations recorded until Commit or Rollback belong to it.
func (l *UndoLog) Begin(label string) {
	l.current = &Action{Label: label}
}

// Recording reports whether an action is open.
func (l *UndoLog) Recording() bool { return l.current != nil }

// Record appends p to the open action. Without an open action it is a no-op.
func (l *UndoLog) Record(p primitive) {
	if l.current != nil {
		l.current.ops = append(l.current.ops, p)
	}
}

// Commit closes the open action and pushes it onto the undo stack, clearing
// the redo stack. Empty actions are dropped.
func (l *UndoLog) Commit() *Action {
	a := l.current
	l.current = nil
	if a == nil || len(a.ops) == 0 {
		return nil
	}
	l.undo = append(l.undo, a)
	if l.limit > 0 && len(l.undo) > l.limit {
		l.undo = slices.Delete(l.undo, 0, len(l.undo)-l.limit)
	}
	l.redo = nil
	return a
}

// Rollback reverts everything recorded in the open action and discards it.
func (l *UndoLog) Rollback(r replayer) {
	a := l.current
	l.current = nil
	if a == nil {
		return
	}
	for i := len(a.ops) - 1; i >= 0; i-- {
		a.ops[i].apply(r, true)
	}
}

// Undo reverts the most recent action and moves it to the redo stack.
func (l *UndoLog) Undo(r replayer) (*Action, error) {
	if len(l.undo) == 0 {
		return nil, ErrNothingToUndo
	}
	a := l.undo[len(l.undo)-1]
	l.undo = l.undo[:len(l.undo)-1]
	for i := len(a.ops) - 1; i >= 0; i-- {
		a.ops[i].apply(r, true)
	}
	l.redo = append(l.redo, a)
	return a, nil
}

// Redo reapplies the most recently undone action and moves it back to the undo stack.
func (l *UndoLog) Redo(r replayer) (*Action, error) {
	if len(l.redo) == 0 {
		return nil, ErrNothingToRedo
	}
	a := l.redo[len(l.redo)-1]
	l.redo = l.redo[:len(l.redo)-1]
	for _, p := range a.ops {
		p.apply(r, false)
	}
	l.undo = append(l.undo, a)
	return a, nil
}

// CanUndo reports whether Undo has anything to revert.
func (l *UndoLog) CanUndo() bool { return len(l.undo) > 0 }

// CanRedo reports whether Redo has anything to reapply.
func (l *UndoLog) CanRedo() bool { return len(l.redo) > 0 }

// Reset drops all history.
func (l *UndoLog) Reset() {
	l.undo, l.redo, l.current = nil, nil, nil
}
