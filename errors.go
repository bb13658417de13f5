package gridline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNothingToUndo is returned by Undo when the undo stack is empty.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned by Redo when the redo stack is empty.
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrSpillChildLocked is returned when an edit targets a cell owned by a spill.
	ErrSpillChildLocked = errors.New("cell is part of a spill range")
	// ErrReentrantEdit is returned when a formula tries to edit the document it is evaluated in.
	ErrReentrantEdit = errors.New("document edited during recalculation")
	// ErrRangeTooLarge is returned when a range covers more cells than allowed.
	ErrRangeTooLarge = errors.New("range too large")
	// ErrEmptyImport is returned when imported data holds no cells.
	ErrEmptyImport = errors.New("no cells to import")
	// ErrNoFunctionFiles is returned by ReloadFunctions before any file was loaded.
	ErrNoFunctionFiles = errors.New("no function files loaded")
)

// ParseError reports malformed reference or range syntax in formula text.
// Start and End are byte offsets of the offending span in Input.
type ParseError struct {
	Input string
	Start int
	End   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse formula at %d-%d (%q): %s", e.Start, e.End, e.Span(), e.Msg)
}

// Span returns the offending slice of Input.
func (e *ParseError) Span() string {
	if e.Start < 0 || e.End > len(e.Input) || e.Start > e.End {
		return ""
	}
	return e.Input[e.Start:e.End]
}

// CycleError reports an edit that would create a circular dependency.
type CycleError struct {
	Ref CellRef
	Via CellRef // precedent through which Ref would reach itself
}

func (e *CycleError) Error() string {
	if e.Via == e.Ref {
		return fmt.Sprintf("circular reference: %s refers to itself", e.Ref)
	}
	return fmt.Sprintf("circular reference: %s depends on %s which depends on %s", e.Ref, e.Via, e.Ref)
}

// SpillError is recorded on a formula whose array result cannot spill.
// Want is the number of cells below Origin the result needs.
type SpillError struct {
	Origin  CellRef
	Blocker CellRef
	Want    int
	Reason  string
}

// Region returns the cells the blocked spill would occupy.
func (e *SpillError) Region() RangeRef {
	return RangeRef{Start: e.Origin.Offset(1, 0), End: e.Origin.Offset(e.Want, 0)}
}

func (e *SpillError) Error() string {
	return fmt.Sprintf("spill from %s blocked at %s: %s", e.Origin, e.Blocker, e.Reason)
}

// EvalError is recorded on a formula cell whose evaluation failed.
// Source is set when the failure came from reading another failed cell.
type EvalError struct {
	Ref    CellRef
	Source *CellRef
	Err    error
}

func (e *EvalError) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("evaluate %s: poisoned by %s: %v", e.Ref, *e.Source, e.Err)
	}
	return fmt.Sprintf("evaluate %s: %v", e.Ref, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// ErrorCode returns the short display code for err, in the "#NAME!" style.
func ErrorCode(err error) string {
	var (
		spillErr *SpillError
		cycleErr *CycleError
		parseErr *ParseError
		evalErr  *EvalError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &spillErr):
		return "#SPILL!"
	case errors.As(err, &cycleErr):
		return "#CYCLE!"
	case errors.As(err, &parseErr):
		return "#PARSE!"
	case errors.Is(err, ErrRangeTooLarge):
		return "#RANGE!"
	case errors.As(err, &evalErr):
		if strings.Contains(err.Error(), "divide by zero") || strings.Contains(err.Error(), "division by zero") {
			return "#DIV/0!"
		}
	}
	return "#ERR!"
}
