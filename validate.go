package gridline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Severity indicates the severity of a validation issue.
type Severity int

const (
	SeverityError   Severity = iota // Formula fails on its own
	SeverityWarning                 // Cell shows an error caused elsewhere, or a lost reference
)

// ValidationIssue represents a single problem found in a document.
type ValidationIssue struct {
	Severity Severity
	CellRef  CellRef
	Message  string
}

// String formats the issue as "[ERROR] A2: message" or "[WARN] ...".
func (v ValidationIssue) String() string {
	sev := "ERROR"
	if v.Severity == SeverityWarning {
		sev = "WARN"
	}
	return fmt.Sprintf("[%s] %s: %s", sev, v.CellRef, v.Message)
}

// Validate checks every cell and returns the problems found, in (row, col)
// order. Formulas are also compiled on their own, so syntax errors are
// reported even when evaluation has not run yet.
func (d *Document) Validate() []ValidationIssue {
	defer d.rlock()()

	var issues []ValidationIssue
	for _, ref := range d.sh.store.Refs() {
		c := d.sh.store.Get(ref)
		switch c.Kind {
		case CellFormula:
			issues = append(issues, validateFormula(d.sh.eval, ref, c.Formula)...)
		case CellText:
			if strings.HasPrefix(c.Text, "=") && strings.Contains(c.Text, refError) {
				issues = append(issues, ValidationIssue{
					Severity: SeverityWarning,
					CellRef:  ref,
					Message:  fmt.Sprintf("formula %q lost a reference and was kept as text", c.Text),
				})
			}
		}
	}
	return issues
}

// checker is implemented by evaluators that can compile a formula without
// running it.
type checker interface {
	Check(preprocessed string) error
}

func check(ev Evaluator, preprocessed string) error {
	if c, ok := ev.(checker); ok {
		return c.Check(preprocessed)
	}
	_, err := expr.Compile(preprocessed, expr.AllowUndefinedVariables())
	return err
}

func validateFormula(ev Evaluator, ref CellRef, f Formula) []ValidationIssue {
	var issues []ValidationIssue
	if err := check(ev, f.Preprocessed); err != nil {
		issues = append(issues, ValidationIssue{
			Severity: SeverityError,
			CellRef:  ref,
			Message:  fmt.Sprintf("invalid formula %q: %v", "="+f.Raw, err),
		})
		return issues
	}
	if f.Err == nil {
		return issues
	}

	var evalErr *EvalError
	if errors.As(f.Err, &evalErr) && evalErr.Source != nil {
		issues = append(issues, ValidationIssue{
			Severity: SeverityWarning,
			CellRef:  ref,
			Message:  fmt.Sprintf("%s because %s has an error", ErrorCode(f.Err), *evalErr.Source),
		})
		return issues
	}
	issues = append(issues, ValidationIssue{
		Severity: SeverityError,
		CellRef:  ref,
		Message:  fmt.Sprintf("%s %v", ErrorCode(f.Err), f.Err),
	})
	return issues
}
