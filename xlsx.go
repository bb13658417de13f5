package gridline

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/xuri/efp"
	"github.com/xuri/excelize/v2"
)

// commentAuthor marks cell comments that carry gridline formula source.
const commentAuthor = "gridline"

// spillPrefix starts the comment written on spill children.
const spillPrefix = "spilled from "

// DefaultSheet is the worksheet name used when none is given.
const DefaultSheet = "Sheet1"

// WriteXLSX exports the document as a single-sheet workbook. Cells hold their
// displayed values; formula source is kept in a cell comment so ReadXLSX can
// restore it, and spill children are marked so they are not imported as
// literals.
func (d *Document) WriteXLSX(w io.Writer, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()
	if sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
			return fmt.Errorf("name sheet %q: %w", sheet, err)
		}
	}

	defer d.rlock()()
	store := d.sh.store
	for _, ref := range store.Refs() {
		name, err := excelize.CoordinatesToCellName(ref.Col+1, ref.Row+1)
		if err != nil {
			return fmt.Errorf("export %s: %w", ref, err)
		}
		c := store.Get(ref)
		if err := setXLSXValue(f, sheet, name, store.Display(ref)); err != nil {
			return fmt.Errorf("export %s: %w", ref, err)
		}
		var note string
		switch c.Kind {
		case CellFormula:
			note = c.Input()
		case CellSpillChild:
			note = spillPrefix + c.Owner.String()
		default:
			continue
		}
		if err := f.AddComment(sheet, excelize.Comment{Cell: name, Author: commentAuthor, Text: note}); err != nil {
			return fmt.Errorf("export %s comment: %w", ref, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setXLSXValue(f *excelize.File, sheet, cell string, v Value) error {
	switch v.Kind {
	case ValueEmpty:
		return nil
	case ValueNumber:
		return f.SetCellFloat(sheet, cell, v.Num, -1, 64)
	case ValueBool:
		return f.SetCellBool(sheet, cell, v.Bool)
	}
	return f.SetCellStr(sheet, cell, v.String())
}

// ReadXLSX reads one worksheet of a workbook (the first when sheet is empty).
// Formulas exported by WriteXLSX are restored from their comments. Native
// Excel formulas are kept when they only use same-sheet references and
// functions gridline knows; otherwise the cached value is imported.
func ReadXLSX(r io.Reader, sheet string) ([]Entry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	sources := make(map[string]string)
	spilled := make(map[string]bool)
	comments, err := f.GetComments(sheet)
	if err != nil {
		return nil, fmt.Errorf("read comments from sheet %q: %w", sheet, err)
	}
	for _, c := range comments {
		if c.Author != commentAuthor {
			continue
		}
		// Some writers prefix the body with "Author:".
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(c.Text), commentAuthor+":"))
		switch {
		case strings.HasPrefix(text, "="):
			sources[c.Cell] = text
		case strings.HasPrefix(text, spillPrefix):
			spilled[c.Cell] = true
		}
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %q: %w", sheet, err)
	}

	var entries []Entry
	add := func(ref CellRef, val string) error {
		name := ref.String()
		c, err := importCell(f, sheet, name, val, sources[name], ref)
		if err != nil {
			return fmt.Errorf("import %s!%s: %w", sheet, name, err)
		}
		if !c.IsEmpty() {
			entries = append(entries, Entry{Ref: ref, Cell: c})
		}
		delete(sources, name)
		return nil
	}
	for rowIdx, row := range rows {
		for colIdx, val := range row {
			ref := CellRef{Row: rowIdx, Col: colIdx}
			if spilled[ref.String()] {
				continue
			}
			if err := add(ref, val); err != nil {
				return nil, err
			}
		}
	}
	// Formulas whose result was empty have no value in the sheet data.
	for _, name := range slices.Sorted(maps.Keys(sources)) {
		ref, err := ParseCellRef(name)
		if err != nil {
			return nil, fmt.Errorf("import %s!%s: %w", sheet, name, err)
		}
		if err := add(ref, ""); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func importCell(f *excelize.File, sheet, name, val, source string, ref CellRef) (Cell, error) {
	if source != "" {
		return ParseInput(source, ref)
	}
	if formula, err := f.GetCellFormula(sheet, name); err == nil && formula != "" {
		if portable(formula) {
			if c, err := ParseInput("="+strings.ReplaceAll(formula, "$", ""), ref); err == nil {
				return c, nil
			}
		}
	}
	if val == "" {
		return Cell{}, nil
	}

	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return Cell{}, err
	}
	switch typ {
	case excelize.CellTypeBool:
		return BoolCell(val == "1" || strings.EqualFold(val, "TRUE")), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		return TextCell(val), nil
	}
	if n, ok := parseNumber(strings.TrimSpace(val)); ok {
		return NumberCell(n), nil
	}
	return TextCell(val), nil
}

// portable reports whether an Excel formula can run unchanged: every
// reference is on the same sheet, every function is known, and no operator
// differs in meaning.
func portable(formula string) bool {
	ps := efp.ExcelParser()
	tokens := ps.Parse(formula)
	if tokens == nil {
		return false
	}
	for _, tok := range tokens {
		switch tok.TType {
		case efp.TokenTypeOperand:
			switch tok.TSubType {
			case efp.TokenSubTypeRange:
				ref := strings.ReplaceAll(tok.TValue, "$", "")
				if strings.Contains(ref, "!") {
					return false
				}
				for _, part := range strings.Split(ref, ":") {
					if _, err := ParseCellRef(part); err != nil {
						return false
					}
				}
			case efp.TokenSubTypeText:
				if strings.Contains(tok.TValue, "$") {
					return false
				}
			case efp.TokenSubTypeNumber:
			default:
				return false
			}
		case efp.TokenTypeFunction:
			if tok.TSubType != efp.TokenSubTypeStart {
				continue
			}
			name := strings.ToUpper(tok.TValue)
			if _, ok := rangeFuncs[name]; !ok && builtins[name] == nil {
				return false
			}
		case efp.TokenTypeOperatorInfix:
			switch tok.TValue {
			case "&", "=", "<>":
				return false
			}
		case efp.TokenTypeOperatorPostfix:
			return false
		}
	}
	return true
}

// LoadXLSX replaces the document's contents with one worksheet of a workbook.
func (d *Document) LoadXLSX(r io.Reader, sheet string) error {
	entries, err := ReadXLSX(r, sheet)
	if err != nil {
		return fmt.Errorf("load workbook: %w", err)
	}
	return d.replace(entries)
}
