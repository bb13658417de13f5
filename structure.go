package gridline

import (
	"fmt"
)

// InsertRow inserts an empty row before row at, shifting later rows down and
// adjusting every formula's references.
func (d *Document) InsertRow(at int) error {
	return d.shift(Shift{Axis: AxisRow, At: at})
}

// DeleteRow removes row at, shifting later rows up. Formulas that referred to
// the deleted row become text cells showing #REF!.
func (d *Document) DeleteRow(at int) error {
	return d.shift(Shift{Axis: AxisRow, At: at, Delete: true})
}

// InsertColumn inserts an empty column before column at.
func (d *Document) InsertColumn(at int) error {
	return d.shift(Shift{Axis: AxisCol, At: at})
}

// DeleteColumn removes column at, shifting later columns left.
func (d *Document) DeleteColumn(at int) error {
	return d.shift(Shift{Axis: AxisCol, At: at, Delete: true})
}

func (d *Document) shift(sh Shift) error {
	if sh.At < 0 {
		return fmt.Errorf("%s index %d out of range", sh.Axis, sh.At)
	}
	verb := "insert"
	if sh.Delete {
		verb = "delete"
	}
	_, err := d.mutate(fmt.Sprintf("%s %s %d", verb, sh.Axis, sh.At), func() ([]CellRef, error) {
		return d.sh.applyShift(sh)
	})
	return err
}

// applyShift releases all spills, moves cells, and rewrites formula
// references. Everything is recomputed afterwards since every formula may have
// moved or changed.
func (s *sheet) applyShift(sh Shift) ([]CellRef, error) {
	s.releaseAllSpills()
	s.writeShift(sh)

	for _, ref := range s.formulas() {
		c := s.store.Get(ref)
		raw, broken, err := ShiftReferences(c.Formula.Raw, sh)
		if err != nil {
			return nil, fmt.Errorf("shift formula at %s: %w", ref, err)
		}
		next, err := relocated(ref, raw, broken)
		if err != nil {
			return nil, fmt.Errorf("shift formula at %s: %w", ref, err)
		}
		if next.Kind == CellFormula && next.Formula.Preprocessed == c.Formula.Preprocessed && raw == c.Formula.Raw {
			continue
		}
		s.writeCell(ref, next)
	}
	return s.formulas(), nil
}

// relocated builds the cell for a formula body rewritten for position ref.
// A body containing a lost reference is kept as text so it stays visible.
func relocated(ref CellRef, raw string, broken bool) (Cell, error) {
	if broken {
		return TextCell("=" + raw), nil
	}
	pre, err := PreprocessAt(raw, ref)
	if err != nil {
		return Cell{}, err
	}
	return FormulaCell(raw, pre), nil
}

// Clip is a rectangular block of copied cells. Cells are keyed by their
// offset from the top-left corner of the copied range.
type Clip struct {
	Origin CellRef
	Rows   int
	Cols   int
	Cells  map[CellRef]Cell
}

// Copy captures the contents of r. Spill children are copied as empty cells.
func (d *Document) Copy(r RangeRef) Clip {
	defer d.rlock()()

	n := r.Normalized()
	clip := Clip{
		Origin: n.Start,
		Rows:   n.End.Row - n.Start.Row + 1,
		Cols:   n.End.Col - n.Start.Col + 1,
		Cells:  make(map[CellRef]Cell),
	}
	for _, ref := range d.sh.store.Refs() {
		if !n.Contains(ref) {
			continue
		}
		c := d.sh.store.Get(ref)
		if c.Kind == CellSpillChild {
			continue
		}
		if c.Kind == CellFormula {
			c = FormulaCell(c.Formula.Raw, c.Formula.Preprocessed)
		}
		clip.Cells[CellRef{Row: ref.Row - n.Start.Row, Col: ref.Col - n.Start.Col}] = c
	}
	return clip
}

// Paste writes clip with its top-left corner at dst as one undoable action.
// Formula references move with the paste; references pushed off the sheet
// become #REF! text. The target block is cleared first. If any formula would
// create a cycle or any target is a spill child, nothing is changed.
func (d *Document) Paste(dst CellRef, clip Clip) error {
	if !dst.Valid() {
		return fmt.Errorf("paste at %s: invalid cell reference", dst)
	}
	dr, dc := dst.Row-clip.Origin.Row, dst.Col-clip.Origin.Col
	_, err := d.mutate("paste "+dst.String(), func() ([]CellRef, error) {
		var changed []CellRef
		for row := 0; row < clip.Rows; row++ {
			for col := 0; col < clip.Cols; col++ {
				target := dst.Offset(row, col)
				c := clip.Cells[CellRef{Row: row, Col: col}]
				if c.Kind == CellFormula {
					raw, broken, err := OffsetReferences(c.Formula.Raw, dr, dc)
					if err != nil {
						return nil, fmt.Errorf("paste at %s: %w", target, err)
					}
					if c, err = relocated(target, raw, broken); err != nil {
						return nil, fmt.Errorf("paste at %s: %w", target, err)
					}
				}
				cur := d.sh.store.Get(target)
				if c.IsEmpty() && cur.IsEmpty() {
					continue
				}
				refs, err := d.sh.put(target, c)
				if err != nil {
					return nil, err
				}
				changed = append(changed, refs...)
			}
		}
		return changed, nil
	})
	return err
}
