package gridline

import (
	"maps"
	"slices"
)

// CellStore is sparse storage of cell contents plus the spill index
// (owner → number of spill children below it).
type CellStore struct {
	cells  map[CellRef]Cell
	spills map[CellRef]int
}

// NewCellStore creates an empty store.
func NewCellStore() *CellStore {
	return &CellStore{
		cells:  make(map[CellRef]Cell),
		spills: make(map[CellRef]int),
	}
}

// Get returns the cell at ref, or an empty cell.
func (s *CellStore) Get(ref CellRef) Cell {
	return s.cells[ref]
}

// Set stores c at ref and returns the previous content. Storing an empty cell
// removes the entry.
func (s *CellStore) Set(ref CellRef, c Cell) Cell {
	prev := s.cells[ref]
	if c.IsEmpty() {
		delete(s.cells, ref)
	} else {
		s.cells[ref] = c
	}
	return prev
}

// Len returns the number of non-empty cells.
func (s *CellStore) Len() int { return len(s.cells) }

// Refs returns the addresses of all non-empty cells in (row, col) order.
func (s *CellStore) Refs() []CellRef {
	refs := slices.Collect(maps.Keys(s.cells))
	slices.SortFunc(refs, CellRef.Compare)
	return refs
}

// SpillExtent returns how many spill children owner currently has.
func (s *CellStore) SpillExtent(owner CellRef) int { return s.spills[owner] }

// setSpillExtent records n spill children for owner and returns the previous count.
func (s *CellStore) setSpillExtent(owner CellRef, n int) int {
	prev := s.spills[owner]
	if n == 0 {
		delete(s.spills, owner)
	} else {
		s.spills[owner] = n
	}
	return prev
}

// spillOwners returns the owners in the spill index in (row, col) order.
func (s *CellStore) spillOwners() []CellRef {
	owners := slices.Collect(maps.Keys(s.spills))
	slices.SortFunc(owners, CellRef.Compare)
	return owners
}

// Value resolves the settled value at ref. Formula cells yield their cached
// result, or an error value when the last evaluation failed. Spill children
// yield their element of the owner's array.
func (s *CellStore) Value(ref CellRef) Value {
	c := s.cells[ref]
	switch c.Kind {
	case CellFormula:
		if c.Formula.Err != nil {
			return ErrorValue(c.Formula.Err)
		}
		if c.Formula.Cached != nil {
			return *c.Formula.Cached
		}
		return Value{}
	case CellSpillChild:
		owner := s.cells[c.Owner]
		idx := ref.Row - c.Owner.Row
		if owner.Kind != CellFormula || owner.Formula.Err != nil || owner.Formula.Cached == nil {
			return Value{}
		}
		if arr := owner.Formula.Cached; arr.Kind == ValueArray && idx < len(arr.Arr) {
			return arr.Arr[idx]
		}
		return Value{}
	}
	return c.literal()
}

// Display resolves ref for showing in a single cell: an array origin shows its
// first element.
func (s *CellStore) Display(ref CellRef) Value {
	v := s.Value(ref)
	if v.Kind == ValueArray {
		if len(v.Arr) == 0 {
			return Value{}
		}
		return v.Arr[0]
	}
	return v
}

// Clone returns a deep copy of the store.
func (s *CellStore) Clone() *CellStore {
	return &CellStore{cells: maps.Clone(s.cells), spills: maps.Clone(s.spills)}
}

// shift moves cells and spill owners the way a row or column insert or delete
// does, and returns the content of a deleted row or column.
func (s *CellStore) shift(sh Shift) map[CellRef]Cell {
	removed := make(map[CellRef]Cell)
	cells := make(map[CellRef]Cell, len(s.cells))
	for ref, c := range s.cells {
		moved, ok := sh.Apply(ref)
		if !ok {
			removed[ref] = c
			continue
		}
		cells[moved] = c
	}
	s.cells = cells

	spills := make(map[CellRef]int, len(s.spills))
	for owner, n := range s.spills {
		if moved, ok := sh.Apply(owner); ok {
			spills[moved] = n
		}
	}
	s.spills = spills
	return removed
}
