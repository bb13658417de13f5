package gridline

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// FileHeader is the comment line written at the top of saved documents.
const FileHeader = "# Gridline Spreadsheet"

// Entry is one cell of a persisted document.
type Entry struct {
	Ref  CellRef
	Cell Cell
}

// ReadLines parses the line format: one "ADDRESS: VALUE" per cell, where
// VALUE is classified like interactive input. Blank lines and lines starting
// with '#' are skipped. Later lines for the same address win.
func ReadLines(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing ':' separator", lineNo)
		}
		ref, err := ParseCellRef(addr)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		c, err := ParseInput(strings.TrimSpace(value), ref)
		if err != nil {
			return nil, fmt.Errorf("line %d: cell %s: %w", lineNo, ref, err)
		}
		if c.IsEmpty() {
			continue
		}
		entries = append(entries, Entry{Ref: ref, Cell: c})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return entries, nil
}

// WriteLines writes the non-empty literal and formula cells of store in
// (row, col) order after FileHeader. Spill children are derived and skipped.
func WriteLines(w io.Writer, store *CellStore) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, FileHeader)
	for _, ref := range store.Refs() {
		c := store.Get(ref)
		var value string
		switch c.Kind {
		case CellSpillChild, CellEmpty:
			continue
		case CellText:
			value = c.Text
			if needsQuote(value) {
				value = quote(value)
			}
		default:
			value = c.Input()
		}
		fmt.Fprintf(bw, "%s: %s\n", ref, value)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write lines: %w", err)
	}
	return nil
}

// Load replaces the document's contents with the cells read from r, then
// recomputes every formula. Undo history is cleared. Formulas that would close
// a cycle are kept but marked with a *CycleError instead of being evaluated.
func (d *Document) Load(r io.Reader) error {
	entries, err := ReadLines(r)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	return d.replace(entries)
}

// LoadFile loads a document from path.
func (d *Document) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return d.Load(f)
}

// Save writes the document in the line format.
func (d *Document) Save(w io.Writer) error {
	defer d.rlock()()
	return WriteLines(w, d.sh.store)
}

// SaveFile writes the document to path.
func (d *Document) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if err := d.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// replace swaps in entries as the whole document content.
func (d *Document) replace(entries []Entry) error {
	if err := d.lock(); err != nil {
		return err
	}
	defer d.unlock()

	sh := newSheet(d.sh.eval, d.opts.maxUndo, d.sh.logger)
	cycles := 0
	for _, e := range entries {
		c := e.Cell
		if c.Kind == CellFormula {
			edges, err := ExtractEdges(c.Formula.Preprocessed)
			if err != nil {
				return fmt.Errorf("load cell %s: %w", e.Ref, err)
			}
			if via, cyclic := sh.graph.FindCycle(e.Ref, edges); cyclic {
				c.Formula.Err = &CycleError{Ref: e.Ref, Via: via}
				cycles++
			}
		}
		sh.putCell(e.Ref, c)
	}
	d.sh = sh
	report := sh.recompute(sh.formulas())
	d.sh.logger.Debug("load",
		slog.Int("cells", sh.store.Len()),
		slog.Int("cycles", cycles),
		slog.Int("evaluated", len(report.Evaluated)))
	return nil
}
