package gridline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVOptions controls delimited text import and export.
type CSVOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// Encoding of the byte stream. Nil means UTF-8.
	Encoding encoding.Encoding
	// Formulas exports formula source instead of displayed values.
	Formulas bool
}

func (o CSVOptions) comma() rune {
	if o.Comma == 0 {
		return ','
	}
	return o.Comma
}

func (o CSVOptions) encoding() encoding.Encoding {
	if o.Encoding == nil {
		return unicode.UTF8
	}
	return o.Encoding
}

// LookupCharset returns the encoding for a charset name such as "utf-8",
// "latin1", "windows-1252" or any IBM/ISO/Windows code page known to charmap.
func LookupCharset(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf-8", "utf8":
		return unicode.UTF8, nil
	case "utf-8-bom", "utf8bom":
		return unicode.UTF8BOM, nil
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	}
	for _, cm := range charmap.All {
		m, ok := cm.(*charmap.Charmap)
		if !ok {
			continue
		}
		if strings.EqualFold(m.String(), name) || strings.EqualFold(strings.ReplaceAll(m.String(), " ", "-"), key) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("unknown charset %q", name)
}

// ReadCSV reads delimited text into cells. Row i, field j lands at row i,
// column j; each field is classified like interactive input, so fields
// starting with '=' become formulas.
func ReadCSV(r io.Reader, opts CSVOptions) ([]Entry, error) {
	return readCSVAt(r, opts, CellRef{})
}

// readCSVAt reads delimited text with its first field landing at origin.
func readCSVAt(r io.Reader, opts CSVOptions, origin CellRef) ([]Entry, error) {
	cr := csv.NewReader(transform.NewReader(r, opts.encoding().NewDecoder()))
	cr.Comma = opts.comma()
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var entries []Entry
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		for col, field := range rec {
			ref := origin.Offset(row, col)
			c, err := ParseInput(field, ref)
			if err != nil {
				return nil, fmt.Errorf("csv cell %s: %w", ref, err)
			}
			if !c.IsEmpty() {
				entries = append(entries, Entry{Ref: ref, Cell: c})
			}
		}
	}
	return entries, nil
}

// WriteCSV writes the bounding block of store's cells as delimited text.
func WriteCSV(w io.Writer, store *CellStore, opts CSVOptions) error {
	enc := transform.NewWriter(w, opts.encoding().NewEncoder())
	cw := csv.NewWriter(enc)
	cw.Comma = opts.comma()

	refs := store.Refs()
	if len(refs) > 0 {
		rows, cols := 0, 0
		for _, ref := range refs {
			rows = max(rows, ref.Row+1)
			cols = max(cols, ref.Col+1)
		}
		for row := 0; row < rows; row++ {
			rec := make([]string, cols)
			for col := range rec {
				rec[col] = csvField(store, CellRef{Row: row, Col: col}, opts.Formulas)
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("write csv row %d: %w", row+1, err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func csvField(store *CellStore, ref CellRef, formulas bool) string {
	c := store.Get(ref)
	if formulas && c.Kind != CellSpillChild {
		return c.Input()
	}
	return store.Display(ref).String()
}

// LoadCSV replaces the document's contents with delimited text.
func (d *Document) LoadCSV(r io.Reader, opts CSVOptions) error {
	entries, err := ReadCSV(r, opts)
	if err != nil {
		return fmt.Errorf("load csv: %w", err)
	}
	return d.replace(entries)
}

// ImportCSV writes delimited text into the document with its first field at
// at, as one undoable action, and returns the number of cells written.
// Existing cells outside the imported fields are kept.
func (d *Document) ImportCSV(r io.Reader, at CellRef, opts CSVOptions) (int, error) {
	if !at.Valid() {
		return 0, fmt.Errorf("import csv at %s: invalid cell reference", at)
	}
	entries, err := readCSVAt(r, opts, at)
	if err != nil {
		return 0, fmt.Errorf("import csv: %w", err)
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("import csv: %w", ErrEmptyImport)
	}
	_, err = d.mutate("import csv at "+at.String(), func() ([]CellRef, error) {
		var changed []CellRef
		for _, e := range entries {
			refs, err := d.sh.put(e.Ref, e.Cell)
			if err != nil {
				return nil, fmt.Errorf("import csv: %w", err)
			}
			changed = append(changed, refs...)
		}
		return changed, nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// WriteCSV exports the document as delimited text.
func (d *Document) WriteCSV(w io.Writer, opts CSVOptions) error {
	defer d.rlock()()
	return WriteCSV(w, d.sh.store, opts)
}
