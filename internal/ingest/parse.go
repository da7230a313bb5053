package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/fdg312/adreport/internal/schema"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FatalError aborts a whole import: the source cannot be read as a table.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// Table is a parsed source: the header resolved to field names (empty for
// ignored columns) and the raw data rows in source order.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Recognized returns the number of columns mapped to a registered field.
func (t *Table) Recognized() int {
	n := 0
	for _, c := range t.Columns {
		if c != "" {
			n++
		}
	}
	return n
}

// Parse reads the whole CSV source. Rows with a wrong number of fields are
// kept so the coercer can report them individually.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fatal("source is empty", nil)
	}
	if err != nil {
		return nil, fatal("cannot read header", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name, ok := schema.ResolveHeader(h)
		if !ok {
			continue
		}
		if seen[name] {
			return nil, fatal(fmt.Sprintf("duplicate column %q", h), nil)
		}
		seen[name] = true
		columns[i] = name
	}

	table := &Table{Columns: columns}
	if table.Recognized() == 0 {
		return nil, fatal("no recognised columns in header", nil)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fatal("malformed csv", err)
		}
		table.Rows = append(table.Rows, rec)
	}

	return table, nil
}
