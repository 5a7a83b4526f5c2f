// Package table provides the immutable, column-major in-memory table that every
// pipeline stage consumes and produces.
package table

import (
	"github.com/rotisserie/eris"
)

var (
	// ErrMissingColumn is returned when an operation names a column the table lacks.
	ErrMissingColumn = eris.New("table: missing column")

	// ErrDuplicateKey is returned when a column expected to be unique repeats a value.
	ErrDuplicateKey = eris.New("table: duplicate key")

	// ErrLengthMismatch is returned when columns of different lengths are combined.
	ErrLengthMismatch = eris.New("table: column length mismatch")
)

// Table is an ordered set of equally sized named columns. Cells are nil (null),
// string, int64, float64, bool, time.Time or a go-geom geometry.
//
// A Table is a snapshot: operations return a new Table and never write into the
// column slices of the receiver. Column slices may be shared between snapshots.
type Table struct {
	names []string
	index map[string]int
	cols  [][]any
	n     int
}

// New builds a table from parallel name and column slices.
func New(names []string, cols [][]any) (*Table, error) {
	if len(names) != len(cols) {
		return nil, eris.Wrapf(ErrLengthMismatch, "%d names for %d columns", len(names), len(cols))
	}

	t := &Table{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
		cols:  make([][]any, len(cols)),
	}
	copy(t.names, names)
	copy(t.cols, cols)

	for i, name := range names {
		if _, dup := t.index[name]; dup {
			return nil, eris.Errorf("table: duplicate column name %q", name)
		}
		t.index[name] = i
		if i == 0 {
			t.n = len(cols[i])
			continue
		}
		if len(cols[i]) != t.n {
			return nil, eris.Wrapf(ErrLengthMismatch, "column %q has %d rows, want %d", name, len(cols[i]), t.n)
		}
	}

	return t, nil
}

// FromRows builds a table from row-major data. Short rows are padded with nulls.
func FromRows(names []string, rows [][]any) (*Table, error) {
	cols := make([][]any, len(names))
	for c := range cols {
		cols[c] = make([]any, len(rows))
	}
	for r, row := range rows {
		if len(row) > len(names) {
			return nil, eris.Wrapf(ErrLengthMismatch, "row %d has %d cells for %d columns", r, len(row), len(names))
		}
		for c, v := range row {
			cols[c][r] = v
		}
	}
	return New(names, cols)
}

// MustNew is New for fixtures and literals; it panics on error.
func MustNew(names []string, cols [][]any) *Table {
	t, err := New(names, cols)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return t.n }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.names) }

// Names returns a copy of the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the values of the named column. The slice must not be modified.
func (t *Table) Column(name string) ([]any, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, eris.Wrapf(ErrMissingColumn, "column %q", name)
	}
	return t.cols[i], nil
}

// Value returns a single cell, or nil when the column is absent.
func (t *Table) Value(row int, name string) any {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.cols[i][row]
}

// Row returns the cells of one row in column order.
func (t *Table) Row(row int) []any {
	out := make([]any, len(t.cols))
	for c := range t.cols {
		out[c] = t.cols[c][row]
	}
	return out
}

// Rows returns the table in row-major form.
func (t *Table) Rows() [][]any {
	out := make([][]any, t.n)
	for r := range out {
		out[r] = t.Row(r)
	}
	return out
}

// Select returns a table restricted to the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([][]any, 0, len(names))
	for _, name := range names {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	out, err := New(names, cols)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		out.n = t.n
	}
	return out, nil
}

// Drop returns a table without the named columns. Every name must exist.
func (t *Table) Drop(names ...string) (*Table, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if !t.Has(name) {
			return nil, eris.Wrapf(ErrMissingColumn, "drop column %q", name)
		}
		drop[name] = true
	}

	keep := make([]string, 0, len(t.names))
	for _, name := range t.names {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	return t.Select(keep...)
}

// Rename returns a table with one column renamed.
func (t *Table) Rename(from, to string) (*Table, error) {
	i, ok := t.index[from]
	if !ok {
		return nil, eris.Wrapf(ErrMissingColumn, "rename column %q", from)
	}
	names := t.Names()
	names[i] = to
	return New(names, t.cols)
}

// AddSuffix returns a table with suffix appended to every column name.
func (t *Table) AddSuffix(suffix string) *Table {
	names := make([]string, len(t.names))
	for i, name := range t.names {
		names[i] = name + suffix
	}
	out, _ := New(names, t.cols)
	out.n = t.n
	return out
}

// WithColumn returns a table with the named column replaced, or appended when absent.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	if len(t.names) > 0 && len(values) != t.n {
		return nil, eris.Wrapf(ErrLengthMismatch, "column %q has %d rows, want %d", name, len(values), t.n)
	}

	names := t.Names()
	cols := make([][]any, len(t.cols), len(t.cols)+1)
	copy(cols, t.cols)

	if i, ok := t.index[name]; ok {
		cols[i] = values
	} else {
		names = append(names, name)
		cols = append(cols, values)
	}
	return New(names, cols)
}

// Filter returns the rows for which keep reports true, in their original order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	rows := make([]int, 0, t.n)
	for r := 0; r < t.n; r++ {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return t.Take(rows)
}

// Take gathers rows by index. An index of -1 produces a row of nulls, which is how
// joins materialise unmatched sides.
func (t *Table) Take(rows []int) *Table {
	cols := make([][]any, len(t.cols))
	for c, src := range t.cols {
		dst := make([]any, len(rows))
		for i, r := range rows {
			if r >= 0 {
				dst[i] = src[r]
			}
		}
		cols[c] = dst
	}
	out := &Table{names: t.Names(), index: make(map[string]int, len(t.names)), cols: cols, n: len(rows)}
	for i, name := range out.names {
		out.index[name] = i
	}
	return out
}

// KeyIndex maps the canonical key string of every non-null value in the named
// column to its row. A repeated key yields ErrDuplicateKey.
func (t *Table) KeyIndex(name string) (map[string]int, error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(col))
	for r, v := range col {
		key, ok := Key(v)
		if !ok {
			continue
		}
		if prior, dup := idx[key]; dup {
			return nil, eris.Wrapf(ErrDuplicateKey, "column %q value %q at rows %d and %d", name, key, prior, r)
		}
		idx[key] = r
	}
	return idx, nil
}
