// Package table holds the in-memory tabular structure the pipeline loads
// portal CSV files into, plus its CSV and Parquet codecs.
package table

import (
	"strconv"
	"strings"
)

// Kind is the inferred type of a column.
type Kind int

const (
	Text Kind = iota
	Int
	Float
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	default:
		return "text"
	}
}

// Cell is a nullable value. Raw text is kept for every kind.
type Cell struct {
	Value string
	Valid bool
}

// Null is the absent cell.
var Null = Cell{}

// Str returns a non-null cell holding s.
func Str(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// Column describes one table column.
type Column struct {
	Name string
	Kind Kind
}

// Table is a set of named columns and rows of cells. Every row has exactly
// len(Columns) cells.
type Table struct {
	Columns []Column
	Rows    [][]Cell
}

// New returns an empty table with text columns of the given names.
func New(names ...string) *Table {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: Text}
	}
	return &Table{Columns: cols}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Append adds a row. Short rows are padded with nulls.
func (t *Table) Append(cells ...Cell) {
	row := make([]Cell, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Set assigns v to every row of the named column, adding it as a text
// column when missing.
func (t *Table) Set(name string, v Cell) {
	idx := t.Index(name)
	if idx < 0 {
		t.Columns = append(t.Columns, Column{Name: name, Kind: Text})
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], v)
		}
		return
	}
	t.Columns[idx].Kind = Text
	for i := range t.Rows {
		t.Rows[i][idx] = v
	}
}

// Values returns the cells of the named column, or nil when it is missing.
func (t *Table) Values(name string) []Cell {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]Cell, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// Filter returns a table with the same columns holding the rows keep
// accepts. Rows are shared with t.
func (t *Table) Filter(keep func(row []Cell) bool) *Table {
	out := &Table{Columns: append([]Column(nil), t.Columns...)}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// TrimText strips leading and trailing whitespace from every value of every
// text column. Numeric columns are left as they are.
func (t *Table) TrimText() {
	for ci, col := range t.Columns {
		if col.Kind != Text {
			continue
		}
		for _, row := range t.Rows {
			if row[ci].Valid {
				row[ci].Value = strings.TrimSpace(row[ci].Value)
			}
		}
	}
}

// InferKinds sets each column's kind from its non-null values. A column
// whose values all parse as int64 is Int, as float64 is Float, anything else
// is Text. Columns with no values at all are Float.
func (t *Table) InferKinds() {
	for ci := range t.Columns {
		t.Columns[ci].Kind = t.inferKind(ci)
	}
}

func (t *Table) inferKind(ci int) Kind {
	kind := Int
	seen := false
	for _, row := range t.Rows {
		c := row[ci]
		if !c.Valid {
			continue
		}
		seen = true
		v := strings.TrimSpace(c.Value)
		if kind == Int {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			kind = Float
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return Text
		}
	}
	if !seen {
		return Float
	}
	return kind
}

// Concat stacks tables row-wise. The result's columns are the union of the
// inputs' columns in first-seen order; cells a table lacks are null. Column
// kinds are widened: any text makes text, int and float make float.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := make(map[string]int)
	for _, tb := range tables {
		for _, c := range tb.Columns {
			idx, ok := pos[c.Name]
			if !ok {
				pos[c.Name] = len(out.Columns)
				out.Columns = append(out.Columns, c)
				continue
			}
			out.Columns[idx].Kind = widen(out.Columns[idx].Kind, c.Kind)
		}
	}

	for _, tb := range tables {
		mapping := make([]int, len(tb.Columns))
		for i, c := range tb.Columns {
			mapping[i] = pos[c.Name]
		}
		for _, row := range tb.Rows {
			merged := make([]Cell, len(out.Columns))
			for i, cell := range row {
				merged[mapping[i]] = cell
			}
			out.Rows = append(out.Rows, merged)
		}
	}
	return out
}

func widen(a, b Kind) Kind {
	switch {
	case a == b:
		return a
	case a == Text || b == Text:
		return Text
	default:
		return Float
	}
}
