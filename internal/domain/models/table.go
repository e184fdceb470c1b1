package models

import "fmt"

// Column describes one field of the table schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered column set of a table. The first batch establishes it;
// later batches may only add columns at the end, never change a column's kind.
type Schema struct {
	Columns []Column
}

// Index returns the position of a column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the schema contains the column.
func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Extend returns the schema widened by the fields of rows. It fails with
// ErrSchemaMismatch when a row holds a value whose kind conflicts with an
// existing column. The receiver is not modified.
func (s Schema) Extend(rows []Row) (Schema, error) {
	cols := make([]Column, len(s.Columns), len(s.Columns)+8)
	copy(cols, s.Columns)
	next := Schema{Columns: cols}

	for i, r := range rows {
		for _, f := range r.Fields {
			idx := next.Index(f.Name)
			if idx < 0 {
				next.Columns = append(next.Columns, Column{Name: f.Name, Kind: f.Value.Kind})
				continue
			}
			if next.Columns[idx].Kind != f.Value.Kind {
				return s, fmt.Errorf("%w: row %d column %q is %s, schema has %s",
					ErrSchemaMismatch, i, f.Name, f.Value.Kind, next.Columns[idx].Kind)
			}
		}
	}
	return next, nil
}

// Conform returns r with its fields in schema order. Fields unknown to the
// schema keep their relative order at the end.
func (s Schema) Conform(r Row) Row {
	out := make([]Field, 0, len(r.Fields))
	for _, c := range s.Columns {
		if v, ok := r.Get(c.Name); ok {
			out = append(out, Field{Name: c.Name, Value: v})
		}
	}
	for _, f := range r.Fields {
		if !s.Has(f.Name) {
			out = append(out, f)
		}
	}
	return Row{Fields: out}
}

// Table is a read-only view of the accumulated rows. Its Rows slice belongs
// to the holder, but each row's Fields may be shared with other views and
// must not be written.
type Table struct {
	Schema Schema
	Rows   []Row
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// IsEmpty reports whether the table holds no rows.
func (t Table) IsEmpty() bool { return len(t.Rows) == 0 }

// Equal compares schemas and rows in order.
func (t Table) Equal(o Table) bool {
	if len(t.Schema.Columns) != len(o.Schema.Columns) || len(t.Rows) != len(o.Rows) {
		return false
	}
	for i := range t.Schema.Columns {
		if t.Schema.Columns[i] != o.Schema.Columns[i] {
			return false
		}
	}
	for i := range t.Rows {
		if !t.Rows[i].Equal(o.Rows[i]) {
			return false
		}
	}
	return true
}

// NewTable builds a table from rows, deriving the schema from them. Rows are
// copied into schema field order.
func NewTable(rows []Row) (Table, error) {
	schema, err := Schema{}.Extend(rows)
	if err != nil {
		return Table{}, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = schema.Conform(r)
	}
	return Table{Schema: schema, Rows: out}, nil
}
