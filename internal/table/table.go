package table

import (
	"errors"
	"fmt"
	"time"
)

// Type is a column's scalar type, spelled the way pandas reports dtypes.
type Type string

const (
	TypeInt    Type = "int64"
	TypeFloat  Type = "float64"
	TypeBool   Type = "bool"
	TypeString Type = "object"
	TypeTime   Type = "datetime64[ns]"
)

var ErrColumnNotFound = errors.New("column not found")

// Column holds one named column. Values are int64, float64, bool, string,
// time.Time or nil for a missing cell.
type Column struct {
	Name   string
	Type   Type
	Values []any
}

type Table struct {
	Columns []Column
}

func New(columns ...Column) (*Table, error) {
	t := &Table{Columns: columns}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	rows := -1
	for _, column := range t.Columns {
		if _, ok := seen[column.Name]; ok {
			return fmt.Errorf("duplicate column %q", column.Name)
		}
		seen[column.Name] = struct{}{}
		if rows >= 0 && len(column.Values) != rows {
			return fmt.Errorf("column %q has %d values, want %d", column.Name, len(column.Values), rows)
		}
		rows = len(column.Values)
	}
	return nil
}

func (t *Table) NumRows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

func (t *Table) NumColumns() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, 0, t.NumColumns())
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

func (t *Table) ColumnIndex(name string) int {
	for i, column := range t.Columns {
		if column.Name == name {
			return i
		}
	}
	return -1
}

func (t *Table) Column(name string) (Column, error) {
	index := t.ColumnIndex(name)
	if index < 0 {
		return Column{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return t.Columns[index], nil
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.Columns))
	for c, column := range t.Columns {
		row[c] = column.Values[i]
	}
	return row
}

func (t *Table) Rows() [][]any {
	rows := make([][]any, t.NumRows())
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// Clone returns a deep copy; no value slice is shared with t.
func (t *Table) Clone() *Table {
	if t == nil {
		return &Table{}
	}
	columns := make([]Column, len(t.Columns))
	for i, column := range t.Columns {
		values := make([]any, len(column.Values))
		copy(values, column.Values)
		columns[i] = Column{Name: column.Name, Type: column.Type, Values: values}
	}
	return &Table{Columns: columns}
}

func (t *Table) Head(n int) *Table {
	return t.Slice(0, n)
}

func (t *Table) Tail(n int) *Table {
	rows := t.NumRows()
	if n > rows {
		n = rows
	}
	return t.Slice(rows-n, rows)
}

// Slice copies rows [from, to), clamped to the table bounds.
func (t *Table) Slice(from, to int) *Table {
	rows := t.NumRows()
	if from < 0 {
		from = 0
	}
	if to > rows {
		to = rows
	}
	if to < from {
		to = from
	}
	columns := make([]Column, len(t.Columns))
	for i, column := range t.Columns {
		values := make([]any, to-from)
		copy(values, column.Values[from:to])
		columns[i] = Column{Name: column.Name, Type: column.Type, Values: values}
	}
	return &Table{Columns: columns}
}

// Take copies the given row positions in order.
func (t *Table) Take(indices []int) *Table {
	columns := make([]Column, len(t.Columns))
	for i, column := range t.Columns {
		values := make([]any, len(indices))
		for j, index := range indices {
			values[j] = column.Values[index]
		}
		columns[i] = Column{Name: column.Name, Type: column.Type, Values: values}
	}
	return &Table{Columns: columns}
}

// InferType picks the narrowest type able to hold every non-nil value.
func InferType(values []any) Type {
	var seen Type
	for _, value := range values {
		var current Type
		switch value.(type) {
		case nil:
			continue
		case int64:
			current = TypeInt
		case float64:
			current = TypeFloat
		case bool:
			current = TypeBool
		case time.Time:
			current = TypeTime
		default:
			return TypeString
		}
		switch {
		case seen == "":
			seen = current
		case seen == current:
		case (seen == TypeInt && current == TypeFloat) || (seen == TypeFloat && current == TypeInt):
			seen = TypeFloat
		default:
			return TypeString
		}
	}
	if seen == "" {
		return TypeFloat
	}
	return seen
}

// IsNumeric reports whether a column of this type takes part in numeric reductions.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}
