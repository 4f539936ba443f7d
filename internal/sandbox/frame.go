package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

// DataFrame exposes a table to generated code. Row labels are always
// positions.
type DataFrame struct {
	tbl    *table.Table
	frozen bool
}

var (
	_ starlark.HasAttrs  = (*DataFrame)(nil)
	_ starlark.HasSetKey = (*DataFrame)(nil)
	_ starlark.Sequence  = (*DataFrame)(nil)
)

func NewDataFrame(tbl *table.Table) *DataFrame {
	if tbl == nil {
		tbl = &table.Table{}
	}
	return &DataFrame{tbl: tbl}
}

// Table returns the frame's backing table.
func (d *DataFrame) Table() *table.Table { return d.tbl }

func (d *DataFrame) String() string       { return d.tbl.String() }
func (d *DataFrame) Type() string         { return "DataFrame" }
func (d *DataFrame) Freeze()              { d.frozen = true }
func (d *DataFrame) Truth() starlark.Bool { return d.tbl.NumRows() > 0 }
func (d *DataFrame) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: DataFrame")
}
func (d *DataFrame) Len() int { return d.tbl.NumRows() }

// Iterate yields column names, like iterating a pandas DataFrame.
func (d *DataFrame) Iterate() starlark.Iterator {
	names := d.tbl.ColumnNames()
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = name
	}
	return &cellIterator{values: values}
}

func (d *DataFrame) Get(key starlark.Value) (starlark.Value, bool, error) {
	switch k := key.(type) {
	case starlark.String:
		column, err := d.tbl.Column(string(k))
		if err != nil {
			return nil, false, nil
		}
		return seriesFromColumn(column), true, nil
	case *starlark.List, starlark.Tuple:
		names, err := stringList(k)
		if err != nil {
			return nil, false, err
		}
		selected, err := d.selectColumns(names)
		if err != nil {
			return nil, false, err
		}
		return selected, true, nil
	case *Series:
		indices, err := maskIndices(k, d.tbl.NumRows())
		if err != nil {
			return nil, false, err
		}
		return NewDataFrame(d.tbl.Take(indices)), true, nil
	}
	return nil, false, fmt.Errorf("DataFrame indices must be a column name, a list of names or a boolean Series, got %s", key.Type())
}

func (d *DataFrame) SetKey(key, value starlark.Value) error {
	if d.frozen {
		return fmt.Errorf("cannot assign to a frozen DataFrame")
	}
	name, ok := key.(starlark.String)
	if !ok {
		return fmt.Errorf("column name must be a string, got %s", key.Type())
	}
	column, err := d.columnFrom(string(name), value)
	if err != nil {
		return err
	}
	if index := d.tbl.ColumnIndex(string(name)); index >= 0 {
		d.tbl.Columns[index] = column
		return nil
	}
	d.tbl.Columns = append(d.tbl.Columns, column)
	return nil
}

// columnFrom broadcasts a scalar or checks the length of a sequence.
func (d *DataFrame) columnFrom(name string, value starlark.Value) (table.Column, error) {
	rows := d.tbl.NumRows()
	var values []any
	switch v := value.(type) {
	case *Series, *starlark.List, starlark.Tuple:
		cells, err := iterableValues(v)
		if err != nil {
			return table.Column{}, err
		}
		if d.tbl.NumColumns() > 0 && len(cells) != rows {
			return table.Column{}, fmt.Errorf("length of values (%d) does not match length of index (%d)", len(cells), rows)
		}
		values = cells
	default:
		cell, err := fromStarlark(value)
		if err != nil {
			return table.Column{}, err
		}
		values = make([]any, rows)
		for i := range values {
			values[i] = cell
		}
	}
	columnType := table.InferType(values)
	if s, ok := value.(*Series); ok && len(values) > 0 {
		columnType = s.dtype
	}
	return table.Column{Name: name, Type: columnType, Values: coerceAll(columnType, values)}, nil
}

func (d *DataFrame) selectColumns(names []string) (*DataFrame, error) {
	columns := make([]table.Column, 0, len(names))
	for _, name := range names {
		column, err := d.tbl.Column(name)
		if err != nil {
			return nil, err
		}
		values := append([]any(nil), column.Values...)
		columns = append(columns, table.Column{Name: column.Name, Type: column.Type, Values: values})
	}
	return NewDataFrame(&table.Table{Columns: columns}), nil
}

func (d *DataFrame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		names := d.tbl.ColumnNames()
		items := make([]starlark.Value, len(names))
		for i, n := range names {
			items[i] = starlark.String(n)
		}
		return starlark.NewList(items), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(d.tbl.NumRows()), starlark.MakeInt(d.tbl.NumColumns())}, nil
	case "size":
		return starlark.MakeInt(d.tbl.NumRows() * d.tbl.NumColumns()), nil
	case "empty":
		return starlark.Bool(d.tbl.NumRows() == 0), nil
	case "dtypes":
		labels := make([]any, 0, d.tbl.NumColumns())
		types := make([]any, 0, d.tbl.NumColumns())
		for _, column := range d.tbl.Columns {
			labels = append(labels, column.Name)
			types = append(types, string(column.Type))
		}
		return newSeries("", types, []table.Column{{Type: table.TypeString, Values: labels}}), nil
	case "index":
		items := make([]starlark.Value, d.tbl.NumRows())
		for i := range items {
			items[i] = starlark.MakeInt(i)
		}
		return starlark.NewList(items), nil
	case "plot":
		return &plotAccessor{owner: "DataFrame", draw: d.draw}, nil
	}
	if method, ok := frameMethods[name]; ok {
		return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return method(thread, d, b.Name(), args, kwargs)
		}), nil
	}
	// Columns are reachable as attributes when they do not shadow anything.
	if column, err := d.tbl.Column(name); err == nil {
		return seriesFromColumn(column), nil
	}
	return nil, nil
}

func (d *DataFrame) AttrNames() []string {
	names := []string{"columns", "dtypes", "empty", "index", "plot", "shape", "size"}
	for name := range frameMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
