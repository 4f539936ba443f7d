package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

// GroupBy is the value returned by DataFrame.groupby. Aggregations return a
// Series when a single column was selected and a DataFrame otherwise; the
// group keys always come first, ordered ascending.
type GroupBy struct {
	tbl       *table.Table
	keys      []string
	selection []string
	single    bool
}

var (
	_ starlark.HasAttrs = (*GroupBy)(nil)
	_ starlark.Mapping  = (*GroupBy)(nil)
	_ starlark.Iterable = (*GroupBy)(nil)
)

func newGroupBy(tbl *table.Table, keys []string) *GroupBy {
	return &GroupBy{tbl: tbl, keys: keys}
}

func (g *GroupBy) String() string {
	return fmt.Sprintf("<DataFrameGroupBy by=[%s]>", strings.Join(g.keys, ", "))
}
func (g *GroupBy) Type() string         { return "DataFrameGroupBy" }
func (g *GroupBy) Freeze()              {}
func (g *GroupBy) Truth() starlark.Bool { return true }
func (g *GroupBy) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: DataFrameGroupBy")
}

// Get selects the aggregated columns: a string yields a Series result, a list
// a DataFrame result.
func (g *GroupBy) Get(key starlark.Value) (starlark.Value, bool, error) {
	if name, ok := stringArg(key); ok {
		if g.tbl.ColumnIndex(name) < 0 {
			return nil, false, fmt.Errorf("%w: %q", table.ErrColumnNotFound, name)
		}
		return &GroupBy{tbl: g.tbl, keys: g.keys, selection: []string{name}, single: true}, true, nil
	}
	names, err := stringList(key)
	if err != nil {
		return nil, false, err
	}
	for _, name := range names {
		if g.tbl.ColumnIndex(name) < 0 {
			return nil, false, fmt.Errorf("%w: %q", table.ErrColumnNotFound, name)
		}
	}
	return &GroupBy{tbl: g.tbl, keys: g.keys, selection: names}, true, nil
}

// Iterate yields (key, frame) pairs like iterating a pandas GroupBy.
func (g *GroupBy) Iterate() starlark.Iterator {
	groups, keyColumns, err := g.groups()
	items := make([]starlark.Value, 0, len(groups))
	if err == nil {
		for i, rows := range groups {
			var key starlark.Value
			if len(keyColumns) == 1 {
				key = toStarlark(keyColumns[0].Values[i])
			} else {
				parts := make(starlark.Tuple, len(keyColumns))
				for level, column := range keyColumns {
					parts[level] = toStarlark(column.Values[i])
				}
				key = parts
			}
			items = append(items, starlark.Tuple{key, NewDataFrame(g.tbl.Take(rows))})
		}
	}
	return starlark.NewList(items).Iterate()
}

func (g *GroupBy) Attr(name string) (starlark.Value, error) {
	if _, ok := aggregations[name]; ok {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack(b.Name(), args, kwargs, "numeric_only?", new(bool)); err != nil {
				return nil, err
			}
			return g.aggregateFrame(name)
		}), nil
	}
	switch name {
	case "agg", "aggregate":
		return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var spec starlark.Value
			if err := unpack(name, args, kwargs, "func", &spec); err != nil {
				return nil, err
			}
			return g.agg(spec)
		}), nil
	case "transform":
		return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var fn string
			if err := unpack(name, args, kwargs, "func", &fn); err != nil {
				return nil, err
			}
			return g.transform(fn)
		}), nil
	case "ngroups":
		groups, _, err := g.groups()
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt(len(groups)), nil
	}
	if !g.single && g.tbl.ColumnIndex(name) >= 0 {
		return &GroupBy{tbl: g.tbl, keys: g.keys, selection: []string{name}, single: true}, nil
	}
	return nil, nil
}

func (g *GroupBy) AttrNames() []string {
	names := []string{"agg", "aggregate", "ngroups", "transform"}
	for name := range aggregations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// groups returns the row positions of each group and one column per key
// holding the group labels. Rows with a missing key are dropped.
func (g *GroupBy) groups() ([][]int, []table.Column, error) {
	keyColumns := make([]table.Column, len(g.keys))
	for i, key := range g.keys {
		column, err := g.tbl.Column(key)
		if err != nil {
			return nil, nil, err
		}
		keyColumns[i] = column
	}

	index := make(map[string]int)
	var groups [][]int
	var firstRow []int
	for row := 0; row < g.tbl.NumRows(); row++ {
		parts := make([]string, len(keyColumns))
		missing := false
		for i, column := range keyColumns {
			if isMissing(column.Values[row]) {
				missing = true
				break
			}
			parts[i] = cellKey(column.Values[row])
		}
		if missing {
			continue
		}
		key := strings.Join(parts, "\x1f")
		position, ok := index[key]
		if !ok {
			position = len(groups)
			index[key] = position
			groups = append(groups, nil)
			firstRow = append(firstRow, row)
		}
		groups[position] = append(groups[position], row)
	}

	order := sortedIndices(len(groups), func(a, b int) bool {
		for _, column := range keyColumns {
			c := compareCells(column.Values[firstRow[a]], column.Values[firstRow[b]])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	sorted := make([][]int, len(groups))
	labels := make([]table.Column, len(keyColumns))
	for i, column := range keyColumns {
		labels[i] = table.Column{Name: column.Name, Type: column.Type, Values: make([]any, len(groups))}
	}
	for j, i := range order {
		sorted[j] = groups[i]
		for level, column := range keyColumns {
			labels[level].Values[j] = column.Values[firstRow[i]]
		}
	}
	return sorted, labels, nil
}

// targets lists the columns an aggregation runs over.
func (g *GroupBy) targets(name string) ([]table.Column, error) {
	names := g.selection
	explicit := names != nil
	if !explicit {
		isKey := make(map[string]bool, len(g.keys))
		for _, key := range g.keys {
			isKey[key] = true
		}
		for _, column := range g.tbl.Columns {
			if !isKey[column.Name] {
				names = append(names, column.Name)
			}
		}
	}
	columns := make([]table.Column, 0, len(names))
	for _, columnName := range names {
		column, err := g.tbl.Column(columnName)
		if err != nil {
			return nil, err
		}
		if name != "size" && !appliesTo(name, column.Type) {
			if explicit {
				return nil, fmt.Errorf("cannot compute %s of %s column %q", name, column.Type, column.Name)
			}
			continue
		}
		columns = append(columns, column)
	}
	return columns, nil
}

func (g *GroupBy) aggregateFrame(name string) (starlark.Value, error) {
	if _, ok := aggregations[name]; !ok {
		return nil, fmt.Errorf("unsupported aggregation %q", name)
	}
	groups, keyColumns, err := g.groups()
	if err != nil {
		return nil, err
	}
	if name == "size" {
		sizes := make([]any, len(groups))
		for i, rows := range groups {
			sizes[i] = int64(len(rows))
		}
		return newSeries("size", sizes, keyColumns), nil
	}
	columns, err := g.targets(name)
	if err != nil {
		return nil, err
	}
	results := make([]table.Column, 0, len(columns))
	for _, column := range columns {
		result, err := aggregateColumn(name, column, groups)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if g.single && len(results) == 1 {
		return newSeries(results[0].Name, results[0].Values, keyColumns), nil
	}
	return NewDataFrame(&table.Table{Columns: append(keyColumns, results...)}), nil
}

func aggregateColumn(name string, column table.Column, groups [][]int) (table.Column, error) {
	values := make([]any, len(groups))
	for i, rows := range groups {
		cells := make([]any, len(rows))
		for j, row := range rows {
			cells[j] = column.Values[row]
		}
		value, err := reduce(name, column.Type, cells)
		if err != nil {
			return table.Column{}, fmt.Errorf("%s of %q: %w", name, column.Name, err)
		}
		values[i] = value
	}
	columnType := table.InferType(values)
	return table.Column{Name: column.Name, Type: columnType, Values: coerceAll(columnType, values)}, nil
}

// agg accepts an aggregation name, a list of names, or a dict mapping column
// names to a name or list of names.
func (g *GroupBy) agg(spec starlark.Value) (starlark.Value, error) {
	if name, ok := stringArg(spec); ok {
		return g.aggregateFrame(name)
	}
	groups, keyColumns, err := g.groups()
	if err != nil {
		return nil, err
	}

	type target struct {
		column string
		funcs  []string
	}
	var targets []target
	multi := false
	switch v := spec.(type) {
	case *starlark.Dict:
		for _, item := range v.Items() {
			columnName, ok := stringArg(item[0])
			if !ok {
				return nil, fmt.Errorf("agg: column names must be strings")
			}
			funcs, err := stringList(item[1])
			if err != nil {
				return nil, fmt.Errorf("agg: %w", err)
			}
			if _, isName := item[1].(starlark.String); !isName {
				multi = true
			}
			targets = append(targets, target{column: columnName, funcs: funcs})
		}
	case *starlark.List, starlark.Tuple:
		funcs, err := stringList(v)
		if err != nil {
			return nil, fmt.Errorf("agg: %w", err)
		}
		columns, err := g.targets("count")
		if err != nil {
			return nil, err
		}
		for _, column := range columns {
			targets = append(targets, target{column: column.Name, funcs: funcs})
		}
		multi = len(columns) > 1 || !g.single
	default:
		return nil, fmt.Errorf("agg: unsupported argument of type %s", spec.Type())
	}

	out := &table.Table{Columns: keyColumns}
	for _, t := range targets {
		column, err := g.tbl.Column(t.column)
		if err != nil {
			return nil, fmt.Errorf("agg: %w", err)
		}
		for _, fn := range t.funcs {
			if _, ok := aggregations[fn]; !ok {
				return nil, fmt.Errorf("agg: unsupported aggregation %q", fn)
			}
			result, err := aggregateColumn(fn, column, groups)
			if err != nil {
				return nil, err
			}
			if multi {
				result.Name = column.Name + "_" + fn
			} else if len(t.funcs) > 1 || g.single {
				result.Name = fn
			}
			out.Columns = append(out.Columns, result)
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("agg: %w", err)
	}
	return NewDataFrame(out), nil
}

// transform broadcasts a per-group aggregate back onto the original rows.
func (g *GroupBy) transform(name string) (starlark.Value, error) {
	if !g.single {
		return nil, fmt.Errorf("transform: select a single column first")
	}
	column, err := g.tbl.Column(g.selection[0])
	if err != nil {
		return nil, err
	}
	groups, _, err := g.groups()
	if err != nil {
		return nil, err
	}
	aggregated, err := aggregateColumn(name, column, groups)
	if err != nil {
		return nil, err
	}
	values := make([]any, g.tbl.NumRows())
	for i, rows := range groups {
		for _, row := range rows {
			values[row] = aggregated.Values[i]
		}
	}
	columnType := table.InferType(values)
	return newSeries(column.Name, coerceAll(columnType, values), nil), nil
}
