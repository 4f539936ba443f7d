package sandbox

import (
	"fmt"
	"math"
	"strings"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/query"
	"github.com/askframe/askframe/internal/table"
)

type frameMethod func(thread *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var frameMethods map[string]frameMethod

func init() {
	frameMethods = map[string]frameMethod{
		"copy":            frameCopy,
		"corr":            frameCorr,
		"describe":        frameDescribe,
		"drop":            frameDrop,
		"drop_duplicates": frameDropDuplicates,
		"dropna":          frameDropNA,
		"fillna":          frameFillNA,
		"groupby":         frameGroupBy,
		"head":            frameHead,
		"merge":           frameMerge,
		"info":            frameInfo,
		"isna":            frameMissing(true),
		"isnull":          frameMissing(true),
		"nlargest":        frameExtremes(true),
		"notna":           frameMissing(false),
		"notnull":         frameMissing(false),
		"nsmallest":       frameExtremes(false),
		"pivot_table":     framePivotTable,
		"query":           frameQuery,
		"rename":          frameRename,
		"reset_index":     frameResetIndex,
		"round":           frameRound,
		"select_dtypes":   frameSelectDTypes,
		"sort_values":     frameSortValues,
		"tail":            frameTail,
		"to_string":       frameToString,
		"value_counts":    frameValueCounts,
	}
	for name := range aggregations {
		if name == "size" {
			continue
		}
		frameMethods[name] = frameReduce(name)
	}
}

func frameReduce(name string) frameMethod {
	return func(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var numericOnly bool
		if err := unpack(fn, args, kwargs, "numeric_only?", &numericOnly); err != nil {
			return nil, err
		}
		labels := make([]any, 0, d.tbl.NumColumns())
		values := make([]any, 0, d.tbl.NumColumns())
		for _, column := range d.tbl.Columns {
			if !appliesTo(name, column.Type) || (numericOnly && !column.Type.IsNumeric()) {
				continue
			}
			value, err := reduce(name, column.Type, column.Values)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			labels = append(labels, column.Name)
			values = append(values, value)
		}
		return newSeries("", values, []table.Column{{Type: table.TypeString, Values: labels}}), nil
	}
}

func frameHead(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := unpack(fn, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return NewDataFrame(d.tbl.Head(clamp(n, d.tbl.NumRows()))), nil
}

func frameTail(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := unpack(fn, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return NewDataFrame(d.tbl.Tail(clamp(n, d.tbl.NumRows()))), nil
}

func frameCopy(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	return NewDataFrame(d.tbl.Clone()), nil
}

func frameDescribe(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	numeric := false
	for _, column := range d.tbl.Columns {
		if column.Type.IsNumeric() {
			numeric = true
			break
		}
	}
	var columns []table.Column
	for _, column := range d.tbl.Columns {
		if column.Type.IsNumeric() != numeric {
			continue
		}
		labels, values := describeColumn(column.Type, column.Values)
		if columns == nil {
			columns = append(columns, table.Column{Name: "", Type: table.TypeString, Values: labels})
		}
		valueType := table.InferType(values)
		columns = append(columns, table.Column{Name: column.Name, Type: valueType, Values: coerceAll(valueType, values)})
	}
	return NewDataFrame(&table.Table{Columns: columns}), nil
}

func frameSortValues(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by starlark.Value
	var ascending starlark.Value = starlark.True
	if err := unpack(fn, args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
		return nil, err
	}
	names, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	directions := make([]bool, len(names))
	if list, ok := ascending.(*starlark.List); ok {
		if list.Len() != len(names) {
			return nil, fmt.Errorf("%s: length of ascending (%d) != length of by (%d)", fn, list.Len(), len(names))
		}
		for i := range directions {
			directions[i] = bool(list.Index(i).Truth())
		}
	} else {
		for i := range directions {
			directions[i] = bool(ascending.Truth())
		}
	}
	columns := make([]table.Column, len(names))
	for i, name := range names {
		column, err := d.tbl.Column(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		columns[i] = column
	}
	indices := sortedIndices(d.tbl.NumRows(), func(a, b int) bool {
		for i, column := range columns {
			left, right := column.Values[a], column.Values[b]
			if cellKey(left) == cellKey(right) {
				continue
			}
			return lessCells(left, right, directions[i])
		}
		return false
	})
	return NewDataFrame(d.tbl.Take(indices)), nil
}

func frameExtremes(largest bool) frameMethod {
	return func(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var n int
		var columns starlark.Value
		if err := unpack(fn, args, kwargs, "n", &n, "columns", &columns); err != nil {
			return nil, err
		}
		names, err := stringList(columns)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		keys := make([]table.Column, len(names))
		for i, name := range names {
			if keys[i], err = d.tbl.Column(name); err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
		}
		indices := sortedIndices(d.tbl.NumRows(), func(a, b int) bool {
			for _, column := range keys {
				left, right := column.Values[a], column.Values[b]
				if cellKey(left) == cellKey(right) {
					continue
				}
				return lessCells(left, right, !largest)
			}
			return false
		})
		kept := make([]int, 0, n)
		for _, i := range indices {
			if len(kept) == n {
				break
			}
			if !isMissing(keys[0].Values[i]) {
				kept = append(kept, i)
			}
		}
		return NewDataFrame(d.tbl.Take(kept)), nil
	}
}

func frameGroupBy(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by starlark.Value
	if err := unpack(fn, args, kwargs, "by", &by); err != nil {
		return nil, err
	}
	keys, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: no grouping keys", fn)
	}
	for _, key := range keys {
		if _, err := d.tbl.Column(key); err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
	}
	return newGroupBy(d.tbl, keys), nil
}

func frameValueCounts(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var subset starlark.Value = starlark.None
	var normalize, ascending bool
	if err := unpack(fn, args, kwargs, "subset?", &subset, "normalize?", &normalize, "sort?", new(bool), "ascending?", &ascending); err != nil {
		return nil, err
	}
	names := d.tbl.ColumnNames()
	if !isNone(subset) {
		var err error
		if names, err = stringList(subset); err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
	}
	if len(names) == 1 {
		column, err := d.tbl.Column(names[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		return valueCounts(column.Name, column.Type, column.Values, normalize, ascending), nil
	}
	combined := make([]any, d.tbl.NumRows())
	for row := range combined {
		parts := make([]string, len(names))
		for i, name := range names {
			column, err := d.tbl.Column(name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			parts[i] = table.FormatValue(column.Values[row])
		}
		combined[row] = "(" + strings.Join(parts, ", ") + ")"
	}
	return valueCounts(strings.Join(names, ", "), table.TypeString, combined, normalize, ascending), nil
}

func frameDropDuplicates(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var subset starlark.Value = starlark.None
	keep := "first"
	if err := unpack(fn, args, kwargs, "subset?", &subset, "keep?", &keep); err != nil {
		return nil, err
	}
	columns, err := d.subsetColumns(subset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	rows := d.tbl.NumRows()
	keyOf := func(row int) string {
		parts := make([]string, len(columns))
		for i, column := range columns {
			parts[i] = cellKey(column.Values[row])
		}
		return strings.Join(parts, "\x1f")
	}
	seen := make(map[string]int, rows)
	order := make([]int, 0, rows)
	for row := 0; row < rows; row++ {
		key := keyOf(row)
		if _, ok := seen[key]; ok {
			if keep == "last" {
				seen[key] = row
			}
			continue
		}
		seen[key] = row
		order = append(order, row)
	}
	kept := make([]int, 0, len(order))
	for _, row := range order {
		kept = append(kept, seen[keyOf(row)])
	}
	if keep == "last" {
		sortInts(kept)
	}
	return NewDataFrame(d.tbl.Take(kept)), nil
}

func sortInts(values []int) {
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && values[j] < values[j-1]; j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
}

func (d *DataFrame) subsetColumns(subset starlark.Value) ([]table.Column, error) {
	if isNone(subset) {
		return d.tbl.Columns, nil
	}
	names, err := stringList(subset)
	if err != nil {
		return nil, err
	}
	columns := make([]table.Column, len(names))
	for i, name := range names {
		if columns[i], err = d.tbl.Column(name); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

func frameDropNA(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var subset starlark.Value = starlark.None
	how := "any"
	if err := unpack(fn, args, kwargs, "subset?", &subset, "how?", &how); err != nil {
		return nil, err
	}
	columns, err := d.subsetColumns(subset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	kept := make([]int, 0, d.tbl.NumRows())
	for row := 0; row < d.tbl.NumRows(); row++ {
		missing := 0
		for _, column := range columns {
			if isMissing(column.Values[row]) {
				missing++
			}
		}
		drop := missing > 0
		if how == "all" {
			drop = len(columns) > 0 && missing == len(columns)
		}
		if !drop {
			kept = append(kept, row)
		}
	}
	return NewDataFrame(d.tbl.Take(kept)), nil
}

func frameFillNA(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := unpack(fn, args, kwargs, "value", &value); err != nil {
		return nil, err
	}
	out := d.tbl.Clone()
	for c := range out.Columns {
		fill := starlark.Value(value)
		if dict, ok := value.(*starlark.Dict); ok {
			found, ok, err := dict.Get(starlark.String(out.Columns[c].Name))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			fill = found
		}
		cell, err := fromStarlark(fill)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		for i, existing := range out.Columns[c].Values {
			if isMissing(existing) {
				out.Columns[c].Values[i] = cell
			}
		}
		out.Columns[c].Type = table.InferType(out.Columns[c].Values)
		out.Columns[c].Values = coerceAll(out.Columns[c].Type, out.Columns[c].Values)
	}
	return NewDataFrame(out), nil
}

func frameCorr(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	var numeric []table.Column
	for _, column := range d.tbl.Columns {
		if column.Type.IsNumeric() {
			numeric = append(numeric, column)
		}
	}
	labels := make([]any, len(numeric))
	for i, column := range numeric {
		labels[i] = column.Name
	}
	columns := []table.Column{{Name: "", Type: table.TypeString, Values: labels}}
	for _, column := range numeric {
		values := make([]any, len(numeric))
		for i, other := range numeric {
			values[i] = pearson(floatsOf(column.Values), floatsOf(other.Values))
		}
		columns = append(columns, table.Column{Name: column.Name, Type: table.TypeFloat, Values: values})
	}
	return NewDataFrame(&table.Table{Columns: columns}), nil
}

func frameRound(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	decimals := 0
	if err := unpack(fn, args, kwargs, "decimals?", &decimals); err != nil {
		return nil, err
	}
	out := d.tbl.Clone()
	for c := range out.Columns {
		for i, value := range out.Columns[c].Values {
			out.Columns[c].Values[i] = roundCell(value, decimals)
		}
	}
	return NewDataFrame(out), nil
}

func frameResetIndex(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var drop bool
	if err := unpack(fn, args, kwargs, "drop?", &drop); err != nil {
		return nil, err
	}
	out := d.tbl.Clone()
	if drop || out.ColumnIndex("index") >= 0 {
		return NewDataFrame(out), nil
	}
	positions := make([]any, out.NumRows())
	for i := range positions {
		positions[i] = int64(i)
	}
	out.Columns = append([]table.Column{{Name: "index", Type: table.TypeInt, Values: positions}}, out.Columns...)
	return NewDataFrame(out), nil
}

func frameRename(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var mapping *starlark.Dict
	if err := unpack(fn, args, kwargs, "columns", &mapping); err != nil {
		return nil, err
	}
	out := d.tbl.Clone()
	for c := range out.Columns {
		renamed, ok, err := mapping.Get(starlark.String(out.Columns[c].Name))
		if err != nil {
			return nil, err
		}
		if ok {
			name, isString := renamed.(starlark.String)
			if !isString {
				return nil, fmt.Errorf("%s: new column names must be strings", fn)
			}
			out.Columns[c].Name = string(name)
		}
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return NewDataFrame(out), nil
}

func frameDrop(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var labels, columns starlark.Value = starlark.None, starlark.None
	var axis starlark.Value = starlark.MakeInt(0)
	if err := unpack(fn, args, kwargs, "labels?", &labels, "axis?", &axis, "columns?", &columns); err != nil {
		return nil, err
	}
	target := columns
	if isNone(target) {
		if a, ok := stringArg(axis); ok && a != "columns" {
			return nil, fmt.Errorf("%s: only dropping columns is supported", fn)
		}
		if i, err := starlark.AsInt32(axis); err == nil && i != 1 {
			return nil, fmt.Errorf("%s: only dropping columns is supported (use axis=1 or columns=)", fn)
		}
		target = labels
	}
	names, err := stringList(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if d.tbl.ColumnIndex(name) < 0 {
			return nil, fmt.Errorf("%s: %w: %q", fn, table.ErrColumnNotFound, name)
		}
		drop[name] = true
	}
	out := d.tbl.Clone()
	kept := out.Columns[:0]
	for _, column := range out.Columns {
		if !drop[column.Name] {
			kept = append(kept, column)
		}
	}
	out.Columns = kept
	return NewDataFrame(out), nil
}

func frameMissing(want bool) frameMethod {
	return func(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, err
		}
		columns := make([]table.Column, len(d.tbl.Columns))
		for c, column := range d.tbl.Columns {
			values := make([]any, len(column.Values))
			for i, value := range column.Values {
				values[i] = isMissing(value) == want
			}
			columns[c] = table.Column{Name: column.Name, Type: table.TypeBool, Values: values}
		}
		return NewDataFrame(&table.Table{Columns: columns}), nil
	}
}

func frameSelectDTypes(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var include, exclude starlark.Value = starlark.None, starlark.None
	if err := unpack(fn, args, kwargs, "include?", &include, "exclude?", &exclude); err != nil {
		return nil, err
	}
	matches := func(selector starlark.Value, columnType table.Type) (bool, error) {
		names, err := stringList(selector)
		if err != nil {
			return false, err
		}
		for _, name := range names {
			if name == "number" && columnType.IsNumeric() {
				return true, nil
			}
			parsed, err := parseDType(name)
			if err != nil {
				return false, err
			}
			if parsed == columnType {
				return true, nil
			}
		}
		return false, nil
	}
	var columns []table.Column
	for _, column := range d.tbl.Columns {
		keep := true
		if !isNone(include) {
			ok, err := matches(include, column.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			keep = ok
		}
		if keep && !isNone(exclude) {
			ok, err := matches(exclude, column.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			keep = !ok
		}
		if keep {
			columns = append(columns, table.Column{Name: column.Name, Type: column.Type, Values: append([]any(nil), column.Values...)})
		}
	}
	return NewDataFrame(&table.Table{Columns: columns}), nil
}

func frameInfo(thread *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<class 'DataFrame'>\nRangeIndex: %d entries\nData columns (total %d columns):\n", d.tbl.NumRows(), d.tbl.NumColumns())
	for i, column := range d.tbl.Columns {
		count, _ := reduce("count", column.Type, column.Values)
		fmt.Fprintf(&b, " %d  %s  %v non-null  %s\n", i, column.Name, count, column.Type)
	}
	thread.Print(thread, strings.TrimRight(b.String(), "\n"))
	return starlark.None, nil
}

func frameToString(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	return starlark.String(d.tbl.String()), nil
}

// frameQuery runs SQL over the frame, exposed as table df. A bare predicate
// such as "sales > 10" is treated as a WHERE clause.
func frameQuery(thread *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var expr string
	if err := unpack(fn, args, kwargs, "expr", &expr); err != nil {
		return nil, err
	}
	r := currentRun(thread)
	if r == nil || r.engine == nil {
		return nil, fmt.Errorf("%s: SQL engine is not available", fn)
	}
	if d.tbl.NumColumns() == 0 {
		return nil, fmt.Errorf("%s: DataFrame has no columns", fn)
	}
	sqlText := strings.TrimSpace(expr)
	lowered := strings.ToLower(sqlText)
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		sqlText = "SELECT * FROM df WHERE " + sqlText
	}
	result, err := r.engine.Execute(r.ctx, query.Request{
		SQL:    sqlText,
		Tables: map[string]*table.Table{"df": d.tbl},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return NewDataFrame(result.Table), nil
}

func framePivotTable(_ *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values, index starlark.Value
	var columns starlark.Value = starlark.None
	aggfunc := "mean"
	if err := unpack(fn, args, kwargs, "values", &values, "index", &index, "columns?", &columns, "aggfunc?", &aggfunc); err != nil {
		return nil, err
	}
	valueName, ok := stringArg(values)
	if !ok {
		return nil, fmt.Errorf("%s: values must be a single column name", fn)
	}
	keys, err := stringList(index)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if isNone(columns) {
		grouped := newGroupBy(d.tbl, keys)
		grouped.selection = []string{valueName}
		return grouped.aggregateFrame(aggfunc)
	}
	pivotName, ok := stringArg(columns)
	if !ok {
		return nil, fmt.Errorf("%s: columns must be a single column name", fn)
	}
	pivot, err := d.tbl.Column(pivotName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	valueColumn, err := d.tbl.Column(valueName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	wideKeys := uniqueSorted(pivot.Values)
	grouped := newGroupBy(d.tbl, keys)
	groups, keyColumns, err := grouped.groups()
	if err != nil {
		return nil, err
	}
	out := &table.Table{Columns: keyColumns}
	for _, wide := range wideKeys {
		cells := make([]any, len(groups))
		for g, rows := range groups {
			var picked []any
			for _, row := range rows {
				if cellKey(pivot.Values[row]) == cellKey(wide) {
					picked = append(picked, valueColumn.Values[row])
				}
			}
			if len(picked) == 0 {
				cells[g] = math.NaN()
				continue
			}
			value, err := reduce(aggfunc, valueColumn.Type, picked)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			cells[g] = value
		}
		columnType := table.InferType(cells)
		out.Columns = append(out.Columns, table.Column{Name: table.FormatValue(wide), Type: columnType, Values: coerceAll(columnType, cells)})
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return NewDataFrame(out), nil
}

func uniqueSorted(values []any) []any {
	seen := make(map[string]bool)
	var out []any
	for _, value := range values {
		if isMissing(value) || seen[cellKey(value)] {
			continue
		}
		seen[cellKey(value)] = true
		out = append(out, value)
	}
	indices := sortedIndices(len(out), func(i, j int) bool { return compareCells(out[i], out[j]) < 0 })
	sorted := make([]any, len(out))
	for i, index := range indices {
		sorted[i] = out[index]
	}
	return sorted
}
