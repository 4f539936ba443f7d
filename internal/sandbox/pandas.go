package sandbox

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/askframe/askframe/internal/query"
	"github.com/askframe/askframe/internal/table"
)

// newPandas builds the pd module.
func newPandas() starlark.Value {
	return &starlarkstruct.Module{
		Name: "pd",
		Members: starlark.StringDict{
			"DataFrame":   builtin("DataFrame", pdDataFrame),
			"Series":      builtin("Series", pdSeries),
			"concat":      builtin("concat", pdConcat),
			"isna":        builtin("isna", pdMissing(true)),
			"isnull":      builtin("isnull", pdMissing(true)),
			"merge":       builtin("merge", pdMerge),
			"notna":       builtin("notna", pdMissing(false)),
			"notnull":     builtin("notnull", pdMissing(false)),
			"to_datetime": builtin("to_datetime", pdToDatetime),
			"to_numeric":  builtin("to_numeric", pdToNumeric),
			"NA":          starlark.None,
			"NaT":         starlark.None,
			"set_option": builtin("set_option", func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
				return starlark.None, nil
			}),
		},
	}
}

func newColumn(name string, values []any) table.Column {
	columnType := table.InferType(values)
	return table.Column{Name: name, Type: columnType, Values: coerceAll(columnType, values)}
}

// pdDataFrame accepts a dict of columns or a list of row dicts or rows.
func pdDataFrame(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data, columns starlark.Value = starlark.None, starlark.None
	if err := unpack("DataFrame", args, kwargs, "data?", &data, "columns?", &columns); err != nil {
		return nil, err
	}
	var names []string
	if !isNone(columns) {
		var err error
		if names, err = stringList(columns); err != nil {
			return nil, fmt.Errorf("DataFrame: %w", err)
		}
	}

	out := &table.Table{}
	switch v := data.(type) {
	case starlark.NoneType:
		for _, name := range names {
			out.Columns = append(out.Columns, table.Column{Name: name, Type: table.TypeString, Values: []any{}})
		}
	case *DataFrame:
		out = v.tbl.Clone()
	case *Series:
		out = v.frame()
		if v.index == nil {
			out.Columns = out.Columns[1:]
		}
	case *starlark.Dict:
		rows := -1
		for _, item := range v.Items() {
			name, ok := stringArg(item[0])
			if !ok {
				name = Display(item[0])
			}
			values, err := iterableValues(item[1])
			if err != nil {
				cell, scalarErr := fromStarlark(item[1])
				if scalarErr != nil {
					return nil, fmt.Errorf("DataFrame: column %q: %w", name, err)
				}
				values = []any{cell}
			}
			if rows >= 0 && len(values) != rows {
				return nil, fmt.Errorf("DataFrame: all arrays must be of the same length")
			}
			rows = len(values)
			out.Columns = append(out.Columns, newColumn(name, values))
		}
		if names != nil {
			selected := make([]table.Column, 0, len(names))
			for _, name := range names {
				column, err := out.Column(name)
				if err != nil {
					return nil, fmt.Errorf("DataFrame: %w", err)
				}
				selected = append(selected, column)
			}
			out.Columns = selected
		}
	case *starlark.List, starlark.Tuple:
		var err error
		if out, err = frameFromRows(v.(starlark.Iterable), names); err != nil {
			return nil, fmt.Errorf("DataFrame: %w", err)
		}
	default:
		return nil, fmt.Errorf("DataFrame: unsupported data of type %s", data.Type())
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("DataFrame: %w", err)
	}
	return NewDataFrame(out), nil
}

func frameFromRows(rows starlark.Iterable, names []string) (*table.Table, error) {
	var records []starlark.Value
	iter := rows.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		records = append(records, item)
	}

	columns := make(map[string][]any)
	order := append([]string(nil), names...)
	known := make(map[string]bool, len(names))
	for _, name := range names {
		known[name] = true
	}
	for r, record := range records {
		switch row := record.(type) {
		case *starlark.Dict:
			for _, kv := range row.Items() {
				name, ok := stringArg(kv[0])
				if !ok {
					return nil, fmt.Errorf("row keys must be strings")
				}
				if !known[name] {
					if names != nil {
						continue
					}
					known[name] = true
					order = append(order, name)
				}
				if columns[name] == nil {
					columns[name] = make([]any, len(records))
				}
				cell, err := fromStarlark(kv[1])
				if err != nil {
					return nil, err
				}
				columns[name][r] = cell
			}
		default:
			cells, err := iterableValues(record)
			if err != nil {
				return nil, fmt.Errorf("rows must be dicts or sequences: %w", err)
			}
			if order == nil {
				for i := range cells {
					name := strconv.Itoa(i)
					known[name] = true
					order = append(order, name)
				}
			}
			if len(cells) != len(order) {
				return nil, fmt.Errorf("%d columns passed, passed data had %d columns", len(order), len(cells))
			}
			for i, cell := range cells {
				if columns[order[i]] == nil {
					columns[order[i]] = make([]any, len(records))
				}
				columns[order[i]][r] = cell
			}
		}
	}
	out := &table.Table{}
	for _, name := range order {
		values := columns[name]
		if values == nil {
			values = make([]any, len(records))
		}
		out.Columns = append(out.Columns, newColumn(name, values))
	}
	return out, nil
}

func pdSeries(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data, index starlark.Value = starlark.None, starlark.None
	var name string
	if err := unpack("Series", args, kwargs, "data?", &data, "index?", &index, "name?", &name); err != nil {
		return nil, err
	}
	if isNone(data) {
		return newSeries(name, []any{}, nil), nil
	}
	if dict, ok := data.(*starlark.Dict); ok {
		labels := make([]any, 0, dict.Len())
		values := make([]any, 0, dict.Len())
		for _, item := range dict.Items() {
			label, err := fromStarlark(item[0])
			if err != nil {
				return nil, fmt.Errorf("Series: %w", err)
			}
			value, err := fromStarlark(item[1])
			if err != nil {
				return nil, fmt.Errorf("Series: %w", err)
			}
			labels = append(labels, label)
			values = append(values, value)
		}
		return newSeries(name, values, []table.Column{newColumn("", labels)}), nil
	}
	values, err := iterableValues(data)
	if err != nil {
		return nil, fmt.Errorf("Series: %w", err)
	}
	var labels []table.Column
	if !isNone(index) {
		cells, err := iterableValues(index)
		if err != nil {
			return nil, fmt.Errorf("Series: index: %w", err)
		}
		if len(cells) != len(values) {
			return nil, fmt.Errorf("Series: length of values (%d) does not match length of index (%d)", len(values), len(cells))
		}
		labels = []table.Column{newColumn("", cells)}
	}
	return newSeries(name, values, labels), nil
}

func pdMissing(want bool) func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var value starlark.Value
		if err := unpack("isna", args, kwargs, "obj", &value); err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case *Series:
			return seriesMissing(want)(thread, v, "isna", nil, nil)
		case *DataFrame:
			return frameMissing(want)(thread, v, "isna", nil, nil)
		}
		cell, err := fromStarlark(value)
		if err != nil {
			return starlark.Bool(!want), nil
		}
		return starlark.Bool(isMissing(cell) == want), nil
	}
}

func pdToNumeric(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	errorsMode := "raise"
	if err := unpack("to_numeric", args, kwargs, "arg", &value, "errors?", &errorsMode); err != nil {
		return nil, err
	}
	convert := func(cell any) (any, error) {
		switch v := cell.(type) {
		case nil, int64, float64:
			return v, nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			trimmed := strings.TrimSpace(v)
			if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				return i, nil
			}
			if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
				return f, nil
			}
		}
		switch errorsMode {
		case "coerce":
			return math.NaN(), nil
		case "ignore":
			return cell, nil
		}
		return nil, fmt.Errorf("to_numeric: unable to parse string %q", table.FormatValue(cell))
	}
	if s, ok := value.(*Series); ok {
		out := make([]any, len(s.values))
		for i, cell := range s.values {
			converted, err := convert(cell)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		columnType := table.InferType(out)
		return &Series{name: s.name, dtype: columnType, values: coerceAll(columnType, out), index: s.index}, nil
	}
	cell, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("to_numeric: %w", err)
	}
	converted, err := convert(cell)
	if err != nil {
		return nil, err
	}
	return toStarlark(converted), nil
}

func pdToDatetime(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	errorsMode, format := "raise", ""
	if err := unpack("to_datetime", args, kwargs, "arg", &value, "errors?", &errorsMode, "format?", &format); err != nil {
		return nil, err
	}
	convert := func(cell any) (any, error) {
		switch v := cell.(type) {
		case nil:
			return nil, nil
		case string:
			if format != "" {
				if parsed, err := time.Parse(strftimeLayout(format), strings.TrimSpace(v)); err == nil {
					return parsed, nil
				}
			} else if parsed, err := parseTime(v); err == nil {
				return parsed, nil
			}
		default:
			if converted, err := convertCell(v, table.TypeTime); err == nil {
				return converted, nil
			}
		}
		if errorsMode == "coerce" {
			return nil, nil
		}
		return nil, fmt.Errorf("to_datetime: cannot parse %q as a date", table.FormatValue(cell))
	}
	if s, ok := value.(*Series); ok {
		out := make([]any, len(s.values))
		for i, cell := range s.values {
			converted, err := convert(cell)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return &Series{name: s.name, dtype: table.TypeTime, values: out, index: s.index}, nil
	}
	cell, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("to_datetime: %w", err)
	}
	converted, err := convert(cell)
	if err != nil {
		return nil, err
	}
	return starlark.String(table.FormatValue(converted)), nil
}

// pdConcat stacks frames or series vertically, taking the union of columns.
func pdConcat(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var objs starlark.Value
	axis := 0
	if err := unpack("concat", args, kwargs, "objs", &objs, "axis?", &axis, "ignore_index?", new(bool)); err != nil {
		return nil, err
	}
	iterable, ok := objs.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("concat: objs must be a list of DataFrames")
	}
	var tables []*table.Table
	allSeries := true
	iter := iterable.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		switch v := item.(type) {
		case *DataFrame:
			tables = append(tables, v.tbl)
			allSeries = false
		case *Series:
			name := v.name
			if name == "" {
				name = "0"
			}
			tables = append(tables, &table.Table{Columns: []table.Column{{Name: name, Type: v.dtype, Values: v.values}}})
		default:
			return nil, fmt.Errorf("concat: cannot concatenate object of type %s", item.Type())
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("concat: no objects to concatenate")
	}
	if axis == 1 {
		out := &table.Table{}
		for _, t := range tables {
			out.Columns = append(out.Columns, t.Clone().Columns...)
		}
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("concat: %w", err)
		}
		return NewDataFrame(out), nil
	}

	var order []string
	seen := make(map[string]bool)
	for _, t := range tables {
		for _, name := range t.ColumnNames() {
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
		}
	}
	out := &table.Table{}
	for _, name := range order {
		var values []any
		for _, t := range tables {
			column, err := t.Column(name)
			if err != nil {
				values = append(values, make([]any, t.NumRows())...)
				continue
			}
			values = append(values, column.Values...)
		}
		out.Columns = append(out.Columns, newColumn(name, values))
	}
	if allSeries && len(out.Columns) == 1 {
		return seriesFromColumn(out.Columns[0]), nil
	}
	return NewDataFrame(out), nil
}

var joinKinds = map[string]string{
	"inner": "INNER JOIN",
	"left":  "LEFT JOIN",
	"right": "RIGHT JOIN",
	"outer": "FULL OUTER JOIN",
}

func pdMerge(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var left, right *DataFrame
	var on starlark.Value = starlark.None
	how := "inner"
	if err := unpack("merge", args, kwargs, "left", &left, "right", &right, "how?", &how, "on?", &on); err != nil {
		return nil, err
	}
	return mergeFrames(thread, left, right, how, on)
}

// mergeFrames joins two frames on shared key columns with the SQL engine.
func mergeFrames(thread *starlark.Thread, left, right *DataFrame, how string, on starlark.Value) (starlark.Value, error) {
	join, ok := joinKinds[how]
	if !ok {
		return nil, fmt.Errorf("merge: unsupported how=%q", how)
	}
	var keys []string
	if isNone(on) {
		for _, name := range left.tbl.ColumnNames() {
			if right.tbl.ColumnIndex(name) >= 0 {
				keys = append(keys, name)
			}
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("merge: no common columns to perform merge on")
		}
	} else {
		var err error
		if keys, err = stringList(on); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	r := currentRun(thread)
	if r == nil || r.engine == nil {
		return nil, fmt.Errorf("merge: SQL engine is not available")
	}
	quoted := make([]string, len(keys))
	for i, key := range keys {
		quoted[i] = `"` + strings.ReplaceAll(key, `"`, `""`) + `"`
	}
	sqlText := fmt.Sprintf("SELECT * FROM left_df %s right_df USING (%s)", join, strings.Join(quoted, ", "))
	result, err := r.engine.Execute(r.ctx, query.Request{
		SQL: sqlText,
		Tables: map[string]*table.Table{
			"left_df":  left.tbl,
			"right_df": right.tbl,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return NewDataFrame(result.Table), nil
}

func frameMerge(thread *starlark.Thread, d *DataFrame, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var right *DataFrame
	var on starlark.Value = starlark.None
	how := "inner"
	if err := unpack(fn, args, kwargs, "right", &right, "how?", &how, "on?", &on); err != nil {
		return nil, err
	}
	return mergeFrames(thread, d, right, how, on)
}
