package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

// toStarlark maps a table cell onto a Starlark value.
func toStarlark(value any) starlark.Value {
	switch v := value.(type) {
	case nil:
		return starlark.None
	case int64:
		return starlark.MakeInt64(v)
	case int:
		return starlark.MakeInt(v)
	case float64:
		return starlark.Float(v)
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case time.Time:
		return starlark.String(table.FormatValue(v))
	case starlark.Value:
		return v
	default:
		return starlark.String(fmt.Sprint(v))
	}
}

// fromStarlark maps a scalar Starlark value onto a table cell.
func fromStarlark(value starlark.Value) (any, error) {
	switch v := value.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		f, _ := starlark.AsFloat(v)
		return f, nil
	case starlark.Float:
		return float64(v), nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.String:
		return string(v), nil
	default:
		return nil, fmt.Errorf("cannot store %s in a column", value.Type())
	}
}

// ToGo converts a binding left by generated code into a plain Go value
// suitable for JSON encoding. Frames and series become *table.Table.
func ToGo(value starlark.Value) any {
	switch v := value.(type) {
	case *DataFrame:
		return v.tbl
	case *Series:
		return v.frame()
	case starlark.NoneType:
		return nil
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		return v.String()
	case starlark.Float:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return table.FormatFloat(f)
		}
		return f
	case starlark.Bool:
		return bool(v)
	case starlark.String:
		return string(v)
	case *starlark.List:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = ToGo(v.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(v))
		for i := range v {
			out[i] = ToGo(v[i])
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			out[Display(item[0])] = ToGo(item[1])
		}
		return out
	default:
		return Display(value)
	}
}

// AsTable returns the table behind a frame or series binding. Any other
// value becomes a one-row, one-column table.
func AsTable(value starlark.Value, name string) *table.Table {
	switch v := value.(type) {
	case *DataFrame:
		return v.tbl
	case *Series:
		return v.frame()
	case starlark.NoneType:
		return &table.Table{}
	case *starlark.List, starlark.Tuple:
		values := make([]any, 0)
		iter := starlark.Iterate(v)
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			cell, err := fromStarlark(item)
			if err != nil {
				cell = Display(item)
			}
			values = append(values, cell)
		}
		return columnTable(name, values)
	default:
		cell, err := fromStarlark(value)
		if err != nil {
			cell = Display(value)
		}
		return columnTable(name, []any{cell})
	}
}

func columnTable(name string, values []any) *table.Table {
	columnType := table.InferType(values)
	return &table.Table{Columns: []table.Column{{Name: name, Type: columnType, Values: coerceAll(columnType, values)}}}
}

// Display renders a value the way print would.
func Display(value starlark.Value) string {
	if s, ok := value.(starlark.String); ok {
		return string(s)
	}
	if f, ok := value.(starlark.Float); ok {
		return formatPyFloat(float64(f))
	}
	return value.String()
}

func formatPyFloat(value float64) string {
	switch {
	case math.IsNaN(value):
		return "nan"
	case math.IsInf(value, 1):
		return "inf"
	case math.IsInf(value, -1):
		return "-inf"
	}
	return starlark.Float(value).String()
}

// coerceAll converts cells so they agree with the inferred column type.
func coerceAll(columnType table.Type, values []any) []any {
	out := make([]any, len(values))
	for i, value := range values {
		switch {
		case value == nil:
			out[i] = nil
		case columnType == table.TypeFloat:
			if f, ok := asFloat(value); ok {
				out[i] = f
			} else {
				out[i] = nil
			}
		case columnType == table.TypeString:
			if s, ok := value.(string); ok {
				out[i] = s
			} else {
				out[i] = table.FormatValue(value)
			}
		default:
			out[i] = value
		}
	}
	return out
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func isMissing(value any) bool {
	if value == nil {
		return true
	}
	if f, ok := value.(float64); ok {
		return math.IsNaN(f)
	}
	return false
}

// compareCells orders cells for sorting; missing values sort last.
func compareCells(a, b any) int {
	aMissing, bMissing := isMissing(a), isMissing(b)
	switch {
	case aMissing && bMissing:
		return 0
	case aMissing:
		return 1
	case bMissing:
		return -1
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(table.FormatValue(a), table.FormatValue(b))
}

func cellKey(value any) string {
	if isMissing(value) {
		return "\x00nan"
	}
	if f, ok := value.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return fmt.Sprintf("n:%d", int64(f))
	}
	if i, ok := value.(int64); ok {
		return fmt.Sprintf("n:%d", i)
	}
	return fmt.Sprintf("%T:%v", value, value)
}

func sortedIndices(n int, less func(i, j int) bool) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool { return less(indices[a], indices[b]) })
	return indices
}

// iterableValues collects the cells of a list, tuple, set or series.
func iterableValues(value starlark.Value) ([]any, error) {
	if s, ok := value.(*Series); ok {
		out := make([]any, len(s.values))
		copy(out, s.values)
		return out, nil
	}
	iterable, ok := value.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a sequence, got %s", value.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []any
	var item starlark.Value
	for iter.Next(&item) {
		cell, err := fromStarlark(item)
		if err != nil {
			return nil, err
		}
		out = append(out, cell)
	}
	return out, nil
}

func stringList(value starlark.Value) ([]string, error) {
	if s, ok := value.(starlark.String); ok {
		return []string{string(s)}, nil
	}
	iterable, ok := value.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a column name or list of names, got %s", value.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []string
	var item starlark.Value
	for iter.Next(&item) {
		s, ok := item.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("column names must be strings, got %s", item.Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}

func floatsOf(values []any) []float64 {
	out := make([]float64, len(values))
	for i, value := range values {
		if f, ok := asFloat(value); ok {
			out[i] = f
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
