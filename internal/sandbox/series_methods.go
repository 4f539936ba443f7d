package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

type seriesMethod func(thread *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var seriesMethods map[string]seriesMethod

func init() {
	seriesMethods = map[string]seriesMethod{
		"abs":          seriesAbs,
		"all":          seriesTruth(true),
		"any":          seriesTruth(false),
		"apply":        seriesApply,
		"astype":       seriesAsType,
		"between":      seriesBetween,
		"copy":         seriesCopy,
		"corr":         seriesCorr,
		"cumsum":       seriesCumsum,
		"describe":     seriesDescribe,
		"diff":         seriesDiff(false),
		"dropna":       seriesDropNA,
		"eq":           seriesCompare("eq"),
		"fillna":       seriesFillNA,
		"ge":           seriesCompare("ge"),
		"gt":           seriesCompare("gt"),
		"head":         seriesHead,
		"idxmax":       seriesIdx("max"),
		"idxmin":       seriesIdx("min"),
		"isin":         seriesIsIn,
		"isna":         seriesMissing(true),
		"isnull":       seriesMissing(true),
		"le":           seriesCompare("le"),
		"lt":           seriesCompare("lt"),
		"map":          seriesApply,
		"ne":           seriesCompare("ne"),
		"nlargest":     seriesExtremes(true),
		"notna":        seriesMissing(false),
		"notnull":      seriesMissing(false),
		"nsmallest":    seriesExtremes(false),
		"pct_change":   seriesDiff(true),
		"quantile":     seriesQuantile,
		"rename":       seriesRename,
		"reset_index":  seriesResetIndex,
		"round":        seriesRound,
		"shift":        seriesShift,
		"sort_values":  seriesSortValues,
		"tail":         seriesTail,
		"to_frame":     seriesToFrame,
		"to_list":      seriesToList,
		"tolist":       seriesToList,
		"unique":       seriesUnique,
		"value_counts": seriesValueCounts,
	}
	for name := range aggregations {
		seriesMethods[name] = seriesReduce(name)
	}
}

func seriesReduce(name string) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, err
		}
		value, err := reduce(name, s.dtype, s.values)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		return toStarlark(value), nil
	}
}

func seriesQuantile(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var q starlark.Value = starlark.Float(0.5)
	if err := unpack(fn, args, kwargs, "q?", &q); err != nil {
		return nil, err
	}
	if !s.dtype.IsNumeric() {
		return nil, fmt.Errorf("%s: needs a numeric Series, got %s", fn, s.dtype)
	}
	numbers := presentFloats(s.values)
	if list, ok := q.(*starlark.List); ok {
		qs, err := iterableValues(list)
		if err != nil {
			return nil, err
		}
		labels := make([]any, len(qs))
		out := make([]any, len(qs))
		for i, item := range qs {
			f, _ := asFloat(item)
			labels[i] = f
			out[i] = quantile(numbers, f)
		}
		return newSeries(s.name, out, []table.Column{{Type: table.TypeFloat, Values: labels}}), nil
	}
	f, ok := starlark.AsFloat(q)
	if !ok {
		return nil, fmt.Errorf("%s: q must be a number", fn)
	}
	return starlark.Float(quantile(numbers, f)), nil
}

func presentFloats(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, value := range values {
		if isMissing(value) {
			continue
		}
		if f, ok := asFloat(value); ok {
			out = append(out, f)
		}
	}
	return out
}

func seriesCompare(op string) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var other starlark.Value
		if err := unpack(fn, args, kwargs, "other", &other); err != nil {
			return nil, err
		}
		rhs, err := s.operand(other)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(s.values))
		for i, value := range s.values {
			result, err := compareOp(op, value, rhs(i))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			out[i] = result
		}
		return &Series{name: s.name, dtype: table.TypeBool, values: out, index: s.index}, nil
	}
}

func compareOp(op string, a, b any) (bool, error) {
	if isMissing(a) || isMissing(b) {
		return op == "ne", nil
	}
	c, ok := compareStrict(a, b)
	if !ok {
		switch op {
		case "eq":
			return false, nil
		case "ne":
			return true, nil
		}
		return false, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch op {
	case "gt":
		return c > 0, nil
	case "lt":
		return c < 0, nil
	case "ge":
		return c >= 0, nil
	case "le":
		return c <= 0, nil
	case "eq":
		return c == 0, nil
	default:
		return c != 0, nil
	}
}

func seriesBetween(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var left, right starlark.Value
	inclusive := "both"
	if err := unpack(fn, args, kwargs, "left", &left, "right", &right, "inclusive?", &inclusive); err != nil {
		return nil, err
	}
	lo, err := fromStarlark(left)
	if err != nil {
		return nil, err
	}
	hi, err := fromStarlark(right)
	if err != nil {
		return nil, err
	}
	lowerOp, upperOp := "ge", "le"
	switch inclusive {
	case "neither":
		lowerOp, upperOp = "gt", "lt"
	case "left":
		upperOp = "lt"
	case "right":
		lowerOp = "gt"
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		above, err := compareOp(lowerOp, value, lo)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		below, err := compareOp(upperOp, value, hi)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		out[i] = above && below
	}
	return &Series{name: s.name, dtype: table.TypeBool, values: out, index: s.index}, nil
}

func seriesIsIn(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Value
	if err := unpack(fn, args, kwargs, "values", &values); err != nil {
		return nil, err
	}
	candidates, err := iterableValues(values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	set := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		set[cellKey(candidate)] = struct{}{}
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		_, found := set[cellKey(value)]
		out[i] = found && !isMissing(value)
	}
	return &Series{name: s.name, dtype: table.TypeBool, values: out, index: s.index}, nil
}

func seriesMissing(want bool) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, err
		}
		out := make([]any, len(s.values))
		for i, value := range s.values {
			out[i] = isMissing(value) == want
		}
		return &Series{name: s.name, dtype: table.TypeBool, values: out, index: s.index}, nil
	}
}

func seriesTruth(all bool) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, err
		}
		for _, value := range s.values {
			if isMissing(value) {
				continue
			}
			truthy := toStarlark(value).Truth() == starlark.True
			if all && !truthy {
				return starlark.False, nil
			}
			if !all && truthy {
				return starlark.True, nil
			}
		}
		return starlark.Bool(all), nil
	}
}

func seriesUnique(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var items []starlark.Value
	for _, value := range s.values {
		key := cellKey(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		items = append(items, toStarlark(value))
	}
	return starlark.NewList(items), nil
}

func seriesValueCounts(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var normalize, ascending bool
	if err := unpack(fn, args, kwargs, "normalize?", &normalize, "sort?", new(bool), "ascending?", &ascending); err != nil {
		return nil, err
	}
	return valueCounts(s.name, s.dtype, s.values, normalize, ascending), nil
}

func valueCounts(name string, dtype table.Type, values []any, normalize, ascending bool) *Series {
	order := make([]string, 0)
	firstValue := make(map[string]any)
	counts := make(map[string]int64)
	total := 0
	for _, value := range values {
		if isMissing(value) {
			continue
		}
		key := cellKey(value)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
			firstValue[key] = value
		}
		counts[key]++
		total++
	}
	sort.SliceStable(order, func(i, j int) bool {
		if ascending {
			return counts[order[i]] < counts[order[j]]
		}
		return counts[order[i]] > counts[order[j]]
	})
	labels := make([]any, len(order))
	out := make([]any, len(order))
	for i, key := range order {
		labels[i] = firstValue[key]
		if normalize {
			out[i] = float64(counts[key]) / float64(total)
		} else {
			out[i] = counts[key]
		}
	}
	resultName := "count"
	if normalize {
		resultName = "proportion"
	}
	return newSeries(resultName, out, []table.Column{{Name: name, Type: dtype, Values: labels}})
}

func seriesIdx(which string) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, err
		}
		best := -1
		for i, value := range s.values {
			if isMissing(value) {
				continue
			}
			if best < 0 {
				best = i
				continue
			}
			c := compareCells(value, s.values[best])
			if (which == "max" && c > 0) || (which == "min" && c < 0) {
				best = i
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("%s: attempt to get %s of an empty sequence", fn, fn)
		}
		return s.label(best), nil
	}
}

func seriesToList(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	return s.list(), nil
}

func seriesHead(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := unpack(fn, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return s.take(rangeIndices(0, clamp(n, len(s.values)))), nil
}

func seriesTail(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := unpack(fn, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	n = clamp(n, len(s.values))
	return s.take(rangeIndices(len(s.values)-n, len(s.values))), nil
}

func clamp(n, max int) int {
	if n < 0 {
		n = max + n
		if n < 0 {
			n = 0
		}
	}
	if n > max {
		n = max
	}
	return n
}

func rangeIndices(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func seriesSortValues(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	ascending := true
	if err := unpack(fn, args, kwargs, "ascending?", &ascending); err != nil {
		return nil, err
	}
	indices := sortedIndices(len(s.values), func(i, j int) bool {
		return lessCells(s.values[i], s.values[j], ascending)
	})
	return s.take(indices), nil
}

// lessCells orders by value in the requested direction with missing values last.
func lessCells(a, b any, ascending bool) bool {
	if isMissing(a) || isMissing(b) {
		return !isMissing(a) && isMissing(b)
	}
	c := compareCells(a, b)
	if ascending {
		return c < 0
	}
	return c > 0
}

func seriesExtremes(largest bool) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		n := 5
		if err := unpack(fn, args, kwargs, "n?", &n); err != nil {
			return nil, err
		}
		indices := sortedIndices(len(s.values), func(i, j int) bool {
			return lessCells(s.values[i], s.values[j], !largest)
		})
		kept := indices[:0:0]
		for _, i := range indices {
			if !isMissing(s.values[i]) && len(kept) < n {
				kept = append(kept, i)
			}
		}
		return s.take(kept), nil
	}
}

func seriesRound(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	decimals := 0
	if err := unpack(fn, args, kwargs, "decimals?", &decimals); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		out[i] = roundCell(value, decimals)
	}
	return &Series{name: s.name, dtype: s.dtype, values: out, index: s.index}, nil
}

func roundCell(value any, decimals int) any {
	f, ok := value.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return value
	}
	scale := math.Pow(10, float64(decimals))
	return math.RoundToEven(f*scale) / scale
}

func seriesAbs(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		switch v := value.(type) {
		case int64:
			if v < 0 {
				v = -v
			}
			out[i] = v
		case float64:
			out[i] = math.Abs(v)
		case nil:
		default:
			return nil, fmt.Errorf("%s: needs a numeric Series, got %s", fn, s.dtype)
		}
	}
	return &Series{name: s.name, dtype: s.dtype, values: out, index: s.index}, nil
}

func seriesCumsum(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	if !s.dtype.IsNumeric() && s.dtype != table.TypeBool {
		return nil, fmt.Errorf("%s: needs a numeric Series, got %s", fn, s.dtype)
	}
	out := make([]any, len(s.values))
	var intTotal int64
	floatTotal := 0.0
	for i, value := range s.values {
		if isMissing(value) {
			continue
		}
		if s.dtype == table.TypeFloat {
			f, _ := asFloat(value)
			floatTotal += f
			out[i] = floatTotal
			continue
		}
		f, _ := asFloat(value)
		intTotal += int64(f)
		out[i] = intTotal
	}
	return newSeries(s.name, out, s.index), nil
}

func seriesDiff(percent bool) seriesMethod {
	return func(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		periods := 1
		if err := unpack(fn, args, kwargs, "periods?", &periods); err != nil {
			return nil, err
		}
		if !s.dtype.IsNumeric() {
			return nil, fmt.Errorf("%s: needs a numeric Series, got %s", fn, s.dtype)
		}
		out := make([]any, len(s.values))
		for i := range s.values {
			j := i - periods
			if j < 0 || j >= len(s.values) || isMissing(s.values[i]) || isMissing(s.values[j]) {
				continue
			}
			current, _ := asFloat(s.values[i])
			previous, _ := asFloat(s.values[j])
			if percent {
				out[i] = current/previous - 1
			} else if s.dtype == table.TypeInt {
				out[i] = int64(current - previous)
			} else {
				out[i] = current - previous
			}
		}
		if percent {
			return &Series{name: s.name, dtype: table.TypeFloat, values: out, index: s.index}, nil
		}
		return &Series{name: s.name, dtype: s.dtype, values: out, index: s.index}, nil
	}
}

func seriesShift(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	periods := 1
	if err := unpack(fn, args, kwargs, "periods?", &periods); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i := range s.values {
		j := i - periods
		if j >= 0 && j < len(s.values) {
			out[i] = s.values[j]
		}
	}
	return &Series{name: s.name, dtype: s.dtype, values: out, index: s.index}, nil
}

func seriesCorr(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var other *Series
	if err := unpack(fn, args, kwargs, "other", &other); err != nil {
		return nil, err
	}
	if len(other.values) != len(s.values) {
		return nil, fmt.Errorf("%s: Series lengths differ (%d and %d)", fn, len(s.values), len(other.values))
	}
	return starlark.Float(pearson(floatsOf(s.values), floatsOf(other.values))), nil
}

func seriesDescribe(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	labels, values := describeColumn(s.dtype, s.values)
	return newSeries(s.name, values, []table.Column{{Type: table.TypeString, Values: labels}}), nil
}

// describeColumn produces pandas' describe() statistics for one column.
func describeColumn(dtype table.Type, values []any) ([]any, []any) {
	if dtype.IsNumeric() {
		numbers := presentFloats(values)
		std := math.Sqrt(variance(numbers))
		min, max := math.NaN(), math.NaN()
		if len(numbers) > 0 {
			min, max = quantile(numbers, 0), quantile(numbers, 1)
		}
		return []any{"count", "mean", "std", "min", "25%", "50%", "75%", "max"},
			[]any{float64(len(numbers)), mean(numbers), std, min, quantile(numbers, 0.25), quantile(numbers, 0.5), quantile(numbers, 0.75), max}
	}
	counts := valueCounts("", dtype, values, false, false)
	count, _ := reduce("count", dtype, values)
	var top, freq any
	if len(counts.values) > 0 {
		top = counts.index[0].Values[0]
		freq = counts.values[0]
	}
	return []any{"count", "unique", "top", "freq"},
		[]any{table.FormatValue(count), table.FormatValue(int64(len(counts.values))), table.FormatValue(top), table.FormatValue(freq)}
}

func seriesResetIndex(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var drop bool
	var name starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "drop?", &drop, "name?", &name); err != nil {
		return nil, err
	}
	if drop {
		return &Series{name: s.name, dtype: s.dtype, values: append([]any(nil), s.values...)}, nil
	}
	renamed := *s
	if n, ok := stringArg(name); ok {
		renamed.name = n
	}
	return NewDataFrame(renamed.frame()), nil
}

func seriesToFrame(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name starlark.Value = starlark.None
	if err := unpack(fn, args, kwargs, "name?", &name); err != nil {
		return nil, err
	}
	columnName := s.name
	if n, ok := stringArg(name); ok {
		columnName = n
	}
	if columnName == "" {
		columnName = "0"
	}
	values := append([]any(nil), s.values...)
	if s.index == nil {
		return NewDataFrame(&table.Table{Columns: []table.Column{{Name: columnName, Type: s.dtype, Values: values}}}), nil
	}
	renamed := *s
	renamed.name = columnName
	return NewDataFrame(renamed.frame()), nil
}

func seriesCopy(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	return &Series{name: s.name, dtype: s.dtype, values: append([]any(nil), s.values...), index: s.index}, nil
}

func seriesRename(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := unpack(fn, args, kwargs, "index", &name); err != nil {
		return nil, err
	}
	return &Series{name: name, dtype: s.dtype, values: append([]any(nil), s.values...), index: s.index}, nil
}

func seriesDropNA(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := unpack(fn, args, kwargs); err != nil {
		return nil, err
	}
	kept := make([]int, 0, len(s.values))
	for i, value := range s.values {
		if !isMissing(value) {
			kept = append(kept, i)
		}
	}
	return s.take(kept), nil
}

func seriesFillNA(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := unpack(fn, args, kwargs, "value", &value); err != nil {
		return nil, err
	}
	fill, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	out := make([]any, len(s.values))
	for i, cell := range s.values {
		if isMissing(cell) {
			out[i] = fill
		} else {
			out[i] = cell
		}
	}
	return newSeries(s.name, out, s.index), nil
}

func seriesAsType(_ *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var target starlark.Value
	if err := unpack(fn, args, kwargs, "dtype", &target); err != nil {
		return nil, err
	}
	var name string
	switch t := target.(type) {
	case starlark.String:
		name = string(t)
	case *starlark.Builtin:
		name = t.Name()
	default:
		return nil, fmt.Errorf("%s: unsupported dtype %s", fn, target.String())
	}
	columnType, err := parseDType(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		converted, err := convertCell(value, columnType)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		out[i] = converted
	}
	return &Series{name: s.name, dtype: columnType, values: out, index: s.index}, nil
}

func parseDType(name string) (table.Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int", "int64", "int32", "integer":
		return table.TypeInt, nil
	case "float", "float64", "float32", "number":
		return table.TypeFloat, nil
	case "str", "string", "object", "category":
		return table.TypeString, nil
	case "bool", "boolean":
		return table.TypeBool, nil
	case "datetime", "datetime64", "datetime64[ns]":
		return table.TypeTime, nil
	default:
		return "", fmt.Errorf("unsupported dtype %q", name)
	}
}

func convertCell(value any, target table.Type) (any, error) {
	if isMissing(value) {
		if target == table.TypeString {
			return "nan", nil
		}
		return nil, nil
	}
	switch target {
	case table.TypeInt:
		switch v := value.(type) {
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		default:
			f, ok := asFloat(v)
			if !ok {
				return nil, fmt.Errorf("cannot convert %v to int64", value)
			}
			return int64(f), nil
		}
	case table.TypeFloat:
		if v, ok := value.(string); ok {
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
		f, ok := asFloat(value)
		if !ok {
			return nil, fmt.Errorf("cannot convert %v to float64", value)
		}
		return f, nil
	case table.TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return table.FormatValue(value), nil
	case table.TypeBool:
		return bool(toStarlark(value).Truth()), nil
	case table.TypeTime:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			return parseTime(v)
		}
		return nil, fmt.Errorf("cannot convert %v to datetime", value)
	}
	return value, nil
}

func seriesApply(thread *starlark.Thread, s *Series, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var mapper starlark.Value
	if err := unpack(fn, args, kwargs, "func", &mapper); err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		var result starlark.Value
		switch m := mapper.(type) {
		case *starlark.Dict:
			found, ok, err := m.Get(toStarlark(value))
			if err != nil {
				return nil, err
			}
			if !ok {
				found = starlark.None
			}
			result = found
		case starlark.Callable:
			called, err := starlark.Call(thread, m, starlark.Tuple{toStarlark(value)}, nil)
			if err != nil {
				return nil, err
			}
			result = called
		default:
			return nil, fmt.Errorf("%s: expected a function or dict, got %s", fn, mapper.Type())
		}
		cell, err := fromStarlark(result)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		out[i] = cell
	}
	return newSeries(s.name, out, s.index), nil
}
