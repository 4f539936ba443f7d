package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/askframe/askframe/internal/figure"
	"github.com/askframe/askframe/internal/table"
)

// seabornCall holds the resolved data= / x= / y= arguments of a seaborn
// function.
type seabornCall struct {
	data *table.Table
	x    *table.Column
	y    *table.Column
	ax   *figure.Axes
}

func resolveSeaborn(thread *starlark.Thread, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (*seabornCall, error) {
	var data, x, y starlark.Value = starlark.None, starlark.None, starlark.None
	if err := unpack(fn, args, kwargs, "data?", &data, "x?", &x, "y?", &y); err != nil {
		return nil, err
	}
	ax, err := targetAxes(thread, kwargs)
	if err != nil {
		return nil, err
	}
	call := &seabornCall{ax: ax}
	switch v := data.(type) {
	case *DataFrame:
		call.data = v.tbl
	case *Series:
		column := table.Column{Name: v.name, Type: v.dtype, Values: v.values}
		if isNone(x) && isNone(y) {
			call.x = &column
		}
	case starlark.NoneType:
	default:
		values, columnType, err := sequence(data)
		if err != nil {
			return nil, fmt.Errorf("%s: data: %w", fn, err)
		}
		if isNone(x) && isNone(y) {
			call.x = &table.Column{Type: columnType, Values: values}
		}
	}
	resolve := func(value starlark.Value) (*table.Column, error) {
		if isNone(value) {
			return nil, nil
		}
		if name, ok := stringArg(value); ok {
			if call.data == nil {
				return nil, fmt.Errorf("%s: column name %q given without data=", fn, name)
			}
			column, err := call.data.Column(name)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			return &column, nil
		}
		values, columnType, err := sequence(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		return &table.Column{Name: seriesLabel(value), Type: columnType, Values: values}, nil
	}
	if call.x == nil {
		if call.x, err = resolve(x); err != nil {
			return nil, err
		}
	}
	if call.y, err = resolve(y); err != nil {
		return nil, err
	}
	return call, nil
}

// label fills empty axis labels with column names, as seaborn does.
func (c *seabornCall) label(kwargs []starlark.Tuple) {
	if c.x != nil && c.ax.XLabel == "" {
		c.ax.XLabel = c.x.Name
	}
	if c.y != nil && c.ax.YLabel == "" {
		c.ax.YLabel = c.y.Name
	}
	applyLabels(c.ax, kwargs)
}

// categories groups the numeric column by the category column, in order of
// first appearance.
func categories(by, values *table.Column) ([]string, [][]float64) {
	var order []string
	groups := make(map[string][]float64)
	for i, cell := range by.Values {
		if isMissing(cell) {
			continue
		}
		label := table.FormatValue(cell)
		if _, ok := groups[label]; !ok {
			order = append(order, label)
			groups[label] = []float64{}
		}
		if values != nil {
			if f, ok := asFloat(values.Values[i]); ok && !isMissing(values.Values[i]) {
				groups[label] = append(groups[label], f)
			}
		}
	}
	if by.Type.IsNumeric() {
		sort.SliceStable(order, func(i, j int) bool {
			return compareCells(firstNumber(by, order[i]), firstNumber(by, order[j])) < 0
		})
	}
	out := make([][]float64, len(order))
	for i, label := range order {
		out[i] = groups[label]
	}
	return order, out
}

func firstNumber(column *table.Column, label string) any {
	for _, cell := range column.Values {
		if table.FormatValue(cell) == label {
			return cell
		}
	}
	return nil
}

type seabornFunc func(call *seabornCall, fn string, kwargs []starlark.Tuple) error

func seabornHistplot(call *seabornCall, fn string, kwargs []starlark.Tuple) error {
	bins, err := binsArg(kwargs)
	if err != nil {
		return err
	}
	columns := []*table.Column{call.x}
	if call.x == nil {
		columns = []*table.Column{call.y}
	}
	if columns[0] == nil {
		if call.data == nil {
			return fmt.Errorf("%s: no data to plot", fn)
		}
		columns = nil
		for i := range call.data.Columns {
			if plottable(call.data.Columns[i].Type) {
				columns = append(columns, &call.data.Columns[i])
			}
		}
	}
	for _, column := range columns {
		if !plottable(column.Type) {
			return fmt.Errorf("%s: column %q is not numeric", fn, column.Name)
		}
		call.ax.Add(figure.Trace{Kind: figure.KindHist, Label: column.Name, Y: floatsOf(column.Values), Bins: bins})
	}
	if call.ax.YLabel == "" {
		call.ax.YLabel = "Count"
	}
	return nil
}

func seabornBarplot(call *seabornCall, fn string, kwargs []starlark.Tuple) error {
	if call.x == nil || call.y == nil {
		return fmt.Errorf("%s: x and y are required", fn)
	}
	by, values := call.x, call.y
	kind := figure.KindBar
	if plottable(call.x.Type) && !plottable(call.y.Type) {
		by, values, kind = call.y, call.x, figure.KindBarH
	}
	labels, groups := categories(by, values)
	means := make([]float64, len(groups))
	for i, group := range groups {
		means[i] = mean(group)
	}
	call.ax.Add(figure.Trace{Kind: kind, Label: values.Name, Y: means, Categories: labels})
	return nil
}

func seabornCountplot(call *seabornCall, fn string, kwargs []starlark.Tuple) error {
	column, kind := call.x, figure.KindBar
	if column == nil {
		column, kind = call.y, figure.KindBarH
	}
	if column == nil {
		return fmt.Errorf("%s: x or y is required", fn)
	}
	counts := valueCounts(column.Name, column.Type, column.Values, false, false)
	call.ax.Add(figure.Trace{Kind: kind, Label: "count", Y: floatsOf(counts.values), Categories: counts.labelStrings()})
	if call.ax.YLabel == "" && kind == figure.KindBar {
		call.ax.YLabel = "count"
	}
	return nil
}

func seabornScatterplot(call *seabornCall, fn string, kwargs []starlark.Tuple) error {
	if call.x == nil || call.y == nil {
		return fmt.Errorf("%s: x and y are required", fn)
	}
	if !plottable(call.y.Type) {
		return fmt.Errorf("%s: y column %q is not numeric", fn, call.y.Name)
	}
	xs, labels := axisValues(call.x.Type, call.x.Values)
	call.ax.Add(figure.Trace{Kind: figure.KindScatter, X: xs, Y: floatsOf(call.y.Values), Categories: labels})
	return nil
}

// seabornLineplot averages y for repeated x values and draws them in x order.
func seabornLineplot(call *seabornCall, fn string, kwargs []starlark.Tuple) error {
	if call.x == nil || call.y == nil {
		return fmt.Errorf("%s: x and y are required", fn)
	}
	if !plottable(call.y.Type) {
		return fmt.Errorf("%s: y column %q is not numeric", fn, call.y.Name)
	}
	labels, groups := categories(call.x, call.y)
	trace := figure.Trace{Kind: figure.KindLine, Label: call.y.Name}
	if plottable(call.x.Type) {
		for i, label := range labels {
			x, _ := asFloat(firstNumber(call.x, label))
			trace.X = append(trace.X, x)
			trace.Y = append(trace.Y, mean(groups[i]))
		}
	} else {
		if call.x.Type == table.TypeTime {
			order := sortedIndices(len(labels), func(i, j int) bool { return labels[i] < labels[j] })
			sortedLabels := make([]string, len(labels))
			sortedGroups := make([][]float64, len(groups))
			for j, i := range order {
				sortedLabels[j], sortedGroups[j] = labels[i], groups[i]
			}
			labels, groups = sortedLabels, sortedGroups
		}
		trace.X = positions(len(labels))
		for _, group := range groups {
			trace.Y = append(trace.Y, mean(group))
		}
		if len(labels) <= maxCategoryTicks {
			trace.Categories = labels
		}
	}
	call.ax.Add(trace)
	return nil
}

func seabornBoxplot(call *seabornCall, fn string, kwargs []starlark.Tuple) error {
	switch {
	case call.x != nil && call.y != nil:
		by, values := call.x, call.y
		if plottable(call.x.Type) && !plottable(call.y.Type) {
			by, values = call.y, call.x
		}
		labels, groups := categories(by, values)
		call.ax.Add(figure.Trace{Kind: figure.KindBox, Groups: groups, Categories: labels})
	case call.x != nil || call.y != nil:
		column := call.x
		if column == nil {
			column = call.y
		}
		call.ax.Add(figure.Trace{Kind: figure.KindBox, Groups: [][]float64{presentFloats(column.Values)}, Categories: []string{column.Name}})
	case call.data != nil:
		trace := figure.Trace{Kind: figure.KindBox}
		for _, column := range call.data.Columns {
			if plottable(column.Type) {
				trace.Groups = append(trace.Groups, presentFloats(column.Values))
				trace.Categories = append(trace.Categories, column.Name)
			}
		}
		call.ax.Add(trace)
	default:
		return fmt.Errorf("%s: no data to plot", fn)
	}
	return nil
}

var seabornFuncs = map[string]seabornFunc{
	"barplot":     seabornBarplot,
	"boxplot":     seabornBoxplot,
	"countplot":   seabornCountplot,
	"histplot":    seabornHistplot,
	"lineplot":    seabornLineplot,
	"scatterplot": seabornScatterplot,
}

// newSeaborn builds the sns module. Theme calls are accepted and ignored.
func newSeaborn() starlark.Value {
	members := starlark.StringDict{}
	for name, draw := range seabornFuncs {
		name, draw := name, draw
		members[name] = builtin(name, func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			call, err := resolveSeaborn(thread, name, args, kwargs)
			if err != nil {
				return nil, err
			}
			if err := draw(call, name, kwargs); err != nil {
				return nil, err
			}
			call.label(kwargs)
			return &axesValue{ax: call.ax}, nil
		})
	}
	for _, name := range []string{"set", "set_theme", "set_style", "set_palette", "set_context", "despine"} {
		members[name] = builtin(name, func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		})
	}
	return &starlarkstruct.Module{Name: "sns", Members: members}
}
