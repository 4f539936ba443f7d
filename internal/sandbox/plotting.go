package sandbox

import (
	"fmt"
	"sort"
	"strconv"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/figure"
	"github.com/askframe/askframe/internal/table"
)

// maxCategoryTicks bounds how many category labels an x axis carries.
const maxCategoryTicks = 30

type drawFunc func(thread *starlark.Thread, kind figure.Kind, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var plotKinds = map[string]figure.Kind{
	"line":    figure.KindLine,
	"area":    figure.KindLine,
	"bar":     figure.KindBar,
	"barh":    figure.KindBarH,
	"hist":    figure.KindHist,
	"box":     figure.KindBox,
	"scatter": figure.KindScatter,
}

// plotAccessor is the value behind df.plot and series.plot: callable with a
// kind= argument, or through per-kind attributes such as df.plot.bar().
type plotAccessor struct {
	owner string
	draw  drawFunc
}

var (
	_ starlark.Callable = (*plotAccessor)(nil)
	_ starlark.HasAttrs = (*plotAccessor)(nil)
)

func (p *plotAccessor) String() string        { return "<" + p.owner + "PlotAccessor>" }
func (p *plotAccessor) Type() string          { return "PlotAccessor" }
func (p *plotAccessor) Freeze()               {}
func (p *plotAccessor) Truth() starlark.Bool  { return true }
func (p *plotAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: PlotAccessor") }
func (p *plotAccessor) Name() string          { return "plot" }

func (p *plotAccessor) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	kindName := "line"
	rest := make([]starlark.Tuple, 0, len(kwargs))
	for _, kv := range kwargs {
		if string(kv[0].(starlark.String)) == "kind" {
			name, ok := stringArg(kv[1])
			if !ok {
				return nil, fmt.Errorf("plot: kind must be a string")
			}
			kindName = name
			continue
		}
		rest = append(rest, kv)
	}
	kind, ok := plotKinds[kindName]
	if !ok {
		return nil, fmt.Errorf("plot: unsupported kind %q", kindName)
	}
	return p.draw(thread, kind, args, rest)
}

func (p *plotAccessor) Attr(name string) (starlark.Value, error) {
	kind, ok := plotKinds[name]
	if !ok {
		return nil, nil
	}
	return builtin(name, func(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return p.draw(thread, kind, args, kwargs)
	}), nil
}

func (p *plotAccessor) AttrNames() []string {
	names := make([]string, 0, len(plotKinds))
	for name := range plotKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// targetAxes resolves the ax= keyword, falling back to the current axes of
// the run's figure.
func targetAxes(thread *starlark.Thread, kwargs []starlark.Tuple) (*figure.Axes, error) {
	if value, ok := kwarg(kwargs, "ax"); ok && !isNone(value) {
		ax, ok := value.(*axesValue)
		if !ok {
			return nil, fmt.Errorf("ax must be an Axes, got %s", value.Type())
		}
		return ax.ax, nil
	}
	r := currentRun(thread)
	if r == nil {
		return nil, fmt.Errorf("plotting is not available")
	}
	return r.figure.Current(), nil
}

// applyLabels copies the styling keywords pandas' plot methods accept.
func applyLabels(ax *figure.Axes, kwargs []starlark.Tuple) {
	for _, kv := range kwargs {
		value := kv[1]
		switch string(kv[0].(starlark.String)) {
		case "title":
			if s, ok := stringArg(value); ok {
				ax.Title = s
			}
		case "xlabel":
			if s, ok := stringArg(value); ok {
				ax.XLabel = s
			}
		case "ylabel":
			if s, ok := stringArg(value); ok {
				ax.YLabel = s
			}
		case "legend":
			ax.Legend = bool(value.Truth())
		case "grid":
			ax.Grid = bool(value.Truth())
		}
	}
}

func binsArg(kwargs []starlark.Tuple) (int, error) {
	value, ok := kwarg(kwargs, "bins")
	if !ok {
		return 0, nil
	}
	bins, err := intArg(value, 0)
	if err != nil {
		return 0, fmt.Errorf("bins must be an integer: %w", err)
	}
	return bins, nil
}

// axisValues places cells on an x axis: numbers keep their value, anything
// else is laid out by position and labelled.
func axisValues(columnType table.Type, values []any) ([]float64, []string) {
	if columnType.IsNumeric() {
		return floatsOf(values), nil
	}
	x := make([]float64, len(values))
	var labels []string
	if len(values) <= maxCategoryTicks {
		labels = make([]string, len(values))
	}
	for i, value := range values {
		x[i] = float64(i)
		if labels != nil {
			labels[i] = table.FormatValue(value)
		}
	}
	return x, labels
}

func positions(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func plottable(columnType table.Type) bool {
	return columnType.IsNumeric() || columnType == table.TypeBool
}

func (s *Series) draw(thread *starlark.Thread, kind figure.Kind, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("Series.plot takes keyword arguments only")
	}
	if !plottable(s.dtype) {
		return nil, fmt.Errorf("no numeric data to plot in Series of dtype %s", s.dtype)
	}
	ax, err := targetAxes(thread, kwargs)
	if err != nil {
		return nil, err
	}
	trace := figure.Trace{Kind: kind, Label: s.name, Y: floatsOf(s.values)}
	switch kind {
	case figure.KindLine:
		if len(s.index) == 1 {
			trace.X, trace.Categories = axisValues(s.index[0].Type, s.index[0].Values)
		} else {
			trace.X = positions(len(s.values))
			if s.index != nil && len(s.values) <= maxCategoryTicks {
				trace.Categories = s.labelStrings()
			}
		}
	case figure.KindBar, figure.KindBarH:
		trace.Categories = s.labelStrings()
	case figure.KindHist:
		if trace.Bins, err = binsArg(kwargs); err != nil {
			return nil, err
		}
	case figure.KindBox:
		trace.Y = nil
		trace.Groups = [][]float64{presentFloats(s.values)}
		trace.Categories = []string{s.name}
	case figure.KindScatter:
		return nil, fmt.Errorf("scatter plots need a DataFrame with x and y columns")
	}
	ax.Add(trace)
	if kind == figure.KindLine && len(s.index) == 1 && ax.XLabel == "" {
		ax.XLabel = s.index[0].Name
	}
	applyLabels(ax, kwargs)
	return &axesValue{ax: ax}, nil
}

func (d *DataFrame) draw(thread *starlark.Thread, kind figure.Kind, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var xValue, yValue starlark.Value = starlark.None, starlark.None
	if err := unpack("plot", args, kwargs, "x?", &xValue, "y?", &yValue); err != nil {
		return nil, err
	}
	ax, err := targetAxes(thread, kwargs)
	if err != nil {
		return nil, err
	}

	var x *table.Column
	if name, ok := stringArg(xValue); ok {
		column, err := d.tbl.Column(name)
		if err != nil {
			return nil, fmt.Errorf("plot: %w", err)
		}
		x = &column
	}
	var ys []table.Column
	if isNone(yValue) {
		for _, column := range d.tbl.Columns {
			if plottable(column.Type) && (x == nil || column.Name != x.Name) {
				ys = append(ys, column)
			}
		}
	} else {
		names, err := stringList(yValue)
		if err != nil {
			return nil, fmt.Errorf("plot: %w", err)
		}
		for _, name := range names {
			column, err := d.tbl.Column(name)
			if err != nil {
				return nil, fmt.Errorf("plot: %w", err)
			}
			if !plottable(column.Type) {
				return nil, fmt.Errorf("plot: column %q is not numeric", name)
			}
			ys = append(ys, column)
		}
	}
	if len(ys) == 0 {
		return nil, fmt.Errorf("plot: no numeric data to plot")
	}

	rows := d.tbl.NumRows()
	switch kind {
	case figure.KindLine, figure.KindScatter:
		if kind == figure.KindScatter && (x == nil || len(ys) != 1) {
			return nil, fmt.Errorf("scatter plot requires x and y columns")
		}
		xs, labels := positions(rows), []string(nil)
		if x != nil {
			xs, labels = axisValues(x.Type, x.Values)
		}
		for _, y := range ys {
			ax.Add(figure.Trace{Kind: kind, Label: y.Name, X: xs, Y: floatsOf(y.Values), Categories: labels})
		}
	case figure.KindBar, figure.KindBarH:
		categories := make([]string, rows)
		for i := range categories {
			if x != nil {
				categories[i] = table.FormatValue(x.Values[i])
			} else {
				categories[i] = strconv.Itoa(i)
			}
		}
		for _, y := range ys {
			ax.Add(figure.Trace{Kind: kind, Label: y.Name, Y: floatsOf(y.Values), Categories: categories})
		}
	case figure.KindHist:
		bins, err := binsArg(kwargs)
		if err != nil {
			return nil, err
		}
		for _, y := range ys {
			ax.Add(figure.Trace{Kind: kind, Label: y.Name, Y: floatsOf(y.Values), Bins: bins})
		}
	case figure.KindBox:
		trace := figure.Trace{Kind: kind}
		for _, y := range ys {
			trace.Groups = append(trace.Groups, presentFloats(y.Values))
			trace.Categories = append(trace.Categories, y.Name)
		}
		ax.Add(trace)
	}
	if x != nil && ax.XLabel == "" {
		ax.XLabel = x.Name
	}
	if len(ys) > 1 {
		ax.Legend = true
	}
	applyLabels(ax, kwargs)
	return &axesValue{ax: ax}, nil
}

// sequence reads a matplotlib-style data argument: a list, tuple or Series.
func sequence(value starlark.Value) ([]any, table.Type, error) {
	if s, ok := value.(*Series); ok {
		return append([]any(nil), s.values...), s.dtype, nil
	}
	values, err := iterableValues(value)
	if err != nil {
		return nil, "", err
	}
	columnType := table.InferType(values)
	return coerceAll(columnType, values), columnType, nil
}

func seriesLabel(value starlark.Value) string {
	if s, ok := value.(*Series); ok {
		return s.name
	}
	return ""
}

func labelArg(kwargs []starlark.Tuple, fallback string) string {
	if value, ok := kwarg(kwargs, "label"); ok {
		if s, ok := stringArg(value); ok {
			return s
		}
	}
	return fallback
}

type axesMethod func(ax *figure.Axes, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var axesMethods map[string]axesMethod

// axesNoops are accepted for compatibility and have no effect on the image.
var axesNoops = []string{
	"annotate", "axhline", "axvline", "invert_xaxis", "invert_yaxis", "margins",
	"set_xlim", "set_xscale", "set_xticklabels", "set_xticks", "set_ylim",
	"set_yscale", "set_yticklabels", "set_yticks", "text", "tick_params",
}

func init() {
	axesMethods = map[string]axesMethod{
		"bar":        axesBar(figure.KindBar),
		"barh":       axesBar(figure.KindBarH),
		"boxplot":    axesBoxplot,
		"grid":       axesGrid,
		"hist":       axesHist,
		"legend":     axesLegend,
		"plot":       axesXY(figure.KindLine),
		"scatter":    axesXY(figure.KindScatter),
		"set_title":  axesText(func(ax *figure.Axes, s string) { ax.Title = s }),
		"set_xlabel": axesText(func(ax *figure.Axes, s string) { ax.XLabel = s }),
		"set_ylabel": axesText(func(ax *figure.Axes, s string) { ax.YLabel = s }),
	}
	for _, name := range axesNoops {
		axesMethods[name] = func(*figure.Axes, string, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		}
	}
}

func axesText(set func(*figure.Axes, string)) axesMethod {
	return func(ax *figure.Axes, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := unpack(fn, args, kwargs, "label", &text); err != nil {
			return nil, err
		}
		set(ax, text)
		return starlark.None, nil
	}
}

func axesLegend(ax *figure.Axes, _ string, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	ax.Legend = true
	return starlark.None, nil
}

func axesGrid(ax *figure.Axes, _ string, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
	ax.Grid = len(args) == 0 || bool(args[0].Truth())
	return starlark.None, nil
}

func axesXY(kind figure.Kind) axesMethod {
	return func(ax *figure.Axes, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var data []starlark.Value
		for _, arg := range args {
			if _, isFormat := arg.(starlark.String); isFormat {
				continue
			}
			data = append(data, arg)
		}
		if len(data) == 0 || (kind == figure.KindScatter && len(data) < 2) {
			return nil, fmt.Errorf("%s: missing data arguments", fn)
		}
		trace := figure.Trace{Kind: kind}
		yArg := data[len(data)-1]
		if len(data) > 1 {
			yArg = data[1]
			xs, xType, err := sequence(data[0])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", fn, err)
			}
			trace.X, trace.Categories = axisValues(xType, xs)
		}
		ys, yType, err := sequence(yArg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if !plottable(yType) {
			return nil, fmt.Errorf("%s: y values must be numeric", fn)
		}
		trace.Y = floatsOf(ys)
		if trace.X == nil {
			trace.X = positions(len(ys))
		}
		if len(trace.X) != len(trace.Y) {
			return nil, fmt.Errorf("%s: x and y must have same first dimension, but have shapes (%d,) and (%d,)", fn, len(trace.X), len(trace.Y))
		}
		trace.Label = labelArg(kwargs, seriesLabel(yArg))
		ax.Add(trace)
		return starlark.None, nil
	}
}

func axesBar(kind figure.Kind) axesMethod {
	return func(ax *figure.Axes, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x, height starlark.Value
		second := "height"
		if kind == figure.KindBarH {
			second = "width"
		}
		if err := unpack(fn, args, kwargs, "x", &x, second, &height); err != nil {
			return nil, err
		}
		labels, _, err := sequence(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		heights, heightType, err := sequence(height)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if !plottable(heightType) {
			return nil, fmt.Errorf("%s: bar heights must be numeric", fn)
		}
		if len(labels) != len(heights) {
			return nil, fmt.Errorf("%s: got %d labels for %d bars", fn, len(labels), len(heights))
		}
		categories := make([]string, len(labels))
		for i, label := range labels {
			categories[i] = table.FormatValue(label)
		}
		ax.Add(figure.Trace{Kind: kind, Label: labelArg(kwargs, seriesLabel(height)), Y: floatsOf(heights), Categories: categories})
		return starlark.None, nil
	}
}

func axesHist(ax *figure.Axes, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := unpack(fn, args, kwargs, "x", &data); err != nil {
		return nil, err
	}
	values, columnType, err := sequence(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if !plottable(columnType) {
		return nil, fmt.Errorf("%s: values must be numeric", fn)
	}
	bins, err := binsArg(kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	ax.Add(figure.Trace{Kind: figure.KindHist, Label: labelArg(kwargs, seriesLabel(data)), Y: floatsOf(values), Bins: bins})
	return starlark.None, nil
}

func axesBoxplot(ax *figure.Axes, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	var labels starlark.Value = starlark.None
	if value, ok := kwarg(kwargs, "tick_labels"); ok {
		labels = value
	}
	if err := unpack(fn, args, kwargs, "x", &data, "labels?", &labels); err != nil {
		return nil, err
	}
	var groups []starlark.Value
	if list, ok := data.(*starlark.List); ok && list.Len() > 0 {
		if _, nested := list.Index(0).(starlark.Iterable); nested {
			for i := 0; i < list.Len(); i++ {
				groups = append(groups, list.Index(i))
			}
		}
	}
	if groups == nil {
		groups = []starlark.Value{data}
	}
	trace := figure.Trace{Kind: figure.KindBox}
	for i, group := range groups {
		values, _, err := sequence(group)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		trace.Groups = append(trace.Groups, presentFloats(values))
		name := seriesLabel(group)
		if name == "" {
			name = strconv.Itoa(i + 1)
		}
		trace.Categories = append(trace.Categories, name)
	}
	if !isNone(labels) {
		names, err := stringList(labels)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if len(names) == len(trace.Categories) {
			trace.Categories = names
		}
	}
	ax.Add(trace)
	return starlark.None, nil
}

// axesValue is a matplotlib Axes handle.
type axesValue struct {
	ax *figure.Axes
}

var _ starlark.HasAttrs = (*axesValue)(nil)

func (a *axesValue) String() string        { return "<Axes>" }
func (a *axesValue) Type() string          { return "Axes" }
func (a *axesValue) Freeze()               {}
func (a *axesValue) Truth() starlark.Bool  { return true }
func (a *axesValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Axes") }

func (a *axesValue) Attr(name string) (starlark.Value, error) {
	method, ok := axesMethods[name]
	if !ok {
		return nil, nil
	}
	return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return method(a.ax, name, args, kwargs)
	}), nil
}

func (a *axesValue) AttrNames() []string {
	names := make([]string, 0, len(axesMethods))
	for name := range axesMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// axesGridValue is the array of axes plt.subplots returns for a grid. It
// supports axes[i], axes[r][c], axes[r, c] and flatten().
type axesGridValue struct {
	rows, cols int
	items      []*axesValue
}

var (
	_ starlark.Indexable = (*axesGridValue)(nil)
	_ starlark.Mapping   = (*axesGridValue)(nil)
	_ starlark.HasAttrs  = (*axesGridValue)(nil)
)

func newAxesGrid(rows, cols int, axes []*figure.Axes) starlark.Value {
	items := make([]*axesValue, len(axes))
	for i, ax := range axes {
		items[i] = &axesValue{ax: ax}
	}
	if rows == 1 && cols == 1 {
		return items[0]
	}
	return &axesGridValue{rows: rows, cols: cols, items: items}
}

func (g *axesGridValue) String() string        { return fmt.Sprintf("<Axes array %dx%d>", g.rows, g.cols) }
func (g *axesGridValue) Type() string          { return "ndarray" }
func (g *axesGridValue) Freeze()               {}
func (g *axesGridValue) Truth() starlark.Bool  { return true }
func (g *axesGridValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: ndarray") }

func (g *axesGridValue) twoDimensional() bool { return g.rows > 1 && g.cols > 1 }

func (g *axesGridValue) Len() int {
	if g.twoDimensional() {
		return g.rows
	}
	return len(g.items)
}

func (g *axesGridValue) Index(i int) starlark.Value {
	if g.twoDimensional() {
		return &axesGridValue{rows: 1, cols: g.cols, items: g.items[i*g.cols : (i+1)*g.cols]}
	}
	return g.items[i]
}

func (g *axesGridValue) Get(key starlark.Value) (starlark.Value, bool, error) {
	if tuple, ok := key.(starlark.Tuple); ok && len(tuple) == 2 && g.twoDimensional() {
		row, err := starlark.AsInt32(tuple[0])
		if err != nil {
			return nil, false, err
		}
		col, err := starlark.AsInt32(tuple[1])
		if err != nil {
			return nil, false, err
		}
		if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
			return nil, false, fmt.Errorf("index (%d, %d) is out of bounds for axes of shape (%d, %d)", row, col, g.rows, g.cols)
		}
		return g.items[row*g.cols+col], true, nil
	}
	i, err := starlark.AsInt32(key)
	if err != nil {
		return nil, false, fmt.Errorf("axes indices must be integers")
	}
	n := g.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false, fmt.Errorf("index %d is out of bounds for axes of size %d", i, n)
	}
	return g.Index(i), true, nil
}

func (g *axesGridValue) Iterate() starlark.Iterator {
	items := make([]starlark.Value, g.Len())
	for i := range items {
		items[i] = g.Index(i)
	}
	return starlark.NewList(items).Iterate()
}

func (g *axesGridValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "flatten", "ravel":
		return builtin(name, func(_ *starlark.Thread, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			items := make([]starlark.Value, len(g.items))
			for i, item := range g.items {
				items[i] = item
			}
			return starlark.NewList(items), nil
		}), nil
	case "flat":
		items := make([]starlark.Value, len(g.items))
		for i, item := range g.items {
			items[i] = item
		}
		return starlark.NewList(items), nil
	case "shape":
		if g.twoDimensional() {
			return starlark.Tuple{starlark.MakeInt(g.rows), starlark.MakeInt(g.cols)}, nil
		}
		return starlark.Tuple{starlark.MakeInt(len(g.items))}, nil
	}
	return nil, nil
}

func (g *axesGridValue) AttrNames() []string { return []string{"flat", "flatten", "ravel", "shape"} }

// figureValue is the handle plt.figure and plt.subplots return.
type figureValue struct {
	fig *figure.Figure
}

var _ starlark.HasAttrs = (*figureValue)(nil)

func (f *figureValue) String() string        { return "<Figure>" }
func (f *figureValue) Type() string          { return "Figure" }
func (f *figureValue) Freeze()               {}
func (f *figureValue) Truth() starlark.Bool  { return true }
func (f *figureValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Figure") }

func (f *figureValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "suptitle":
		return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var title string
			if err := unpack(name, args, kwargs, "t", &title); err != nil {
				return nil, err
			}
			f.fig.Title = title
			return starlark.None, nil
		}), nil
	case "axes":
		items := make([]starlark.Value, len(f.fig.Axes))
		for i, ax := range f.fig.Axes {
			items[i] = &axesValue{ax: ax}
		}
		return starlark.NewList(items), nil
	case "tight_layout", "savefig", "set_size_inches", "autofmt_xdate", "subplots_adjust":
		return builtin(name, func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		}), nil
	}
	return nil, nil
}

func (f *figureValue) AttrNames() []string {
	return []string{"autofmt_xdate", "axes", "savefig", "set_size_inches", "subplots_adjust", "suptitle", "tight_layout"}
}
