package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/askframe/askframe/internal/table"
)

// Series is a named column with an optional label index. A nil index means
// labels are row positions.
type Series struct {
	name   string
	dtype  table.Type
	values []any
	index  []table.Column
	frozen bool
}

var (
	_ starlark.HasAttrs  = (*Series)(nil)
	_ starlark.Mapping   = (*Series)(nil)
	_ starlark.Sequence  = (*Series)(nil)
	_ starlark.HasBinary = (*Series)(nil)
	_ starlark.HasUnary  = (*Series)(nil)
)

func newSeries(name string, values []any, index []table.Column) *Series {
	dtype := table.InferType(values)
	return &Series{name: name, dtype: dtype, values: coerceAll(dtype, values), index: index}
}

func seriesFromColumn(column table.Column) *Series {
	values := make([]any, len(column.Values))
	copy(values, column.Values)
	return &Series{name: column.Name, dtype: column.Type, values: values}
}

func (s *Series) String() string {
	labels := s.labelStrings()
	width := 0
	for _, label := range labels {
		if len(label) > width {
			width = len(label)
		}
	}
	cells := make([]string, len(s.values))
	valueWidth := 0
	for i, value := range s.values {
		cells[i] = table.FormatValue(value)
		if len(cells[i]) > valueWidth {
			valueWidth = len(cells[i])
		}
	}

	var b strings.Builder
	if names := s.indexNames(); names != "" {
		b.WriteString(names)
		b.WriteByte('\n')
	}
	for i := range s.values {
		fmt.Fprintf(&b, "%-*s    %*s\n", width, labels[i], valueWidth, cells[i])
	}
	if s.name != "" {
		fmt.Fprintf(&b, "Name: %s, ", s.name)
	}
	fmt.Fprintf(&b, "dtype: %s", s.dtype)
	return b.String()
}

func (s *Series) Type() string         { return "Series" }
func (s *Series) Freeze()              { s.frozen = true }
func (s *Series) Truth() starlark.Bool { return len(s.values) > 0 }
func (s *Series) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: Series")
}
func (s *Series) Len() int { return len(s.values) }

func (s *Series) Iterate() starlark.Iterator {
	return &cellIterator{values: s.values}
}

type cellIterator struct {
	values []any
	i      int
}

func (it *cellIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.values) {
		return false
	}
	*p = toStarlark(it.values[it.i])
	it.i++
	return true
}

func (it *cellIterator) Done() {}

// Get supports boolean masks, index labels and positions.
func (s *Series) Get(key starlark.Value) (starlark.Value, bool, error) {
	if mask, ok := key.(*Series); ok {
		indices, err := maskIndices(mask, len(s.values))
		if err != nil {
			return nil, false, err
		}
		return s.take(indices), true, nil
	}
	if s.index != nil {
		if pos, ok := s.lookupLabel(key); ok {
			return toStarlark(s.values[pos]), true, nil
		}
	}
	if i, err := starlark.AsInt32(key); err == nil {
		if i < 0 {
			i += len(s.values)
		}
		if i >= 0 && i < len(s.values) {
			return toStarlark(s.values[i]), true, nil
		}
		return nil, false, fmt.Errorf("index %d out of range for Series of length %d", i, len(s.values))
	}
	return nil, false, nil
}

func (s *Series) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		if s.name == "" {
			return starlark.None, nil
		}
		return starlark.String(s.name), nil
	case "values":
		return s.list(), nil
	case "dtype":
		return starlark.String(s.dtype), nil
	case "size":
		return starlark.MakeInt(len(s.values)), nil
	case "shape":
		return starlark.Tuple{starlark.MakeInt(len(s.values))}, nil
	case "empty":
		return starlark.Bool(len(s.values) == 0), nil
	case "index":
		labels := make([]starlark.Value, len(s.values))
		for i := range labels {
			labels[i] = s.label(i)
		}
		return starlark.NewList(labels), nil
	case "plot":
		return &plotAccessor{owner: "Series", draw: s.draw}, nil
	case "str":
		return &strAccessor{series: s}, nil
	case "dt":
		return &dtAccessor{series: s}, nil
	}
	if method, ok := seriesMethods[name]; ok {
		return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return method(thread, s, b.Name(), args, kwargs)
		}), nil
	}
	return nil, nil
}

func (s *Series) AttrNames() []string {
	names := []string{"dt", "dtype", "empty", "index", "name", "plot", "shape", "size", "str", "values"}
	for name := range seriesMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Series) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	switch op {
	case syntax.PLUS, syntax.MINUS, syntax.STAR, syntax.SLASH, syntax.SLASHSLASH, syntax.PERCENT, syntax.AMP, syntax.PIPE:
	default:
		return nil, nil
	}
	other, err := s.operand(y)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(s.values))
	for i, value := range s.values {
		left, right := value, other(i)
		if side == starlark.Right {
			left, right = right, left
		}
		result, err := arith(op, left, right)
		if err != nil {
			return nil, err
		}
		out[i] = result
	}
	name := s.name
	if ys, ok := y.(*Series); ok && ys.name != s.name {
		name = ""
	}
	return newSeries(name, out, s.index), nil
}

func (s *Series) Unary(op syntax.Token) (starlark.Value, error) {
	out := make([]any, len(s.values))
	for i, value := range s.values {
		switch op {
		case syntax.MINUS:
			switch v := value.(type) {
			case int64:
				out[i] = -v
			case float64:
				out[i] = -v
			case nil:
			default:
				return nil, fmt.Errorf("bad operand for unary -: %s Series", s.dtype)
			}
		case syntax.PLUS:
			out[i] = value
		case syntax.TILDE:
			switch v := value.(type) {
			case bool:
				out[i] = !v
			case nil:
				out[i] = true
			default:
				return nil, fmt.Errorf("~ needs a boolean Series, got %s", s.dtype)
			}
		default:
			return nil, nil
		}
	}
	return newSeries(s.name, out, s.index), nil
}

// operand returns a per-row accessor for the right-hand side of an operation.
func (s *Series) operand(y starlark.Value) (func(int) any, error) {
	if ys, ok := y.(*Series); ok {
		if len(ys.values) != len(s.values) {
			return nil, fmt.Errorf("cannot combine Series of length %d and %d", len(s.values), len(ys.values))
		}
		return func(i int) any { return ys.values[i] }, nil
	}
	if list, ok := y.(*starlark.List); ok {
		values, err := iterableValues(list)
		if err != nil {
			return nil, err
		}
		if len(values) != len(s.values) {
			return nil, fmt.Errorf("cannot combine Series of length %d with list of length %d", len(s.values), len(values))
		}
		return func(i int) any { return values[i] }, nil
	}
	scalar, err := fromStarlark(y)
	if err != nil {
		return nil, err
	}
	return func(int) any { return scalar }, nil
}

func arith(op syntax.Token, a, b any) (any, error) {
	if op == syntax.AMP || op == syntax.PIPE {
		ab, _ := a.(bool)
		bb, _ := b.(bool)
		if (!isMissing(a) && !isBool(a)) || (!isMissing(b) && !isBool(b)) {
			return nil, fmt.Errorf("%s needs boolean operands", op)
		}
		if op == syntax.AMP {
			return ab && bb, nil
		}
		return ab || bb, nil
	}
	if isMissing(a) || isMissing(b) {
		return nil, nil
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok && op == syntax.PLUS {
			return as + bs, nil
		}
		return nil, fmt.Errorf("unsupported operand types for %s: %T and %T", op, a, b)
	}
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		switch op {
		case syntax.PLUS:
			return ai + bi, nil
		case syntax.MINUS:
			return ai - bi, nil
		case syntax.STAR:
			return ai * bi, nil
		case syntax.SLASHSLASH:
			if bi == 0 {
				return nil, nil
			}
			q := ai / bi
			if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
				q--
			}
			return q, nil
		case syntax.PERCENT:
			if bi == 0 {
				return nil, nil
			}
			r := ai % bi
			if r != 0 && (r < 0) != (bi < 0) {
				r += bi
			}
			return r, nil
		}
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, fmt.Errorf("unsupported operand types for %s: %T and %T", op, a, b)
	}
	switch op {
	case syntax.PLUS:
		return af + bf, nil
	case syntax.MINUS:
		return af - bf, nil
	case syntax.STAR:
		return af * bf, nil
	case syntax.SLASH:
		return af / bf, nil
	case syntax.SLASHSLASH:
		return math.Floor(af / bf), nil
	case syntax.PERCENT:
		return af - bf*math.Floor(af/bf), nil
	}
	return nil, fmt.Errorf("unsupported operator %s", op)
}

func isBool(value any) bool {
	_, ok := value.(bool)
	return ok
}

func (s *Series) list() *starlark.List {
	items := make([]starlark.Value, len(s.values))
	for i, value := range s.values {
		items[i] = toStarlark(value)
	}
	return starlark.NewList(items)
}

func (s *Series) label(i int) starlark.Value {
	switch len(s.index) {
	case 0:
		return starlark.MakeInt(i)
	case 1:
		return toStarlark(s.index[0].Values[i])
	default:
		tuple := make(starlark.Tuple, len(s.index))
		for level, column := range s.index {
			tuple[level] = toStarlark(column.Values[i])
		}
		return tuple
	}
}

func (s *Series) labelStrings() []string {
	labels := make([]string, len(s.values))
	for i := range labels {
		switch len(s.index) {
		case 0:
			labels[i] = fmt.Sprint(i)
		default:
			parts := make([]string, len(s.index))
			for level, column := range s.index {
				parts[level] = table.FormatValue(column.Values[i])
			}
			labels[i] = strings.Join(parts, " ")
		}
	}
	return labels
}

func (s *Series) indexNames() string {
	names := make([]string, 0, len(s.index))
	for _, column := range s.index {
		if column.Name != "" {
			names = append(names, column.Name)
		}
	}
	return strings.Join(names, " ")
}

func (s *Series) lookupLabel(key starlark.Value) (int, bool) {
	var want []any
	if tuple, ok := key.(starlark.Tuple); ok && len(s.index) > 1 {
		for _, item := range tuple {
			cell, err := fromStarlark(item)
			if err != nil {
				return 0, false
			}
			want = append(want, cell)
		}
	} else {
		cell, err := fromStarlark(key)
		if err != nil {
			return 0, false
		}
		want = []any{cell}
	}
	if len(want) != len(s.index) {
		return 0, false
	}
	for i := range s.values {
		match := true
		for level, column := range s.index {
			if cellKey(column.Values[i]) != cellKey(want[level]) {
				match = false
				break
			}
		}
		if match {
			return i, true
		}
	}
	return 0, false
}

// take copies the given positions, keeping their labels.
func (s *Series) take(indices []int) *Series {
	values := make([]any, len(indices))
	for j, i := range indices {
		values[j] = s.values[i]
	}
	return &Series{name: s.name, dtype: s.dtype, values: values, index: takeIndex(s.index, indices)}
}

func takeIndex(index []table.Column, indices []int) []table.Column {
	if index == nil {
		positions := make([]any, len(indices))
		for j, i := range indices {
			positions[j] = int64(i)
		}
		return []table.Column{{Name: "", Type: table.TypeInt, Values: positions}}
	}
	out := make([]table.Column, len(index))
	for level, column := range index {
		values := make([]any, len(indices))
		for j, i := range indices {
			values[j] = column.Values[i]
		}
		out[level] = table.Column{Name: column.Name, Type: column.Type, Values: values}
	}
	return out
}

// frame turns the series into a table: index levels first, then values.
func (s *Series) frame() *table.Table {
	name := s.name
	if name == "" {
		name = "0"
	}
	columns := make([]table.Column, 0, len(s.index)+1)
	if s.index == nil {
		positions := make([]any, len(s.values))
		for i := range positions {
			positions[i] = int64(i)
		}
		columns = append(columns, table.Column{Name: "index", Type: table.TypeInt, Values: positions})
	}
	for level, column := range s.index {
		levelName := column.Name
		if levelName == "" {
			levelName = "index"
			if len(s.index) > 1 {
				levelName = fmt.Sprintf("level_%d", level)
			}
		}
		values := make([]any, len(column.Values))
		copy(values, column.Values)
		columns = append(columns, table.Column{Name: levelName, Type: column.Type, Values: values})
	}
	values := make([]any, len(s.values))
	copy(values, s.values)
	if name == columns[0].Name {
		name += "_value"
	}
	columns = append(columns, table.Column{Name: name, Type: s.dtype, Values: values})
	return &table.Table{Columns: columns}
}

func maskIndices(mask *Series, n int) ([]int, error) {
	if len(mask.values) != n {
		return nil, fmt.Errorf("boolean mask has length %d, expected %d", len(mask.values), n)
	}
	indices := make([]int, 0, n)
	for i, value := range mask.values {
		b, ok := value.(bool)
		if !ok && value != nil {
			return nil, fmt.Errorf("mask must be a boolean Series, got %s", mask.dtype)
		}
		if b {
			indices = append(indices, i)
		}
	}
	return indices, nil
}
