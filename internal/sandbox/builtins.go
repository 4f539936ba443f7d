package sandbox

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// pySum is Python's sum(iterable, start=0); Series are summed cell by cell.
func pySum(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var total starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs("sum", args, kwargs, "iterable", &iterable, "start?", &total); err != nil {
		return nil, err
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		if item == starlark.None {
			return nil, fmt.Errorf("sum: unsupported operand type(s) for +: '%s' and 'NoneType'", total.Type())
		}
		next, err := starlark.Binary(syntax.PLUS, total, item)
		if err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
		total = next
	}
	return total, nil
}

// pyRound is Python's round: half-to-even, returning an int when ndigits is
// omitted.
func pyRound(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var number starlark.Value
	var digits starlark.Value = starlark.None
	if err := starlark.UnpackArgs("round", args, kwargs, "number", &number, "ndigits?", &digits); err != nil {
		return nil, err
	}
	if i, ok := number.(starlark.Int); ok {
		return i, nil
	}
	f, ok := starlark.AsFloat(number)
	if !ok {
		return nil, fmt.Errorf("round: type %s doesn't define __round__", number.Type())
	}
	if isNone(digits) {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("round: cannot convert float %s to integer", formatPyFloat(f))
		}
		return starlark.NumberToInt(starlark.Float(math.RoundToEven(f)))
	}
	n, err := starlark.AsInt32(digits)
	if err != nil {
		return nil, fmt.Errorf("round: ndigits: %w", err)
	}
	scale := math.Pow(10, float64(n))
	return starlark.Float(math.RoundToEven(f*scale) / scale), nil
}
