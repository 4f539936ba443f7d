package sandbox

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/askframe/askframe/internal/table"
)

// reduce applies a named aggregation to one column of cells. Missing values
// are skipped, as pandas does by default.
func reduce(name string, columnType table.Type, values []any) (any, error) {
	present := make([]any, 0, len(values))
	for _, value := range values {
		if !isMissing(value) {
			present = append(present, value)
		}
	}

	switch name {
	case "count":
		return int64(len(present)), nil
	case "size":
		return int64(len(values)), nil
	case "nunique":
		seen := make(map[string]struct{}, len(present))
		for _, value := range present {
			seen[cellKey(value)] = struct{}{}
		}
		return int64(len(seen)), nil
	case "first":
		if len(present) == 0 {
			return nil, nil
		}
		return present[0], nil
	case "last":
		if len(present) == 0 {
			return nil, nil
		}
		return present[len(present)-1], nil
	case "min", "max":
		if len(present) == 0 {
			return nil, nil
		}
		best := present[0]
		for _, value := range present[1:] {
			c := compareCells(value, best)
			if (name == "min" && c < 0) || (name == "max" && c > 0) {
				best = value
			}
		}
		return best, nil
	}

	if !columnType.IsNumeric() && columnType != table.TypeBool {
		return nil, fmt.Errorf("cannot compute %s of %s column", name, columnType)
	}
	numbers := floatsOf(present)

	switch name {
	case "sum":
		if columnType == table.TypeInt || columnType == table.TypeBool {
			var total int64
			for _, value := range present {
				switch v := value.(type) {
				case int64:
					total += v
				case bool:
					if v {
						total++
					}
				}
			}
			return total, nil
		}
		total := 0.0
		for _, value := range numbers {
			total += value
		}
		return total, nil
	case "prod":
		product := 1.0
		for _, value := range numbers {
			product *= value
		}
		if columnType == table.TypeInt {
			return int64(product), nil
		}
		return product, nil
	case "mean":
		return mean(numbers), nil
	case "median":
		return quantile(numbers, 0.5), nil
	case "std":
		return math.Sqrt(variance(numbers)), nil
	case "var":
		return variance(numbers), nil
	default:
		return nil, fmt.Errorf("unsupported aggregation %q", name)
	}
}

// aggregations lists the names reduce understands; the numeric ones skip
// non-numeric columns when applied to a whole frame.
var aggregations = map[string]bool{
	"count":   false,
	"size":    false,
	"nunique": false,
	"first":   false,
	"last":    false,
	"min":     false,
	"max":     false,
	"sum":     true,
	"prod":    true,
	"mean":    true,
	"median":  true,
	"std":     true,
	"var":     true,
}

func appliesTo(name string, columnType table.Type) bool {
	numericOnly, ok := aggregations[name]
	if !ok {
		return false
	}
	if !numericOnly {
		return true
	}
	return columnType.IsNumeric() || (columnType == table.TypeBool && (name == "sum" || name == "mean"))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	total := 0.0
	for _, value := range values {
		total += value
	}
	return total / float64(len(values))
}

// variance uses the sample estimator (ddof=1).
func variance(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	m := mean(values)
	total := 0.0
	for _, value := range values {
		d := value - m
		total += d * d
	}
	return total / float64(len(values)-1)
}

// quantile interpolates linearly between closest ranks.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lower := math.Floor(pos)
	upper := math.Ceil(pos)
	if lower == upper {
		return sorted[int(pos)]
	}
	frac := pos - lower
	return sorted[int(lower)]*(1-frac) + sorted[int(upper)]*frac
}

// pearson skips pairs where either side is missing.
func pearson(x, y []float64) float64 {
	var xs, ys []float64
	for i := range x {
		if i >= len(y) {
			break
		}
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}

// compareStrict orders two present cells of compatible kinds.
func compareStrict(a, b any) (int, bool) {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	switch av := a.(type) {
	case string:
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bs:
			return -1, true
		case av > bs:
			return 1, true
		default:
			return 0, true
		}
	case time.Time:
		switch bv := b.(type) {
		case time.Time:
			return av.Compare(bv), true
		case string:
			parsed, err := parseTime(bv)
			if err != nil {
				return 0, false
			}
			return av.Compare(parsed), true
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", value)
}
