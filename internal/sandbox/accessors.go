package sandbox

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.starlark.net/starlark"

	"github.com/askframe/askframe/internal/table"
)

// strAccessor implements series.str for object columns. Missing cells stay
// missing.
type strAccessor struct {
	series *Series
}

var _ starlark.HasAttrs = (*strAccessor)(nil)

func (a *strAccessor) String() string        { return "<StringMethods>" }
func (a *strAccessor) Type() string          { return "StringMethods" }
func (a *strAccessor) Freeze()               {}
func (a *strAccessor) Truth() starlark.Bool  { return true }
func (a *strAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: StringMethods") }

type stringOp func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error)

func mapString(transform func(string) string) stringOp {
	return func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, "", err
		}
		return func(s string) any { return transform(s) }, table.TypeString, nil
	}
}

func matchString(match func(s, pattern string) bool) stringOp {
	return func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error) {
		var pattern string
		if err := unpack(fn, args, kwargs, "pat", &pattern); err != nil {
			return nil, "", err
		}
		return func(s string) any { return match(s, pattern) }, table.TypeBool, nil
	}
}

var stringOps = map[string]stringOp{
	"lower":      mapString(strings.ToLower),
	"upper":      mapString(strings.ToUpper),
	"strip":      mapString(strings.TrimSpace),
	"lstrip":     mapString(func(s string) string { return strings.TrimLeft(s, " \t\r\n") }),
	"rstrip":     mapString(func(s string) string { return strings.TrimRight(s, " \t\r\n") }),
	"title":      mapString(titleCase),
	"capitalize": mapString(capitalize),
	"startswith": matchString(strings.HasPrefix),
	"endswith":   matchString(strings.HasSuffix),
	"len": func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error) {
		if err := unpack(fn, args, kwargs); err != nil {
			return nil, "", err
		}
		return func(s string) any { return int64(utf8.RuneCountInString(s)) }, table.TypeInt, nil
	},
	"contains": func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error) {
		var pattern string
		caseSensitive, regex := true, true
		var na starlark.Value = starlark.None
		if err := unpack(fn, args, kwargs, "pat", &pattern, "case?", &caseSensitive, "na?", &na, "regex?", &regex); err != nil {
			return nil, "", err
		}
		if !regex {
			pattern = regexp.QuoteMeta(pattern)
		}
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, "", fmt.Errorf("%s: invalid pattern: %w", fn, err)
		}
		return func(s string) any { return re.MatchString(s) }, table.TypeBool, nil
	},
	"replace": func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error) {
		var pattern, replacement string
		regex := false
		if err := unpack(fn, args, kwargs, "pat", &pattern, "repl", &replacement, "regex?", &regex); err != nil {
			return nil, "", err
		}
		if !regex {
			return func(s string) any { return strings.ReplaceAll(s, pattern, replacement) }, table.TypeString, nil
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, "", fmt.Errorf("%s: invalid pattern: %w", fn, err)
		}
		return func(s string) any { return re.ReplaceAllString(s, replacement) }, table.TypeString, nil
	},
	"slice": func(fn string, args starlark.Tuple, kwargs []starlark.Tuple) (func(string) any, table.Type, error) {
		var startValue, stopValue starlark.Value = starlark.None, starlark.None
		if err := unpack(fn, args, kwargs, "start?", &startValue, "stop?", &stopValue); err != nil {
			return nil, "", err
		}
		start, err := intArg(startValue, 0)
		if err != nil {
			return nil, "", err
		}
		stop, err := intArg(stopValue, -1)
		if err != nil {
			return nil, "", err
		}
		open := isNone(stopValue)
		return func(s string) any {
			runes := []rune(s)
			from, to := start, stop
			if open {
				to = len(runes)
			}
			if from < 0 {
				from += len(runes)
			}
			if to < 0 {
				to += len(runes)
			}
			from, to = clamp(from, len(runes)), clamp(to, len(runes))
			if from >= to {
				return ""
			}
			return string(runes[from:to])
		}, table.TypeString, nil
	},
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = capitalize(word)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}

func (a *strAccessor) Attr(name string) (starlark.Value, error) {
	op, ok := stringOps[name]
	if !ok {
		return nil, nil
	}
	return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if a.series.dtype != table.TypeString {
			return nil, fmt.Errorf("Can only use .str accessor with string values, not %s", a.series.dtype)
		}
		apply, outType, err := op(name, args, kwargs)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(a.series.values))
		for i, value := range a.series.values {
			s, ok := value.(string)
			if !ok {
				values[i] = nil
				continue
			}
			values[i] = apply(s)
		}
		if outType == table.TypeBool || outType == table.TypeInt {
			outType = table.InferType(values)
			values = coerceAll(outType, values)
		}
		return &Series{name: a.series.name, dtype: outType, values: values, index: a.series.index}, nil
	}), nil
}

func (a *strAccessor) AttrNames() []string {
	names := make([]string, 0, len(stringOps))
	for name := range stringOps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dtAccessor implements series.dt for datetime columns.
type dtAccessor struct {
	series *Series
}

var _ starlark.HasAttrs = (*dtAccessor)(nil)

func (a *dtAccessor) String() string        { return "<DatetimeProperties>" }
func (a *dtAccessor) Type() string          { return "DatetimeProperties" }
func (a *dtAccessor) Freeze()               {}
func (a *dtAccessor) Truth() starlark.Bool  { return true }
func (a *dtAccessor) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DatetimeProperties") }

var dateFields = map[string]func(time.Time) any{
	"year":      func(t time.Time) any { return int64(t.Year()) },
	"month":     func(t time.Time) any { return int64(t.Month()) },
	"day":       func(t time.Time) any { return int64(t.Day()) },
	"hour":      func(t time.Time) any { return int64(t.Hour()) },
	"minute":    func(t time.Time) any { return int64(t.Minute()) },
	"second":    func(t time.Time) any { return int64(t.Second()) },
	"quarter":   func(t time.Time) any { return int64((int(t.Month())-1)/3 + 1) },
	"dayofyear": func(t time.Time) any { return int64(t.YearDay()) },
	"dayofweek": weekday,
	"weekday":   weekday,
	"date":      func(t time.Time) any { return t.Format("2006-01-02") },
}

// weekday counts from Monday = 0.
func weekday(t time.Time) any {
	return int64((int(t.Weekday()) + 6) % 7)
}

var dateMethods = map[string]func(time.Time) any{
	"day_name":   func(t time.Time) any { return t.Weekday().String() },
	"month_name": func(t time.Time) any { return t.Month().String() },
}

func (a *dtAccessor) mapTimes(name string, field func(time.Time) any) (*Series, error) {
	if a.series.dtype != table.TypeTime {
		return nil, fmt.Errorf("Can only use .dt accessor with datetimelike values; convert with pd.to_datetime first")
	}
	values := make([]any, len(a.series.values))
	for i, value := range a.series.values {
		t, ok := value.(time.Time)
		if !ok {
			continue
		}
		values[i] = field(t)
	}
	columnType := table.InferType(values)
	return &Series{name: a.series.name, dtype: columnType, values: coerceAll(columnType, values), index: a.series.index}, nil
}

func (a *dtAccessor) Attr(name string) (starlark.Value, error) {
	if field, ok := dateFields[name]; ok {
		return a.mapTimes(name, field)
	}
	if method, ok := dateMethods[name]; ok {
		return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := unpack(name, args, kwargs); err != nil {
				return nil, err
			}
			return a.mapTimes(name, method)
		}), nil
	}
	if name == "strftime" {
		return builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var format string
			if err := unpack(name, args, kwargs, "date_format", &format); err != nil {
				return nil, err
			}
			layout := strftimeLayout(format)
			return a.mapTimes(name, func(t time.Time) any { return t.Format(layout) })
		}), nil
	}
	return nil, nil
}

func (a *dtAccessor) AttrNames() []string {
	names := []string{"strftime"}
	for name := range dateFields {
		names = append(names, name)
	}
	for name := range dateMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var strftimeDirectives = strings.NewReplacer(
	"%Y", "2006", "%y", "06", "%m", "01", "%d", "02", "%H", "15", "%I", "03",
	"%M", "04", "%S", "05", "%p", "PM", "%b", "Jan", "%B", "January",
	"%a", "Mon", "%A", "Monday", "%j", "002", "%%", "%",
)

func strftimeLayout(format string) string {
	return strftimeDirectives.Replace(format)
}
