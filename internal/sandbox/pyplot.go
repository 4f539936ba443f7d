package sandbox

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// pyplotAliases maps plt-level functions onto the axes method they apply to
// the current axes.
var pyplotAliases = map[string]string{
	"bar":     "bar",
	"barh":    "barh",
	"boxplot": "boxplot",
	"grid":    "grid",
	"hist":    "hist",
	"legend":  "legend",
	"plot":    "plot",
	"scatter": "scatter",
	"title":   "set_title",
	"xlabel":  "set_xlabel",
	"ylabel":  "set_ylabel",
	"xlim":    "set_xlim",
	"ylim":    "set_ylim",
	"axhline": "axhline",
	"axvline": "axvline",
	"text":    "text",
}

// newPyplot builds the plt module bound to one run's figure.
func newPyplot(r *run) starlark.Value {
	noop := func(name string) *starlark.Builtin {
		return builtin(name, func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		})
	}
	members := starlark.StringDict{
		"figure": builtin("figure", func(_ *starlark.Thread, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
			r.figure.Reset(1, 1)
			return &figureValue{fig: r.figure}, nil
		}),
		"subplots": builtin("subplots", func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			rows, cols := 1, 1
			if err := unpack("subplots", args, kwargs, "nrows?", &rows, "ncols?", &cols); err != nil {
				return nil, err
			}
			axes := r.figure.Reset(rows, cols)
			return starlark.Tuple{&figureValue{fig: r.figure}, newAxesGrid(r.figure.Rows, r.figure.Cols, axes)}, nil
		}),
		"subplot": builtin("subplot", func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var rows, cols, index int
			if len(args) == 1 {
				code, err := starlark.AsInt32(args[0])
				if err != nil {
					return nil, err
				}
				rows, cols, index = code/100, code/10%10, code%10
			} else if err := unpack("subplot", args, kwargs, "nrows", &rows, "ncols", &cols, "index", &index); err != nil {
				return nil, err
			}
			if rows < 1 || cols < 1 || index < 1 || index > rows*cols {
				return nil, fmt.Errorf("subplot: num must be an integer with 1 <= num <= %d, not %d", rows*cols, index)
			}
			if r.figure.Rows != rows || r.figure.Cols != cols {
				r.figure.Reset(rows, cols)
			}
			ax := r.figure.Axes[index-1]
			r.figure.SetCurrent(ax)
			return &axesValue{ax: ax}, nil
		}),
		"gca": builtin("gca", func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return &axesValue{ax: r.figure.Current()}, nil
		}),
		"gcf": builtin("gcf", func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return &figureValue{fig: r.figure}, nil
		}),
		"suptitle": builtin("suptitle", func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var title string
			if err := unpack("suptitle", args, kwargs, "t", &title); err != nil {
				return nil, err
			}
			r.figure.Title = title
			return starlark.None, nil
		}),
		"show": builtin("show", func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			r.figure.Shown = true
			return starlark.None, nil
		}),
		"close": builtin("close", func(*starlark.Thread, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			r.figure.Reset(1, 1)
			r.figure.Shown = false
			return starlark.None, nil
		}),
		"clf":          noop("clf"),
		"savefig":      noop("savefig"),
		"tight_layout": noop("tight_layout"),
		"xticks":       noop("xticks"),
		"yticks":       noop("yticks"),
		"rcParams":     starlark.NewDict(0),
		"style": &starlarkstruct.Module{
			Name:    "style",
			Members: starlark.StringDict{"use": noop("use")},
		},
	}
	for name, method := range pyplotAliases {
		if _, ok := members[name]; ok {
			continue
		}
		name, axesName := name, method
		members[name] = builtin(name, func(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return axesMethods[axesName](r.figure.Current(), name, args, kwargs)
		})
	}
	return &starlarkstruct.Module{Name: "plt", Members: members}
}
