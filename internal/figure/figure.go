package figure

import "math"

type Kind string

const (
	KindLine    Kind = "line"
	KindScatter Kind = "scatter"
	KindBar     Kind = "bar"
	KindBarH    Kind = "barh"
	KindHist    Kind = "hist"
	KindBox     Kind = "box"
)

// Trace is one drawing call on an axes.
type Trace struct {
	Kind       Kind
	Label      string
	X          []float64
	Y          []float64
	Categories []string
	Groups     [][]float64
	Bins       int
}

type Axes struct {
	Title  string
	XLabel string
	YLabel string
	Legend bool
	Grid   bool
	Traces []Trace
}

func (a *Axes) Add(trace Trace) {
	a.Traces = append(a.Traces, trace)
}

// Figure is the drawing state of a single sandbox run. It is never shared
// between runs.
type Figure struct {
	Title   string
	Rows    int
	Cols    int
	Axes    []*Axes
	Shown   bool
	current int
}

func New() *Figure {
	f := &Figure{}
	f.Reset(1, 1)
	return f
}

// Reset discards every axes and lays out a rows x cols grid.
func (f *Figure) Reset(rows, cols int) []*Axes {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	f.Title = ""
	f.Rows = rows
	f.Cols = cols
	f.Axes = make([]*Axes, rows*cols)
	for i := range f.Axes {
		f.Axes[i] = &Axes{}
	}
	f.current = 0
	return f.Axes
}

// Current returns the axes plt-level calls draw on.
func (f *Figure) Current() *Axes {
	if len(f.Axes) == 0 {
		f.Reset(1, 1)
	}
	return f.Axes[f.current]
}

func (f *Figure) SetCurrent(ax *Axes) {
	for i, candidate := range f.Axes {
		if candidate == ax {
			f.current = i
			return
		}
	}
}

func (f *Figure) Empty() bool {
	if f == nil {
		return true
	}
	for _, ax := range f.Axes {
		if len(ax.Traces) > 0 {
			return false
		}
	}
	return true
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
