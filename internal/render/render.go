package render

import (
	"fmt"
	"strings"

	"github.com/askframe/askframe/internal/figure"
	"github.com/askframe/askframe/internal/sandbox"
	"github.com/askframe/askframe/internal/table"
)

type Kind string

const (
	KindTable  Kind = "table"
	KindValue  Kind = "value"
	KindText   Kind = "text"
	KindFigure Kind = "figure"
)

const (
	TableBinding = "output_df"
	ValueBinding = "output_value"
)

// VisualizationKeywords trigger figure output when they appear anywhere in
// the question, case-insensitively.
var VisualizationKeywords = []string{
	"plot", "graph", "chart", "visual", "trend", "distribution", "bar", "line", "scatter", "histogram",
}

// Output is one rendered result. Which fields are set depends on Kind.
type Output struct {
	Kind  Kind
	Title string
	// Text is the printable form for text and value outputs.
	Text string
	// Table holds at most PreviewRows rows; TotalRows is the full count.
	Table     *table.Table
	TotalRows int
	Value     any
	// Figure is a PNG image.
	Figure []byte
}

type Report struct {
	Outputs []Output
}

// Empty reports a run that produced nothing recognisable. This is a valid
// outcome, not an error.
func (r Report) Empty() bool {
	return len(r.Outputs) == 0
}

func (r Report) Kinds() []Kind {
	kinds := make([]Kind, len(r.Outputs))
	for i, output := range r.Outputs {
		kinds[i] = output.Kind
	}
	return kinds
}

type Options struct {
	PreviewRows int
	// FigureWidth and FigureHeight are in inches.
	FigureWidth  float64
	FigureHeight float64
}

func DefaultOptions() Options {
	return Options{PreviewRows: 50, FigureWidth: 8, FigureHeight: 5}
}

// RenderError is returned when an output could not be encoded.
type RenderError struct {
	Kind Kind
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s output: %v", e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// WantsFigure reports whether the question asks for a visualization.
func WantsFigure(question string) bool {
	lowered := strings.ToLower(question)
	for _, keyword := range VisualizationKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// Classify turns a sandbox result into outputs. The checks are independent:
// a table binding, a value binding, console text and a visualization keyword
// each contribute their own output, in that order. A keyword renders the
// active figure even when nothing was drawn on it, and a binding to None
// still counts as a binding.
func Classify(question string, result sandbox.Result, opts Options) (Report, error) {
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultOptions().PreviewRows
	}
	var report Report

	if value, ok := result.Lookup(TableBinding); ok {
		tbl := sandbox.AsTable(value, TableBinding)
		report.Outputs = append(report.Outputs, Output{
			Kind:      KindTable,
			Title:     "Output DataFrame",
			Table:     tbl.Head(opts.PreviewRows),
			TotalRows: tbl.NumRows(),
		})
	}

	if value, ok := result.Lookup(ValueBinding); ok {
		report.Outputs = append(report.Outputs, Output{
			Kind:  KindValue,
			Title: "Computed Value",
			Text:  sandbox.Display(value),
			Value: sandbox.ToGo(value),
		})
	}

	if result.Stdout != "" {
		text := result.Stdout
		if result.Truncated {
			text += "\n[output truncated]"
		}
		report.Outputs = append(report.Outputs, Output{Kind: KindText, Title: "Console Output", Text: text})
	}

	if WantsFigure(question) {
		width, height := opts.FigureWidth, opts.FigureHeight
		if width <= 0 || height <= 0 {
			width, height = DefaultOptions().FigureWidth, DefaultOptions().FigureHeight
		}
		active := result.Figure
		if active == nil {
			active = figure.New()
		}
		png, err := figure.RenderPNG(active, width, height)
		if err != nil {
			return report, &RenderError{Kind: KindFigure, Err: err}
		}
		report.Outputs = append(report.Outputs, Output{Kind: KindFigure, Title: "Visualization", Figure: png})
	}
	return report, nil
}
