package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/askframe/askframe/internal/figure"
)

func TestSeriesHistogramDrawsOnFigure(t *testing.T) {
	code := "df[\"sales\"].plot(kind=\"hist\", bins=5)\nplt.title(\"Sales\")\nplt.show()\n"

	result := execute(t, Config{}, code, salesTable())

	if result.Figure.Empty() || !result.Figure.Shown {
		t.Fatalf("figure = %#v", result.Figure)
	}
	ax := result.Figure.Current()
	if ax.Title != "Sales" || len(ax.Traces) != 1 {
		t.Fatalf("axes = %#v", ax)
	}
	if trace := ax.Traces[0]; trace.Kind != figure.KindHist || trace.Bins != 5 || len(trace.Y) != 3 {
		t.Fatalf("trace = %#v", trace)
	}
	if _, ok := result.Lookup("output_df"); ok {
		t.Fatalf("plotting should not bind output_df")
	}
}

func TestSubplotsReturnsAxesGrid(t *testing.T) {
	code := "fig, axes = plt.subplots(1, 2)\naxes[0].bar([\"a\", \"b\"], [1, 2])\naxes[1].plot([1, 2, 3])\naxes[1].set_title(\"trend\")\n"

	result := execute(t, Config{}, code, salesTable())

	f := result.Figure
	if f.Rows != 1 || f.Cols != 2 || len(f.Axes) != 2 {
		t.Fatalf("grid = %dx%d", f.Rows, f.Cols)
	}
	if trace := f.Axes[0].Traces[0]; trace.Kind != figure.KindBar || len(trace.Categories) != 2 {
		t.Fatalf("bar trace = %#v", trace)
	}
	line := f.Axes[1].Traces[0]
	if line.Kind != figure.KindLine || len(line.X) != 3 || line.X[2] != 2 || line.Y[2] != 3 {
		t.Fatalf("line trace = %#v", line)
	}
	if f.Axes[1].Title != "trend" {
		t.Fatalf("title = %q", f.Axes[1].Title)
	}
}

func TestSubplotRejectsIndexOutsideGrid(t *testing.T) {
	_, err := New(Config{}).Execute(context.Background(), "ax = plt.subplot(2, 1, 3)\n", salesTable())

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ExecutionError", err)
	}
	if !strings.Contains(err.Error(), "1 <= num <= 2, not 3") {
		t.Fatalf("error = %v", err)
	}
}

func TestSeabornBarplotAveragesPerCategory(t *testing.T) {
	result := execute(t, Config{}, `sns.barplot(data=df, x="region", y="sales", palette="muted")`, salesTable())

	ax := result.Figure.Current()
	trace := ax.Traces[0]
	if trace.Kind != figure.KindBar || len(trace.Categories) != 2 || trace.Categories[0] != "north" {
		t.Fatalf("trace = %#v", trace)
	}
	if trace.Y[0] != 20 || trace.Y[1] != 20 {
		t.Fatalf("means = %v", trace.Y)
	}
	if ax.XLabel != "region" || ax.YLabel != "sales" {
		t.Fatalf("labels = %q %q", ax.XLabel, ax.YLabel)
	}
}

func TestFigureCallStartsOver(t *testing.T) {
	code := "plt.plot([1, 2])\nplt.figure(figsize=(10, 6))\nplt.plot([3, 4], label=\"b\")\n"

	result := execute(t, Config{}, code, salesTable())

	traces := 0
	for _, ax := range result.Figure.Axes {
		traces += len(ax.Traces)
	}
	if traces != 1 || result.Figure.Current().Traces[0].Label != "b" {
		t.Fatalf("figure = %#v", result.Figure)
	}
}

func TestFramePlotUsesXColumn(t *testing.T) {
	result := execute(t, Config{}, `df.plot(x="units", y="sales", kind="scatter")`, salesTable())

	ax := result.Figure.Current()
	trace := ax.Traces[0]
	if trace.Kind != figure.KindScatter || trace.X[0] != 1 || trace.Y[0] != 10 {
		t.Fatalf("trace = %#v", trace)
	}
	if ax.XLabel != "units" {
		t.Fatalf("xlabel = %q", ax.XLabel)
	}
}

func TestRunsDoNotShareFigures(t *testing.T) {
	executor := New(Config{})
	first := execute(t, Config{}, "plt.plot([1, 2, 3])\n", salesTable())
	second, err := executor.Execute(t.Context(), "x = 1\n", salesTable())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if first.Figure.Empty() || !second.Figure.Empty() {
		t.Fatalf("figures leaked between runs")
	}
}
