package figure

import (
	"bytes"
	"image/png"
	"math"
	"testing"
)

func TestNewFigureIsEmpty(t *testing.T) {
	f := New()
	if !f.Empty() {
		t.Fatal("new figure should be empty")
	}
	f.Current().Add(Trace{Kind: KindLine, X: []float64{0, 1}, Y: []float64{1, 2}})
	if f.Empty() {
		t.Fatal("figure with a trace should not be empty")
	}
}

func TestResetLaysOutGrid(t *testing.T) {
	f := New()
	f.Current().Title = "old"
	axes := f.Reset(2, 3)
	if len(axes) != 6 || f.Rows != 2 || f.Cols != 3 {
		t.Fatalf("Reset() axes=%d rows=%d cols=%d", len(axes), f.Rows, f.Cols)
	}
	if f.Current().Title != "" {
		t.Fatal("Reset() kept old axes state")
	}
	f.SetCurrent(axes[4])
	if f.Current() != axes[4] {
		t.Fatal("SetCurrent() did not switch axes")
	}
}

func TestRenderPNGProducesImage(t *testing.T) {
	f := New()
	ax := f.Current()
	ax.Title = "Distribution of sales"
	ax.XLabel = "sales"
	ax.Legend = true
	ax.Add(Trace{Kind: KindHist, Label: "sales", Y: []float64{1, 2, 2, 3, 3, 3, math.NaN()}, Bins: 3})

	data, err := RenderPNG(f, 4, 3)
	if err != nil {
		t.Fatalf("RenderPNG() error = %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Fatalf("image bounds = %v", img.Bounds())
	}
}

func TestRenderPNGEveryTraceKind(t *testing.T) {
	f := New()
	axes := f.Reset(2, 2)
	axes[0].Add(Trace{Kind: KindLine, X: []float64{0, 1, 2}, Y: []float64{3, 1, 2}})
	axes[0].Add(Trace{Kind: KindScatter, X: []float64{0, 1, 2}, Y: []float64{1, 2, 3}})
	axes[1].Add(Trace{Kind: KindBar, Categories: []string{"a", "b"}, Y: []float64{4, 5}})
	axes[2].Add(Trace{Kind: KindBarH, Categories: []string{"a", "b"}, Y: []float64{4, 5}})
	axes[3].Add(Trace{Kind: KindBox, Categories: []string{"x", "y"}, Groups: [][]float64{{1, 2, 3, 4}, {2, 3, 4, 5}}})

	if _, err := RenderPNG(f, 6, 6); err != nil {
		t.Fatalf("RenderPNG() error = %v", err)
	}
}

func TestRenderPNGHandlesDegenerateData(t *testing.T) {
	f := New()
	f.Current().Add(Trace{Kind: KindHist, Y: []float64{7, 7, 7}})
	f.Current().Add(Trace{Kind: KindLine, X: []float64{}, Y: []float64{}})
	if _, err := RenderPNG(f, 3, 3); err != nil {
		t.Fatalf("RenderPNG() error = %v", err)
	}
	if _, err := RenderPNG(New(), 3, 3); err != nil {
		t.Fatalf("RenderPNG(empty) error = %v", err)
	}
}
