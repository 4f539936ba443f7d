package figure

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// RenderPNG draws every axes of f on a grid and encodes the image as PNG.
// Width and height are in inches.
func RenderPNG(f *Figure, width, height float64) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("figure is nil")
	}
	if width <= 0 {
		width = 8
	}
	if height <= 0 {
		height = 5
	}

	plots := make([][]*plot.Plot, f.Rows)
	for row := range plots {
		plots[row] = make([]*plot.Plot, f.Cols)
		for col := range plots[row] {
			index := row*f.Cols + col
			if index >= len(f.Axes) {
				continue
			}
			p, err := buildPlot(f.Axes[index])
			if err != nil {
				return nil, fmt.Errorf("axes %d: %w", index, err)
			}
			plots[row][col] = p
		}
	}
	if f.Title != "" && f.Rows == 1 && f.Cols == 1 && plots[0][0].Title.Text == "" {
		plots[0][0].Title.Text = f.Title
	}

	img := vgimg.New(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch)
	dc := draw.New(img)
	dc.SetColor(color.White)
	dc.Fill(dc.Rectangle.Path())

	tiles := draw.Tiles{
		Rows:      f.Rows,
		Cols:      f.Cols,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for row := range plots {
		for col := range plots[row] {
			if plots[row][col] != nil {
				plots[row][col].Draw(canvases[row][col])
			}
		}
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func buildPlot(ax *Axes) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = ax.Title
	p.X.Label.Text = ax.XLabel
	p.Y.Label.Text = ax.YLabel
	if ax.Grid {
		p.Add(plotter.NewGrid())
	}
	p.Legend.Top = true

	drawn := 0
	bars := 0
	for _, trace := range ax.Traces {
		if trace.Kind == KindBar || trace.Kind == KindBarH {
			bars++
		}
	}
	barIndex := 0

	for i, trace := range ax.Traces {
		fill := plotutil.Color(i)
		var thumbs []plot.Thumbnailer
		switch trace.Kind {
		case KindLine, KindScatter:
			xys := pointsOf(trace.X, trace.Y)
			if len(xys) == 0 {
				continue
			}
			if trace.Kind == KindLine {
				line, err := plotter.NewLine(xys)
				if err != nil {
					return nil, err
				}
				line.Color = fill
				line.Width = vg.Points(1.5)
				p.Add(line)
				thumbs = append(thumbs, line)
			} else {
				scatter, err := plotter.NewScatter(xys)
				if err != nil {
					return nil, err
				}
				scatter.GlyphStyle.Color = fill
				scatter.GlyphStyle.Radius = vg.Points(2.5)
				p.Add(scatter)
				thumbs = append(thumbs, scatter)
			}
			if len(trace.Categories) == len(trace.X) && len(trace.Categories) > 0 {
				p.NominalX(trace.Categories...)
			}
		case KindBar, KindBarH:
			values := finiteValues(trace.Y)
			if len(values) == 0 {
				continue
			}
			width := vg.Points(40) / vg.Length(bars)
			chart, err := plotter.NewBarChart(values, width)
			if err != nil {
				return nil, err
			}
			chart.Color = fill
			chart.LineStyle.Width = vg.Length(0)
			chart.Offset = width * vg.Length(barIndex-(bars-1)/2)
			chart.Horizontal = trace.Kind == KindBarH
			barIndex++
			p.Add(chart)
			thumbs = append(thumbs, chart)
			if len(trace.Categories) > 0 {
				if chart.Horizontal {
					p.NominalY(trace.Categories...)
				} else {
					p.NominalX(trace.Categories...)
				}
			}
		case KindHist:
			values := finiteValues(trace.Y)
			if len(values) == 0 {
				continue
			}
			hist, err := plotter.NewHist(values, histBins(trace.Bins, values))
			if err != nil {
				return nil, err
			}
			hist.FillColor = fill
			p.Add(hist)
			thumbs = append(thumbs, hist)
		case KindBox:
			added := 0
			for g, group := range trace.Groups {
				values := finiteValues(group)
				if len(values) == 0 {
					continue
				}
				box, err := plotter.NewBoxPlot(vg.Points(30), float64(g), values)
				if err != nil {
					return nil, err
				}
				box.FillColor = plotutil.Color(i + g)
				p.Add(box)
				added++
			}
			if added == 0 {
				continue
			}
			if len(trace.Categories) == len(trace.Groups) && len(trace.Categories) > 0 {
				p.NominalX(trace.Categories...)
			}
		default:
			return nil, fmt.Errorf("unsupported trace kind %q", trace.Kind)
		}
		drawn++
		if ax.Legend && trace.Label != "" && len(thumbs) > 0 {
			p.Legend.Add(trace.Label, thumbs...)
		}
	}

	if drawn == 0 {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
	}
	return p, nil
}

func pointsOf(x, y []float64) plotter.XYs {
	n := len(y)
	if len(x) < n {
		n = len(x)
	}
	points := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if !finite(x[i]) || !finite(y[i]) {
			continue
		}
		points = append(points, plotter.XY{X: x[i], Y: y[i]})
	}
	return points
}

func finiteValues(values []float64) plotter.Values {
	out := make(plotter.Values, 0, len(values))
	for _, value := range values {
		if finite(value) {
			out = append(out, value)
		}
	}
	return out
}

// histBins avoids a zero-width range when every value is identical.
func histBins(requested int, values plotter.Values) int {
	if requested <= 0 {
		requested = 10
	}
	min, max := values[0], values[0]
	for _, value := range values {
		if value < min {
			min = value
		}
		if value > max {
			max = value
		}
	}
	if min == max {
		return 1
	}
	return requested
}
