package output

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/AgileCrafts/Satellite-Image-Analysis/internal/raster"
)

// PlotIndexHistogram saves a histogram of the finite values of g with a
// vertical line at threshold.
func PlotIndexHistogram(g raster.Grid, threshold float64, title, path string) error {
	values := make(plotter.Values, 0, g.Len())
	for _, v := range g.Data {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("no finite values to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "value"
	p.Y.Label.Text = "pixels"

	hist, err := plotter.NewHist(values, 64)
	if err != nil {
		return fmt.Errorf("failed to build histogram: %w", err)
	}
	hist.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(hist)

	var top float64
	for _, b := range hist.Bins {
		top = math.Max(top, b.Weight)
	}
	line, err := plotter.NewLine(plotter.XYs{{X: threshold, Y: 0}, {X: threshold, Y: top}})
	if err != nil {
		return fmt.Errorf("failed to build threshold line: %w", err)
	}
	line.Color = color.RGBA{R: 220, A: 255}
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("threshold %.3f", threshold), line)

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram: %w", err)
	}
	return nil
}
