package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/rmsd"
)

const (
	width  = 10 * vg.Inch
	height = 5 * vg.Inch
)

var (
	lineColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	meanColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Chart is a local RMSD series with the identifiers needed to label it.
type Chart struct {
	A, B           string
	ChainA, ChainB string
	Window         int
	Series         rmsd.Series
}

// FromResult returns the chart of a completed analysis.
func FromResult(r *align.LocalResult) Chart {
	return Chart{A: r.A, B: r.B, ChainA: r.ChainA, ChainB: r.ChainB, Window: r.Window, Series: r.Series}
}

// FileName returns rmsd_local_<A>_<B>_<chainA>_<chainB>.png.
func (c Chart) FileName() string {
	return fmt.Sprintf("rmsd_local_%s_%s_%s_%s.png", c.A, c.B, c.ChainA, c.ChainB)
}

// Plot builds the position vs RMSD chart, with the series mean as a dashed
// reference line and the summary statistics in the title.
func (c Chart) Plot() (*plot.Plot, error) {
	if len(c.Series) == 0 {
		return nil, errors.New("empty series")
	}
	st := c.Series.Stats()

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Local RMSD %s:%s vs %s:%s (window %d)\nmean %.2f Å, sd %.2f Å, max %.2f Å at %d, min %.2f Å",
		c.A, c.ChainA, c.B, c.ChainB, c.Window, st.Mean, st.StdDev, st.Max, st.MaxPosition, st.Min)
	p.X.Label.Text = "Residue"
	p.Y.Label.Text = "RMSD (Å)"
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(c.Series))
	for i, pt := range c.Series {
		pts[i] = plotter.XY{X: float64(pt.Position), Y: pt.RMSD}
	}

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, err
	}
	line.Color = lineColor
	line.Width = vg.Points(1.5)
	points.Color = lineColor
	points.Radius = vg.Points(2)
	p.Add(line, points)
	p.Legend.Add("local RMSD", line, points)

	mean := plotter.NewFunction(func(float64) float64 { return st.Mean })
	mean.Color = meanColor
	mean.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(mean)
	p.Legend.Add("mean", mean)

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p, nil
}

// Save writes the chart as PNG under dir, creating it if needed, and
// returns the file path.
func (c Chart) Save(dir string) (string, error) {
	p, err := c.Plot()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plot directory: %w", err)
	}

	path := filepath.Join(dir, c.FileName())
	if err := p.Save(width, height, path); err != nil {
		return "", fmt.Errorf("save plot %s: %w", path, err)
	}

	return path, nil
}

// WritePNG renders the chart as PNG to w.
func (c Chart) WritePNG(w io.Writer) error {
	p, err := c.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
