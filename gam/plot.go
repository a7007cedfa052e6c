package gam

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/neurogo/clustergam/pkg/errors"
)

// PlotSmooth renders the partial effect of the smooth term s(name) over a
// 200-point grid and saves it to path (format from the extension, e.g.
// .png or .pdf).
func (g *GAM) PlotSmooth(name, path string) error {
	grid, effect, err := g.PartialEffect(name, 200)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("s(%s), edf %.2f", name, g.edfSmooth["s("+name+")"])
	p.X.Label.Text = name
	p.Y.Label.Text = fmt.Sprintf("f(%s)", name)

	pts := make(plotter.XYs, len(grid))
	for i := range grid {
		pts[i].X = grid[i]
		pts[i].Y = effect[i]
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "GAM.PlotSmooth")
	}
	p.Add(line, plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "GAM.PlotSmooth: save %s", path)
	}
	return nil
}
