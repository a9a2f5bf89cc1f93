package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RenderPNG draws the bus voltage curves of a trace as a PNG image.
func RenderPNG(w io.Writer, trace Trace) error {
	p := plot.New()
	p.Title.Text = "Bus voltages - " + trace.Algorithm
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "voltage (p.u.)"
	p.Add(plotter.NewGrid())

	for i, id := range trace.BusIDs {
		pts := make(plotter.XYs, len(trace.Iterations))
		for k, iteration := range trace.Iterations {
			pts[k].X = float64(iteration)
			pts[k].Y = trace.Voltages[id][k]
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("bus %s: %w", id, err)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)

		p.Add(line)
		p.Legend.Add(id, line)
	}

	writer, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = writer.WriteTo(w)
	return err
}
