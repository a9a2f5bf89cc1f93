package report

import (
	"fmt"
	"io"

	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/models"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"golang.org/x/exp/slices"
)

// Trace is the per-iteration view of one run, with buses and lines in grid order.
type Trace struct {
	Algorithm  string
	Iterations []int
	// Voltages[bus][k] is the voltage of bus at history index k.
	Voltages map[string][]float64
	Flows    map[string][]float64
	// MaxChange[k] is the largest non-generator voltage change between index
	// k-1 and k, 0 at k=0.
	MaxChange []float64
	BusIDs    []string
	LineIDs   []string
}

func NewTrace(grid *models.Grid, algorithm string, history []models.AlgorithmState) Trace {
	trace := Trace{
		Algorithm:  algorithm,
		Iterations: make([]int, len(history)),
		Voltages:   make(map[string][]float64, len(grid.Buses)),
		Flows:      make(map[string][]float64, len(grid.Lines)),
		MaxChange:  make([]float64, len(history)),
	}

	for _, bus := range grid.Buses {
		trace.BusIDs = append(trace.BusIDs, bus.ID)
		trace.Voltages[bus.ID] = make([]float64, len(history))
	}
	for _, line := range grid.Lines {
		trace.LineIDs = append(trace.LineIDs, line.ID)
		trace.Flows[line.ID] = make([]float64, len(history))
	}

	for k, state := range history {
		trace.Iterations[k] = state.Iteration
		for _, bus := range grid.Buses {
			id := bus.ID
			v := state.BusVoltages[id]
			trace.Voltages[id][k] = v
			// generator buses are not part of the solvers' convergence test
			if k > 0 && !bus.IsGenerator() {
				change := v - trace.Voltages[id][k-1]
				if change < 0 {
					change = -change
				}
				if change > trace.MaxChange[k] {
					trace.MaxChange[k] = change
				}
			}
		}
		for _, id := range trace.LineIDs {
			trace.Flows[id][k] = state.LineFlows[id].Flow
		}
	}

	return trace
}

func lineChart(title, subtitle, yName string, x []int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithLegendOpts(opts.Legend{
			Type:   "scroll",
			Orient: "vertical",
			Right:  "10",
			Top:    "20",
			Bottom: "20",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "iteration"}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:  yName,
			Scale: opts.Bool(true),
		}),
	)
	line.SetXAxis(x)
	return line
}

func lineData(values []float64) []opts.LineData {
	items := make([]opts.LineData, len(values))
	for i, v := range values {
		items[i] = opts.LineData{Value: v}
	}
	return items
}

// Render writes an HTML page with the run's voltage, flow and convergence
// curves followed by the method comparison scores.
func Render(w io.Writer, trace Trace, comparison []loadflow.ComparisonRow) error {
	subtitle := fmt.Sprintf("%s, %d iterations", trace.Algorithm, len(trace.Iterations)-1)

	voltages := lineChart("Bus voltages", subtitle, "p.u.", trace.Iterations)
	for _, id := range trace.BusIDs {
		voltages.AddSeries(id, lineData(trace.Voltages[id]))
	}

	flows := lineChart("Line flows", subtitle, "flow", trace.Iterations)
	for _, id := range trace.LineIDs {
		flows.AddSeries(id, lineData(trace.Flows[id]))
	}

	change := lineChart("Largest voltage change", fmt.Sprintf("convergence threshold %g", loadflow.ConvergenceThreshold), "p.u.", trace.Iterations)
	change.AddSeries("max |dV|", lineData(trace.MaxChange))

	page := components.NewPage()
	page.PageTitle = "Load flow convergence"
	page.AddCharts(voltages, flows, change, comparisonChart(comparison))

	return page.Render(w)
}

func comparisonChart(rows []loadflow.ComparisonRow) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Method comparison",
			Subtitle: "indicative scores, 0 to 10",
		}),
		charts.WithLegendOpts(opts.Legend{Right: "10"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	metrics := make([]string, len(rows))
	for i, row := range rows {
		metrics[i] = row.Metric
	}
	bar.SetXAxis(metrics)

	for _, name := range methodNames(rows) {
		items := make([]opts.BarData, len(rows))
		for i, row := range rows {
			items[i] = opts.BarData{Value: row.Scores[name]}
		}
		bar.AddSeries(name, items)
	}

	return bar
}

func methodNames(rows []loadflow.ComparisonRow) []string {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0].Scores))
	for name := range rows[0].Scores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
