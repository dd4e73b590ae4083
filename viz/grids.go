package viz

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/openfluke/unravel/task"
	"github.com/openfluke/unravel/tensor"
)

// gridPlot renders one padded grid of palette indices in its ARC colors.
func gridPlot(grid [][]int, title string, pal TaskPalette) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Tick.Marker = plot.ConstantTicks(nil)
	p.Y.Tick.Marker = plot.ConstantTicks(nil)

	gh, gw := len(grid), len(grid[0])
	t := tensor.New(gh, gw)
	for r, row := range grid {
		for c, v := range row {
			t.Set(float64(v), r, c)
		}
	}
	h := plotter.NewHeatMap(matrixGrid{t}, gridPalette{colors: pal.Colors})
	// Map palette index i exactly onto color i.
	h.Min, h.Max = -0.5, float64(len(pal.Colors))-0.5
	p.Add(h)
	return p
}

// PlotProblem renders the task's given grids once before training: inputs on
// the top row, known outputs below, a placeholder where the output is
// withheld.
func PlotProblem(t *task.Task, path string) error {
	pal := PaletteFor(t)
	inputs := make([]*plot.Plot, t.NumExamples)
	outputs := make([]*plot.Plot, t.NumExamples)
	for e := 0; e < t.NumExamples; e++ {
		inputs[e] = gridPlot(t.Input[e], fmt.Sprintf("input %d", e), pal)
		if t.OutputKnown[e] {
			outputs[e] = gridPlot(t.Output[e], fmt.Sprintf("output %d", e), pal)
		} else {
			blank := plot.New()
			blank.Title.Text = "output ?"
			blank.X.Tick.Marker = plot.ConstantTicks(nil)
			blank.Y.Tick.Marker = plot.ConstantTicks(nil)
			outputs[e] = blank
		}
	}
	w := vg.Length(t.NumExamples) * 2.5 * vg.Inch
	return saveTiled([][]*plot.Plot{inputs, outputs}, w, 5*vg.Inch, "", path)
}

// PlotSolution renders the model's current most likely output grid per
// example to every path given, one figure per path (normally a PNG and PDF
// pair).
func PlotSolution(t *task.Task, predOut [][][]int, paths ...string) error {
	pal := PaletteFor(t)
	row := make([]*plot.Plot, t.NumExamples)
	for e := 0; e < t.NumExamples; e++ {
		row[e] = gridPlot(predOut[e], fmt.Sprintf("example %d", e), pal)
	}
	w := vg.Length(t.NumExamples) * 2.5 * vg.Inch
	return saveTiled([][]*plot.Plot{row}, w, 2.8*vg.Inch, "", paths...)
}
