package viz

import (
	"fmt"
	"path/filepath"

	xfont "golang.org/x/image/font"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/openfluke/unravel/analysis"
	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/tensor"
)

// PlotComponents renders every component of one significant key and returns
// the written paths. Filenames follow the fixed scheme
// <task>_<axis names joined by underscores>_component_<N>.png.
func PlotComponents(dir, taskID string, k multitensor.Key, comps []analysis.Component, pal TaskPalette) ([]string, error) {
	var paths []string
	for _, comp := range comps {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_component_%d.png", taskID, k, comp.Index))
		title := fmt.Sprintf("component %d, strength = %.6g", comp.Index, comp.Strength)
		var err error
		if len(comp.Values.Shape) == 3 {
			err = plotComponentStrip(path, title, k, comp.Values, pal)
		} else {
			err = plotComponentImage(path, title, k, comp.Values, pal)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// plotComponentImage renders a rank-1 or rank-2 component as one image on
// the fixed [-1, 1] gray scale.
func plotComponentImage(path, title string, k multitensor.Key, vals *tensor.Dense, pal TaskPalette) error {
	axes := presentAxes(k)
	p := plot.New()
	p.Title.Text = title

	img := vals
	switch len(vals.Shape) {
	case 1:
		// A single-axis (or promoted channel-only) component draws as one
		// row, with no y ticks.
		img = vals.Reshape(1, vals.Shape[0])
		p.Y.Tick.Marker = plot.ConstantTicks(nil)
		if len(axes) == 1 {
			p.X.Label.Text = multitensor.AxisName(axes[0])
			labelAxis(p, axes[0], vals.Shape[0], false, pal)
		} else {
			p.X.Tick.Marker = plot.ConstantTicks(nil)
		}
	case 2:
		p.Y.Label.Text = multitensor.AxisName(axes[0])
		p.X.Label.Text = multitensor.AxisName(axes[1])
		labelAxis(p, axes[0], vals.Shape[0], true, pal)
		labelAxis(p, axes[1], vals.Shape[1], false, pal)
	default:
		return fmt.Errorf("viz: cannot draw a rank-%d component as one image", len(vals.Shape))
	}

	h := plotter.NewHeatMap(matrixGrid{img}, grayPalette{levels: 256})
	h.Min, h.Max = -1, 1
	p.Add(h)
	return p.Save(4*vg.Inch, 4*vg.Inch, path)
}

// plotComponentStrip renders a rank-3 component with height and width as a
// horizontal row of sub-images under a figure-level component title, one
// sub-image per index of the extra leading axis, each titled by that axis's
// semantic labels.
func plotComponentStrip(path, title string, k multitensor.Key, vals *tensor.Dense, pal TaskPalette) error {
	axes := presentAxes(k)
	extra := axes[0]
	n, gh, gw := vals.Shape[0], vals.Shape[1], vals.Shape[2]

	row := make([]*plot.Plot, n)
	for i := 0; i < n; i++ {
		p := plot.New()
		switch extra {
		case multitensor.AxisExample:
			p.Title.Text = fmt.Sprintf("example %d", i)
		case multitensor.AxisColor:
			p.Title.Text = pal.Names[i+1]
			p.Title.TextStyle.Color = pal.Colors[i+1]
			p.Title.TextStyle.Font.Weight = xfont.WeightBold
		case multitensor.AxisDirection:
			p.Title.Text = DirectionGlyphs[i]
			p.Title.TextStyle.Font.Size = 16
		}
		p.Y.Label.Text = multitensor.AxisName(axes[1])
		p.X.Label.Text = multitensor.AxisName(axes[2])

		slice := tensor.FromSlice(vals.Data[i*gh*gw:(i+1)*gh*gw], gh, gw)
		h := plotter.NewHeatMap(matrixGrid{slice}, grayPalette{levels: 256})
		h.Min, h.Max = -1, 1
		p.Add(h)
		row[i] = p
	}
	return saveTiled([][]*plot.Plot{row}, vg.Length(n)*3*vg.Inch, 4*vg.Inch, title, path)
}

// presentAxes returns the axis indices k carries, in canonical order.
func presentAxes(k multitensor.Key) []int {
	axes := make([]int, 0, multitensor.NumAxes)
	for a := 0; a < multitensor.NumAxes; a++ {
		if k.Has(a) {
			axes = append(axes, a)
		}
	}
	return axes
}
