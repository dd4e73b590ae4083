package viz

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/openfluke/unravel/multitensor"
)

// CurveStyle recolors and labels one key's KL curve for presentation. It is
// purely cosmetic and touches no computed statistic.
type CurveStyle struct {
	Color color.Color
	Label string
}

// CurveOverrides carries per-key styling and an optional fixed y-range for
// the KL components plot.
type CurveOverrides struct {
	Styles     map[multitensor.Key]CurveStyle
	YMin, YMax float64
}

// curveLabel names a key's curve the way the reference figures do:
// "(example, height, channel)".
func curveLabel(k multitensor.Key) string {
	label := "("
	for _, name := range k.AxisNames() {
		label += name + ", "
	}
	return label + "channel)"
}

func styled(keys []multitensor.Key, colors []color.Color) map[multitensor.Key]CurveStyle {
	styles := make(map[multitensor.Key]CurveStyle, len(keys))
	for i, k := range keys {
		styles[k] = CurveStyle{Color: colors[i], Label: curveLabel(k)}
	}
	return styles
}

func rgb(r, g, b float64) color.Color {
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}

// BuiltinOverrides returns the hand-tuned curve styling for the handful of
// reference tasks whose decompositions we found worth emphasizing. Every
// other task gets the empty override set.
func BuiltinOverrides(taskID string) CurveOverrides {
	switch taskID {
	case "272f95fa":
		return CurveOverrides{Styles: styled(
			[]multitensor.Key{
				multitensor.MakeKey(true, false, false, true, false),
				multitensor.MakeKey(true, false, false, false, true),
				multitensor.MakeKey(false, true, true, false, false),
				multitensor.MakeKey(false, true, false, false, false),
			},
			[]color.Color{rgb(1, 0, 0), rgb(0, 1, 0), rgb(0, 0.5, 1), rgb(0.5, 0, 1)},
		)}
	case "6cdd2623":
		return CurveOverrides{
			Styles: styled(
				[]multitensor.Key{
					multitensor.MakeKey(true, false, false, true, false),
					multitensor.MakeKey(true, false, false, false, true),
					multitensor.MakeKey(true, true, false, false, false),
					multitensor.MakeKey(true, false, false, true, true),
					multitensor.MakeKey(false, false, true, false, false),
				},
				[]color.Color{rgb(1, 0.6, 0), rgb(0, 1, 0), rgb(0, 0.5, 1), rgb(0.5, 0, 1), rgb(1, 0, 0.5)},
			),
			YMin: 0.3,
			YMax: 4e4,
		}
	case "41e4d17e":
		return CurveOverrides{Styles: styled(
			[]multitensor.Key{
				multitensor.MakeKey(true, false, false, true, true),
				multitensor.MakeKey(false, true, false, false, false),
			},
			[]color.Color{rgb(1, 0, 0), rgb(0, 0, 1)},
		)}
	case "6d75e8bb":
		return CurveOverrides{Styles: styled(
			[]multitensor.Key{
				multitensor.MakeKey(true, false, false, true, false),
				multitensor.MakeKey(true, false, false, false, true),
				multitensor.MakeKey(true, false, false, true, true),
				multitensor.MakeKey(false, true, false, false, false),
			},
			[]color.Color{rgb(1, 0, 0), rgb(0, 1, 0), rgb(0, 0.5, 1), rgb(0.5, 0, 1)},
		)}
	}
	return CurveOverrides{}
}

// curvePoints converts a curve to plot points, clamping to a tiny positive
// floor so log-scale axes accept zero entries.
func curvePoints(curve []float64) plotter.XYs {
	xys := make(plotter.XYs, len(curve))
	for i, v := range curve {
		xys[i] = plotter.XY{X: float64(i), Y: math.Max(v, 1e-12)}
	}
	return xys
}

// PlotKLCurves draws every key's KL curve over training on one log-scale
// plot, gray by default, recolored and labeled per the overrides.
func PlotKLCurves(path string, keys []multitensor.Key, curves map[multitensor.Key][]float64, ov CurveOverrides) error {
	p := plot.New()
	p.X.Label.Text = "step"
	p.Y.Label.Text = "KL contribution"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	for _, k := range keys {
		line, err := plotter.NewLine(curvePoints(curves[k]))
		if err != nil {
			return fmt.Errorf("viz: curve for key %q: %w", k, err)
		}
		line.Color = color.RGBA{128, 128, 128, 255}
		if style, ok := ov.Styles[k]; ok {
			line.Color = style.Color
			if style.Label != "" {
				p.Legend.Add(style.Label, line)
			}
		}
		p.Add(line)
	}
	if ov.YMax > ov.YMin && ov.YMax > 0 {
		p.Y.Min, p.Y.Max = ov.YMin, ov.YMax
	}
	return p.Save(6*vg.Inch, 4.5*vg.Inch, path)
}

// PlotKLVsReconstruction draws the summed KL curve against the
// reconstruction-error curve on one log-scale plot.
func PlotKLVsReconstruction(path string, curves map[multitensor.Key][]float64, recon []float64) error {
	total := make([]float64, len(recon))
	for _, curve := range curves {
		for i, v := range curve {
			if i < len(total) {
				total[i] += v
			}
		}
	}

	p := plot.New()
	p.X.Label.Text = "step"
	p.Y.Label.Text = "total KL or reconstruction error"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	klLine, err := plotter.NewLine(curvePoints(total))
	if err != nil {
		return fmt.Errorf("viz: total KL curve: %w", err)
	}
	klLine.Color = color.Black
	p.Add(klLine)
	p.Legend.Add("KL from z", klLine)

	reconLine, err := plotter.NewLine(curvePoints(recon))
	if err != nil {
		return fmt.Errorf("viz: reconstruction curve: %w", err)
	}
	reconLine.Color = color.RGBA{R: 255, A: 255}
	p.Add(reconLine)
	p.Legend.Add("reconstruction error", reconLine)

	return p.Save(6*vg.Inch, 4.5*vg.Inch, path)
}
