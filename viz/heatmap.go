package viz

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	xfont "golang.org/x/image/font"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	ptext "gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"

	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/tensor"
)

// matrixGrid presents a 2-D tensor to the heatmap plotter with row 0 at the
// top, matching how grids and matrices are read.
type matrixGrid struct{ t *tensor.Dense }

func (g matrixGrid) Dims() (c, r int)   { return g.t.Shape[1], g.t.Shape[0] }
func (g matrixGrid) Z(c, r int) float64 { return g.t.At(g.t.Shape[0]-1-r, c) }
func (g matrixGrid) X(c int) float64    { return float64(c) }
func (g matrixGrid) Y(r int) float64    { return float64(r) }

// flipRow converts a semantic row index to its plot position under the
// top-down orientation of matrixGrid.
func flipRow(rows, i int) float64 { return float64(rows - 1 - i) }

// labelAxis applies the tick labelling each semantic axis gets: integer
// indices for example, styled color names for color, enlarged compass glyphs
// for direction, plain numeric ticks for height and width. vertical selects
// the y axis; n is the axis length.
func labelAxis(p *plot.Plot, axis int, n int, vertical bool, pal TaskPalette) {
	target := &p.X
	if vertical {
		target = &p.Y
	}
	pos := func(i int) float64 {
		if vertical {
			return flipRow(n, i)
		}
		return float64(i)
	}

	switch axis {
	case multitensor.AxisExample:
		ticks := make([]plot.Tick, n)
		for i := range ticks {
			ticks[i] = plot.Tick{Value: pos(i), Label: fmt.Sprintf("%d", i)}
		}
		target.Tick.Marker = plot.ConstantTicks(ticks)

	case multitensor.AxisColor:
		// The color axis skips the background entry; index i is palette
		// entry i+1, drawn bold in its own color.
		target.Tick.Marker = plot.ConstantTicks(nil)
		xys := make(plotter.XYs, n)
		labels := make([]string, n)
		for i := 0; i < n; i++ {
			if vertical {
				xys[i] = plotter.XY{X: -0.9, Y: pos(i)}
			} else {
				xys[i] = plotter.XY{X: pos(i), Y: -0.9}
			}
			labels[i] = pal.Names[i+1]
		}
		l, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
		if err != nil {
			return
		}
		for i := range l.TextStyle {
			l.TextStyle[i].Color = pal.Colors[i+1]
			l.TextStyle[i].Font.Weight = xfont.WeightBold
			if vertical {
				l.TextStyle[i].XAlign = ptext.XRight
				l.TextStyle[i].YAlign = ptext.YCenter
			} else {
				l.TextStyle[i].XAlign = ptext.XCenter
				l.TextStyle[i].YAlign = ptext.YTop
			}
		}
		p.Add(l)

	case multitensor.AxisDirection:
		ticks := make([]plot.Tick, multitensor.NumDirections)
		for i := range ticks {
			ticks[i] = plot.Tick{Value: pos(i), Label: DirectionGlyphs[i]}
		}
		target.Tick.Marker = plot.ConstantTicks(ticks)
		target.Tick.Label.Font.Size = 16
	}
}

// titled draws the figure-level title along the canvas's top edge and
// returns the remaining area for the tiles.
func titled(title string, dc draw.Canvas) draw.Canvas {
	if title == "" {
		return dc
	}
	sty := ptext.Style{
		Color:   color.Black,
		Font:    font.From(plot.DefaultFont, 14),
		XAlign:  ptext.XCenter,
		YAlign:  ptext.YTop,
		Handler: ptext.Plain{Fonts: font.DefaultCache},
	}
	dc.FillText(sty, vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: dc.Max.Y}, title)
	return draw.Crop(dc, 0, 0, 0, -6*vg.Millimeter)
}

// saveTiled lays plots out on a tile grid under an optional figure-level
// title and writes the canvas to every
// path given, choosing the backend from each extension (.png or .pdf).
func saveTiled(plots [][]*plot.Plot, w, h vg.Length, title string, paths ...string) error {
	rows, cols := len(plots), 0
	for _, r := range plots {
		if len(r) > cols {
			cols = len(r)
		}
	}
	tiles := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}

	for _, path := range paths {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png":
			img := vgimg.New(w, h)
			drawTiles(plots, tiles, titled(title, draw.New(img)))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("viz: %w", err)
			}
			png := vgimg.PngCanvas{Canvas: img}
			if _, err := png.WriteTo(f); err != nil {
				f.Close()
				return fmt.Errorf("viz: write %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("viz: %w", err)
			}
		case ".pdf":
			pdf := vgpdf.New(w, h)
			drawTiles(plots, tiles, titled(title, draw.New(pdf)))
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("viz: %w", err)
			}
			if _, err := pdf.WriteTo(f); err != nil {
				f.Close()
				return fmt.Errorf("viz: write %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("viz: %w", err)
			}
		default:
			return fmt.Errorf("viz: unsupported figure format %q", filepath.Ext(path))
		}
	}
	return nil
}

func drawTiles(plots [][]*plot.Plot, tiles draw.Tiles, dc draw.Canvas) {
	canvases := plot.Align(plots, tiles, dc)
	for i, row := range plots {
		for j, p := range row {
			if p != nil {
				p.Draw(canvases[i][j])
			}
		}
	}
}
