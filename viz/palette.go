// Package viz renders the pipeline's figures: task grids, training curves,
// and principal-component images, all through gonum/plot with deterministic
// filenames that downstream tooling can rely on.
package viz

import (
	"image/color"

	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/task"
)

// arcColors is the standard ARC palette, indexed by color code 0-9.
var arcColors = [10]color.RGBA{
	{0x00, 0x00, 0x00, 0xff}, // black
	{0x00, 0x74, 0xd9, 0xff}, // blue
	{0xff, 0x41, 0x36, 0xff}, // red
	{0x2e, 0xcc, 0x40, 0xff}, // green
	{0xff, 0xdc, 0x00, 0xff}, // yellow
	{0xaa, 0xaa, 0xaa, 0xff}, // gray
	{0xf0, 0x12, 0xbe, 0xff}, // magenta
	{0xff, 0x85, 0x1b, 0xff}, // orange
	{0x7f, 0xdb, 0xff, 0xff}, // light blue
	{0x87, 0x0c, 0x25, 0xff}, // brown
}

var arcColorNames = [10]string{
	"black", "blue", "red", "green", "yellow",
	"gray", "magenta", "orange", "light blue", "brown",
}

// DirectionGlyphs labels the 8-direction axis in its canonical order.
var DirectionGlyphs = [multitensor.NumDirections]string{"↓", "↘", "→", "↗", "↑", "↖", "←", "↙"}

// TaskPalette is the restriction of the ARC palette to one task's colors,
// in palette-index order (background first).
type TaskPalette struct {
	Names  []string
	Colors []color.RGBA
}

// PaletteFor builds the palette restricted to t's colors.
func PaletteFor(t *task.Task) TaskPalette {
	p := TaskPalette{
		Names:  make([]string, 0, len(t.Colors)),
		Colors: make([]color.RGBA, 0, len(t.Colors)),
	}
	for i := range t.Colors {
		code := t.PaletteCode(i)
		p.Names = append(p.Names, arcColorNames[code])
		p.Colors = append(p.Colors, arcColors[code])
	}
	return p
}

// gridPalette adapts a task palette to gonum's palette interface so grids
// render with their true ARC colors.
type gridPalette struct{ colors []color.RGBA }

func (p gridPalette) Colors() []color.Color {
	out := make([]color.Color, len(p.colors))
	for i, c := range p.colors {
		out[i] = c
	}
	return out
}

// grayPalette is a linear grayscale ramp for component images.
type grayPalette struct{ levels int }

func (p grayPalette) Colors() []color.Color {
	out := make([]color.Color, p.levels)
	for i := range out {
		v := uint8(i * 255 / (p.levels - 1))
		out[i] = color.Gray{Y: v}
	}
	return out
}
