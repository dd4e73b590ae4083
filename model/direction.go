package model

import (
	"fmt"

	"github.com/openfluke/unravel/multitensor"
)

// dirVectors is the (dh, dw) step of each compass direction in the fixed
// order ↓ ↘ → ↗ ↑ ↖ ← ↙.
var dirVectors = [multitensor.NumDirections][2]int{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// directional reports whether k carries the three axes the ray ops need.
func directional(k multitensor.Key) bool {
	return k.Has(multitensor.AxisDirection) &&
		k.Has(multitensor.AxisHeight) &&
		k.Has(multitensor.AxisWidth)
}

// forEachRaySlice visits every (leading, direction, channel) grid slice of a
// tensor keyed by k, which must be directional. fn receives the direction
// index, the flat offset of cell (0, 0), and the height/width strides.
func forEachRaySlice(k multitensor.Key, d multitensor.Dims, width int, fn func(dir, base, strideH, strideW int)) {
	strides := axisStrides(k, d, width)
	bound := func(a int) int {
		if k.Has(a) {
			return d.AxisLen(a)
		}
		return 1
	}
	for e := 0; e < bound(multitensor.AxisExample); e++ {
		for c := 0; c < bound(multitensor.AxisColor); c++ {
			for dir := 0; dir < multitensor.NumDirections; dir++ {
				base := e*strides[0] + c*strides[1] + dir*strides[2]
				for t := 0; t < width; t++ {
					fn(dir, base+t, strides[3], strides[4])
				}
			}
		}
	}
}

// scanGrid visits every cell of an H×W grid in an order where the cell one
// step against direction dir comes first, so ray-order recurrences can read
// their predecessor. reverse flips the order for backward passes.
func scanGrid(h, w, dir int, reverse bool, fn func(row, col int)) {
	dh, dw := dirVectors[dir][0], dirVectors[dir][1]
	rows := make([]int, h)
	for i := range rows {
		if (dh >= 0) != reverse {
			rows[i] = i
		} else {
			rows[i] = h - 1 - i
		}
	}
	cols := make([]int, w)
	for i := range cols {
		if (dw >= 0) != reverse {
			cols[i] = i
		} else {
			cols[i] = w - 1 - i
		}
	}
	for _, r := range rows {
		for _, c := range cols {
			fn(r, c)
		}
	}
}

// cummaxLayer runs a cumulative max along each direction's ray order over
// the grid, on a small projected width, for every directional key. Rays give
// each cell a view of everything behind it in that direction, which is how
// the model expresses "extend until blocked" structure.
type cummaxLayer struct {
	dims     multitensor.Dims
	channels int
	hidden   int
	win      map[multitensor.Key]*Param
	wout     map[multitensor.Key]*Param
	bias     map[multitensor.Key]*Param
}

type cummaxCache struct {
	x        family
	g        family
	cm       family
	fromPrev map[multitensor.Key][]bool
}

func (m *Compressor) newCummaxLayer(name string, hidden int) *cummaxLayer {
	l := &cummaxLayer{
		dims:     m.dims,
		channels: m.channels,
		hidden:   hidden,
		win:      make(map[multitensor.Key]*Param),
		wout:     make(map[multitensor.Key]*Param),
		bias:     make(map[multitensor.Key]*Param),
	}
	for _, k := range multitensor.AllKeys() {
		if !directional(k) {
			continue
		}
		prefix := fmt.Sprintf("%s/%s/", name, k)
		l.win[k] = m.newWeight(prefix+"win", m.channels, m.channels, hidden)
		l.wout[k] = m.newWeight(prefix+"wout", hidden, hidden, m.channels)
		l.bias[k] = m.newBias(prefix+"bias", m.channels)
	}
	return l
}

func (l *cummaxLayer) forward(x family) (family, *cummaxCache) {
	c := &cummaxCache{
		x:        x,
		g:        make(family, len(x)),
		cm:       make(family, len(x)),
		fromPrev: make(map[multitensor.Key][]bool, len(x)),
	}
	y := make(family, len(x))
	h, w := l.dims.Height, l.dims.Width
	for k, data := range x {
		if !directional(k) {
			y[k] = data
			continue
		}
		rows := len(data) / l.channels
		g := make([]float64, rows*l.hidden)
		applyLinear(data, rows, l.channels, l.win[k].Data, nil, l.hidden, g)

		cm := make([]float64, len(g))
		from := make([]bool, len(g))
		forEachRaySlice(k, l.dims, l.hidden, func(dir, base, sh, sw int) {
			dh, dw := dirVectors[dir][0], dirVectors[dir][1]
			scanGrid(h, w, dir, false, func(r, col int) {
				off := base + r*sh + col*sw
				cm[off] = g[off]
				pr, pc := r-dh, col-dw
				if pr >= 0 && pr < h && pc >= 0 && pc < w {
					if prev := base + pr*sh + pc*sw; cm[prev] > cm[off] {
						cm[off] = cm[prev]
						from[off] = true
					}
				}
			})
		})

		yk := make([]float64, len(data))
		applyLinear(cm, rows, l.hidden, l.wout[k].Data, l.bias[k].Data, l.channels, yk)
		for i := range yk {
			yk[i] += data[i]
		}
		c.g[k], c.cm[k], c.fromPrev[k], y[k] = g, cm, from, yk
	}
	return y, c
}

func (l *cummaxLayer) backward(c *cummaxCache, dy family) family {
	dx := make(family, len(dy))
	for k, d := range dy {
		dx[k] = append([]float64(nil), d...)
	}
	h, w := l.dims.Height, l.dims.Width
	for k, d := range dy {
		if !directional(k) {
			continue
		}
		data := c.x[k]
		rows := len(data) / l.channels

		dcm := make([]float64, rows*l.hidden)
		linearBackward(c.cm[k], d, rows, l.hidden, l.channels,
			l.wout[k].Data, l.wout[k].Grad, l.bias[k].Grad, dcm)

		// Reverse ray order: each cell routes its gradient either to its own
		// projection or back along the ray to where the max came from.
		dg := make([]float64, len(dcm))
		from := c.fromPrev[k]
		forEachRaySlice(k, l.dims, l.hidden, func(dir, base, sh, sw int) {
			dh, dw := dirVectors[dir][0], dirVectors[dir][1]
			scanGrid(h, w, dir, true, func(r, col int) {
				off := base + r*sh + col*sw
				if from[off] {
					dcm[base+(r-dh)*sh+(col-dw)*sw] += dcm[off]
				} else {
					dg[off] += dcm[off]
				}
			})
		})

		linearBackward(data, dg, rows, l.channels, l.hidden,
			l.win[k].Data, l.win[k].Grad, nil, dx[k])
	}
	return dx
}

// shiftLayer moves a small projected slice one cell along each direction's
// vector, padding with zero at the trailing edge. Paired with cummax it lets
// a cell see its strict predecessors instead of itself.
type shiftLayer struct {
	dims     multitensor.Dims
	channels int
	hidden   int
	win      map[multitensor.Key]*Param
	wout     map[multitensor.Key]*Param
	bias     map[multitensor.Key]*Param
}

type shiftCache struct {
	x  family
	g  family
	sh family
}

func (m *Compressor) newShiftLayer(name string, hidden int) *shiftLayer {
	l := &shiftLayer{
		dims:     m.dims,
		channels: m.channels,
		hidden:   hidden,
		win:      make(map[multitensor.Key]*Param),
		wout:     make(map[multitensor.Key]*Param),
		bias:     make(map[multitensor.Key]*Param),
	}
	for _, k := range multitensor.AllKeys() {
		if !directional(k) {
			continue
		}
		prefix := fmt.Sprintf("%s/%s/", name, k)
		l.win[k] = m.newWeight(prefix+"win", m.channels, m.channels, hidden)
		l.wout[k] = m.newWeight(prefix+"wout", hidden, hidden, m.channels)
		l.bias[k] = m.newBias(prefix+"bias", m.channels)
	}
	return l
}

func (l *shiftLayer) forward(x family) (family, *shiftCache) {
	c := &shiftCache{x: x, g: make(family, len(x)), sh: make(family, len(x))}
	y := make(family, len(x))
	h, w := l.dims.Height, l.dims.Width
	for k, data := range x {
		if !directional(k) {
			y[k] = data
			continue
		}
		rows := len(data) / l.channels
		g := make([]float64, rows*l.hidden)
		applyLinear(data, rows, l.channels, l.win[k].Data, nil, l.hidden, g)

		sh := make([]float64, len(g))
		forEachRaySlice(k, l.dims, l.hidden, func(dir, base, sH, sW int) {
			dh, dw := dirVectors[dir][0], dirVectors[dir][1]
			for r := 0; r < h; r++ {
				for col := 0; col < w; col++ {
					pr, pc := r-dh, col-dw
					if pr >= 0 && pr < h && pc >= 0 && pc < w {
						sh[base+r*sH+col*sW] = g[base+pr*sH+pc*sW]
					}
				}
			}
		})

		yk := make([]float64, len(data))
		applyLinear(sh, rows, l.hidden, l.wout[k].Data, l.bias[k].Data, l.channels, yk)
		for i := range yk {
			yk[i] += data[i]
		}
		c.g[k], c.sh[k], y[k] = g, sh, yk
	}
	return y, c
}

func (l *shiftLayer) backward(c *shiftCache, dy family) family {
	dx := make(family, len(dy))
	for k, d := range dy {
		dx[k] = append([]float64(nil), d...)
	}
	h, w := l.dims.Height, l.dims.Width
	for k, d := range dy {
		if !directional(k) {
			continue
		}
		data := c.x[k]
		rows := len(data) / l.channels

		dsh := make([]float64, rows*l.hidden)
		linearBackward(c.sh[k], d, rows, l.hidden, l.channels,
			l.wout[k].Data, l.wout[k].Grad, l.bias[k].Grad, dsh)

		dg := make([]float64, len(dsh))
		forEachRaySlice(k, l.dims, l.hidden, func(dir, base, sH, sW int) {
			dh, dw := dirVectors[dir][0], dirVectors[dir][1]
			for r := 0; r < h; r++ {
				for col := 0; col < w; col++ {
					pr, pc := r-dh, col-dw
					if pr >= 0 && pr < h && pc >= 0 && pc < w {
						dg[base+pr*sH+pc*sW] += dsh[base+r*sH+col*sW]
					}
				}
			}
		})

		linearBackward(data, dg, rows, l.channels, l.hidden,
			l.win[k].Data, l.win[k].Grad, nil, dx[k])
	}
	return dx
}
