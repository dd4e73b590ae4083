package model

import (
	"fmt"
	"math"

	"github.com/openfluke/unravel/multitensor"
)

// softmaxLayer lets each key compete along its own axes. The input projects
// to a small width, a softmax runs independently along every present axis,
// the per-axis results are concatenated on the trailing axis and projected
// back, residual add. The axis-free key has no axis to normalize and passes
// through unchanged.
type softmaxLayer struct {
	dims     multitensor.Dims
	channels int
	hidden   int
	win      map[multitensor.Key]*Param
	wout     map[multitensor.Key]*Param
	bias     map[multitensor.Key]*Param
}

type softmaxCache struct {
	x   family
	g   family                          // projected input, width hidden
	t   map[multitensor.Key][][]float64 // one softmaxed buffer per present axis
	cat family                          // concatenated, width rank*hidden
}

func (m *Compressor) newSoftmaxLayer(name string, hidden int) *softmaxLayer {
	l := &softmaxLayer{
		dims:     m.dims,
		channels: m.channels,
		hidden:   hidden,
		win:      make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		wout:     make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		bias:     make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
	}
	for _, k := range multitensor.AllKeys() {
		if k.Rank() == 0 {
			continue
		}
		prefix := fmt.Sprintf("%s/%s/", name, k)
		l.win[k] = m.newWeight(prefix+"win", m.channels, m.channels, hidden)
		l.wout[k] = m.newWeight(prefix+"wout", k.Rank()*hidden, k.Rank()*hidden, m.channels)
		l.bias[k] = m.newBias(prefix+"bias", m.channels)
	}
	return l
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

// forEachLine visits every 1-D line along axis a of a tensor keyed by k with
// the given trailing width: one call per remaining position and trailing
// index. count elements lie stride apart starting at base.
func forEachLine(k multitensor.Key, a int, d multitensor.Dims, width int, fn func(base, stride, count int)) {
	strides := axisStrides(k, d, width)
	count := d.AxisLen(a)
	bound := func(ax int) int {
		if k.Has(ax) && ax != a {
			return d.AxisLen(ax)
		}
		return 1
	}
	for e := 0; e < bound(multitensor.AxisExample); e++ {
		for c := 0; c < bound(multitensor.AxisColor); c++ {
			for dir := 0; dir < bound(multitensor.AxisDirection); dir++ {
				for h := 0; h < bound(multitensor.AxisHeight); h++ {
					for w := 0; w < bound(multitensor.AxisWidth); w++ {
						base := e*strides[0] + c*strides[1] + dir*strides[2] + h*strides[3] + w*strides[4]
						for t := 0; t < width; t++ {
							fn(base+t, strides[a], count)
						}
					}
				}
			}
		}
	}
}

func softmaxLine(dst, src []float64, base, stride, count int) {
	maxv := src[base]
	for i := 1; i < count; i++ {
		if v := src[base+i*stride]; v > maxv {
			maxv = v
		}
	}
	sum := 0.0
	for i := 0; i < count; i++ {
		e := math.Exp(src[base+i*stride] - maxv)
		dst[base+i*stride] = e
		sum += e
	}
	for i := 0; i < count; i++ {
		dst[base+i*stride] /= sum
	}
}

func softmaxLineBackward(dg, t, dt []float64, base, stride, count int) {
	dot := 0.0
	for i := 0; i < count; i++ {
		off := base + i*stride
		dot += t[off] * dt[off]
	}
	for i := 0; i < count; i++ {
		off := base + i*stride
		dg[off] += t[off] * (dt[off] - dot)
	}
}

func (l *softmaxLayer) forward(x family) (family, *softmaxCache) {
	c := &softmaxCache{
		x:   x,
		g:   make(family, len(x)),
		t:   make(map[multitensor.Key][][]float64, len(x)),
		cat: make(family, len(x)),
	}
	y := make(family, len(x))
	for k, data := range x {
		if k.Rank() == 0 {
			y[k] = data
			continue
		}
		rows := len(data) / l.channels
		g := make([]float64, rows*l.hidden)
		applyLinear(data, rows, l.channels, l.win[k].Data, nil, l.hidden, g)

		axes := presentAxes(k)
		bufs := make([][]float64, len(axes))
		for ai, a := range axes {
			t := make([]float64, len(g))
			forEachLine(k, a, l.dims, l.hidden, func(base, stride, count int) {
				softmaxLine(t, g, base, stride, count)
			})
			bufs[ai] = t
		}

		catWidth := len(axes) * l.hidden
		cat := make([]float64, rows*catWidth)
		for row := 0; row < rows; row++ {
			for ai := range axes {
				copy(cat[row*catWidth+ai*l.hidden:row*catWidth+(ai+1)*l.hidden],
					bufs[ai][row*l.hidden:(row+1)*l.hidden])
			}
		}

		yk := make([]float64, len(data))
		applyLinear(cat, rows, catWidth, l.wout[k].Data, l.bias[k].Data, l.channels, yk)
		for i := range yk {
			yk[i] += data[i]
		}
		c.g[k], c.t[k], c.cat[k], y[k] = g, bufs, cat, yk
	}
	return y, c
}

func (l *softmaxLayer) backward(c *softmaxCache, dy family) family {
	dx := make(family, len(dy))
	for k, d := range dy {
		dx[k] = append([]float64(nil), d...)
	}
	for k, d := range dy {
		if k.Rank() == 0 {
			continue
		}
		rows := len(d) / l.channels
		axes := presentAxes(k)
		catWidth := len(axes) * l.hidden

		dcat := make([]float64, rows*catWidth)
		linearBackward(c.cat[k], d, rows, catWidth, l.channels,
			l.wout[k].Data, l.wout[k].Grad, l.bias[k].Grad, dcat)

		dg := make([]float64, rows*l.hidden)
		for ai, a := range axes {
			dt := make([]float64, rows*l.hidden)
			for row := 0; row < rows; row++ {
				copy(dt[row*l.hidden:(row+1)*l.hidden],
					dcat[row*catWidth+ai*l.hidden:row*catWidth+(ai+1)*l.hidden])
			}
			t := c.t[k][ai]
			forEachLine(k, a, l.dims, l.hidden, func(base, stride, count int) {
				softmaxLineBackward(dg, t, dt, base, stride, count)
			})
		}

		linearBackward(c.x[k], dg, rows, l.channels, l.hidden,
			l.win[k].Data, l.win[k].Grad, nil, dx[k])
	}
	return dx
}
