package model

import (
	"fmt"

	"github.com/openfluke/unravel/multitensor"
)

type shareDirection int

const (
	shareUp shareDirection = iota
	shareDown
)

// shareLayer moves information between keys. Every key projects into a
// shared hidden width; an up layer then gives each key the summed projections
// of all its subset keys, so aggregate latents broadcast into more specific
// ones, while a down layer gives each key the mean projection of its superset
// keys, so specific latents pool into aggregate ones. The aggregate is
// projected back to the channel width and added residually.
type shareLayer struct {
	dir      shareDirection
	dims     multitensor.Dims
	channels int
	hidden   int
	up       map[multitensor.Key]*Param
	down     map[multitensor.Key]*Param
	bias     map[multitensor.Key]*Param
}

type shareCache struct {
	x   family
	agg family
}

func (m *Compressor) newShareLayer(name string, dir shareDirection, hidden int) *shareLayer {
	l := &shareLayer{
		dir:      dir,
		dims:     m.dims,
		channels: m.channels,
		hidden:   hidden,
		up:       make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		down:     make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		bias:     make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
	}
	for _, k := range multitensor.AllKeys() {
		prefix := fmt.Sprintf("%s/%s/", name, k)
		l.up[k] = m.newWeight(prefix+"up", m.channels, m.channels, hidden)
		l.down[k] = m.newWeight(prefix+"down", hidden, hidden, m.channels)
		l.bias[k] = m.newBias(prefix+"bias", m.channels)
	}
	return l
}

func (l *shareLayer) forward(x family) (family, *shareCache) {
	h := make(family, len(x))
	for k, data := range x {
		rows := len(data) / l.channels
		hk := make([]float64, rows*l.hidden)
		applyLinear(data, rows, l.channels, l.up[k].Data, nil, l.hidden, hk)
		h[k] = hk
	}

	agg := make(family, len(x))
	for _, k := range multitensor.AllKeys() {
		agg[k] = make([]float64, l.dims.Numel(k)*l.hidden)
		if l.dir == shareUp {
			for _, j := range subsetsOf(k) {
				broadcastAdd(agg[k], h[j], k, j, l.dims, l.hidden, 1)
			}
		} else {
			for _, j := range supersetsOf(k) {
				scale := 1 / float64(extraCount(j, k, l.dims))
				reduceAdd(agg[k], h[j], j, k, l.dims, l.hidden, scale)
			}
		}
	}

	y := make(family, len(x))
	for k, data := range x {
		rows := len(data) / l.channels
		yk := make([]float64, len(data))
		applyLinear(agg[k], rows, l.hidden, l.down[k].Data, l.bias[k].Data, l.channels, yk)
		for i := range yk {
			yk[i] += data[i]
		}
		y[k] = yk
	}
	return y, &shareCache{x: x, agg: agg}
}

func (l *shareLayer) backward(c *shareCache, dy family) family {
	// Residual path first, then the projected aggregate path on top.
	dx := make(family, len(dy))
	for k, d := range dy {
		dx[k] = append([]float64(nil), d...)
	}

	dagg := make(family, len(dy))
	for k, d := range dy {
		rows := len(d) / l.channels
		daggk := make([]float64, rows*l.hidden)
		linearBackward(c.agg[k], d, rows, l.hidden, l.channels,
			l.down[k].Data, l.down[k].Grad, l.bias[k].Grad, daggk)
		dagg[k] = daggk
	}

	dh := make(family, len(dy))
	for _, k := range multitensor.AllKeys() {
		dh[k] = make([]float64, l.dims.Numel(k)*l.hidden)
	}
	for _, k := range multitensor.AllKeys() {
		if l.dir == shareUp {
			for _, j := range subsetsOf(k) {
				reduceAdd(dh[j], dagg[k], k, j, l.dims, l.hidden, 1)
			}
		} else {
			for _, j := range supersetsOf(k) {
				scale := 1 / float64(extraCount(j, k, l.dims))
				broadcastAdd(dh[j], dagg[k], j, k, l.dims, l.hidden, scale)
			}
		}
	}

	for k, data := range c.x {
		rows := len(data) / l.channels
		linearBackward(data, dh[k], rows, l.channels, l.hidden,
			l.up[k].Data, l.up[k].Grad, nil, dx[k])
	}
	return dx
}
