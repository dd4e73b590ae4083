package model

import (
	"fmt"

	"github.com/openfluke/unravel/multitensor"
)

// nonlinearLayer is a per-key gated MLP: project up, SiLU, project back,
// residual add.
type nonlinearLayer struct {
	dims     multitensor.Dims
	channels int
	hidden   int
	w1, b1   map[multitensor.Key]*Param
	w2, b2   map[multitensor.Key]*Param
}

type nonlinearCache struct {
	x family
	u family // pre-activation
	s family // silu(u)
}

func (m *Compressor) newNonlinearLayer(name string, hidden int) *nonlinearLayer {
	l := &nonlinearLayer{
		dims:     m.dims,
		channels: m.channels,
		hidden:   hidden,
		w1:       make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		b1:       make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		w2:       make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		b2:       make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
	}
	for _, k := range multitensor.AllKeys() {
		prefix := fmt.Sprintf("%s/%s/", name, k)
		l.w1[k] = m.newWeight(prefix+"w1", m.channels, m.channels, hidden)
		l.b1[k] = m.newBias(prefix+"b1", hidden)
		l.w2[k] = m.newWeight(prefix+"w2", hidden, hidden, m.channels)
		l.b2[k] = m.newBias(prefix+"b2", m.channels)
	}
	return l
}

func (l *nonlinearLayer) forward(x family) (family, *nonlinearCache) {
	c := &nonlinearCache{x: x, u: make(family, len(x)), s: make(family, len(x))}
	y := make(family, len(x))
	for k, data := range x {
		rows := len(data) / l.channels
		u := make([]float64, rows*l.hidden)
		applyLinear(data, rows, l.channels, l.w1[k].Data, l.b1[k].Data, l.hidden, u)
		s := make([]float64, len(u))
		for i, v := range u {
			s[i] = silu(v)
		}
		yk := make([]float64, len(data))
		applyLinear(s, rows, l.hidden, l.w2[k].Data, l.b2[k].Data, l.channels, yk)
		for i := range yk {
			yk[i] += data[i]
		}
		c.u[k], c.s[k], y[k] = u, s, yk
	}
	return y, c
}

func (l *nonlinearLayer) backward(c *nonlinearCache, dy family) family {
	dx := make(family, len(dy))
	for k, d := range dy {
		dx[k] = append([]float64(nil), d...)
	}
	for k, d := range dy {
		rows := len(d) / l.channels
		ds := make([]float64, rows*l.hidden)
		linearBackward(c.s[k], d, rows, l.hidden, l.channels,
			l.w2[k].Data, l.w2[k].Grad, l.b2[k].Grad, ds)
		du := make([]float64, len(ds))
		for i := range ds {
			du[i] = ds[i] * siluGrad(c.u[k][i])
		}
		linearBackward(c.x[k], du, rows, l.channels, l.hidden,
			l.w1[k].Data, l.w1[k].Grad, l.b1[k].Grad, dx[k])
	}
	return dx
}
