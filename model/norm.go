package model

import (
	"math"

	"github.com/openfluke/unravel/multitensor"
)

const rmsEps = 1e-8

// rmsNormLayer normalizes each position over the channel axis and rescales
// with a per-key learned gain. It closes every block so activations stay in a
// stable range no matter how many subset keys summed into them.
type rmsNormLayer struct {
	channels int
	gain     map[multitensor.Key]*Param
}

type rmsNormCache struct {
	x family
	r family // one rms per position, width 1
}

func (m *Compressor) newRMSNormLayer(name string) *rmsNormLayer {
	l := &rmsNormLayer{
		channels: m.channels,
		gain:     make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
	}
	for _, k := range multitensor.AllKeys() {
		l.gain[k] = m.newGain(name+"/"+k.String()+"/gain", m.channels)
	}
	return l
}

func (l *rmsNormLayer) forward(x family) (family, *rmsNormCache) {
	c := &rmsNormCache{x: x, r: make(family, len(x))}
	y := make(family, len(x))
	for k, data := range x {
		rows := len(data) / l.channels
		r := make([]float64, rows)
		yk := make([]float64, len(data))
		g := l.gain[k].Data
		for p := 0; p < rows; p++ {
			row := data[p*l.channels : (p+1)*l.channels]
			sq := 0.0
			for _, v := range row {
				sq += v * v
			}
			r[p] = math.Sqrt(sq/float64(l.channels) + rmsEps)
			for i, v := range row {
				yk[p*l.channels+i] = g[i] * v / r[p]
			}
		}
		c.r[k] = r
		y[k] = yk
	}
	return y, c
}

func (l *rmsNormLayer) backward(c *rmsNormCache, dy family) family {
	dx := make(family, len(dy))
	for k, d := range dy {
		data := c.x[k]
		r := c.r[k]
		g := l.gain[k]
		rows := len(data) / l.channels
		dxk := make([]float64, len(data))
		for p := 0; p < rows; p++ {
			base := p * l.channels
			// s = Σ_j dy_j * g_j * x_j feeds the rms gradient.
			s := 0.0
			for j := 0; j < l.channels; j++ {
				s += d[base+j] * g.Data[j] * data[base+j]
				g.Grad[j] += d[base+j] * data[base+j] / r[p]
			}
			r3 := r[p] * r[p] * r[p] * float64(l.channels)
			for i := 0; i < l.channels; i++ {
				dxk[base+i] = g.Data[i]*d[base+i]/r[p] - data[base+i]*s/r3
			}
		}
		dx[k] = dxk
	}
	return dx
}
