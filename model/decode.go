package model

import "github.com/openfluke/unravel/multitensor"

// decodeLayer maps each key's raw latent into the working representation
// with an independent channel-to-channel linear map per key. Its weights are
// part of the frozen state the analysis sampler replays.
type decodeLayer struct {
	dims     multitensor.Dims
	channels int
	w        map[multitensor.Key]*Param
	b        map[multitensor.Key]*Param
}

func (m *Compressor) newDecodeLayer() *decodeLayer {
	l := &decodeLayer{
		dims:     m.dims,
		channels: m.channels,
		w:        make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		b:        make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
	}
	for _, k := range multitensor.AllKeys() {
		l.w[k] = m.newWeight("decode/"+k.String()+"/weight", m.channels, m.channels, m.channels)
		l.b[k] = m.newBias("decode/"+k.String()+"/bias", m.channels)
	}
	return l
}

func (l *decodeLayer) forward(z family) family {
	out := make(family, len(z))
	for k, data := range z {
		rows := len(data) / l.channels
		y := make([]float64, len(data))
		applyLinear(data, rows, l.channels, l.w[k].Data, l.b[k].Data, l.channels, y)
		out[k] = y
	}
	return out
}

func (l *decodeLayer) backward(z, dy family) family {
	dz := make(family, len(z))
	for k, data := range z {
		rows := len(data) / l.channels
		dzk := make([]float64, len(data))
		linearBackward(data, dy[k], rows, l.channels, l.channels,
			l.w[k].Data, l.w[k].Grad, l.b[k].Grad, dzk)
		dz[k] = dzk
	}
	return dz
}
