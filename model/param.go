package model

import "math"

// Param is one learnable tensor with its gradient accumulator. Names are
// unique across a model; the optimizer keys its moment buffers on them.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

func newParam(name string, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, n),
		Grad:  make([]float64, n),
	}
}

func (p *Param) zeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

func (m *Compressor) addParam(p *Param) *Param {
	m.params = append(m.params, p)
	return p
}

// newWeight registers a He-initialized weight drawn from the model's stream.
func (m *Compressor) newWeight(name string, fanIn int, shape ...int) *Param {
	p := newParam(name, shape...)
	scale := math.Sqrt(2.0 / float64(fanIn))
	for i := range p.Data {
		p.Data[i] = m.rng.NormFloat64() * scale
	}
	return m.addParam(p)
}

// newBias registers a zero-initialized parameter.
func (m *Compressor) newBias(name string, size int) *Param {
	return m.addParam(newParam(name, size))
}

// newGain registers a one-initialized parameter.
func (m *Compressor) newGain(name string, size int) *Param {
	p := newParam(name, size)
	for i := range p.Data {
		p.Data[i] = 1
	}
	return m.addParam(p)
}
