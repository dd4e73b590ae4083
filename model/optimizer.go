package model

import "math"

const adamEps = 1e-8

// Adam is a standard Adam optimizer over the model's parameters, with moment
// buffers keyed by parameter name.
type Adam struct {
	lr     float64
	beta1  float64
	beta2  float64
	step   int
	moment map[string][]float64
	second map[string][]float64
}

// NewAdam returns an optimizer with the given learning rate and betas.
func NewAdam(lr float64, betas [2]float64) *Adam {
	return &Adam{
		lr:     lr,
		beta1:  betas[0],
		beta2:  betas[1],
		moment: make(map[string][]float64),
		second: make(map[string][]float64),
	}
}

// Step applies one bias-corrected Adam update to every parameter from its
// accumulated gradient. Gradients are left untouched; the model zeroes them
// at the start of the next step.
func (o *Adam) Step(params []*Param) {
	o.step++
	c1 := 1 - math.Pow(o.beta1, float64(o.step))
	c2 := 1 - math.Pow(o.beta2, float64(o.step))
	for _, p := range params {
		m, ok := o.moment[p.Name]
		if !ok {
			m = make([]float64, len(p.Data))
			o.moment[p.Name] = m
			o.second[p.Name] = make([]float64, len(p.Data))
		}
		v := o.second[p.Name]
		for i, g := range p.Grad {
			m[i] = o.beta1*m[i] + (1-o.beta1)*g
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
			p.Data[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEps)
		}
	}
}
