package model

import (
	"math"
	"math/rand"

	"github.com/openfluke/unravel/multitensor"
)

// posterior holds the per-key Gaussian over every latent element: a mean and
// a log variance per position and channel. Sampling uses the standard
// reparametrization z = mean + exp(logvar/2)*eps so gradients reach both
// parameter sets through the draw.
type posterior struct {
	mean   map[multitensor.Key]*Param
	logvar map[multitensor.Key]*Param
}

func (m *Compressor) newPosterior() *posterior {
	p := &posterior{
		mean:   make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
		logvar: make(map[multitensor.Key]*Param, 1<<multitensor.NumAxes),
	}
	for _, k := range multitensor.AllKeys() {
		shape := append(m.dims.ShapeOf(k), m.channels)
		mean := newParam("posterior/"+k.String()+"/mean", shape...)
		for i := range mean.Data {
			mean.Data[i] = m.rng.NormFloat64()
		}
		logvar := newParam("posterior/"+k.String()+"/logvar", shape...)
		p.mean[k] = m.addParam(mean)
		p.logvar[k] = m.addParam(logvar)
	}
	return p
}

// drawNoise returns one standard normal draw per latent element, keyed like
// the posterior, consuming rng in canonical key order.
func (m *Compressor) drawNoise(rng *rand.Rand) map[multitensor.Key][]float64 {
	eps := make(map[multitensor.Key][]float64, 1<<multitensor.NumAxes)
	for _, k := range multitensor.AllKeys() {
		n := m.dims.Numel(k) * m.channels
		draw := make([]float64, n)
		for i := range draw {
			draw[i] = rng.NormFloat64()
		}
		eps[k] = draw
	}
	return eps
}

// sample materializes z = mean + exp(logvar/2)*eps per key.
func (p *posterior) sample(keys []multitensor.Key, eps map[multitensor.Key][]float64) family {
	z := make(family, len(keys))
	for _, k := range keys {
		mean := p.mean[k].Data
		logvar := p.logvar[k].Data
		e := eps[k]
		out := make([]float64, len(mean))
		for i := range mean {
			out[i] = mean[i] + math.Exp(logvar[i]/2)*e[i]
		}
		z[k] = out
	}
	return z
}

// backwardSample pushes dz through the reparametrized draw into the mean and
// log-variance gradients.
func (p *posterior) backwardSample(keys []multitensor.Key, eps map[multitensor.Key][]float64, dz family) {
	for _, k := range keys {
		mean := p.mean[k]
		logvar := p.logvar[k]
		e := eps[k]
		d := dz[k]
		for i := range d {
			mean.Grad[i] += d[i]
			logvar.Grad[i] += d[i] * 0.5 * math.Exp(logvar.Data[i]/2) * e[i]
		}
	}
}

// klTotal returns the summed KL divergence of key k against the unit
// Gaussian prior, in nats.
func (p *posterior) klTotal(k multitensor.Key) float64 {
	mean := p.mean[k].Data
	logvar := p.logvar[k].Data
	total := 0.0
	for i := range mean {
		total += 0.5 * (mean[i]*mean[i] + math.Exp(logvar[i]) - logvar[i] - 1)
	}
	return total
}

// backwardKL accumulates the gradient of klTotal(k) into k's parameters.
func (p *posterior) backwardKL(k multitensor.Key) {
	mean := p.mean[k]
	logvar := p.logvar[k]
	for i := range mean.Data {
		mean.Grad[i] += mean.Data[i]
		logvar.Grad[i] += 0.5 * (math.Exp(logvar.Data[i]) - 1)
	}
}

// klElements sums KL over the channel axis, giving one amount per position.
// numel is the position count; the slices have numel*channels elements.
func klElements(mean, logvar []float64, numel, channels int) []float64 {
	out := make([]float64, numel)
	for p := 0; p < numel; p++ {
		sum := 0.0
		base := p * channels
		for c := 0; c < channels; c++ {
			m, lv := mean[base+c], logvar[base+c]
			sum += 0.5 * (m*m + math.Exp(lv) - lv - 1)
		}
		out[p] = sum
	}
	return out
}
