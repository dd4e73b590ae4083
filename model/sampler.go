package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/openfluke/unravel/archive"
	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/tensor"
)

// Sampler is the frozen read side of a trained model: the per-key posterior
// parameters, the final target capacities, and the decode weights. It holds
// no mutable state, so any number of goroutines may call Sample concurrently
// as long as each brings its own rng.
type Sampler struct {
	dims     multitensor.Dims
	channels int

	mean     map[multitensor.Key][]float64
	logvar   map[multitensor.Key][]float64
	capacity map[multitensor.Key]float64
	decodeW  map[multitensor.Key][]float64
	decodeB  map[multitensor.Key][]float64
}

// Sampler freezes the model's trained state for post-hoc analysis. step is
// the step the capacity schedule is read at, normally the final one.
func (m *Compressor) Sampler(step int) *Sampler {
	s := &Sampler{
		dims:     m.dims,
		channels: m.channels,
		mean:     make(map[multitensor.Key][]float64),
		logvar:   make(map[multitensor.Key][]float64),
		capacity: m.capacity.snapshot(step),
		decodeW:  make(map[multitensor.Key][]float64),
		decodeB:  make(map[multitensor.Key][]float64),
	}
	for _, k := range multitensor.AllKeys() {
		s.mean[k] = append([]float64(nil), m.post.mean[k].Data...)
		s.logvar[k] = append([]float64(nil), m.post.logvar[k].Data...)
		s.decodeW[k] = append([]float64(nil), m.decode.w[k].Data...)
		s.decodeB[k] = append([]float64(nil), m.decode.b[k].Data...)
	}
	return s
}

// Dims returns the task's axis lengths.
func (s *Sampler) Dims() multitensor.Dims { return s.dims }

// Channels returns the channel width of sampled tensors.
func (s *Sampler) Channels() int { return s.channels }

// Keys returns the sampler's key set in canonical order.
func (s *Sampler) Keys() []multitensor.Key { return multitensor.AllKeys() }

// Sample returns one independent posterior draw decoded through the decode
// weights, the channel-less per-position KL amounts, and the key labels in
// canonical order. The KL amounts depend only on the frozen parameters, so
// they are identical across calls.
func (s *Sampler) Sample(rng *rand.Rand) (sample, klAmounts multitensor.Multitensor, klNames []string) {
	sample = make(multitensor.Multitensor, 1<<multitensor.NumAxes)
	klAmounts = make(multitensor.Multitensor, 1<<multitensor.NumAxes)
	for _, k := range multitensor.AllKeys() {
		mean, logvar := s.mean[k], s.logvar[k]
		numel := s.dims.Numel(k)

		z := make([]float64, len(mean))
		for i := range z {
			z[i] = mean[i] + math.Exp(logvar[i]/2)*rng.NormFloat64()
		}
		decoded := make([]float64, len(z))
		applyLinear(z, numel, s.channels, s.decodeW[k], s.decodeB[k], s.channels, decoded)
		shape := append(s.dims.ShapeOf(k), s.channels)
		sample[k] = tensor.FromSlice(decoded, shape...)

		klAmounts[k] = tensor.FromSlice(klElements(mean, logvar, numel, s.channels), s.dims.ShapeOf(k)...)
		klNames = append(klNames, k.String())
	}
	return sample, klAmounts, klNames
}

// KLAmounts returns the per-position KL tensors without drawing a sample.
func (s *Sampler) KLAmounts() multitensor.Multitensor {
	out := make(multitensor.Multitensor, 1<<multitensor.NumAxes)
	for _, k := range multitensor.AllKeys() {
		out[k] = tensor.FromSlice(
			klElements(s.mean[k], s.logvar[k], s.dims.Numel(k), s.channels),
			s.dims.ShapeOf(k)...)
	}
	return out
}

// Store writes the sampler's full state into a.
func (s *Sampler) Store(a *archive.Archive) error {
	for _, k := range multitensor.AllKeys() {
		shape := append(s.dims.ShapeOf(k), s.channels)
		if err := a.Put(archive.PosteriorMeanName(k), shape, s.mean[k]); err != nil {
			return err
		}
		if err := a.Put(archive.PosteriorLogVarName(k), shape, s.logvar[k]); err != nil {
			return err
		}
		if err := a.Put(archive.CapacityName(k), []int{1}, []float64{s.capacity[k]}); err != nil {
			return err
		}
		if err := a.Put(archive.DecodeWeightName(k), []int{s.channels, s.channels}, s.decodeW[k]); err != nil {
			return err
		}
		if err := a.Put(archive.DecodeBiasName(k), []int{s.channels}, s.decodeB[k]); err != nil {
			return err
		}
	}
	return nil
}

// LoadSampler rebuilds a sampler from an archive written by Store. The axis
// lengths are recovered from the stored posterior shapes, so the key set and
// every tensor shape match the training run exactly.
func LoadSampler(a *archive.Archive) (*Sampler, error) {
	scalar, ok := a.Tensor(archive.PosteriorMeanName(multitensor.Key{}))
	if !ok || len(scalar.Shape) != 1 {
		return nil, fmt.Errorf("model: archive has no axis-free posterior")
	}
	s := &Sampler{
		channels: scalar.Shape[0],
		mean:     make(map[multitensor.Key][]float64),
		logvar:   make(map[multitensor.Key][]float64),
		capacity: make(map[multitensor.Key]float64),
		decodeW:  make(map[multitensor.Key][]float64),
		decodeB:  make(map[multitensor.Key][]float64),
	}
	axisLen := func(axis int) (int, error) {
		var k multitensor.Key
		k[axis] = true
		t, ok := a.Tensor(archive.PosteriorMeanName(k))
		if !ok || len(t.Shape) != 2 {
			return 0, fmt.Errorf("model: archive is missing the %s posterior", multitensor.AxisName(axis))
		}
		return t.Shape[0], nil
	}
	var err error
	if s.dims.Examples, err = axisLen(multitensor.AxisExample); err != nil {
		return nil, err
	}
	if s.dims.Colors, err = axisLen(multitensor.AxisColor); err != nil {
		return nil, err
	}
	if s.dims.Height, err = axisLen(multitensor.AxisHeight); err != nil {
		return nil, err
	}
	if s.dims.Width, err = axisLen(multitensor.AxisWidth); err != nil {
		return nil, err
	}

	for _, k := range multitensor.AllKeys() {
		want := s.dims.Numel(k) * s.channels
		load := func(name string, n int) ([]float64, error) {
			t, ok := a.Tensor(name)
			if !ok {
				return nil, fmt.Errorf("model: archive is missing %s", name)
			}
			if len(t.Values) != n {
				return nil, fmt.Errorf("model: %s has %d values, want %d", name, len(t.Values), n)
			}
			return t.Values, nil
		}
		if s.mean[k], err = load(archive.PosteriorMeanName(k), want); err != nil {
			return nil, err
		}
		if s.logvar[k], err = load(archive.PosteriorLogVarName(k), want); err != nil {
			return nil, err
		}
		budget, err := load(archive.CapacityName(k), 1)
		if err != nil {
			return nil, err
		}
		s.capacity[k] = budget[0]
		if s.decodeW[k], err = load(archive.DecodeWeightName(k), s.channels*s.channels); err != nil {
			return nil, err
		}
		if s.decodeB[k], err = load(archive.DecodeBiasName(k), s.channels); err != nil {
			return nil, err
		}
	}
	return s, nil
}
