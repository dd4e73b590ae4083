// Package analysis reduces a trained model to the structure it actually
// learned: a Monte Carlo mean of the decoded latents, a filter keeping only
// the keys that still carry information, and the top principal components of
// each surviving tensor.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/openfluke/unravel/device"
	"github.com/openfluke/unravel/model"
	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/tensor"
)

// ErrDegenerate reports an SVD over an all-zero matrix. A significant key
// with no variation at all means the significance filter and the sampler
// disagree about the model's state.
var ErrDegenerate = errors.New("analysis: all-zero matrix has no principal components")

// MeanRepresentation draws n samples from s and averages them elementwise,
// then centers each key with at least one non-channel axis by subtracting
// its per-channel mean over those axes. Draws run across a worker pool; each draw's randomness
// comes from dev.Fork(i), so the result does not depend on worker count or
// scheduling beyond floating-point reassociation.
func MeanRepresentation(s *model.Sampler, n, workers int, dev *device.Context) (multitensor.Multitensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("analysis: need at least one sample, got %d", n)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	sum := multitensor.NewFull(s.Dims(), s.Channels())
	var mu sync.Mutex
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			sample, _, _ := s.Sample(dev.Fork(int64(i)))
			mu.Lock()
			defer mu.Unlock()
			for _, k := range multitensor.AllKeys() {
				dev.AddInPlace(sum[k].Data, sample[k].Data)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return multitensor.Apply(func(k multitensor.Key, ts ...*tensor.Dense) (*tensor.Dense, error) {
		mean := ts[0].Clone()
		mean.ScaleInPlace(1 / float64(n))
		// The channel-only key has no non-channel axis to average over;
		// centering it would subtract every value from itself.
		if k.Rank() > 0 {
			mean.SubPerLast(mean.MeanOverAllButLast())
		}
		return mean, nil
	}, sum)
}

// Significant returns the keys whose total KL amount exceeds threshold, in
// canonical order. Raising the threshold can only shrink the result.
func Significant(klAmounts multitensor.Multitensor, threshold float64) []multitensor.Key {
	var keys []multitensor.Key
	for _, k := range klAmounts.Keys() {
		if klAmounts[k].Sum() > threshold {
			keys = append(keys, k)
		}
	}
	return keys
}

// Renderable reports whether a key's components map onto images: non-channel
// rank at most 2 (after rank-0 promotion), or exactly 3 with height and
// width both present so an image strip can be cut along the extra axis.
func Renderable(k multitensor.Key) bool {
	switch k.Rank() {
	case 0, 1, 2:
		return true
	case 3:
		return k.Has(multitensor.AxisHeight) && k.Has(multitensor.AxisWidth)
	}
	return false
}

// Component is one principal direction of a key's mean representation,
// reshaped back to the key's non-channel axes.
type Component struct {
	// Index is the component's rank order, 0 being the strongest.
	Index int
	// Values holds the left-singular vector over the non-channel axes,
	// normalized to a max absolute value of 1. A channel-only key is
	// promoted to one leading singleton axis.
	Values *tensor.Dense
	// Strength is the singular value divided by the row count.
	Strength float64
}

// Components computes up to the top 3 principal components of t, treating
// the trailing axis as channels and flattening the rest into rows.
func Components(t *tensor.Dense) ([]Component, error) {
	if t.MaxAbs() == 0 {
		return nil, ErrDegenerate
	}
	channels := t.Shape[t.Rank()-1]
	rows := t.Size() / channels
	rowShape := append([]int(nil), t.Shape[:t.Rank()-1]...)
	if len(rowShape) == 0 {
		rowShape = []int{1}
	}

	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(rows, channels, t.Data), mat.SVDThin) {
		return nil, fmt.Errorf("analysis: SVD failed to converge on a %dx%d matrix", rows, channels)
	}
	var u mat.Dense
	svd.UTo(&u)
	values := svd.Values(nil)

	top := 3
	if len(values) < top {
		top = len(values)
	}
	comps := make([]Component, 0, top)
	for i := 0; i < top; i++ {
		col := tensor.New(rowShape...)
		for r := 0; r < rows; r++ {
			col.Data[r] = u.At(r, i)
		}
		if m := col.MaxAbs(); m > 0 {
			col.ScaleInPlace(1 / m)
		}
		comps = append(comps, Component{
			Index:    i,
			Values:   col,
			Strength: values[i] / float64(rows),
		})
	}
	return comps, nil
}
