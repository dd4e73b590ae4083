package multitensor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfluke/unravel/tensor"
)

// Multitensor maps axis-presence keys to the tensors carrying those axes.
// Shape-polymorphic work iterates the keys; shape-specific work indexes one.
type Multitensor map[Key]*tensor.Dense

// ErrKeyMismatch reports that two multitensors handed to the same operation
// do not hold the same key set.
var ErrKeyMismatch = errors.New("multitensor: mismatched key sets")

// NewFull allocates a zero tensor for every one of the 32 keys. channels is
// the trailing channel length; pass 0 for a channel-less family whose tensors
// have only the keyed axes.
func NewFull(d Dims, channels int) Multitensor {
	m := make(Multitensor, 1<<NumAxes)
	for _, k := range AllKeys() {
		shape := d.ShapeOf(k)
		if channels > 0 {
			shape = append(shape, channels)
		}
		m[k] = tensor.New(shape...)
	}
	return m
}

// Keys returns m's keys in canonical order.
func (m Multitensor) Keys() []Key {
	keys := make([]Key, 0, len(m))
	for _, k := range AllKeys() {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone deep-copies every tensor.
func (m Multitensor) Clone() Multitensor {
	out := make(Multitensor, len(m))
	for k, t := range m {
		out[k] = t.Clone()
	}
	return out
}

// Apply calls fn once per key with the corresponding tensor from every
// argument and collects the results into a new Multitensor. All arguments
// must hold the same key set; a mismatch is a structural error and fails
// immediately, naming the offending keys. Keys are visited in canonical
// order.
func Apply(fn func(k Key, tensors ...*tensor.Dense) (*tensor.Dense, error), mts ...Multitensor) (Multitensor, error) {
	if len(mts) == 0 {
		return nil, errors.New("multitensor: Apply needs at least one multitensor")
	}
	base := mts[0]
	for i, m := range mts[1:] {
		if err := checkSameKeys(base, m); err != nil {
			return nil, fmt.Errorf("argument %d of Apply: %w", i+1, err)
		}
	}
	out := make(Multitensor, len(base))
	for _, k := range base.Keys() {
		args := make([]*tensor.Dense, len(mts))
		for i, m := range mts {
			args[i] = m[k]
		}
		t, err := fn(k, args...)
		if err != nil {
			return nil, fmt.Errorf("multitensor: apply at key %q: %w", k, err)
		}
		out[k] = t
	}
	return out, nil
}

func checkSameKeys(a, b Multitensor) error {
	var missing, extra []string
	for _, k := range AllKeys() {
		_, inA := a[k]
		_, inB := b[k]
		switch {
		case inA && !inB:
			missing = append(missing, fmt.Sprintf("%q", k))
		case inB && !inA:
			extra = append(extra, fmt.Sprintf("%q", k))
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected "+strings.Join(extra, ", "))
	}
	return fmt.Errorf("%w: %s", ErrKeyMismatch, strings.Join(parts, "; "))
}
