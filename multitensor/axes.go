// Package multitensor implements a family of tensors indexed by which
// semantic axes each one carries. A grid puzzle has five meaningful axes, and
// a latent that should only distinguish, say, colors must not be allowed to
// vary along anything else. Keying tensors by their axis-presence vector makes
// that restriction structural instead of conventional.
//
// Every tensor in the family additionally carries a trailing channel axis that
// is not part of its key.
package multitensor

import (
	"fmt"
	"strings"
)

// Semantic axes in their canonical order. The order is shared by every key
// string, every shape, and every serialized artifact, so it never changes.
const (
	AxisExample = iota
	AxisColor
	AxisDirection
	AxisHeight
	AxisWidth
	NumAxes
)

// NumDirections is the fixed length of the direction axis: the eight compass
// rays a cell can look along.
const NumDirections = 8

var axisNames = [NumAxes]string{"example", "color", "direction", "height", "width"}

// AxisName returns the canonical name of axis a.
func AxisName(a int) string { return axisNames[a] }

// Key marks which semantic axes a tensor carries. It is comparable and is
// used directly as a map key.
type Key [NumAxes]bool

// MakeKey builds a key from explicit presence flags in canonical axis order.
func MakeKey(example, color, direction, height, width bool) Key {
	return Key{example, color, direction, height, width}
}

// Has reports whether axis a is present.
func (k Key) Has(a int) bool { return k[a] }

// Rank returns the number of present axes, excluding the channel axis.
func (k Key) Rank() int {
	n := 0
	for _, present := range k {
		if present {
			n++
		}
	}
	return n
}

// AxisNames returns the names of the present axes in canonical order.
func (k Key) AxisNames() []string {
	names := make([]string, 0, NumAxes)
	for a, present := range k {
		if present {
			names = append(names, axisNames[a])
		}
	}
	return names
}

// String renders the key as its present axis names joined by underscores,
// for example "example_height_width". The axis-free key renders as "".
func (k Key) String() string { return strings.Join(k.AxisNames(), "_") }

// ParseKey is the inverse of String. It rejects unknown axis names,
// duplicates, and names out of canonical order, so every valid string maps to
// exactly one key.
func ParseKey(s string) (Key, error) {
	var k Key
	if s == "" {
		return k, nil
	}
	next := 0
	for _, name := range strings.Split(s, "_") {
		found := -1
		for a := next; a < NumAxes; a++ {
			if axisNames[a] == name {
				found = a
				break
			}
		}
		if found < 0 {
			return Key{}, fmt.Errorf("multitensor: invalid axis %q in key %q", name, s)
		}
		k[found] = true
		next = found + 1
	}
	return k, nil
}

// Subset reports whether every axis of k is also present in other.
func (k Key) Subset(other Key) bool {
	for a, present := range k {
		if present && !other[a] {
			return false
		}
	}
	return true
}

// AllKeys returns all 32 keys in canonical order: ascending binary with the
// example axis as the most significant bit.
func AllKeys() []Key {
	keys := make([]Key, 0, 1<<NumAxes)
	for bits := 0; bits < 1<<NumAxes; bits++ {
		var k Key
		for a := 0; a < NumAxes; a++ {
			if bits&(1<<(NumAxes-1-a)) != 0 {
				k[a] = true
			}
		}
		keys = append(keys, k)
	}
	return keys
}
