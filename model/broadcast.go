package model

import "github.com/openfluke/unravel/multitensor"

// family is the model's working form of a multitensor: one flat row-major
// slice per key, all with the same trailing channel width.
type family map[multitensor.Key][]float64

// axisStrides returns per-axis element strides for a tensor keyed by k with a
// trailing axis of the given width. Absent axes get stride 0, which lets a
// subset-keyed tensor be addressed with a superset key's coordinates.
func axisStrides(k multitensor.Key, d multitensor.Dims, width int) [multitensor.NumAxes]int {
	var strides [multitensor.NumAxes]int
	stride := width
	for a := multitensor.NumAxes - 1; a >= 0; a-- {
		if k.Has(a) {
			strides[a] = stride
			stride *= d.AxisLen(a)
		}
	}
	return strides
}

// forEachPair walks the joint index space of a superset key and one of its
// subsets, trailing axis innermost, handing fn the flat offset into each.
func forEachPair(sup, sub multitensor.Key, d multitensor.Dims, width int, fn func(supOff, subOff int)) {
	supS := axisStrides(sup, d, width)
	subS := axisStrides(sub, d, width)
	bound := func(a int) int {
		if sup.Has(a) {
			return d.AxisLen(a)
		}
		return 1
	}
	for e := 0; e < bound(multitensor.AxisExample); e++ {
		for c := 0; c < bound(multitensor.AxisColor); c++ {
			for dir := 0; dir < bound(multitensor.AxisDirection); dir++ {
				for h := 0; h < bound(multitensor.AxisHeight); h++ {
					for w := 0; w < bound(multitensor.AxisWidth); w++ {
						supOff := e*supS[0] + c*supS[1] + dir*supS[2] + h*supS[3] + w*supS[4]
						subOff := e*subS[0] + c*subS[1] + dir*subS[2] + h*subS[3] + w*subS[4]
						for t := 0; t < width; t++ {
							fn(supOff+t, subOff+t)
						}
					}
				}
			}
		}
	}
}

// broadcastAdd adds scale*src into dst, replicating src along the axes sub
// lacks. dst is keyed by sup, src by sub, sub ⊆ sup.
func broadcastAdd(dst, src []float64, sup, sub multitensor.Key, d multitensor.Dims, width int, scale float64) {
	forEachPair(sup, sub, d, width, func(supOff, subOff int) {
		dst[supOff] += scale * src[subOff]
	})
}

// reduceAdd adds scale*src into dst, summing src over the axes sub lacks.
// dst is keyed by sub, src by sup, sub ⊆ sup. It is the adjoint of
// broadcastAdd at the same scale.
func reduceAdd(dst, src []float64, sup, sub multitensor.Key, d multitensor.Dims, width int, scale float64) {
	forEachPair(sup, sub, d, width, func(supOff, subOff int) {
		dst[subOff] += scale * src[supOff]
	})
}

// subsetsOf returns every key j ⊆ k in canonical order, k included.
func subsetsOf(k multitensor.Key) []multitensor.Key {
	var out []multitensor.Key
	for _, j := range multitensor.AllKeys() {
		if j.Subset(k) {
			out = append(out, j)
		}
	}
	return out
}

// supersetsOf returns every key j ⊇ k in canonical order, k included.
func supersetsOf(k multitensor.Key) []multitensor.Key {
	var out []multitensor.Key
	for _, j := range multitensor.AllKeys() {
		if k.Subset(j) {
			out = append(out, j)
		}
	}
	return out
}

// extraCount returns the number of positions sup spreads one sub position
// over: the product of the axis lengths present in sup but not in sub.
func extraCount(sup, sub multitensor.Key, d multitensor.Dims) int {
	n := 1
	for a := 0; a < multitensor.NumAxes; a++ {
		if sup.Has(a) && !sub.Has(a) {
			n *= d.AxisLen(a)
		}
	}
	return n
}
