package multitensor

// Dims fixes the length of each semantic axis for one task. The direction
// axis is always NumDirections long and so has no field here.
type Dims struct {
	Examples int
	Colors   int
	Height   int
	Width    int
}

// AxisLen returns the length of axis a under d.
func (d Dims) AxisLen(a int) int {
	switch a {
	case AxisExample:
		return d.Examples
	case AxisColor:
		return d.Colors
	case AxisDirection:
		return NumDirections
	case AxisHeight:
		return d.Height
	case AxisWidth:
		return d.Width
	}
	return 0
}

// ShapeOf returns the lengths of k's present axes in canonical order, without
// the trailing channel axis. The axis-free key yields an empty shape.
func (d Dims) ShapeOf(k Key) []int {
	shape := make([]int, 0, NumAxes)
	for a := 0; a < NumAxes; a++ {
		if k.Has(a) {
			shape = append(shape, d.AxisLen(a))
		}
	}
	return shape
}

// Numel returns the number of positions a tensor keyed by k has, excluding
// the channel axis. The axis-free key has exactly one.
func (d Dims) Numel(k Key) int {
	n := 1
	for a := 0; a < NumAxes; a++ {
		if k.Has(a) {
			n *= d.AxisLen(a)
		}
	}
	return n
}
