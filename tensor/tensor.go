// Package tensor provides the dense row-major float64 tensor that the rest of
// the pipeline moves data around in. Shapes are explicit, strides are
// precomputed, and the raw Data slice stays reachable so numeric kernels can
// loop over it directly.
package tensor

import "math"

// Dense is an n-dimensional array in row-major order. The last axis is the
// fastest-moving one. A rank-0 Dense holds exactly one element.
type Dense struct {
	Data    []float64
	Shape   []int
	Strides []int
}

// New allocates a zero-filled tensor with the given shape.
func New(shape ...int) *Dense {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return &Dense{
		Data:    make([]float64, n),
		Shape:   append([]int(nil), shape...),
		Strides: stridesFor(shape),
	}
}

// FromSlice wraps data in a tensor of the given shape. It returns nil when the
// element count does not match, mirroring Reshape.
func FromSlice(data []float64, shape ...int) *Dense {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	if n != len(data) {
		return nil
	}
	return &Dense{
		Data:    data,
		Shape:   append([]int(nil), shape...),
		Strides: stridesFor(shape),
	}
}

func stridesFor(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// Size returns the total element count.
func (t *Dense) Size() int { return len(t.Data) }

// Rank returns the number of axes.
func (t *Dense) Rank() int { return len(t.Shape) }

// Clone returns a deep copy.
func (t *Dense) Clone() *Dense {
	out := &Dense{
		Data:    make([]float64, len(t.Data)),
		Shape:   append([]int(nil), t.Shape...),
		Strides: append([]int(nil), t.Strides...),
	}
	copy(out.Data, t.Data)
	return out
}

// Reshape returns a view of the same data under a new shape, or nil when the
// element counts disagree.
func (t *Dense) Reshape(shape ...int) *Dense {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	if n != len(t.Data) {
		return nil
	}
	return &Dense{
		Data:    t.Data,
		Shape:   append([]int(nil), shape...),
		Strides: stridesFor(shape),
	}
}

// At returns the element at the given multi-index.
func (t *Dense) At(idx ...int) float64 { return t.Data[t.offset(idx)] }

// Set stores v at the given multi-index.
func (t *Dense) Set(v float64, idx ...int) { t.Data[t.offset(idx)] = v }

func (t *Dense) offset(idx []int) int {
	off := 0
	for i, v := range idx {
		off += v * t.Strides[i]
	}
	return off
}

// Fill sets every element to v.
func (t *Dense) Fill(v float64) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// AddInPlace adds o elementwise into t. The shapes must match.
func (t *Dense) AddInPlace(o *Dense) {
	for i := range t.Data {
		t.Data[i] += o.Data[i]
	}
}

// ScaleInPlace multiplies every element by f.
func (t *Dense) ScaleInPlace(f float64) {
	for i := range t.Data {
		t.Data[i] *= f
	}
}

// Sum returns the sum of all elements.
func (t *Dense) Sum() float64 {
	s := 0.0
	for _, v := range t.Data {
		s += v
	}
	return s
}

// MaxAbs returns the largest absolute element value, 0 for an empty tensor.
func (t *Dense) MaxAbs() float64 {
	m := 0.0
	for _, v := range t.Data {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// MeanOverAllButLast averages away every axis except the trailing one and
// returns one mean per trailing-axis index. A rank-1 tensor is its own mean.
func (t *Dense) MeanOverAllButLast() []float64 {
	if t.Rank() == 0 {
		return append([]float64(nil), t.Data...)
	}
	width := t.Shape[t.Rank()-1]
	means := make([]float64, width)
	if width == 0 {
		return means
	}
	rows := len(t.Data) / width
	for r := 0; r < rows; r++ {
		row := t.Data[r*width : (r+1)*width]
		for i, v := range row {
			means[i] += v
		}
	}
	for i := range means {
		means[i] /= float64(rows)
	}
	return means
}

// SubPerLast subtracts means[i] from every element whose trailing-axis index
// is i. len(means) must equal the trailing axis length.
func (t *Dense) SubPerLast(means []float64) {
	width := len(means)
	if width == 0 {
		return
	}
	for i := range t.Data {
		t.Data[i] -= means[i%width]
	}
}
