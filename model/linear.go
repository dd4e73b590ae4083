package model

import "math"

// applyLinear computes y = x*W + b over the trailing axis. x is rows*in, W is
// in*out row-major, b has length out or is nil, y is rows*out.
func applyLinear(x []float64, rows, in int, w, b []float64, out int, y []float64) {
	for r := 0; r < rows; r++ {
		xi := x[r*in : (r+1)*in]
		yo := y[r*out : (r+1)*out]
		for o := 0; o < out; o++ {
			sum := 0.0
			if b != nil {
				sum = b[o]
			}
			for i := 0; i < in; i++ {
				sum += xi[i] * w[i*out+o]
			}
			yo[o] = sum
		}
	}
}

// linearBackward accumulates the gradients of y = x*W + b given dy. Any of
// dw, db, dx may be nil to skip that term; dx is accumulated, not
// overwritten.
func linearBackward(x, dy []float64, rows, in, out int, w, dw, db, dx []float64) {
	for r := 0; r < rows; r++ {
		xi := x[r*in : (r+1)*in]
		dyo := dy[r*out : (r+1)*out]
		for o := 0; o < out; o++ {
			g := dyo[o]
			if g == 0 {
				continue
			}
			if db != nil {
				db[o] += g
			}
			for i := 0; i < in; i++ {
				if dw != nil {
					dw[i*out+o] += xi[i] * g
				}
				if dx != nil {
					dx[r*in+i] += w[i*out+o] * g
				}
			}
		}
	}
}

func silu(x float64) float64 {
	return x / (1 + math.Exp(-x))
}

// siluGrad is d silu(x)/dx = s(x)*(1 + x*(1 - s(x))) with s the sigmoid.
func siluGrad(x float64) float64 {
	s := 1 / (1 + math.Exp(-x))
	return s * (1 + x*(1-s))
}
