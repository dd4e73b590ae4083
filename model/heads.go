package model

import (
	"math"

	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/task"
)

// headKey is the representation the grids are decoded from: one channel
// vector per (example, color, cell).
var headKey = multitensor.MakeKey(true, true, false, true, true)

// headLayer turns the aggregated representation into per-color logits for
// the input and output grids. The background always gets a fixed zero logit,
// so each head only scores the task's real colors.
type headLayer struct {
	channels int
	wIn      *Param
	wOut     *Param
}

func (m *Compressor) newHeadLayer() *headLayer {
	return &headLayer{
		channels: m.channels,
		wIn:      m.newWeight("head/input", m.channels, m.channels),
		wOut:     m.newWeight("head/output", m.channels, m.channels),
	}
}

// lossAndBackward scores the representation x (keyed by headKey) against the
// task's grids. It returns the summed cross-entropy in nats over every known
// unmasked cell of both grids, the gradient with respect to x, and the
// argmax-decoded input and output grids, indexed [example][row][col] in
// palette indices.
func (l *headLayer) lossAndBackward(x []float64, t *task.Task) (recon float64, dx []float64, predIn, predOut [][][]int) {
	d := t.Dims()
	dx = make([]float64, len(x))
	predIn = make([][][]int, d.Examples)
	predOut = make([][][]int, d.Examples)

	logits := make([]float64, d.Colors+1)
	probs := make([]float64, d.Colors+1)
	cellOff := func(e, c, h, w int) int {
		return (((e*d.Colors+c)*d.Height+h)*d.Width + w) * l.channels
	}

	for e := 0; e < d.Examples; e++ {
		predIn[e] = make([][]int, d.Height)
		predOut[e] = make([][]int, d.Height)
		for h := 0; h < d.Height; h++ {
			predIn[e][h] = make([]int, d.Width)
			predOut[e][h] = make([]int, d.Width)
			for w := 0; w < d.Width; w++ {
				predIn[e][h][w] = l.scoreCell(x, dx, cellOff, e, h, w, l.wIn,
					t.Input[e][h][w], t.InputMask[e][h][w], &recon, logits, probs)
				predOut[e][h][w] = l.scoreCell(x, dx, cellOff, e, h, w, l.wOut,
					t.Output[e][h][w], t.OutputKnown[e] && t.OutputMask[e][h][w], &recon, logits, probs)
			}
		}
	}
	return recon, dx, predIn, predOut
}

// scoreCell computes one cell's class distribution, accumulates its loss and
// gradients when the cell carries loss, and returns the argmax class.
func (l *headLayer) scoreCell(x, dx []float64, cellOff func(e, c, h, w int) int,
	e, h, w int, head *Param, target int, counted bool,
	recon *float64, logits, probs []float64) int {

	classes := len(logits)
	logits[0] = 0 // background
	for c := 1; c < classes; c++ {
		off := cellOff(e, c-1, h, w)
		sum := 0.0
		for t := 0; t < l.channels; t++ {
			sum += x[off+t] * head.Data[t]
		}
		logits[c] = sum
	}

	maxv, best := logits[0], 0
	for c := 1; c < classes; c++ {
		if logits[c] > maxv {
			maxv, best = logits[c], c
		}
	}
	if !counted {
		return best
	}

	lse := 0.0
	for c := 0; c < classes; c++ {
		probs[c] = math.Exp(logits[c] - maxv)
		lse += probs[c]
	}
	*recon += math.Log(lse) + maxv - logits[target]

	for c := 1; c < classes; c++ {
		g := probs[c] / lse
		if c == target {
			g -= 1
		}
		off := cellOff(e, c-1, h, w)
		for t := 0; t < l.channels; t++ {
			dx[off+t] += g * head.Data[t]
			head.Grad[t] += g * x[off+t]
		}
	}
	return best
}
