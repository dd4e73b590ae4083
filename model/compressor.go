// Package model implements the latent-variable compressor that is trained on
// one task at a time: a Gaussian posterior per axis-presence key, a stack of
// residual blocks that move information between keys, and two linear heads
// that decode the result into grid colors. The backward pass is written by
// hand, layer by layer, mirroring each forward step.
package model

import (
	"fmt"
	"math/rand"

	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/task"
)

// Compressor is the trainable model for one task. It is not safe for
// concurrent use; training is a single-goroutine loop.
type Compressor struct {
	task     *task.Task
	dims     multitensor.Dims
	channels int
	cfg      Config
	rng      *rand.Rand

	params   []*Param
	post     *posterior
	capacity *capacitySchedule
	decode   *decodeLayer
	blocks   []*block
	head     *headLayer

	predIn, predOut [][][]int
}

// block is one residual decoder stage. Share layers move information across
// keys, the rest works within each key.
type block struct {
	up   *shareLayer
	down *shareLayer
	nl   *nonlinearLayer
	sm   *softmaxLayer
	cm   *cummaxLayer
	sh   *shiftLayer
	norm *rmsNormLayer
}

type blockCache struct {
	up   *shareCache
	down *shareCache
	nl   *nonlinearCache
	sm   *softmaxCache
	cm   *cummaxCache
	sh   *shiftCache
	norm *rmsNormCache
}

// NewCompressor builds a model for t, drawing initial weights from rng.
func NewCompressor(t *task.Task, cfg Config, rng *rand.Rand) *Compressor {
	m := &Compressor{
		task:     t,
		dims:     t.Dims(),
		channels: cfg.DecodingDim,
		cfg:      cfg,
		rng:      rng,
	}
	m.post = m.newPosterior()
	m.capacity = newCapacitySchedule(m.dims, m.channels)
	m.decode = m.newDecodeLayer()
	for i := 0; i < cfg.NLayers; i++ {
		prefix := fmt.Sprintf("block%d/", i)
		m.blocks = append(m.blocks, &block{
			up:   m.newShareLayer(prefix+"share_up", shareUp, cfg.ShareUpDim),
			down: m.newShareLayer(prefix+"share_down", shareDown, cfg.ShareDownDim),
			nl:   m.newNonlinearLayer(prefix+"nonlinear", cfg.NonlinearDim),
			sm:   m.newSoftmaxLayer(prefix+"softmax", cfg.SoftmaxDim),
			cm:   m.newCummaxLayer(prefix+"cummax", cfg.CummaxDim),
			sh:   m.newShiftLayer(prefix+"shift", cfg.ShiftDim),
			norm: m.newRMSNormLayer(prefix + "norm"),
		})
	}
	m.head = m.newHeadLayer()
	return m
}

// Params returns every learnable parameter, in registration order.
func (m *Compressor) Params() []*Param { return m.params }

// Metrics is what one training step reports.
type Metrics struct {
	// ReconstructionError is the summed cross-entropy of both grids, nats.
	ReconstructionError float64
	// Loss adds the over-capacity KL penalty to the reconstruction error.
	Loss float64
	// KL holds every key's total KL against the prior, in nats.
	KL map[multitensor.Key]float64
}

// TrainStep runs one full forward/backward pass at the given step: draw one
// posterior sample, decode it, score it against the grids, and accumulate
// gradients for every parameter. The caller applies the optimizer afterwards.
func (m *Compressor) TrainStep(step int) Metrics {
	for _, p := range m.params {
		p.zeroGrad()
	}
	keys := multitensor.AllKeys()

	eps := m.drawNoise(m.rng)
	z := m.post.sample(keys, eps)
	x := m.decode.forward(z)

	caches := make([]*blockCache, len(m.blocks))
	for i, b := range m.blocks {
		c := &blockCache{}
		x, c.up = b.up.forward(x)
		x, c.down = b.down.forward(x)
		x, c.nl = b.nl.forward(x)
		x, c.sm = b.sm.forward(x)
		x, c.cm = b.cm.forward(x)
		x, c.sh = b.sh.forward(x)
		x, c.norm = b.norm.forward(x)
		caches[i] = c
	}

	recon, dhead, predIn, predOut := m.head.lossAndBackward(x[headKey], m.task)
	m.predIn, m.predOut = predIn, predOut

	met := Metrics{
		ReconstructionError: recon,
		Loss:                recon,
		KL:                  make(map[multitensor.Key]float64, len(keys)),
	}
	for _, k := range keys {
		kl := m.post.klTotal(k)
		met.KL[k] = kl
		if over := kl - m.capacity.at(k, step); over > 0 {
			met.Loss += over
			m.post.backwardKL(k)
		}
	}

	dx := make(family, len(x))
	for k, data := range x {
		dx[k] = make([]float64, len(data))
	}
	copy(dx[headKey], dhead)

	for i := len(m.blocks) - 1; i >= 0; i-- {
		b, c := m.blocks[i], caches[i]
		dx = b.norm.backward(c.norm, dx)
		dx = b.sh.backward(c.sh, dx)
		dx = b.cm.backward(c.cm, dx)
		dx = b.sm.backward(c.sm, dx)
		dx = b.nl.backward(c.nl, dx)
		dx = b.down.backward(c.down, dx)
		dx = b.up.backward(c.up, dx)
	}
	dz := m.decode.backward(z, dx)
	m.post.backwardSample(keys, eps, dz)
	return met
}

// PredictedGrids returns the argmax-decoded input and output grids from the
// most recent step, indexed [example][row][col] in palette indices. Nil
// before the first step.
func (m *Compressor) PredictedGrids() (in, out [][][]int) { return m.predIn, m.predOut }
