// Package device resolves where numeric work runs and which random stream it
// draws from. A Context is created once per run and threaded through training
// and analysis; nothing in the pipeline touches process-global state.
package device

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind is the compute backend a Context resolved to.
type Kind int

const (
	CPU Kind = iota
	GPU
)

func (k Kind) String() string {
	if k == GPU {
		return "gpu"
	}
	return "cpu"
}

// Context carries the execution context for one run: the compute backend,
// the adapter behind it, and the seeded random stream.
type Context struct {
	kind Kind
	name string
	seed int64
	rng  *rand.Rand
	log  *zap.Logger

	gpu      *gpuState
	degraded atomic.Bool
}

// New resolves a device selector. Valid selectors are "cpu", "gpu", "gpu:N"
// for the Nth enumerated adapter, and "auto", which prefers a GPU but falls
// back to the CPU when none initializes. An explicit "gpu" selector fails
// hard instead of falling back.
//
// seed fixes the random stream; 0 derives one from the clock. log may be nil.
func New(selector string, seed int64, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := &Context{
		kind: CPU,
		name: "host",
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
		log:  log,
	}

	adapterIndex := -1
	switch {
	case selector == "cpu":
		return c, nil
	case selector == "auto":
		gpu, err := initGPU(adapterIndex, log)
		if err != nil {
			log.Warn("no usable GPU adapter, staying on CPU", zap.Error(err))
			return c, nil
		}
		c.kind, c.gpu, c.name = GPU, gpu, gpu.name
		return c, nil
	case selector == "gpu" || strings.HasPrefix(selector, "gpu:"):
		if rest, ok := strings.CutPrefix(selector, "gpu:"); ok {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("device: bad adapter index in %q", selector)
			}
			adapterIndex = n
		}
		gpu, err := initGPU(adapterIndex, log)
		if err != nil {
			return nil, fmt.Errorf("device: %w", err)
		}
		c.kind, c.gpu, c.name = GPU, gpu, gpu.name
		return c, nil
	}
	return nil, fmt.Errorf("device: unknown selector %q (valid: cpu, gpu, gpu:N, auto)", selector)
}

// Kind returns the backend work currently runs on. A GPU context that has
// degraded reports CPU.
func (c *Context) Kind() Kind {
	if c.degraded.Load() {
		return CPU
	}
	return c.kind
}

// Name returns a human-readable adapter description.
func (c *Context) Name() string { return c.name }

// Seed returns the seed the context's random streams derive from.
func (c *Context) Seed() int64 { return c.seed }

// RNG returns the context's main random stream. It is not safe for
// concurrent use; parallel work should Fork instead.
func (c *Context) RNG() *rand.Rand { return c.rng }

// Fork returns an independent stream for draw i. The stream depends only on
// the context seed and i, so work split across any number of goroutines sees
// the same randomness per draw.
func (c *Context) Fork(i int64) *rand.Rand {
	h := uint64(c.seed) ^ (uint64(i)+1)*0x9e3779b97f4a7c15
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return rand.New(rand.NewSource(int64(h)))
}

// AddInPlace adds src into dst elementwise. On a GPU context the sum runs as
// a compute kernel; the first kernel failure logs a warning, permanently
// degrades the context to CPU, and the addition is redone on the host, so no
// data is lost. The GPU path rounds through float32.
func (c *Context) AddInPlace(dst, src []float64) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("device: AddInPlace length mismatch %d != %d", len(dst), len(src)))
	}
	if len(dst) == 0 {
		return
	}
	if c.kind == GPU && !c.degraded.Load() {
		if err := c.gpu.add(dst, src); err == nil {
			return
		} else if c.degraded.CompareAndSwap(false, true) {
			c.log.Warn("GPU kernel failed, degrading to CPU for the rest of the run",
				zap.String("adapter", c.name), zap.Error(err))
		}
	}
	for i := range dst {
		dst[i] += src[i]
	}
}

// Close releases any GPU resources. The context must not be used afterwards.
func (c *Context) Close() {
	if c.gpu != nil {
		c.gpu.release()
		c.gpu = nil
	}
}
