package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/openfluke/unravel/archive"
	"github.com/openfluke/unravel/multitensor"
	"github.com/openfluke/unravel/task"
)

func testTask(t *testing.T) *task.Task {
	t.Helper()
	train := []task.GridPair{
		{
			Input:  task.Grid{{0, 1, 0, 0}, {0, 1, 0, 0}, {0, 0, 2, 0}, {0, 0, 0, 0}},
			Output: task.Grid{{1, 0, 0, 0}, {1, 0, 0, 0}, {0, 2, 0, 0}, {0, 0, 0, 0}},
		},
	}
	test := []task.GridPair{
		{Input: task.Grid{{2, 0, 0, 0}, {0, 0, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 0}}},
	}
	tk, err := task.New("synthetic", "training", train, test)
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

func smallConfig() Config {
	return Config{
		NLayers:      2,
		ShareUpDim:   4,
		ShareDownDim: 3,
		DecodingDim:  3,
		SoftmaxDim:   2,
		CummaxDim:    2,
		ShiftDim:     2,
		NonlinearDim: 4,
	}
}

func TestTrainStepReportsEveryKey(t *testing.T) {
	m := NewCompressor(testTask(t), smallConfig(), rand.New(rand.NewSource(1)))
	met := m.TrainStep(0)
	if len(met.KL) != 32 {
		t.Fatalf("Expected a KL entry for all 32 keys, got %d", len(met.KL))
	}
	if met.ReconstructionError <= 0 {
		t.Errorf("Expected positive reconstruction error, got %v", met.ReconstructionError)
	}
	if met.Loss < met.ReconstructionError {
		t.Errorf("Expected loss %v >= reconstruction error %v", met.Loss, met.ReconstructionError)
	}
	for k, kl := range met.KL {
		if math.IsNaN(kl) || kl < 0 {
			t.Errorf("Expected a finite nonnegative KL for key %q, got %v", k, kl)
		}
	}
	in, out := m.PredictedGrids()
	if len(in) != 2 || len(out) != 2 {
		t.Fatalf("Expected 2 predicted grids per side, got %d and %d", len(in), len(out))
	}
	if len(in[0]) != 4 || len(in[0][0]) != 4 {
		t.Errorf("Expected 4x4 predicted grids, got %dx%d", len(in[0]), len(in[0][0]))
	}
}

func TestGradientsStayFinite(t *testing.T) {
	m := NewCompressor(testTask(t), smallConfig(), rand.New(rand.NewSource(2)))
	m.TrainStep(0)
	for _, p := range m.Params() {
		for i, g := range p.Grad {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				t.Fatalf("Expected finite gradients, got %v at %s[%d]", g, p.Name, i)
			}
		}
	}
}

func TestAdamDescendsOnQuadratic(t *testing.T) {
	// Minimize (x-3)^2 elementwise; Adam should move every element toward 3.
	p := newParam("x", 4)
	o := NewAdam(0.1, [2]float64{0.5, 0.9})
	for step := 0; step < 200; step++ {
		p.zeroGrad()
		for i, v := range p.Data {
			p.Grad[i] = 2 * (v - 3)
		}
		o.Step([]*Param{p})
	}
	for i, v := range p.Data {
		if math.Abs(v-3) > 0.1 {
			t.Errorf("Expected element %d near 3, got %v", i, v)
		}
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	m := NewCompressor(testTask(t), smallConfig(), rand.New(rand.NewSource(3)))
	o := NewAdam(0.01, [2]float64{0.5, 0.9})
	first := m.TrainStep(0)
	o.Step(m.Params())
	var last Metrics
	for step := 1; step < 60; step++ {
		last = m.TrainStep(step)
		o.Step(m.Params())
	}
	if last.ReconstructionError >= first.ReconstructionError {
		t.Errorf("Expected reconstruction error to fall from %v, got %v",
			first.ReconstructionError, last.ReconstructionError)
	}
}

func TestCummaxFollowsRayOrder(t *testing.T) {
	// One direction slice, width 1: strideH = 3, strideW = 1.
	g := []float64{
		0, 5, 0,
		0, 0, 0,
		2, 0, 0,
	}
	// Direction 0 is ↓: each cell sees the max of its column so far.
	out := make([]float64, len(g))
	from := make([]bool, len(g))
	scanGrid(3, 3, 0, false, func(r, c int) {
		off := r*3 + c
		out[off] = g[off]
		if r > 0 && out[(r-1)*3+c] > out[off] {
			out[off] = out[(r-1)*3+c]
			from[off] = true
		}
	})
	want := []float64{
		0, 5, 0,
		0, 5, 0,
		2, 5, 0,
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Expected cummax %v, got %v", want, out)
		}
	}
}

func TestScanGridVisitsPredecessorsFirst(t *testing.T) {
	for dir := 0; dir < multitensor.NumDirections; dir++ {
		dh, dw := dirVectors[dir][0], dirVectors[dir][1]
		seen := make(map[[2]int]int)
		order := 0
		scanGrid(4, 5, dir, false, func(r, c int) {
			seen[[2]int{r, c}] = order
			order++
		})
		for pos, at := range seen {
			pr, pc := pos[0]-dh, pos[1]-dw
			if pr < 0 || pr >= 4 || pc < 0 || pc >= 5 {
				continue
			}
			if seen[[2]int{pr, pc}] >= at {
				t.Fatalf("Direction %d: cell (%d,%d) visited before its predecessor (%d,%d)",
					dir, pos[0], pos[1], pr, pc)
			}
		}
	}
}

func TestSamplerArchiveRoundTrip(t *testing.T) {
	m := NewCompressor(testTask(t), smallConfig(), rand.New(rand.NewSource(4)))
	m.TrainStep(0)
	s := m.Sampler(10)

	a := archive.New()
	if err := s.Store(a); err != nil {
		t.Fatal(err)
	}
	data, err := a.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := archive.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadSampler(parsed)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Dims() != s.Dims() {
		t.Fatalf("Expected dims %+v, got %+v", s.Dims(), loaded.Dims())
	}
	if loaded.Channels() != s.Channels() {
		t.Fatalf("Expected %d channels, got %d", s.Channels(), loaded.Channels())
	}
	// Identical seeds must reproduce identical draws through the round trip.
	want, wantKL, names := s.Sample(rand.New(rand.NewSource(7)))
	got, gotKL, _ := loaded.Sample(rand.New(rand.NewSource(7)))
	if len(names) != 32 {
		t.Fatalf("Expected 32 KL names, got %d", len(names))
	}
	for _, k := range multitensor.AllKeys() {
		for i := range want[k].Data {
			if math.Abs(want[k].Data[i]-got[k].Data[i]) > 1e-12 {
				t.Fatalf("Key %q: sample diverged after reload", k)
			}
		}
		for i := range wantKL[k].Data {
			if math.Abs(wantKL[k].Data[i]-gotKL[k].Data[i]) > 1e-12 {
				t.Fatalf("Key %q: KL amounts diverged after reload", k)
			}
		}
	}
}

func TestSampleShapes(t *testing.T) {
	tk := testTask(t)
	m := NewCompressor(tk, smallConfig(), rand.New(rand.NewSource(5)))
	s := m.Sampler(0)
	sample, klAmounts, names := s.Sample(rand.New(rand.NewSource(1)))
	d := tk.Dims()
	for i, k := range multitensor.AllKeys() {
		if names[i] != k.String() {
			t.Fatalf("Expected KL name %q at index %d, got %q", k, i, names[i])
		}
		if got, want := sample[k].Rank(), k.Rank()+1; got != want {
			t.Errorf("Key %q: expected sample rank %d, got %d", k, want, got)
		}
		if got, want := sample[k].Size(), d.Numel(k)*3; got != want {
			t.Errorf("Key %q: expected %d sample values, got %d", k, want, got)
		}
		if got, want := klAmounts[k].Size(), d.Numel(k); got != want {
			t.Errorf("Key %q: expected %d KL positions, got %d", k, want, got)
		}
		if klAmounts[k].Rank() != k.Rank() {
			t.Errorf("Key %q: expected a channel-less KL tensor, got rank %d", k, klAmounts[k].Rank())
		}
	}
}
