package device

import (
	"math"
	"testing"
)

func TestNewCPU(t *testing.T) {
	c, err := New("cpu", 42, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Kind() != CPU {
		t.Errorf("Expected CPU, got %v", c.Kind())
	}
	if c.Seed() != 42 {
		t.Errorf("Expected seed 42, got %d", c.Seed())
	}
}

func TestNewRejectsUnknownSelector(t *testing.T) {
	for _, sel := range []string{"tpu", "", "gpu:x", "gpu:-1", "GPU"} {
		if _, err := New(sel, 1, nil); err == nil {
			t.Errorf("Expected selector %q to be rejected", sel)
		}
	}
}

func TestZeroSeedDerivesOne(t *testing.T) {
	c, err := New("cpu", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Seed() == 0 {
		t.Error("Expected a derived seed, got 0")
	}
}

func TestAddInPlaceCPU(t *testing.T) {
	c, err := New("cpu", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	dst := []float64{1, 2, 3}
	c.AddInPlace(dst, []float64{10, 20, 30})
	want := []float64{11, 22, 33}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("Expected %v at %d, got %v", want[i], i, dst[i])
		}
	}
}

func TestForkIsStablePerDraw(t *testing.T) {
	a, err := New("cpu", 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New("cpu", 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	for i := int64(0); i < 5; i++ {
		x := a.Fork(i).NormFloat64()
		y := b.Fork(i).NormFloat64()
		if x != y {
			t.Errorf("Expected draw %d to match across contexts, got %v and %v", i, x, y)
		}
	}
	if a.Fork(0).NormFloat64() == a.Fork(1).NormFloat64() {
		t.Error("Expected different draws to differ")
	}
}

func TestForkDiffersAcrossSeeds(t *testing.T) {
	a, _ := New("cpu", 1, nil)
	b, _ := New("cpu", 2, nil)
	defer a.Close()
	defer b.Close()
	same := 0
	for i := int64(0); i < 8; i++ {
		if math.Abs(a.Fork(i).Float64()-b.Fork(i).Float64()) < 1e-15 {
			same++
		}
	}
	if same == 8 {
		t.Error("Expected different seeds to give different streams")
	}
}
