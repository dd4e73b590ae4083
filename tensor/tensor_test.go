package tensor

import (
	"math"
	"testing"
)

func TestNewShapeAndStrides(t *testing.T) {
	d := New(2, 3, 4)
	if d.Size() != 24 {
		t.Errorf("Expected size 24, got %d", d.Size())
	}
	wantStrides := []int{12, 4, 1}
	for i, s := range wantStrides {
		if d.Strides[i] != s {
			t.Errorf("Expected stride %d at axis %d, got %d", s, i, d.Strides[i])
		}
	}
}

func TestRankZero(t *testing.T) {
	d := New()
	if d.Size() != 1 {
		t.Errorf("Expected a rank-0 tensor to hold one element, got %d", d.Size())
	}
	if d.Rank() != 0 {
		t.Errorf("Expected rank 0, got %d", d.Rank())
	}
}

func TestAtSet(t *testing.T) {
	d := New(2, 3)
	d.Set(7.5, 1, 2)
	if got := d.At(1, 2); got != 7.5 {
		t.Errorf("Expected 7.5, got %v", got)
	}
	if got := d.Data[5]; got != 7.5 {
		t.Errorf("Expected flat offset 5 to hold 7.5, got %v", got)
	}
}

func TestReshapeMismatchReturnsNil(t *testing.T) {
	d := New(2, 3)
	if r := d.Reshape(4, 2); r != nil {
		t.Errorf("Expected nil for a mismatched reshape, got shape %v", r.Shape)
	}
	r := d.Reshape(3, 2)
	if r == nil {
		t.Fatal("Expected a valid reshape, got nil")
	}
	r.Data[0] = 9
	if d.Data[0] != 9 {
		t.Error("Expected Reshape to share the underlying data")
	}
}

func TestFromSlice(t *testing.T) {
	if got := FromSlice([]float64{1, 2, 3}, 2, 2); got != nil {
		t.Error("Expected nil for a mismatched FromSlice")
	}
	d := FromSlice([]float64{1, 2, 3, 4}, 2, 2)
	if d == nil {
		t.Fatal("Expected a tensor, got nil")
	}
	if got := d.At(1, 0); got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := New(2, 2)
	d.Fill(1)
	c := d.Clone()
	c.Data[0] = 5
	if d.Data[0] != 1 {
		t.Errorf("Expected the original to stay 1, got %v", d.Data[0])
	}
}

func TestMeanOverAllButLast(t *testing.T) {
	d := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	means := d.MeanOverAllButLast()
	if len(means) != 2 {
		t.Fatalf("Expected 2 means, got %d", len(means))
	}
	if math.Abs(means[0]-3) > 1e-12 || math.Abs(means[1]-4) > 1e-12 {
		t.Errorf("Expected means [3 4], got %v", means)
	}
}

func TestSubPerLastCenters(t *testing.T) {
	d := FromSlice([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	d.SubPerLast(d.MeanOverAllButLast())
	means := d.MeanOverAllButLast()
	for i, m := range means {
		if math.Abs(m) > 1e-12 {
			t.Errorf("Expected centered mean 0 at channel %d, got %v", i, m)
		}
	}
}

func TestMaxAbs(t *testing.T) {
	d := FromSlice([]float64{-3, 1, 2}, 3)
	if got := d.MaxAbs(); got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
}
