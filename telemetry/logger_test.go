package telemetry

import (
	"errors"
	"testing"

	"github.com/openfluke/unravel/multitensor"
)

func twoKeyStep(a, b float64) map[multitensor.Key]float64 {
	return map[multitensor.Key]float64{
		multitensor.MakeKey(true, false, false, false, false): a,
		multitensor.MakeKey(false, false, false, true, true):  b,
	}
}

func TestRecordGrowsEveryCurveInStep(t *testing.T) {
	l := NewLogger()
	const steps = 7
	for i := 0; i < steps; i++ {
		if err := l.Record(float64(i), twoKeyStep(float64(i), float64(-i))); err != nil {
			t.Fatalf("Expected step %d to record, got %v", i, err)
		}
	}
	if l.Steps() != steps {
		t.Fatalf("Expected %d steps, got %d", steps, l.Steps())
	}
	if got := len(l.ReconstructionErrorCurve()); got != steps {
		t.Errorf("Expected reconstruction curve length %d, got %d", steps, got)
	}
	for _, k := range l.Keys() {
		if got := len(l.KLCurve(k)); got != steps {
			t.Errorf("Expected curve %q length %d, got %d", k, steps, got)
		}
	}
}

func TestRecordKeepsCallOrder(t *testing.T) {
	l := NewLogger()
	for i := 0; i < 3; i++ {
		if err := l.Record(float64(10 + i), twoKeyStep(float64(i), 0)); err != nil {
			t.Fatal(err)
		}
	}
	ex := multitensor.MakeKey(true, false, false, false, false)
	for i, v := range l.KLCurve(ex) {
		if v != float64(i) {
			t.Errorf("Expected value %d at step %d, got %v", i, i, v)
		}
	}
	for i, v := range l.ReconstructionErrorCurve() {
		if v != float64(10+i) {
			t.Errorf("Expected reconstruction %d at step %d, got %v", 10+i, i, v)
		}
	}
}

func TestRecordRejectsUnseenKey(t *testing.T) {
	l := NewLogger()
	if err := l.Record(1, twoKeyStep(1, 2)); err != nil {
		t.Fatal(err)
	}
	bad := twoKeyStep(1, 2)
	bad[multitensor.MakeKey(false, true, false, false, false)] = 3
	err := l.Record(1, bad)
	if err == nil {
		t.Fatal("Expected an error for a key outside the established set")
	}
	if !errors.Is(err, ErrUnknownCurve) {
		t.Errorf("Expected ErrUnknownCurve, got %v", err)
	}
	if l.Steps() != 1 {
		t.Errorf("Expected the rejected step to append nothing, got %d steps", l.Steps())
	}
}

func TestRecordRejectsMissingKey(t *testing.T) {
	l := NewLogger()
	if err := l.Record(1, twoKeyStep(1, 2)); err != nil {
		t.Fatal(err)
	}
	short := map[multitensor.Key]float64{
		multitensor.MakeKey(true, false, false, false, false): 1,
	}
	err := l.Record(1, short)
	if !errors.Is(err, ErrUnknownCurve) {
		t.Fatalf("Expected ErrUnknownCurve for a missing key, got %v", err)
	}
	for _, k := range l.Keys() {
		if len(l.KLCurve(k)) != 1 {
			t.Errorf("Expected curve %q untouched at length 1, got %d", k, len(l.KLCurve(k)))
		}
	}
}

func TestKeysCanonicalOrder(t *testing.T) {
	l := NewLogger()
	if err := l.Record(0, twoKeyStep(0, 0)); err != nil {
		t.Fatal(err)
	}
	keys := l.Keys()
	if len(keys) != 2 {
		t.Fatalf("Expected 2 keys, got %d", len(keys))
	}
	if keys[0].String() != "height_width" || keys[1].String() != "example" {
		t.Errorf("Expected canonical order [height_width example], got %v", keys)
	}
}
