package task

import (
	"os"
	"path/filepath"
	"testing"
)

func samplePairs() ([]GridPair, []GridPair) {
	train := []GridPair{
		{
			Input:  Grid{{0, 3}, {5, 0}},
			Output: Grid{{3, 0}, {0, 5}},
		},
		{
			Input:  Grid{{1, 1, 1}},
			Output: Grid{{3}},
		},
	}
	test := []GridPair{
		{Input: Grid{{5, 1}, {1, 5}}},
	}
	return train, test
}

func TestPaletteBackgroundFirstThenSorted(t *testing.T) {
	train, test := samplePairs()
	tk, err := New("demo", "training", train, test)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 1, 3, 5}
	if len(tk.Colors) != len(want) {
		t.Fatalf("Expected palette %v, got %v", want, tk.Colors)
	}
	for i := range want {
		if tk.Colors[i] != want[i] {
			t.Fatalf("Expected palette %v, got %v", want, tk.Colors)
		}
	}
	if tk.NumColors() != 3 {
		t.Errorf("Expected 3 non-background colors, got %d", tk.NumColors())
	}
}

func TestCanvasIsMaxOverKnownGrids(t *testing.T) {
	train, test := samplePairs()
	tk, err := New("demo", "training", train, test)
	if err != nil {
		t.Fatal(err)
	}
	if tk.Height != 2 || tk.Width != 3 {
		t.Errorf("Expected a 2x3 canvas, got %dx%d", tk.Height, tk.Width)
	}
}

func TestPaddingAndMasks(t *testing.T) {
	train, test := samplePairs()
	tk, err := New("demo", "training", train, test)
	if err != nil {
		t.Fatal(err)
	}
	// Example 1's input is 1x3: the second canvas row is padding.
	if tk.InputMask[1][0][2] != true {
		t.Error("Expected in-bounds cells masked true")
	}
	if tk.InputMask[1][1][0] != false {
		t.Error("Expected padded cells masked false")
	}
	if tk.Input[1][1][0] != 0 {
		t.Errorf("Expected background in padding, got %d", tk.Input[1][1][0])
	}
	// Color 1 has palette index 1, color 3 index 2, color 5 index 3.
	if tk.Input[1][0][0] != 1 {
		t.Errorf("Expected palette index 1, got %d", tk.Input[1][0][0])
	}
	if tk.Output[1][0][0] != 2 {
		t.Errorf("Expected palette index 2, got %d", tk.Output[1][0][0])
	}
	if tk.Input[0][1][0] != 3 {
		t.Errorf("Expected palette index 3, got %d", tk.Input[0][1][0])
	}
}

func TestTestOutputsAreWithheld(t *testing.T) {
	train, test := samplePairs()
	test[0].Output = Grid{{9, 9}, {9, 9}} // present in the file, still withheld
	tk, err := New("demo", "training", train, test)
	if err != nil {
		t.Fatal(err)
	}
	last := tk.NumExamples - 1
	if tk.OutputKnown[last] {
		t.Error("Expected the test output to be unknown")
	}
	for r := 0; r < tk.Height; r++ {
		for c := 0; c < tk.Width; c++ {
			if tk.OutputMask[last][r][c] {
				t.Fatal("Expected no loss cells on a withheld output")
			}
		}
	}
	if tk.OutputSize[last] != [2]int{2, 2} {
		t.Errorf("Expected the predicted size to default to the input size, got %v", tk.OutputSize[last])
	}
	for _, c := range tk.Colors {
		if c == 9 {
			t.Error("Expected withheld outputs to stay out of the palette")
		}
	}
}

func TestLoadFromDataDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "training"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"train":[{"input":[[0,2]],"output":[[2,0]]}],"test":[{"input":[[2,2]]}]}`
	if err := os.WriteFile(filepath.Join(dir, "training", "abc.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tk, err := Load(dir, "training", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if tk.NumExamples != 2 || tk.NumTrain != 1 {
		t.Errorf("Expected 2 examples with 1 training pair, got %d/%d", tk.NumExamples, tk.NumTrain)
	}
	if tk.ID != "abc" || tk.Split != "training" {
		t.Errorf("Expected identity to carry through, got %s/%s", tk.ID, tk.Split)
	}
}

func TestLoadRejectsUnknownSplit(t *testing.T) {
	if _, err := Load(t.TempDir(), "validation", "abc"); err == nil {
		t.Error("Expected an unknown split to be rejected")
	}
}

func TestNewRejectsRaggedGrid(t *testing.T) {
	train := []GridPair{{
		Input:  Grid{{0, 1}, {0}},
		Output: Grid{{1}},
	}}
	if _, err := New("bad", "training", train, nil); err == nil {
		t.Error("Expected a ragged grid to be rejected")
	}
}

func TestDims(t *testing.T) {
	train, test := samplePairs()
	tk, err := New("demo", "training", train, test)
	if err != nil {
		t.Fatal(err)
	}
	d := tk.Dims()
	if d.Examples != 3 || d.Colors != 3 || d.Height != 2 || d.Width != 3 {
		t.Errorf("Expected dims {3 3 2 3}, got %+v", d)
	}
}
