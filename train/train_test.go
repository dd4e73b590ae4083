package train

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openfluke/unravel/archive"
	"github.com/openfluke/unravel/device"
	"github.com/openfluke/unravel/model"
	"github.com/openfluke/unravel/task"
)

func syntheticTask(t *testing.T) *task.Task {
	t.Helper()
	train := []task.GridPair{
		{
			Input:  task.Grid{{0, 1, 0, 0}, {0, 1, 0, 0}, {0, 0, 2, 0}, {0, 0, 0, 0}},
			Output: task.Grid{{1, 0, 0, 0}, {1, 0, 0, 0}, {0, 2, 0, 0}, {0, 0, 0, 0}},
		},
		{
			Input:  task.Grid{{0, 0, 2, 0}, {0, 1, 0, 0}, {0, 1, 0, 0}, {0, 0, 0, 0}},
			Output: task.Grid{{0, 2, 0, 0}, {1, 0, 0, 0}, {1, 0, 0, 0}, {0, 0, 0, 0}},
		},
	}
	tk, err := task.New("synth0001", "training", train, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tk.NumExamples != 2 || tk.NumColors() != 2 || tk.Height != 4 || tk.Width != 4 {
		t.Fatalf("Unexpected synthetic task dims: %+v", tk.Dims())
	}
	return tk
}

func testConfig(dir string) Config {
	cfg := model.DefaultConfig()
	cfg.NLayers = 1
	cfg.DecodingDim = 3
	return Config{
		Model:        cfg,
		LR:           0.01,
		Betas:        [2]float64{0.5, 0.9},
		Iterations:   10,
		PlotInterval: 5,
		OutDir:       dir,
	}
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dev, err := device.New("cpu", 7, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	res, err := Run(syntheticTask(t), testConfig(dir), dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := len(res.Telemetry.ReconstructionErrorCurve()); got != 10 {
		t.Errorf("Expected a 10-step reconstruction curve, got %d", got)
	}
	for _, k := range res.Telemetry.Keys() {
		if got := len(res.Telemetry.KLCurve(k)); got != 10 {
			t.Errorf("Key %q: expected a 10-step KL curve, got %d", k, got)
		}
	}

	// plot_interval 5 over 10 steps gives exactly two preview pairs.
	for _, name := range []string{
		"synth0001_problem.png",
		"synth0001_at_5 steps.png", "synth0001_at_5 steps.pdf",
		"synth0001_at_10 steps.png", "synth0001_at_10 steps.pdf",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
	previews, err := filepath.Glob(filepath.Join(dir, "*steps.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(previews) != 2 {
		t.Errorf("Expected exactly 2 preview images, got %d: %v", len(previews), previews)
	}
}

func TestArchiveRoundTripsKeySet(t *testing.T) {
	dir := t.TempDir()
	dev, err := device.New("cpu", 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	res, err := Run(syntheticTask(t), testConfig(dir), dev, nil)
	if err != nil {
		t.Fatal(err)
	}

	a, err := archive.Load(res.ArchivePath)
	if err != nil {
		t.Fatal(err)
	}
	if got := a.Metadata[archive.MetaTaskID]; got != "synth0001" {
		t.Errorf("Expected task_id synth0001, got %q", got)
	}
	if a.Metadata[archive.MetaRunID] == "" {
		t.Error("Expected a run_id in the archive metadata")
	}

	keys, curves, err := a.KLCurves()
	if err != nil {
		t.Fatal(err)
	}
	want := res.Telemetry.Keys()
	if len(keys) != len(want) {
		t.Fatalf("Expected %d curve keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Expected key %q at index %d, got %q", want[i], i, keys[i])
		}
		if len(curves[keys[i]]) != 10 {
			t.Errorf("Key %q: expected 10 reloaded steps, got %d", keys[i], len(curves[keys[i]]))
		}
	}

	recon, err := a.ReconstructionCurve()
	if err != nil {
		t.Fatal(err)
	}
	if len(recon) != 10 {
		t.Errorf("Expected a 10-step reloaded reconstruction curve, got %d", len(recon))
	}

	if _, err := model.LoadSampler(a); err != nil {
		t.Fatalf("Expected the archive to rebuild a sampler: %v", err)
	}
}
