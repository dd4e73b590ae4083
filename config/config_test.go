package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Model.NLayers != 4 || cfg.Model.ShareUpDim != 16 || cfg.Model.DecodingDim != 4 {
		t.Errorf("Expected default model dims 4/16/4, got %d/%d/%d",
			cfg.Model.NLayers, cfg.Model.ShareUpDim, cfg.Model.DecodingDim)
	}
	if cfg.Optimizer.LR != 0.01 {
		t.Errorf("Expected default lr 0.01, got %v", cfg.Optimizer.LR)
	}
	if cfg.Optimizer.Betas != [2]float64{0.5, 0.9} {
		t.Errorf("Expected default betas [0.5 0.9], got %v", cfg.Optimizer.Betas)
	}
	if cfg.Training.NIterations != 1500 || cfg.Training.PlotInterval != 50 {
		t.Errorf("Expected 1500 iterations with interval 50, got %d/%d",
			cfg.Training.NIterations, cfg.Training.PlotInterval)
	}
	if cfg.Analysis.NSamples != 100 || cfg.Analysis.SignificanceThreshold != 1.0 {
		t.Errorf("Expected 100 samples over threshold 1, got %d/%v",
			cfg.Analysis.NSamples, cfg.Analysis.SignificanceThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "training:\n  n_iterations: 10\ncli_args:\n  device: cpu\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Training.NIterations != 10 {
		t.Errorf("Expected the file to override iterations, got %d", cfg.Training.NIterations)
	}
	if cfg.CLIArgs.Device != "cpu" {
		t.Errorf("Expected device cpu, got %q", cfg.CLIArgs.Device)
	}
	if cfg.Model.NLayers != 4 {
		t.Errorf("Expected untouched fields to keep defaults, got %d layers", cfg.Model.NLayers)
	}
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected a missing file to fall back to defaults, got %v", err)
	}
	if cfg.Training.NIterations != 1500 {
		t.Errorf("Expected defaults, got %d iterations", cfg.Training.NIterations)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("optimizer:\n  lr: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected a negative learning rate to be rejected")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.CLIArgs.Task = "0520fde7"
	cfg.Analysis.Workers = 3
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.CLIArgs.Task != "0520fde7" {
		t.Errorf("Expected the task to round-trip, got %q", back.CLIArgs.Task)
	}
	if back.Analysis.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", back.Analysis.Workers)
	}
}
