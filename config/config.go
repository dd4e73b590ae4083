// Package config holds the runtime configuration for training and analysis
// runs, loaded from YAML with sane defaults for every field.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration tree.
type Config struct {
	CLIArgs   CLIArgs   `yaml:"cli_args"`
	Model     Model     `yaml:"model"`
	Optimizer Optimizer `yaml:"optimizer"`
	Training  Training  `yaml:"training"`
	Analysis  Analysis  `yaml:"analysis"`
}

// CLIArgs are the defaults for flags the command line can override.
type CLIArgs struct {
	Split     string `yaml:"split"`
	Task      string `yaml:"task"`
	Tasks     string `yaml:"tasks"`
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
	Device    string `yaml:"device"`
	Seed      int64  `yaml:"seed"`
}

// Model sets the decoder dimensions.
type Model struct {
	NLayers      int `yaml:"n_layers"`
	ShareUpDim   int `yaml:"share_up_dim"`
	ShareDownDim int `yaml:"share_down_dim"`
	DecodingDim  int `yaml:"decoding_dim"`
	SoftmaxDim   int `yaml:"softmax_dim"`
	CummaxDim    int `yaml:"cummax_dim"`
	ShiftDim     int `yaml:"shift_dim"`
	NonlinearDim int `yaml:"nonlinear_dim"`
}

// Optimizer sets the Adam hyperparameters.
type Optimizer struct {
	LR    float64    `yaml:"lr"`
	Betas [2]float64 `yaml:"betas"`
}

// Training sets the loop length and checkpoint cadence.
type Training struct {
	NIterations  int `yaml:"n_iterations"`
	PlotInterval int `yaml:"plot_interval"`
}

// Analysis sets the Monte Carlo estimate and the significance filter.
type Analysis struct {
	NSamples              int     `yaml:"n_samples"`
	SignificanceThreshold float64 `yaml:"significance_threshold"`
	Workers               int     `yaml:"workers"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		CLIArgs: CLIArgs{
			DataDir:   "data",
			OutputDir: "outputs",
			Device:    "auto",
		},
		Model: Model{
			NLayers:      4,
			ShareUpDim:   16,
			ShareDownDim: 8,
			DecodingDim:  4,
			SoftmaxDim:   2,
			CummaxDim:    4,
			ShiftDim:     4,
			NonlinearDim: 16,
		},
		Optimizer: Optimizer{
			LR:    0.01,
			Betas: [2]float64{0.5, 0.9},
		},
		Training: Training{
			NIterations:  1500,
			PlotInterval: 50,
		},
		Analysis: Analysis{
			NSamples:              100,
			SignificanceThreshold: 1.0,
		},
	}
}

// Load reads a YAML file over the defaults, so partial files are fine.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults when it
// does not. A file that exists but fails to parse is still an error.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"model.n_layers", c.Model.NLayers},
		{"model.share_up_dim", c.Model.ShareUpDim},
		{"model.share_down_dim", c.Model.ShareDownDim},
		{"model.decoding_dim", c.Model.DecodingDim},
		{"model.softmax_dim", c.Model.SoftmaxDim},
		{"model.cummax_dim", c.Model.CummaxDim},
		{"model.shift_dim", c.Model.ShiftDim},
		{"model.nonlinear_dim", c.Model.NonlinearDim},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.name, d.v)
		}
	}
	if c.Optimizer.LR <= 0 {
		return fmt.Errorf("optimizer.lr must be positive, got %v", c.Optimizer.LR)
	}
	for i, b := range c.Optimizer.Betas {
		if b < 0 || b >= 1 {
			return fmt.Errorf("optimizer.betas[%d] must be in [0, 1), got %v", i, b)
		}
	}
	if c.Training.NIterations < 0 {
		return fmt.Errorf("training.n_iterations must not be negative, got %d", c.Training.NIterations)
	}
	if c.Training.PlotInterval <= 0 {
		return fmt.Errorf("training.plot_interval must be positive, got %d", c.Training.PlotInterval)
	}
	if c.Analysis.NSamples <= 0 {
		return fmt.Errorf("analysis.n_samples must be positive, got %d", c.Analysis.NSamples)
	}
	if c.Analysis.SignificanceThreshold < 0 {
		return fmt.Errorf("analysis.significance_threshold must not be negative, got %v", c.Analysis.SignificanceThreshold)
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must not be negative, got %d", c.Analysis.Workers)
	}
	return nil
}
