// Package train drives one task's training run end to end: step the model,
// record telemetry, render solution previews at the configured cadence, and
// persist the trained state as a task archive.
package train

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfluke/unravel/archive"
	"github.com/openfluke/unravel/device"
	"github.com/openfluke/unravel/model"
	"github.com/openfluke/unravel/task"
	"github.com/openfluke/unravel/telemetry"
	"github.com/openfluke/unravel/viz"
)

// Config is one run's training setup.
type Config struct {
	Model        model.Config
	LR           float64
	Betas        [2]float64
	Iterations   int
	PlotInterval int
	// OutDir is the task's output folder; it is created if missing.
	OutDir string
	// Verbose enables per-interval progress lines on stdout.
	Verbose bool
}

// Result is what a finished run hands to the analysis phase.
type Result struct {
	// ArchivePath is the written <task>_curves.safetensors file.
	ArchivePath string
	// Sampler is the frozen trained state, ready for Monte Carlo draws.
	Sampler *model.Sampler
	// Telemetry holds the full KL and reconstruction curves.
	Telemetry *telemetry.Logger
}

// Run trains a fresh model on tk and writes the problem overview, the
// solution previews, and the task archive into cfg.OutDir. The random stream
// comes from dev, so equal seeds reproduce equal runs.
func Run(tk *task.Task, cfg Config, dev *device.Context, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := viz.PlotProblem(tk, filepath.Join(cfg.OutDir, tk.ID+"_problem.png")); err != nil {
		return nil, fmt.Errorf("train: problem overview: %w", err)
	}

	m := model.NewCompressor(tk, cfg.Model, dev.RNG())
	opt := model.NewAdam(cfg.LR, cfg.Betas)
	tlog := telemetry.NewLogger()

	log.Info("training",
		zap.String("task", tk.ID),
		zap.Int("iterations", cfg.Iterations),
		zap.String("device", dev.Name()))

	for step := 0; step < cfg.Iterations; step++ {
		met := m.TrainStep(step)
		opt.Step(m.Params())
		if err := tlog.Record(met.ReconstructionError, met.KL); err != nil {
			return nil, fmt.Errorf("train: step %d: %w", step, err)
		}

		if (step+1)%cfg.PlotInterval == 0 {
			if cfg.Verbose {
				fmt.Printf("  [%s] Step %d/%d - Loss: %.4f - Reconstruction: %.4f\n",
					tk.ID, step+1, cfg.Iterations, met.Loss, met.ReconstructionError)
			}
			_, predOut := m.PredictedGrids()
			base := filepath.Join(cfg.OutDir, fmt.Sprintf("%s_at_%d steps", tk.ID, step+1))
			if err := viz.PlotSolution(tk, predOut, base+".png", base+".pdf"); err != nil {
				return nil, fmt.Errorf("train: preview at step %d: %w", step+1, err)
			}
		}
	}

	sampler := m.Sampler(cfg.Iterations)
	path := filepath.Join(cfg.OutDir, tk.ID+"_curves.safetensors")
	if err := writeArchive(path, tk, sampler, tlog); err != nil {
		// Never leave a truncated archive behind a reported failure.
		os.Remove(path)
		return nil, fmt.Errorf("train: %w", err)
	}
	log.Info("run complete", zap.String("task", tk.ID), zap.String("archive", path))

	return &Result{ArchivePath: path, Sampler: sampler, Telemetry: tlog}, nil
}

// writeArchive persists the curves and the frozen model state.
func writeArchive(path string, tk *task.Task, s *model.Sampler, tlog *telemetry.Logger) error {
	a := archive.New()
	a.Metadata[archive.MetaTaskID] = tk.ID
	a.Metadata[archive.MetaSplit] = tk.Split
	a.Metadata[archive.MetaRunID] = uuid.NewString()
	a.Metadata[archive.MetaKeyOrder] = archive.EncodeKeyOrder(tlog.Keys())

	steps := tlog.Steps()
	if err := a.Put(archive.ReconCurveName, []int{steps}, tlog.ReconstructionErrorCurve()); err != nil {
		return err
	}
	for _, k := range tlog.Keys() {
		if err := a.Put(archive.KLCurveName(k), []int{steps}, tlog.KLCurve(k)); err != nil {
			return err
		}
	}
	if err := s.Store(a); err != nil {
		return err
	}
	return archive.Save(path, a)
}
