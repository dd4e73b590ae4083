package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/openfluke/unravel/analysis"
	"github.com/openfluke/unravel/archive"
	"github.com/openfluke/unravel/config"
	"github.com/openfluke/unravel/device"
	"github.com/openfluke/unravel/model"
	"github.com/openfluke/unravel/task"
	"github.com/openfluke/unravel/train"
	"github.com/openfluke/unravel/viz"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Train on one task and visualize what the model learned",
	Long: `Trains a fresh compressor on one task, then renders the full analysis:
solution previews at every checkpoint, the KL curves over training, and the
top principal components of every significant tensor shape.

Example:
  unravel analyze --split training --task 272f95fa`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().String("split", "", "dataset split (training, evaluation, test)")
	analyzeCmd.Flags().String("task", "", "task ID to analyze (eg. 272f95fa)")
	analyzeCmd.Flags().String("data-dir", "", "directory holding the dataset splits")
	analyzeCmd.Flags().String("output-dir", "", "directory to store output files")
	analyzeCmd.Flags().String("device", "", "compute device (cpu, gpu, gpu:N, auto)")
	analyzeCmd.Flags().Int64("seed", 0, "random seed (0 derives one from the clock)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	split, taskID, err := resolveTarget(cfg)
	if err != nil {
		return err
	}
	logger.Info("analyzing task",
		zap.String("split", split),
		zap.String("task", taskID),
		zap.String("output", filepath.Join(cfg.CLIArgs.OutputDir, taskID)))
	return runTask(cfg, split, taskID, logger)
}

// resolveTarget fills in the split and task, prompting on a terminal and
// failing clearly otherwise.
func resolveTarget(cfg *config.Config) (split, taskID string, err error) {
	split = cfg.CLIArgs.Split
	if split == "" {
		split, err = prompt("Enter which split you want to find the task in (training, evaluation, test): ")
		if err != nil {
			return "", "", errors.New("no split given: set --split or cli_args.split")
		}
	}
	taskID = cfg.CLIArgs.Task
	if taskID == "" && cfg.CLIArgs.Tasks != "" {
		taskID = strings.TrimSpace(strings.Split(cfg.CLIArgs.Tasks, ",")[0])
	}
	if taskID == "" {
		taskID, err = prompt("Enter which task you want to analyze (eg. 272f95fa): ")
		if err != nil {
			return "", "", errors.New("no task given: set --task or cli_args.task")
		}
	}
	return split, taskID, nil
}

// prompt reads one line interactively. It refuses when stdin is not a
// terminal, so scripted runs fail fast instead of hanging.
func prompt(question string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("stdin is not a terminal")
	}
	rl, err := readline.New(question)
	if err != nil {
		return "", err
	}
	defer rl.Close()
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty answer")
	}
	return line, nil
}

func modelConfig(m config.Model) model.Config {
	return model.Config{
		NLayers:      m.NLayers,
		ShareUpDim:   m.ShareUpDim,
		ShareDownDim: m.ShareDownDim,
		DecodingDim:  m.DecodingDim,
		SoftmaxDim:   m.SoftmaxDim,
		CummaxDim:    m.CummaxDim,
		ShiftDim:     m.ShiftDim,
		NonlinearDim: m.NonlinearDim,
	}
}

// runTask is the full per-task pipeline: train, persist, then analyze and
// render. It is the unit the batch driver isolates failures around.
func runTask(cfg *config.Config, split, taskID string, log *zap.Logger) error {
	dev, err := device.New(cfg.CLIArgs.Device, cfg.CLIArgs.Seed, log)
	if err != nil {
		return err
	}
	defer dev.Close()

	tk, err := task.Load(cfg.CLIArgs.DataDir, split, taskID)
	if err != nil {
		return err
	}

	folder := filepath.Join(cfg.CLIArgs.OutputDir, taskID)
	res, err := train.Run(tk, train.Config{
		Model:        modelConfig(cfg.Model),
		LR:           cfg.Optimizer.LR,
		Betas:        cfg.Optimizer.Betas,
		Iterations:   cfg.Training.NIterations,
		PlotInterval: cfg.Training.PlotInterval,
		OutDir:       folder,
		Verbose:      verbose,
	}, dev, log)
	if err != nil {
		return err
	}
	return analyzeArchive(cfg, tk, res.ArchivePath, folder, dev, log)
}

// analyzeArchive runs the post-training phase from the persisted archive
// alone, so the plots and components come from the same artifact a later
// rerun would read rather than from in-memory training state.
func analyzeArchive(cfg *config.Config, tk *task.Task, archivePath, folder string, dev *device.Context, log *zap.Logger) error {
	arch, err := archive.Load(archivePath)
	if err != nil {
		return err
	}
	smp, err := model.LoadSampler(arch)
	if err != nil {
		return err
	}
	keys, curves, err := arch.KLCurves()
	if err != nil {
		return err
	}
	recon, err := arch.ReconstructionCurve()
	if err != nil {
		return err
	}

	if err := viz.PlotKLCurves(
		filepath.Join(folder, tk.ID+"_KL_components.png"),
		keys, curves, viz.BuiltinOverrides(tk.ID)); err != nil {
		return err
	}
	if err := viz.PlotKLVsReconstruction(
		filepath.Join(folder, tk.ID+"_KL_vs_reconstruction.png"),
		curves, recon); err != nil {
		return err
	}

	mean, err := analysis.MeanRepresentation(smp, cfg.Analysis.NSamples, cfg.Analysis.Workers, dev)
	if err != nil {
		return err
	}

	pal := viz.PaletteFor(tk)
	klAmounts := smp.KLAmounts()
	for _, k := range analysis.Significant(klAmounts, cfg.Analysis.SignificanceThreshold) {
		if !analysis.Renderable(k) {
			log.Debug("skipping unrenderable key",
				zap.String("task", tk.ID), zap.String("key", k.String()))
			continue
		}
		comps, err := analysis.Components(mean[k])
		if errors.Is(err, analysis.ErrDegenerate) {
			// One flat key must not cost the task its other figures.
			log.Warn("skipping key with no variation",
				zap.String("task", tk.ID), zap.String("key", k.String()))
			continue
		}
		if err != nil {
			return fmt.Errorf("components of key %q: %w", k, err)
		}
		paths, err := viz.PlotComponents(folder, tk.ID, k, comps, pal)
		if err != nil {
			return err
		}
		log.Debug("rendered components",
			zap.String("task", tk.ID),
			zap.String("key", k.String()),
			zap.Int("count", len(paths)))
	}
	return nil
}
