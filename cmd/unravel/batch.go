package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openfluke/unravel/config"
	"github.com/openfluke/unravel/task"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run independent analyses over many tasks",
	Long: `Dispatches one full training-and-analysis run per task across a bounded
worker pool. Tasks come from a list file of split,taskid lines or from
explicit pairs. A failing task is reported and skipped; it never aborts its
siblings.

Example:
  unravel batch --input-file tasks.txt --workers 4`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().String("input-file", "", "file of split,taskid lines (# comments allowed)")
	batchCmd.Flags().String("pairs", "", "explicit comma-separated split:taskid pairs")
	batchCmd.Flags().Int("workers", runtime.GOMAXPROCS(0), "worker pool size")
	batchCmd.Flags().String("data-dir", "", "directory holding the dataset splits")
	batchCmd.Flags().String("output-dir", "", "directory to store output files")
	batchCmd.Flags().String("device", "", "compute device (cpu, gpu, gpu:N, auto)")
	batchCmd.Flags().Int64("seed", 0, "random seed (0 derives one from the clock)")
}

// taskRef names one run: a split plus a task id.
type taskRef struct {
	Split string
	Task  string
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	inputFile, _ := cmd.Flags().GetString("input-file")
	pairs, _ := cmd.Flags().GetString("pairs")
	var refs []taskRef
	switch {
	case inputFile != "":
		f, err := os.Open(inputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		refs = readTaskList(f.Name(), bufio.NewScanner(f), logger)
	case pairs != "":
		refs = parsePairs(pairs, logger)
	case cfg.CLIArgs.Split != "" && cfg.CLIArgs.Tasks != "":
		for _, id := range strings.Split(cfg.CLIArgs.Tasks, ",") {
			if id = strings.TrimSpace(id); id != "" {
				refs = append(refs, taskRef{Split: cfg.CLIArgs.Split, Task: id})
			}
		}
	default:
		return errors.New("no tasks given: set --input-file, --pairs, or cli_args.split and cli_args.tasks")
	}
	if len(refs) == 0 {
		return errors.New("task list is empty after skipping malformed entries")
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	logger.Info("starting batch", zap.Int("tasks", len(refs)), zap.Int("workers", workers))

	var failed atomic.Int64
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for _, ref := range refs {
		g.Go(func() error {
			if err := runTaskIsolated(cfg, ref); err != nil {
				logger.Error("task failed",
					zap.String("split", ref.Split),
					zap.String("task", ref.Task),
					zap.Error(err))
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d tasks failed", n, len(refs))
	}
	logger.Info("batch complete", zap.Int("tasks", len(refs)))
	return nil
}

// runTaskIsolated runs one task and converts panics into errors, so a bad
// task can never take the pool down with it.
func runTaskIsolated(cfg *config.Config, ref taskRef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return runTask(cfg, ref.Split, ref.Task, logger.With(zap.String("task", ref.Task)))
}

// readTaskList parses split,taskid lines. Blank lines and # comments are
// skipped silently; malformed lines and unknown splits are warned and
// skipped, never fatal.
func readTaskList(name string, sc *bufio.Scanner, log *zap.Logger) []taskRef {
	var refs []taskRef
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			log.Warn("skipping malformed task list line: expected split,taskid",
				zap.String("file", name), zap.Int("line", lineNo), zap.String("text", line))
			continue
		}
		ref := taskRef{
			Split: strings.ToLower(strings.TrimSpace(fields[0])),
			Task:  strings.TrimSpace(fields[1]),
		}
		if !knownSplit(ref.Split) {
			log.Warn("skipping task with unknown split",
				zap.String("split", ref.Split), zap.String("task", ref.Task),
				zap.Strings("valid", task.Splits))
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// parsePairs parses explicit split:taskid pairs, with the same
// warn-and-skip policy as the list file.
func parsePairs(pairs string, log *zap.Logger) []taskRef {
	var refs []taskRef
	for _, p := range strings.Split(pairs, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Split(p, ":")
		if len(fields) != 2 {
			log.Warn("skipping malformed pair: expected split:taskid", zap.String("pair", p))
			continue
		}
		ref := taskRef{
			Split: strings.ToLower(strings.TrimSpace(fields[0])),
			Task:  strings.TrimSpace(fields[1]),
		}
		if !knownSplit(ref.Split) {
			log.Warn("skipping pair with unknown split",
				zap.String("split", ref.Split), zap.String("task", ref.Task),
				zap.Strings("valid", task.Splits))
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func knownSplit(split string) bool {
	for _, s := range task.Splits {
		if s == split {
			return true
		}
	}
	return false
}
