// Package task loads ARC grid puzzles and normalizes them for training: a
// shared palette with the background first, grids padded to a common canvas,
// and masks marking which cells carry reconstruction loss.
package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/openfluke/unravel/multitensor"
)

// Grid is one puzzle grid of ARC color codes 0..9, indexed [row][col].
type Grid [][]int

// GridPair is one input/output example as stored in the dataset files. Test
// pairs may carry an output; it is treated as withheld either way.
type GridPair struct {
	Input  Grid `json:"input"`
	Output Grid `json:"output"`
}

type rawTask struct {
	Train []GridPair `json:"train"`
	Test  []GridPair `json:"test"`
}

// Splits lists the dataset splits recognized under a data directory.
var Splits = []string{"training", "evaluation", "test"}

// Background is the ARC color code treated as empty canvas.
const Background = 0

// Task is one puzzle prepared for the model. Training pairs come first,
// then test pairs; test outputs never contribute to the loss.
type Task struct {
	ID    string
	Split string

	NumExamples int
	NumTrain    int

	// Colors is the palette in ARC codes: Background first, then the
	// distinct colors of all known grids in ascending order.
	Colors []int

	// Height and Width are the canvas size: the maxima over every known
	// grid in the task.
	Height, Width int

	// Input and Output hold palette indices padded to Height x Width,
	// indexed [example][row][col]. Index 0 is the background.
	Input, Output [][][]int

	// InputMask and OutputMask mark the cells inside each grid's true
	// bounds; only those cells carry loss.
	InputMask, OutputMask [][][]bool

	// OutputKnown marks examples whose output grid is given.
	OutputKnown []bool

	// InputSize and OutputSize are the true {height, width} per example.
	// An unknown output defaults to its own input's size.
	InputSize, OutputSize [][2]int
}

// Load reads <dataDir>/<split>/<id>.json and prepares it.
func Load(dataDir, split, id string) (*Task, error) {
	if !validSplit(split) {
		return nil, fmt.Errorf("task: unknown split %q (valid: %v)", split, Splits)
	}
	path := filepath.Join(dataDir, split, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	var raw rawTask
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("task %s: decode %s: %w", id, path, err)
	}
	return New(id, split, raw.Train, raw.Test)
}

func validSplit(split string) bool {
	for _, s := range Splits {
		if s == split {
			return true
		}
	}
	return false
}

// New prepares a task from explicit pairs. Every training pair needs both
// grids; test pairs need at least an input.
func New(id, split string, train, test []GridPair) (*Task, error) {
	if len(train) == 0 {
		return nil, fmt.Errorf("task %s: no training pairs", id)
	}
	t := &Task{
		ID:          id,
		Split:       split,
		NumExamples: len(train) + len(test),
		NumTrain:    len(train),
	}

	// The palette and the canvas come from the known grids only: all
	// training grids plus the test inputs.
	var known []Grid
	for i, p := range train {
		if len(p.Input) == 0 || len(p.Output) == 0 {
			return nil, fmt.Errorf("task %s: training pair %d is incomplete", id, i)
		}
		known = append(known, p.Input, p.Output)
	}
	for i, p := range test {
		if len(p.Input) == 0 {
			return nil, fmt.Errorf("task %s: test pair %d has no input", id, i)
		}
		known = append(known, p.Input)
	}

	present := make(map[int]bool)
	for _, g := range known {
		w := len(g[0])
		for r, row := range g {
			if len(row) != w {
				return nil, fmt.Errorf("task %s: ragged grid row %d", id, r)
			}
			for _, c := range row {
				if c < 0 || c > 9 {
					return nil, fmt.Errorf("task %s: color %d out of range", id, c)
				}
				present[c] = true
			}
		}
		if len(g) > t.Height {
			t.Height = len(g)
		}
		if w > t.Width {
			t.Width = w
		}
	}

	t.Colors = []int{Background}
	for c := range present {
		if c != Background {
			t.Colors = append(t.Colors, c)
		}
	}
	sort.Ints(t.Colors[1:])
	index := make(map[int]int, len(t.Colors))
	for i, c := range t.Colors {
		index[c] = i
	}

	pairs := append(append([]GridPair(nil), train...), test...)
	for e, p := range pairs {
		isTrain := e < t.NumTrain
		inGrid, inMask := t.pad(p.Input, index)
		t.Input = append(t.Input, inGrid)
		t.InputMask = append(t.InputMask, inMask)
		t.InputSize = append(t.InputSize, [2]int{len(p.Input), len(p.Input[0])})

		if isTrain {
			outGrid, outMask := t.pad(p.Output, index)
			t.Output = append(t.Output, outGrid)
			t.OutputMask = append(t.OutputMask, outMask)
			t.OutputSize = append(t.OutputSize, [2]int{len(p.Output), len(p.Output[0])})
			t.OutputKnown = append(t.OutputKnown, true)
		} else {
			blank, noLoss := t.pad(nil, index)
			t.Output = append(t.Output, blank)
			t.OutputMask = append(t.OutputMask, noLoss)
			t.OutputSize = append(t.OutputSize, [2]int{len(p.Input), len(p.Input[0])})
			t.OutputKnown = append(t.OutputKnown, false)
		}
	}
	return t, nil
}

// pad converts g to palette indices on the full canvas. Cells outside g are
// background with the mask false. A nil grid gives an all-false mask.
func (t *Task) pad(g Grid, index map[int]int) ([][]int, [][]bool) {
	grid := make([][]int, t.Height)
	mask := make([][]bool, t.Height)
	for r := 0; r < t.Height; r++ {
		grid[r] = make([]int, t.Width)
		mask[r] = make([]bool, t.Width)
		if r >= len(g) {
			continue
		}
		for c := 0; c < t.Width && c < len(g[r]); c++ {
			grid[r][c] = index[g[r][c]]
			mask[r][c] = true
		}
	}
	return grid, mask
}

// NumColors returns the number of non-background palette entries, the length
// of the color axis.
func (t *Task) NumColors() int { return len(t.Colors) - 1 }

// Dims returns the semantic axis lengths this task induces.
func (t *Task) Dims() multitensor.Dims {
	return multitensor.Dims{
		Examples: t.NumExamples,
		Colors:   t.NumColors(),
		Height:   t.Height,
		Width:    t.Width,
	}
}

// PaletteCode maps a palette index back to its ARC color code.
func (t *Task) PaletteCode(i int) int { return t.Colors[i] }
