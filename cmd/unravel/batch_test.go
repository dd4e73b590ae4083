package main

import (
	"bufio"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func scan(s string) *bufio.Scanner { return bufio.NewScanner(strings.NewReader(s)) }

func TestReadTaskListSkipsMalformedLines(t *testing.T) {
	list := `# reference tasks
training,272f95fa

evaluation , 6cdd2623
banana,deadbeef
training,too,many,fields
just-one-field
TEST,41e4d17e
`
	refs := readTaskList("tasks.txt", scan(list), zap.NewNop())
	want := []taskRef{
		{Split: "training", Task: "272f95fa"},
		{Split: "evaluation", Task: "6cdd2623"},
		{Split: "test", Task: "41e4d17e"},
	}
	if len(refs) != len(want) {
		t.Fatalf("Expected %d tasks, got %d: %v", len(want), len(refs), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, want[i], refs[i])
		}
	}
}

func TestParsePairs(t *testing.T) {
	refs := parsePairs("training:a1, test:b2 ,nope,evaluation:c3", zap.NewNop())
	want := []taskRef{
		{Split: "training", Task: "a1"},
		{Split: "test", Task: "b2"},
		{Split: "evaluation", Task: "c3"},
	}
	if len(refs) != len(want) {
		t.Fatalf("Expected %d pairs, got %d: %v", len(want), len(refs), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("Pair %d: expected %+v, got %+v", i, want[i], refs[i])
		}
	}
}
