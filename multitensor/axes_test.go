package multitensor

import (
	"strings"
	"testing"
)

func TestAxisNamesCanonicalOrder(t *testing.T) {
	k := MakeKey(true, false, true, false, true)
	got := k.AxisNames()
	want := []string{"example", "direction", "width"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d names, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %q at position %d, got %q", want[i], i, got[i])
		}
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	seen := make(map[string]bool)
	for _, k := range AllKeys() {
		s := k.String()
		if seen[s] {
			t.Fatalf("Expected distinct strings per key, got %q twice", s)
		}
		seen[s] = true
		back, err := ParseKey(s)
		if err != nil {
			t.Fatalf("Expected %q to parse, got %v", s, err)
		}
		if back != k {
			t.Errorf("Expected %v back from %q, got %v", k, s, back)
		}
	}
	if len(seen) != 32 {
		t.Errorf("Expected 32 distinct key strings, got %d", len(seen))
	}
}

func TestParseKeyRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"colour",
		"height_example",
		"color_color",
		"example_",
		"_example",
		"example__height",
	} {
		if _, err := ParseKey(s); err == nil {
			t.Errorf("Expected %q to be rejected", s)
		}
	}
}

func TestParseKeyEmptyIsScalarKey(t *testing.T) {
	k, err := ParseKey("")
	if err != nil {
		t.Fatalf("Expected the empty string to parse, got %v", err)
	}
	if k.Rank() != 0 {
		t.Errorf("Expected rank 0, got %d", k.Rank())
	}
}

func TestAllKeysOrder(t *testing.T) {
	keys := AllKeys()
	if len(keys) != 32 {
		t.Fatalf("Expected 32 keys, got %d", len(keys))
	}
	if keys[0].Rank() != 0 {
		t.Errorf("Expected the axis-free key first, got %q", keys[0])
	}
	if keys[1] != MakeKey(false, false, false, false, true) {
		t.Errorf("Expected the width key second, got %q", keys[1])
	}
	// The example axis is the most significant bit, so the upper half of the
	// enumeration is exactly the example-carrying keys.
	for i, k := range keys {
		if k.Has(AxisExample) != (i >= 16) {
			t.Errorf("Expected example presence to split the order at 16, key %d is %q", i, k)
		}
	}
	if keys[31].Rank() != NumAxes {
		t.Errorf("Expected the all-axes key last, got %q", keys[31])
	}
}

func TestSubset(t *testing.T) {
	sub := MakeKey(false, false, false, true, false)
	sup := MakeKey(true, false, false, true, true)
	if !sub.Subset(sup) {
		t.Error("Expected height ⊆ example_height_width")
	}
	if sup.Subset(sub) {
		t.Error("Expected example_height_width ⊄ height")
	}
	if !sub.Subset(sub) {
		t.Error("Expected a key to be a subset of itself")
	}
}

func TestKeyStringHasNoSpaces(t *testing.T) {
	for _, k := range AllKeys() {
		if strings.ContainsAny(k.String(), " \t") {
			t.Errorf("Expected no whitespace in %q", k)
		}
	}
}
