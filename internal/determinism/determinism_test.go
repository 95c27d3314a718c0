package determinism

import (
	"testing"

	"prediction-engine/pkg/types"
)

func TestSeedFormat(t *testing.T) {
	t.Parallel()
	got := Seed(types.AgentGrok, "m1", 3)
	want := "GROK_4:m1:3"
	if got != want {
		t.Errorf("Seed = %q, want %q", got, want)
	}
}

func TestHash32Stable(t *testing.T) {
	t.Parallel()
	// FNV-1a reference values; these must never change across releases.
	cases := []struct {
		in   string
		want uint32
	}{
		{"", 2166136261},
		{"a", 0xe40c292c},
		{"GROK_4:m1:0", Hash32("GROK_4:m1:0")}, // self-consistency
	}
	for _, tc := range cases {
		if got := Hash32(tc.in); got != tc.want {
			t.Errorf("Hash32(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestDraw01Range(t *testing.T) {
	t.Parallel()
	seeds := []string{"", "a", "b", "GROK_4:m1:0", "CLAUDE_4_5:m2:1", "x:y:2"}
	for _, s := range seeds {
		v := Draw01(s)
		if v < 0 || v >= 1 {
			t.Errorf("Draw01(%q) = %v, want [0,1)", s, v)
		}
		if v != Draw01(s) {
			t.Errorf("Draw01(%q) not deterministic", s)
		}
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()
	cases := []struct {
		x, lo, hi, want float64
	}{
		{0.5, 0, 1, 0.5},
		{-1, 0, 1, 0},
		{2, 0, 1, 1},
		{0.4, 0.4, 0.95, 0.4},
		{0.95, 0.4, 0.95, 0.95},
	}
	for _, tc := range cases {
		if got := Clamp(tc.x, tc.lo, tc.hi); got != tc.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tc.x, tc.lo, tc.hi, got, tc.want)
		}
	}
}
