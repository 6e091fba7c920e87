package reward

import (
	"testing"

	"coinline/internal/config"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		d, b, m float64
		want    int64
	}{
		{3, 10, 1.5, 45},
		{1, 1, 0.5, 1},
		{1, 1, 2.5, 3},
		{0.1, 10, 1, 1},
		{2, 10, 1.24, 25},
		{1, 0, 1.5, 0},
		{-1, 1, 0.5, -1},
	}
	for _, tc := range cases {
		if got := Calculate(tc.d, tc.b, tc.m); got != tc.want {
			t.Errorf("Calculate(%v,%v,%v)=%d want %d", tc.d, tc.b, tc.m, got, tc.want)
		}
	}
}

func TestForTaskUsesGivenConstants(t *testing.T) {
	r := config.Rewards{CompletionBase: 10, ComplexityMultiplier: 1.5}
	if got := ForTask(r, 3); got != 45 {
		t.Fatalf("expected 45, got %d", got)
	}
	r.ComplexityMultiplier = 2
	if got := ForTask(r, 3); got != 60 {
		t.Fatalf("expected 60 after config change, got %d", got)
	}
}
