package stats

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{4}, 4},
		{"ramp", []float64{1, 2, 3, 4, 5}, 3},
		{"negative", []float64{-2, 2, -4, 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.values); got != tt.want {
				t.Errorf("Mean(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestMeanStdDev_Population(t *testing.T) {
	// [2,4,4,4,5,5,7,9]: mean 5, population std 2 (sample std would be ~2.14)
	mean, std := MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("expected mean 5, got %v", mean)
	}
	if std != 2 {
		t.Errorf("expected population std 2, got %v", std)
	}

	mean, std = MeanStdDev(nil)
	if mean != 0 || std != 0 {
		t.Errorf("expected zeros for empty input, got %v %v", mean, std)
	}
}

func TestZScore_ZeroStdDev(t *testing.T) {
	if z := ZScore(10, 3, 0); z != 0 {
		t.Errorf("expected 0 for zero std, got %v", z)
	}
	if z := ZScore(10, 3, math.NaN()); z != 0 {
		t.Errorf("expected 0 for NaN std, got %v", z)
	}
	if z := ZScore(9, 5, 2); z != 2 {
		t.Errorf("expected 2, got %v", z)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		x      float64
		places int
		want   float64
	}{
		{1.23456, 2, 1.23},
		{-0.456, 2, -0.46},
		{2.5, 0, 3},
		{18.1, 1, 18.1},
	}
	for _, tt := range tests {
		if got := Round(tt.x, tt.places); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.x, tt.places, got, tt.want)
		}
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.42: 0.42, 1: 1, 3.7: 1}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Errorf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
	if got := Clamp01(math.NaN()); got != 0 {
		t.Errorf("Clamp01(NaN) = %v, want 0", got)
	}
}
