package correlation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearson(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"perfect positive", []float64{1, 2, 3, 4, 5}, []float64{2, 4, 6, 8, 10}, 1},
		{"perfect negative", []float64{1, 2, 3, 4, 5}, []float64{10, 8, 6, 4, 2}, -1},
		{"partial", []float64{1, 2, 3, 4, 5}, []float64{2, 1, 4, 3, 5}, 0.8},
		{"zero variance", []float64{3, 3, 3}, []float64{1, 2, 3}, 0},
		{"both constant", []float64{3, 3, 3}, []float64{7, 7, 7}, 0},
		{"length mismatch", []float64{1, 2, 3}, []float64{1, 2}, 0},
		{"empty", []float64{}, []float64{}, 0},
		{"nil", nil, nil, 0},
		{"single sample", []float64{4}, []float64{9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pearson(tt.a, tt.b))
		})
	}
}

func TestPearson_Symmetric(t *testing.T) {
	sleep := []float64{7, 6.5, 6, 7.2, 6.8, 7, 7.1}
	steps := []float64{3000, 4000, 2000, 3500, 3000, 3200, 2900}
	stress := []float64{4, 5, 7, 3, 4, 4, 5}

	pairs := [][2][]float64{{sleep, steps}, {sleep, stress}, {steps, stress}}
	for _, p := range pairs {
		assert.Equal(t, Pearson(p[0], p[1]), Pearson(p[1], p[0]))
	}
}

func TestPearson_Rounded(t *testing.T) {
	r := Pearson([]float64{7, 6.5, 6, 7.2, 6.8, 7, 7.1}, []float64{4, 5, 7, 3, 4, 4, 5})
	assert.GreaterOrEqual(t, r, -1.0)
	assert.LessOrEqual(t, r, 1.0)
	assert.InDelta(t, math.Round(r*100)/100, r, 1e-12, "expected at most 2 decimal places")
}

func TestBuildMatrix(t *testing.T) {
	m := BuildMatrix(
		[][]float64{{1, 2, 3, 4, 5}, {2, 4, 6, 8, 10}, {10, 8, 6, 4, 2}},
		[]string{"sleep", "steps", "stress"},
	)

	require.Len(t, m.Values, 3)
	assert.Equal(t, []string{"sleep", "steps", "stress"}, m.Metrics)
	for i := range m.Values {
		require.Len(t, m.Values[i], 3)
		assert.Equal(t, 1.0, m.Values[i][i])
	}
	assert.Equal(t, 1.0, m.Values[0][1])
	assert.Equal(t, -1.0, m.Values[0][2])
	assert.Equal(t, m.Values[0][2], m.Values[2][0])
	assert.Equal(t, m.Values[1][2], m.Values[2][1])

	v, ok := m.Get("stress", "steps")
	require.True(t, ok)
	assert.Equal(t, -1.0, v)

	_, ok = m.Get("stress", "hydration")
	assert.False(t, ok)
}

func TestBuildMatrix_DiagonalForcedForSingleSample(t *testing.T) {
	m := BuildMatrix([][]float64{{5}, {7}}, []string{"a", "b"})
	assert.Equal(t, 1.0, m.Values[0][0])
	assert.Equal(t, 1.0, m.Values[1][1])
	assert.Equal(t, 0.0, m.Values[0][1])
}

func TestBuildMatrix_DiagonalForcedForEmptyAndConstant(t *testing.T) {
	m := BuildMatrix([][]float64{{}, {3, 3, 3}}, []string{"empty", "flat"})
	assert.Equal(t, 1.0, m.Values[0][0])
	assert.Equal(t, 1.0, m.Values[1][1])
	assert.Equal(t, 0.0, m.Values[0][1])
}

func TestBuildMatrix_NamePadding(t *testing.T) {
	m := BuildMatrix([][]float64{{1, 2}, {2, 1}}, []string{"only"})
	assert.Equal(t, []string{"only", "series_1"}, m.Metrics)

	empty := BuildMatrix(nil, nil)
	assert.Empty(t, empty.Metrics)
	assert.Empty(t, empty.Values)
}

func TestBuildMatrixFromMap_SortsNames(t *testing.T) {
	m := BuildMatrixFromMap(map[string][]float64{
		"steps": {1, 2, 3},
		"sleep": {3, 2, 1},
	})
	assert.Equal(t, []string{"sleep", "steps"}, m.Metrics)
	assert.Equal(t, -1.0, m.Values[0][1])
}

func TestStrongestPairs(t *testing.T) {
	m := &Matrix{
		Metrics: []string{"a", "b", "c", "d"},
		Values: [][]float64{
			{1, 0.4, -0.9, 0.1},
			{0.4, 1, 0.7, -0.35},
			{-0.9, 0.7, 1, 0},
			{0.1, -0.35, 0, 1},
		},
	}

	assert.Len(t, m.Pairs(), 6)

	got := m.StrongestPairs(0.3, 3)
	require.Len(t, got, 3)
	assert.Equal(t, Pair{A: "a", B: "c", Value: -0.9}, got[0])
	assert.Equal(t, Pair{A: "b", B: "c", Value: 0.7}, got[1])
	assert.Equal(t, Pair{A: "a", B: "b", Value: 0.4}, got[2])

	assert.Len(t, m.StrongestPairs(0.3, 0), 4)
}

func TestInsight_BandOrder(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{0.95, "Sleep and Mood are strongly correlated: they tend to rise and fall together."},
		{0.61, "Sleep and Mood are strongly correlated: they tend to rise and fall together."},
		{0.6, "Sleep and Mood show a mild correlation."},
		{0.31, "Sleep and Mood show a mild correlation."},
		{0.3, "Sleep and Mood are mostly independent."},
		{0, "Sleep and Mood are mostly independent."},
		{-0.3, "Sleep and Mood are mostly independent."},
		{-0.31, "Sleep and Mood show a mild negative correlation."},
		{-0.6, "Sleep and Mood show a mild negative correlation."},
		{-0.61, "Sleep increases as Mood decreases."},
		{-1, "Sleep increases as Mood decreases."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Insight("Sleep", "Mood", tt.value), "value %.2f", tt.value)
	}
}

func TestPairInsight(t *testing.T) {
	got := PairInsight(Pair{A: "Stress", B: "Sleep", Value: -0.8})
	assert.Equal(t, "Stress increases as Sleep decreases.", got)
}
