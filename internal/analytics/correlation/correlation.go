// Package correlation computes pairwise linear correlation between daily
// health metric series and renders qualitative insights for the values.
package correlation

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics/stats"
)

// Pearson returns the Pearson correlation coefficient of a and b rounded to
// 2 decimal places. Mismatched lengths, empty input and zero variance all
// yield 0.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return stats.Round(r, 2)
}

// Matrix is a square correlation matrix over an ordered list of metrics.
type Matrix struct {
	Metrics []string    `json:"metrics"`
	Values  [][]float64 `json:"values"`
}

// Pair is one off-diagonal cell of a Matrix.
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Value float64 `json:"value"`
}

// BuildMatrix correlates every pair of series. The diagonal is fixed at 1.0
// and never computed, even for single-sample series. Names missing from the
// names slice are filled as "series_<i>".
func BuildMatrix(seriesList [][]float64, names []string) *Matrix {
	n := len(seriesList)
	m := &Matrix{
		Metrics: make([]string, n),
		Values:  make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		if i < len(names) {
			m.Metrics[i] = names[i]
		} else {
			m.Metrics[i] = fmt.Sprintf("series_%d", i)
		}
		m.Values[i] = make([]float64, n)
		m.Values[i][i] = 1.0
	}

	// Pearson is symmetric, so only the upper triangle is computed.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := Pearson(seriesList[i], seriesList[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

// BuildMatrixFromMap correlates a map of series, ordering metrics by name.
func BuildMatrixFromMap(seriesByMetric map[string][]float64) *Matrix {
	names := make([]string, 0, len(seriesByMetric))
	for name := range seriesByMetric {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([][]float64, len(names))
	for i, name := range names {
		list[i] = seriesByMetric[name]
	}
	return BuildMatrix(list, names)
}

// Get returns the cell for two metric names.
func (m *Matrix) Get(a, b string) (float64, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

func (m *Matrix) index(name string) int {
	for i, n := range m.Metrics {
		if n == name {
			return i
		}
	}
	return -1
}

// Pairs returns the upper-triangle cells in row order.
func (m *Matrix) Pairs() []Pair {
	var pairs []Pair
	for i := range m.Metrics {
		for j := i + 1; j < len(m.Metrics); j++ {
			pairs = append(pairs, Pair{A: m.Metrics[i], B: m.Metrics[j], Value: m.Values[i][j]})
		}
	}
	return pairs
}

// StrongestPairs returns pairs with |value| > minAbs ordered by |value|
// descending, at most limit of them (limit <= 0 means no limit).
func (m *Matrix) StrongestPairs(minAbs float64, limit int) []Pair {
	var out []Pair
	for _, p := range m.Pairs() {
		if math.Abs(p.Value) > minAbs {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
