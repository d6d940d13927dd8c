package forecasting

import (
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/stats"
)

// MovingAverage returns the sliding arithmetic mean over windows of the given size.
func MovingAverage(series []float64, window int) []float64 {
	if window < 1 || len(series) < window {
		return []float64{}
	}
	out := make([]float64, 0, len(series)-window+1)
	for i := 0; i+window <= len(series); i++ {
		out = append(out, stats.Mean(series[i:i+window]))
	}
	return out
}

// ExponentialSmoothing returns the recursively smoothed series.
func ExponentialSmoothing(series []float64, alpha float64) []float64 {
	if len(series) == 0 {
		return []float64{}
	}
	smoothed := make([]float64, len(series))
	smoothed[0] = series[0]
	for i := 1; i < len(series); i++ {
		smoothed[i] = alpha*series[i] + (1-alpha)*smoothed[i-1]
	}
	return smoothed
}

// Blend averages the default moving average and exponential smoothing.
func Blend(series []float64) []float64 {
	return BlendWithOptions(series, DefaultOptions())
}

// BlendWithOptions averages ma[i] and es[i] for every i both outputs share.
func BlendWithOptions(series []float64, opts Options) []float64 {
	ma := MovingAverage(series, opts.Window)
	es := ExponentialSmoothing(series, opts.Alpha)

	n := len(ma)
	if len(es) < n {
		n = len(es)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = (ma[i] + es[i]) / 2
	}
	return out
}

// TrendDirection compares the last sample to the first with a ±5% band.
func TrendDirection(series []float64) Direction {
	if len(series) < 2 {
		return DirectionStable
	}
	first, last := series[0], series[len(series)-1]
	if last > first*1.05 {
		return DirectionUp
	}
	if last < first*0.95 {
		return DirectionDown
	}
	return DirectionStable
}

// Predict builds a forecast with default parameters. confidence is passed
// through unchanged.
func Predict(series []float64, confidence float64) Result {
	return PredictWithOptions(series, confidence, DefaultOptions())
}

// PredictWithOptions builds a forecast with explicit window and alpha.
func PredictWithOptions(series []float64, confidence float64, opts Options) Result {
	return Result{
		Forecast:       BlendWithOptions(series, opts),
		TrendDirection: TrendDirection(series),
		Confidence:     confidence,
	}
}
