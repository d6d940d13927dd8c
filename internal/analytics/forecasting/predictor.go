package forecasting

// Package forecasting produces short-term forecasts for daily health metrics.
//
// Forecast Model:
//
//   1. Moving Average
//      - Arithmetic mean over contiguous windows (default 3)
//      - Output has n - window + 1 points; output[0] covers series[0:window]
//
//   2. Exponential Smoothing
//      - s[0] = x[0], s[i] = alpha*x[i] + (1-alpha)*s[i-1] (default alpha 0.3)
//
//   3. Blend
//      - Pointwise average of the two, truncated to the shorter output
//      - Index i of the blend pairs ma[i] with es[i]; the two are not aligned
//        to original series positions
//
// Trend Direction:
//   - Compares only the first and last samples
//   - up when last > first*1.05, down when last < first*0.95, else stable
//
// Confidence:
//   - A fixed constant per metric type supplied by the caller
//   - Not derived from residuals or fit quality

// Direction is the coarse trend classification of a series.
type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStable Direction = "stable"
)

const (
	DefaultWindow = 3
	DefaultAlpha  = 0.3
)

// Per-metric forecast confidence constants.
const (
	ConfidenceSleep     = 0.85
	ConfidenceHydration = 0.78
	ConfidenceStress    = 0.72
)

// Result is a forecast for one metric.
type Result struct {
	Forecast       []float64 `json:"forecastSeries"`
	TrendDirection Direction `json:"trendDirection"`
	Confidence     float64   `json:"confidence"`
}

// Options carries the recognised forecaster parameters.
type Options struct {
	Window int     `json:"window"`
	Alpha  float64 `json:"alpha"`
}

// DefaultOptions returns the forecaster defaults.
func DefaultOptions() Options {
	return Options{Window: DefaultWindow, Alpha: DefaultAlpha}
}
