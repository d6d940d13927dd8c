package anomaly

// Package anomaly flags outlier samples in daily health metric series.
//
// Two independent strategies run over the same series:
//
//   1. Global z-score
//      - Population mean and standard deviation over the whole series
//      - z = (value - mean) / stddev, or 0 when stddev is 0
//      - Flag when |z| > threshold (default 2.5)
//
//   2. Rolling window z-score
//      - Baseline is the `window` samples immediately before index i
//      - Sample i is not part of its own baseline
//      - Flag when |z| > threshold (default 2.0, window 7)
//
// Both strategies return only flagged samples, in series order, carrying the
// original series index. Neither ever fails: empty input, zero variance and
// series shorter than the window all produce empty results.

const (
	DefaultZThreshold       = 2.5
	DefaultRollingWindow    = 7
	DefaultRollingThreshold = 2.0
)

// ZScoreAnomaly is a sample flagged by the whole-series z-score check.
type ZScoreAnomaly struct {
	Index     int     `json:"index"`
	Value     float64 `json:"value"`
	ZScore    float64 `json:"zScore"` // rounded to 3 dp
	IsAnomaly bool    `json:"isAnomaly"`
}

// RollingAnomaly is a sample flagged against its trailing window.
type RollingAnomaly struct {
	Index      int     `json:"index"`
	Value      float64 `json:"value"`
	WindowMean float64 `json:"windowMean"` // rounded to 2 dp
	ZScore     float64 `json:"zScore"`     // rounded to 2 dp
	Severity   float64 `json:"severity"`   // |z|, unrounded
}

// Report holds both detector outputs for one metric.
type Report struct {
	ZAnomalies       []ZScoreAnomaly  `json:"zAnomalies"`
	RollingAnomalies []RollingAnomaly `json:"rollingAnomalies"`
}

// Total returns the number of flagged samples across both strategies.
func (r Report) Total() int {
	return len(r.ZAnomalies) + len(r.RollingAnomalies)
}

// Options carries the recognised detector parameters.
type Options struct {
	ZThreshold       float64 `json:"threshold"`
	RollingWindow    int     `json:"window"`
	RollingThreshold float64 `json:"rolling_threshold"`
}

// DefaultOptions returns the detector defaults.
func DefaultOptions() Options {
	return Options{
		ZThreshold:       DefaultZThreshold,
		RollingWindow:    DefaultRollingWindow,
		RollingThreshold: DefaultRollingThreshold,
	}
}
