package anomaly

import (
	"math"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics/stats"
)

// DetectGlobal flags samples whose whole-series z-score exceeds threshold.
func DetectGlobal(series []float64, threshold float64) []ZScoreAnomaly {
	anomalies := make([]ZScoreAnomaly, 0)
	if len(series) == 0 {
		return anomalies
	}

	mean, stdDev := stats.MeanStdDev(series)
	for i, v := range series {
		z := stats.ZScore(v, mean, stdDev)
		if math.Abs(z) > threshold {
			anomalies = append(anomalies, ZScoreAnomaly{
				Index:     i,
				Value:     v,
				ZScore:    stats.Round(z, 3),
				IsAnomaly: true,
			})
		}
	}
	return anomalies
}

// DetectRolling flags samples that deviate from the window samples preceding them.
func DetectRolling(series []float64, window int, threshold float64) []RollingAnomaly {
	anomalies := make([]RollingAnomaly, 0)
	if window < 1 || len(series) < window+1 {
		return anomalies
	}

	for i := window; i < len(series); i++ {
		mean, stdDev := stats.MeanStdDev(series[i-window : i])
		z := stats.ZScore(series[i], mean, stdDev)
		if math.Abs(z) > threshold {
			anomalies = append(anomalies, RollingAnomaly{
				Index:      i,
				Value:      series[i],
				WindowMean: stats.Round(mean, 2),
				ZScore:     stats.Round(z, 2),
				Severity:   math.Abs(z),
			})
		}
	}
	return anomalies
}

// DetectAll runs both detectors with default parameters on every metric.
func DetectAll(seriesByMetric map[string][]float64) map[string]Report {
	return DetectAllWithOptions(seriesByMetric, DefaultOptions())
}

// DetectAllWithOptions runs both detectors with explicit parameters.
func DetectAllWithOptions(seriesByMetric map[string][]float64, opts Options) map[string]Report {
	reports := make(map[string]Report, len(seriesByMetric))
	for name, s := range seriesByMetric {
		reports[name] = Report{
			ZAnomalies:       DetectGlobal(s, opts.ZThreshold),
			RollingAnomalies: DetectRolling(s, opts.RollingWindow, opts.RollingThreshold),
		}
	}
	return reports
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// SeverityLevel buckets a rolling severity relative to the threshold that
// flagged it.
func SeverityLevel(severity, threshold float64) string {
	if threshold <= 0 {
		threshold = DefaultRollingThreshold
	}
	ratio := severity / threshold
	if ratio > 2.5 {
		return "critical"
	} else if ratio > 1.75 {
		return "high"
	} else if ratio > 1.25 {
		return "medium"
	}
	return "low"
}
