package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/correlation"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/forecasting"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/risk"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/stats"
)

// Package analytics composes the per-metric engines into a single report
// for one user.
//
// The engines are pure functions over float64 slices. Engine only wires
// them together:
//
//   1. Summaries: count, mean, std dev, min, max, p50, p95, latest
//   2. Anomalies: global z-score and rolling-window detection per metric
//   3. Correlations: Pearson matrix over metric names in sorted order,
//      plus one insight line per strong pair
//   4. Forecasts: blended moving average / exponential smoothing, with a
//      fixed confidence per metric
//   5. Risk: stress, fatigue and dehydration bands for the metrics present
//
// Nothing is learned or retained between calls; every report is recomputed
// from the series passed in.

// Canonical metric names.
const (
	MetricStress    = "stress"
	MetricSleep     = "sleep"
	MetricSteps     = "steps"
	MetricHydration = "hydration"
	MetricHeartRate = "heart_rate"
)

var metricAliases = map[string]string{
	"stress":       MetricStress,
	"stress_level": MetricStress,
	"sleep":        MetricSleep,
	"sleep_hours":  MetricSleep,
	"steps":        MetricSteps,
	"hydration":    MetricHydration,
	"water_liters": MetricHydration,
	"heart_rate":   MetricHeartRate,
}

var metricLabels = map[string]string{
	MetricStress:    "Stress",
	MetricSleep:     "Sleep",
	MetricSteps:     "Steps",
	MetricHydration: "Hydration",
	MetricHeartRate: "Heart rate",
}

// CanonicalMetric maps a metric name or alias to its canonical form.
// Unknown names are lower-cased and returned as-is.
func CanonicalMetric(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if c, ok := metricAliases[n]; ok {
		return c
	}
	return n
}

// MetricLabel returns a human-readable label for a metric.
func MetricLabel(name string) string {
	c := CanonicalMetric(name)
	if l, ok := metricLabels[c]; ok {
		return l
	}
	l := strings.ReplaceAll(c, "_", " ")
	if l == "" {
		return l
	}
	return strings.ToUpper(l[:1]) + l[1:]
}

// Summary holds descriptive statistics for one metric series.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
	Latest float64 `json:"latest"`
}

// Report is the combined analysis for one user.
type Report struct {
	ID           string                            `json:"id"`
	UserID       string                            `json:"user_id"`
	GeneratedAt  time.Time                         `json:"generated_at"`
	// AsOf is the UTC day of the last sample in every series. It defaults
	// to the generation day; callers loading a stored window override it.
	AsOf         time.Time                         `json:"as_of"`
	Summaries    map[string]Summary                `json:"summaries"`
	Anomalies    map[string]anomaly.Report         `json:"anomalies"`
	Correlations *correlation.Matrix               `json:"correlations"`
	Insights     []string                          `json:"insights"`
	Forecasts    map[string]forecasting.Result     `json:"forecasts"`
	Risks        map[risk.Kind]risk.Classification `json:"risks"`
	Series       map[string][]float64              `json:"-"`
}

// Options configures an Engine.
type Options struct {
	Anomaly  anomaly.Options
	Forecast forecasting.Options

	// Confidence maps canonical metric names to forecast confidence.
	Confidence        map[string]float64
	DefaultConfidence float64

	InsightThreshold float64
	MaxInsights      int
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		Anomaly:  anomaly.DefaultOptions(),
		Forecast: forecasting.DefaultOptions(),
		Confidence: map[string]float64{
			MetricSleep:     forecasting.ConfidenceSleep,
			MetricHydration: forecasting.ConfidenceHydration,
			MetricStress:    forecasting.ConfidenceStress,
		},
		DefaultConfidence: 0.75,
		InsightThreshold:  0.3,
		MaxInsights:       5,
	}
}

// Engine is the analytics engine
type Engine struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a new analytics engine. A nil logger is replaced with a no-op.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger, now: time.Now}
}

// Options returns the options the engine was built with.
func (e *Engine) Options() Options {
	return e.opts
}

// ConfidenceFor returns the forecast confidence for a metric.
func (e *Engine) ConfidenceFor(metric string) float64 {
	if c, ok := e.opts.Confidence[CanonicalMetric(metric)]; ok {
		return c
	}
	return e.opts.DefaultConfidence
}

// Normalize canonicalises metric names. When two aliases collide the
// lexically first input name wins.
func Normalize(seriesByMetric map[string][]float64) map[string][]float64 {
	names := make([]string, 0, len(seriesByMetric))
	for name := range seriesByMetric {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string][]float64, len(seriesByMetric))
	for _, name := range names {
		c := CanonicalMetric(name)
		if c == "" {
			continue
		}
		if _, exists := out[c]; exists {
			continue
		}
		out[c] = seriesByMetric[name]
	}
	return out
}

// Summarize computes descriptive statistics for a series.
func Summarize(series []float64) Summary {
	if len(series) == 0 {
		return Summary{}
	}
	mean, std := stats.MeanStdDev(series)

	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	return Summary{
		Count:  len(series),
		Mean:   stats.Round(mean, 2),
		StdDev: stats.Round(std, 2),
		Min:    floats.Min(series),
		Max:    floats.Max(series),
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Latest: series[len(series)-1],
	}
}

// DetectAnomalies runs both detectors over every metric.
func (e *Engine) DetectAnomalies(seriesByMetric map[string][]float64) map[string]anomaly.Report {
	return anomaly.DetectAllWithOptions(seriesByMetric, e.opts.Anomaly)
}

// Forecast builds a forecast for one metric using its confidence constant.
func (e *Engine) Forecast(metric string, series []float64) forecasting.Result {
	return forecasting.PredictWithOptions(series, e.ConfidenceFor(metric), e.opts.Forecast)
}

// AssessRisks classifies whichever risks the available metrics support.
// Fatigue needs both sleep and steps.
func (e *Engine) AssessRisks(seriesByMetric map[string][]float64) map[risk.Kind]risk.Classification {
	out := make(map[risk.Kind]risk.Classification)
	if s, ok := seriesByMetric[MetricStress]; ok {
		out[risk.KindStress] = risk.ClassifyStress(s)
	}
	sleep, hasSleep := seriesByMetric[MetricSleep]
	steps, hasSteps := seriesByMetric[MetricSteps]
	if hasSleep && hasSteps {
		out[risk.KindFatigue] = risk.ClassifyFatigue(risk.FatigueInput{Sleep: sleep, Steps: steps})
	}
	if s, ok := seriesByMetric[MetricHydration]; ok {
		out[risk.KindDehydration] = risk.ClassifyDehydration(s)
	}
	return out
}

// Insights returns one sentence per strongly correlated metric pair.
func (e *Engine) Insights(m *correlation.Matrix) []string {
	pairs := m.StrongestPairs(e.opts.InsightThreshold, e.opts.MaxInsights)
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, correlation.Insight(MetricLabel(p.A), MetricLabel(p.B), p.Value))
	}
	return out
}

// BuildReport analyses every metric for a user. Metric names are
// canonicalised first. The only error is ctx cancellation.
func (e *Engine) BuildReport(ctx context.Context, userID string, seriesByMetric map[string][]float64) (*Report, error) {
	start := e.now()
	data := Normalize(seriesByMetric)

	report := &Report{
		ID:          uuid.New().String(),
		UserID:      userID,
		GeneratedAt: start.UTC(),
		AsOf:        truncateDay(start),
		Summaries:   make(map[string]Summary, len(data)),
		Forecasts:   make(map[string]forecasting.Result, len(data)),
		Series:      data,
	}

	for name, s := range data {
		report.Summaries[name] = Summarize(s)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Anomalies = e.DetectAnomalies(data)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Correlations = correlation.BuildMatrixFromMap(data)
	report.Insights = e.Insights(report.Correlations)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for name, s := range data {
		report.Forecasts[name] = e.Forecast(name, s)
	}
	report.Risks = e.AssessRisks(data)

	e.logger.Debug("report built",
		zap.String("user_id", userID),
		zap.String("report_id", report.ID),
		zap.Int("metrics", len(data)),
		zap.Int("anomalies", report.AnomalyCount()),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return report, nil
}

// AnomalyCount totals anomalies across all metrics.
func (r *Report) AnomalyCount() int {
	total := 0
	for _, a := range r.Anomalies {
		total += a.Total()
	}
	return total
}

// Metrics returns the report's metric names in sorted order.
func (r *Report) Metrics() []string {
	names := make([]string, 0, len(r.Summaries))
	for name := range r.Summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
