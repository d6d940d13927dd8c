package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/forecasting"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/risk"
)

// NotificationKind classifies a notification by its source.
type NotificationKind string

const (
	NotificationAnomaly NotificationKind = "anomaly"
	NotificationRisk    NotificationKind = "risk"
	NotificationTrend   NotificationKind = "trend"
)

// Severity levels for notifications, ordered info < warning < critical.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification is one line of a user's morning summary.
type Notification struct {
	UserID    string           `json:"user_id"`
	ReportID  string           `json:"report_id"`
	Kind      NotificationKind `json:"kind"`
	Severity  string           `json:"severity"`
	Metric    string           `json:"metric,omitempty"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// SeverityRank orders severities; unknown values rank below info.
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// FilterBySeverity keeps notifications at or above min.
func FilterBySeverity(in []Notification, min string) []Notification {
	floor := SeverityRank(min)
	out := make([]Notification, 0, len(in))
	for _, n := range in {
		if SeverityRank(n.Severity) >= floor {
			out = append(out, n)
		}
	}
	return out
}

// MorningSummary turns a report into notification lines. Only anomalies on
// the most recent day are reported; risks above low and up/down trends
// follow. Metrics are visited in sorted order, so the output is stable.
func (e *Engine) MorningSummary(r *Report) []Notification {
	if r == nil {
		return nil
	}
	var out []Notification
	add := func(kind NotificationKind, severity, metric, msg string) {
		out = append(out, Notification{
			UserID:    r.UserID,
			ReportID:  r.ID,
			Kind:      kind,
			Severity:  severity,
			Metric:    metric,
			Message:   msg,
			CreatedAt: r.GeneratedAt,
		})
	}

	metrics := r.Metrics()
	for _, name := range metrics {
		last := r.Summaries[name].Count - 1
		if last < 0 {
			continue
		}
		rep := r.Anomalies[name]
		if ra, ok := latestRolling(rep, last); ok {
			add(NotificationAnomaly, e.rollingSeverity(ra.Severity), name,
				fmt.Sprintf("%s yesterday (%s) was unusual compared with the previous %d days (average %s).",
					MetricLabel(name), formatValue(ra.Value), e.opts.Anomaly.RollingWindow, formatValue(ra.WindowMean)))
			continue
		}
		if za, ok := latestGlobal(rep, last); ok {
			add(NotificationAnomaly, SeverityWarning, name,
				fmt.Sprintf("%s yesterday (%s) was far from your usual range.", MetricLabel(name), formatValue(za.Value)))
		}
	}

	for _, kind := range []risk.Kind{risk.KindStress, risk.KindFatigue, risk.KindDehydration} {
		c, ok := r.Risks[kind]
		if !ok || c.Level == risk.LevelLow {
			continue
		}
		severity := SeverityWarning
		if c.Level == risk.LevelHigh {
			severity = SeverityCritical
		}
		add(NotificationRisk, severity, "",
			fmt.Sprintf("%s risk is %s (%d%%).", riskLabel(kind), c.Level, int(math.Round(c.Probability*100))))
	}

	for _, name := range metrics {
		f, ok := r.Forecasts[name]
		if !ok || f.TrendDirection == forecasting.DirectionStable {
			continue
		}
		word := "rising"
		if f.TrendDirection == forecasting.DirectionDown {
			word = "falling"
		}
		add(NotificationTrend, SeverityInfo, name,
			fmt.Sprintf("%s has been %s over the period.", MetricLabel(name), word))
	}
	return out
}

// rollingSeverity maps a rolling |z| onto a notification severity.
func (e *Engine) rollingSeverity(severity float64) string {
	switch anomaly.SeverityLevel(severity, e.opts.Anomaly.RollingThreshold) {
	case "critical", "high":
		return SeverityCritical
	}
	return SeverityWarning
}

func latestRolling(r anomaly.Report, last int) (anomaly.RollingAnomaly, bool) {
	for _, a := range r.RollingAnomalies {
		if a.Index == last {
			return a, true
		}
	}
	return anomaly.RollingAnomaly{}, false
}

func latestGlobal(r anomaly.Report, last int) (anomaly.ZScoreAnomaly, bool) {
	for _, a := range r.ZAnomalies {
		if a.Index == last {
			return a, true
		}
	}
	return anomaly.ZScoreAnomaly{}, false
}

func riskLabel(k risk.Kind) string {
	switch k {
	case risk.KindStress:
		return "Stress"
	case risk.KindFatigue:
		return "Fatigue"
	case risk.KindDehydration:
		return "Dehydration"
	}
	return string(k)
}

func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
