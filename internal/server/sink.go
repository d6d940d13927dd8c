package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	appconfig "github.com/healthtrack/healthtrack-analytics/internal/config"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
	"github.com/healthtrack/healthtrack-analytics/internal/metrics"
)

// StoreAdapter connects the analytics engine to persistence and the
// notification hub. It is both the pipeline's SeriesSource and ReportSink.
type StoreAdapter struct {
	store       db.Store
	hub         *Hub
	minSeverity string
	thresholds  anomaly.Options
	logger      *zap.Logger
	now         func() time.Time
}

var (
	_ analytics.SeriesSource = (*StoreAdapter)(nil)
	_ analytics.ReportSink   = (*StoreAdapter)(nil)
)

// NewStoreAdapter creates an adapter. Notifications below minSeverity are
// never published. thresholds grade stored anomaly severities.
func NewStoreAdapter(store db.Store, hub *Hub, minSeverity string, thresholds anomaly.Options, logger *zap.Logger) *StoreAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minSeverity == "" {
		minSeverity = analytics.SeverityInfo
	}
	return &StoreAdapter{
		store:       store,
		hub:         hub,
		minSeverity: minSeverity,
		thresholds:  thresholds,
		logger:      logger,
		now:         time.Now,
	}
}

// ListUsers returns every user with stored samples.
func (a *StoreAdapter) ListUsers(ctx context.Context) ([]string, error) {
	return a.store.ListUsers(ctx)
}

// Window returns the inclusive day range covering the last `days` days,
// clamped to [1, MaxWindowDays].
func (a *StoreAdapter) Window(days int) (from, to time.Time) {
	if days < 1 {
		days = 1
	}
	if days > appconfig.MaxWindowDays {
		days = appconfig.MaxWindowDays
	}
	to = db.Day(a.now())
	from = to.AddDate(0, 0, -(days - 1))
	return from, to
}

// LoadSeries returns a dense series per metric for the last `days` days,
// ending today (UTC), along with that end day.
func (a *StoreAdapter) LoadSeries(ctx context.Context, userID string, days int) (map[string][]float64, time.Time, error) {
	from, to := a.Window(days)
	names, err := a.store.ListMetrics(ctx, userID)
	if err != nil {
		return nil, to, fmt.Errorf("list metrics for %s: %w", userID, err)
	}
	out := make(map[string][]float64, len(names))
	for _, name := range names {
		s, err := a.store.QuerySeries(ctx, userID, name, from, to)
		if err != nil {
			return nil, to, fmt.Errorf("query series %s/%s: %w", userID, name, err)
		}
		out[name] = s
	}
	return out, to, nil
}

// Deliver persists the report and its anomalies, then publishes the
// notifications at or above the configured severity.
func (a *StoreAdapter) Deliver(ctx context.Context, report *analytics.Report, notes []analytics.Notification) error {
	if err := a.SaveReport(ctx, report); err != nil {
		return err
	}

	recs := AnomalyRecords(report, a.thresholds)
	if len(recs) > 0 {
		if err := a.store.AppendAnomalies(ctx, recs); err != nil {
			return fmt.Errorf("append anomalies: %w", err)
		}
		for _, rec := range recs {
			metrics.AnomaliesDetected.WithLabelValues(rec.Metric, rec.Method).Inc()
		}
	}
	for kind, c := range report.Risks {
		metrics.RiskClassifications.WithLabelValues(string(kind), string(c.Level)).Inc()
	}

	kept := analytics.FilterBySeverity(notes, a.minSeverity)
	for _, n := range kept {
		metrics.NotificationsSent.WithLabelValues(string(n.Kind), n.Severity).Inc()
	}
	delivered := 0
	if a.hub != nil && len(kept) > 0 {
		delivered = a.hub.Publish(report.UserID, kept)
	}

	a.logger.Debug("report delivered",
		zap.String("user_id", report.UserID),
		zap.String("report_id", report.ID),
		zap.Int("anomalies", len(recs)),
		zap.Int("notifications", len(kept)),
		zap.Int("delivered", delivered),
	)
	return nil
}

// SaveReport stores the report as JSON.
func (a *StoreAdapter) SaveReport(ctx context.Context, report *analytics.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	rec := &db.ReportRecord{
		ID:        report.ID,
		UserID:    report.UserID,
		Payload:   string(payload),
		CreatedAt: report.GeneratedAt,
	}
	if err := a.store.SaveReport(ctx, rec); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// AnomalyRecords returns store records for the anomalies flagged on each
// series' latest sample, dated report.AsOf. Earlier flags in the window
// were recorded by the build that saw them as latest. Each severity is
// graded against the threshold of the detector that flagged it.
func AnomalyRecords(report *analytics.Report, thresholds anomaly.Options) []*db.AnomalyRecord {
	var out []*db.AnomalyRecord
	day := db.Day(report.AsOf)
	if report.AsOf.IsZero() {
		day = db.Day(report.GeneratedAt)
	}
	for _, name := range report.Metrics() {
		rep, ok := report.Anomalies[name]
		if !ok {
			continue
		}
		last := report.Summaries[name].Count - 1

		for _, za := range rep.ZAnomalies {
			if za.Index != last {
				continue
			}
			out = append(out, &db.AnomalyRecord{
				UserID:     report.UserID,
				ReportID:   report.ID,
				Metric:     name,
				Method:     "zscore",
				Severity:   anomaly.SeverityLevel(math.Abs(za.ZScore), thresholds.ZThreshold),
				Day:        day,
				Value:      za.Value,
				ZScore:     za.ZScore,
				DetectedAt: report.GeneratedAt,
			})
		}
		for _, ra := range rep.RollingAnomalies {
			if ra.Index != last {
				continue
			}
			out = append(out, &db.AnomalyRecord{
				UserID:     report.UserID,
				ReportID:   report.ID,
				Metric:     name,
				Method:     "rolling",
				Severity:   anomaly.SeverityLevel(ra.Severity, thresholds.RollingThreshold),
				Day:        day,
				Value:      ra.Value,
				ZScore:     ra.ZScore,
				DetectedAt: report.GeneratedAt,
			})
		}
	}
	return out
}

// BuildAndDeliver loads a user's stored series, builds a report and hands
// it to Deliver. It returns the report and the notifications published.
func (a *StoreAdapter) BuildAndDeliver(ctx context.Context, engine *analytics.Engine, userID string, days int) (*analytics.Report, []analytics.Notification, error) {
	start := time.Now()
	data, asOf, err := a.LoadSeries(ctx, userID, days)
	if err != nil {
		metrics.ObserveOperation("report", start, err)
		return nil, nil, err
	}
	if len(data) == 0 {
		metrics.ObserveOperation("report", start, db.ErrNotFound)
		return nil, nil, fmt.Errorf("no samples for user %s: %w", userID, db.ErrNotFound)
	}
	report, err := engine.BuildReport(ctx, userID, data)
	if err != nil {
		metrics.ObserveOperation("report", start, err)
		return nil, nil, err
	}
	report.AsOf = asOf
	notes := engine.MorningSummary(report)
	err = a.Deliver(ctx, report, notes)
	metrics.ObserveOperation("report", start, err)
	if err != nil {
		return nil, nil, err
	}
	return report, analytics.FilterBySeverity(notes, a.minSeverity), nil
}
