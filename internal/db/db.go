package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("db: not found")

// DayLayout is the storage format for sample days.
const DayLayout = "2006-01-02"

// Store is the main persistence interface for the analytics service.
type Store interface {
	SampleStore
	AnomalyStore
	ReportStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Sample store ─────────────────────────────────────────────────────────────

// SampleRecord is one daily value of one metric for one user.
type SampleRecord struct {
	UserID     string    `json:"user_id"`
	Metric     string    `json:"metric"`
	Day        time.Time `json:"day"` // UTC midnight
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SampleStore persists daily metric samples.
//
// A user has at most one value per metric per day; writing the same day
// again replaces the earlier value.
type SampleStore interface {
	// UpsertSamples writes samples in a single transaction.
	UpsertSamples(ctx context.Context, recs []*SampleRecord) error

	// QuerySamples returns stored samples in [from, to] ordered by day.
	QuerySamples(ctx context.Context, userID, metric string, from, to time.Time) ([]*SampleRecord, error)

	// QuerySeries returns one value per day in [from, to]; days without a
	// stored sample are 0.
	QuerySeries(ctx context.Context, userID, metric string, from, to time.Time) ([]float64, error)

	// ListMetrics returns the metrics a user has samples for, sorted.
	ListMetrics(ctx context.Context, userID string) ([]string, error)

	// ListUsers returns every user with at least one sample, sorted.
	ListUsers(ctx context.Context) ([]string, error)

	// DeleteSamplesBefore removes samples older than the given day.
	DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error)
}

// ─── Anomaly store ────────────────────────────────────────────────────────────

// AnomalyRecord is a persisted anomaly flagged in a user's series.
type AnomalyRecord struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	ReportID   string    `json:"report_id"`
	Metric     string    `json:"metric"`
	Method     string    `json:"method"` // zscore | rolling
	Severity   string    `json:"severity"`
	Day        time.Time `json:"day"`
	Value      float64   `json:"value"`
	ZScore     float64   `json:"z_score"`
	DetectedAt time.Time `json:"detected_at"`
}

// AnomalyQuery filters anomaly queries.
type AnomalyQuery struct {
	UserID   string
	Metric   string
	Method   string
	Severity string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// AnomalyStore persists anomaly history.
type AnomalyStore interface {
	// AppendAnomalies stores detected anomaly events and fills in their IDs.
	// There is one event per user, metric, method and day; appending it
	// again replaces the stored one and keeps its ID.
	AppendAnomalies(ctx context.Context, recs []*AnomalyRecord) error

	// QueryAnomalies retrieves anomalies newest first.
	QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*AnomalyRecord, error)

	// AnomalySummary returns counts grouped by severity for a user.
	AnomalySummary(ctx context.Context, userID string, from, to time.Time) (map[string]int, error)
}

// ─── Report store ─────────────────────────────────────────────────────────────

// ReportRecord is a serialized analytics report.
type ReportRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Payload   string    `json:"payload"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

// ReportStore persists generated reports.
type ReportStore interface {
	SaveReport(ctx context.Context, rec *ReportRecord) error

	// GetReport returns ErrNotFound for an unknown id.
	GetReport(ctx context.Context, id string) (*ReportRecord, error)

	// LatestReport returns the newest report for a user, or ErrNotFound.
	LatestReport(ctx context.Context, userID string) (*ReportRecord, error)
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD day string.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DayLayout, s)
}

// denseSeries lays out values by day across [from, to] inclusive.
func denseSeries(from, to time.Time, byDay map[string]float64) []float64 {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return []float64{}
	}
	out := make([]float64, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, byDay[d.Format(DayLayout)])
	}
	return out
}

// Open returns a Store for the given backend: "sqlite" (path required) or
// "memory".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(0), nil
	}
	return nil, fmt.Errorf("unknown database type %q", backend)
}
