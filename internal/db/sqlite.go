package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema defines the tables for the analytics persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metric_samples (
    user_id     TEXT NOT NULL,
    metric      TEXT NOT NULL,
    day         TEXT NOT NULL,
    value       REAL NOT NULL DEFAULT 0.0,
    recorded_at TEXT NOT NULL,
    PRIMARY KEY (user_id, metric, day)
);
CREATE INDEX IF NOT EXISTS idx_samples_day ON metric_samples(day);
`,
	},
	// Migration 2: anomaly_events
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS anomaly_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id      TEXT NOT NULL,
    report_id    TEXT NOT NULL DEFAULT '',
    metric       TEXT NOT NULL,
    method       TEXT NOT NULL,
    severity     TEXT NOT NULL DEFAULT 'low',
    day          TEXT NOT NULL,
    value        REAL NOT NULL DEFAULT 0.0,
    z_score      REAL NOT NULL DEFAULT 0.0,
    detected_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomaly_user_detected ON anomaly_events(user_id, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomaly_severity      ON anomaly_events(severity);
`,
	},
	// Migration 3: reports
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS reports (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    payload     TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_user_created ON reports(user_id, created_at DESC);
`,
	},
	// Migration 4: one anomaly event per user, metric, method and day
	{
		version: 4,
		sql: `
DELETE FROM anomaly_events WHERE id NOT IN (
    SELECT MAX(id) FROM anomaly_events GROUP BY user_id, metric, method, day
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_anomaly_event_day ON anomaly_events(user_id, metric, method, day);
`,
	},
}

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// each connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Samples ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) UpsertSamples(ctx context.Context, recs []*SampleRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO metric_samples(user_id, metric, day, value, recorded_at)
        VALUES(?,?,?,?,?)
        ON CONFLICT(user_id, metric, day) DO UPDATE SET
            value       = excluded.value,
            recorded_at = excluded.recorded_at
    `)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		recorded := rec.RecordedAt
		if recorded.IsZero() {
			recorded = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			rec.UserID, rec.Metric, Day(rec.Day).Format(DayLayout), rec.Value, formatTime(recorded),
		); err != nil {
			return fmt.Errorf("upsert sample %s/%s: %w", rec.UserID, rec.Metric, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) QuerySamples(ctx context.Context, userID, metric string, from, to time.Time) ([]*SampleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT user_id, metric, day, value, recorded_at
        FROM metric_samples
        WHERE user_id = ? AND metric = ? AND day >= ? AND day <= ?
        ORDER BY day ASC
    `, userID, metric, Day(from).Format(DayLayout), Day(to).Format(DayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SampleRecord
	for rows.Next() {
		rec := &SampleRecord{}
		var day, ts string
		if err := rows.Scan(&rec.UserID, &rec.Metric, &day, &rec.Value, &ts); err != nil {
			return nil, err
		}
		if rec.Day, err = ParseDay(day); err != nil {
			return nil, fmt.Errorf("parse day %q: %w", day, err)
		}
		rec.RecordedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) QuerySeries(ctx context.Context, userID, metric string, from, to time.Time) ([]float64, error) {
	recs, err := s.QuerySamples(ctx, userID, metric, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]float64, len(recs))
	for _, r := range recs {
		byDay[r.Day.Format(DayLayout)] = r.Value
	}
	return denseSeries(from, to, byDay), nil
}

func (s *sqliteStore) ListMetrics(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT metric FROM metric_samples WHERE user_id = ? ORDER BY metric`, userID)
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT user_id FROM metric_samples ORDER BY user_id`)
}

func (s *sqliteStore) DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE day < ?`, Day(before).Format(DayLayout))
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─── Anomalies ────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendAnomalies(ctx context.Context, recs []*AnomalyRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if rec.DetectedAt.IsZero() {
			rec.DetectedAt = time.Now().UTC()
		}
		err := tx.QueryRowContext(ctx, `
            INSERT INTO anomaly_events(user_id, report_id, metric, method, severity, day, value, z_score, detected_at)
            VALUES(?,?,?,?,?,?,?,?,?)
            ON CONFLICT(user_id, metric, method, day) DO UPDATE SET
                report_id   = excluded.report_id,
                severity    = excluded.severity,
                value       = excluded.value,
                z_score     = excluded.z_score,
                detected_at = excluded.detected_at
            RETURNING id
        `,
			rec.UserID, rec.ReportID, rec.Metric, rec.Method, rec.Severity,
			Day(rec.Day).Format(DayLayout), rec.Value, rec.ZScore, formatTime(rec.DetectedAt),
		).Scan(&rec.ID)
		if err != nil {
			return fmt.Errorf("append anomaly: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*AnomalyRecord, error) {
	query := `SELECT id,user_id,report_id,metric,method,severity,day,value,z_score,detected_at FROM anomaly_events WHERE 1=1`
	args := []any{}

	if q.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, q.UserID)
	}
	if q.Metric != "" {
		query += ` AND metric = ?`
		args = append(args, q.Metric)
	}
	if q.Method != "" {
		query += ` AND method = ?`
		args = append(args, q.Method)
	}
	if q.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, q.Severity)
	}
	if !q.From.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, formatTime(q.From))
	}
	if !q.To.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, formatTime(q.To))
	}
	query += ` ORDER BY detected_at DESC, id DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*AnomalyRecord
	for rows.Next() {
		rec := &AnomalyRecord{}
		var day, ts string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ReportID, &rec.Metric, &rec.Method,
			&rec.Severity, &day, &rec.Value, &rec.ZScore, &ts); err != nil {
			return nil, err
		}
		rec.Day, _ = ParseDay(day)
		rec.DetectedAt, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) AnomalySummary(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	query := `SELECT severity, COUNT(*) FROM anomaly_events WHERE user_id = ?`
	args := []any{userID}
	if !from.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, formatTime(to))
	}
	query += ` GROUP BY severity`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		summary[sev] = n
	}
	return summary, rows.Err()
}

// ─── Reports ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO reports(id, user_id, payload, created_at)
        VALUES(?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            payload    = excluded.payload,
            created_at = excluded.created_at
    `, rec.ID, rec.UserID, rec.Payload, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	return s.scanReport(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, payload, created_at FROM reports WHERE id = ?`, id))
}

func (s *sqliteStore) LatestReport(ctx context.Context, userID string) (*ReportRecord, error) {
	return s.scanReport(s.db.QueryRowContext(ctx, `
        SELECT id, user_id, payload, created_at FROM reports
        WHERE user_id = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT 1
    `, userID))
}

func (s *sqliteStore) scanReport(row *sql.Row) (*ReportRecord, error) {
	rec := &ReportRecord{}
	var ts string
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Payload, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	rec.CreatedAt, _ = parseTime(ts)
	return rec, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
