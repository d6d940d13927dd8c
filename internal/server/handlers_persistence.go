package server

// Per-user REST handlers backed by the store.
//
// Routes (all under /api/v1/users/{id}/):
//   POST /samples             → upsert daily samples
//   GET  /metrics             → metrics the user has samples for
//   GET  /series/{metric}     → dense daily series (days, or from/to as YYYY-MM-DD)
//   GET  /report              → build a report from stored data, persist it, notify
//   GET  /report/latest       → most recent persisted report
//   GET  /anomalies           → anomaly history (metric/method/severity/from/to/limit/offset)
//   GET  /anomalies/summary   → anomaly counts by severity (from/to)

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/series"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
	"github.com/healthtrack/healthtrack-analytics/internal/metrics"
)

// SampleInput is one sample in an ingest request. Day defaults to today
// (UTC) and Value is coerced like any series element.
type SampleInput struct {
	Metric string      `json:"metric"`
	Day    string      `json:"day,omitempty"`
	Value  interface{} `json:"value"`
}

// IngestRequest accepts individual samples, whole series starting at Start,
// or both.
type IngestRequest struct {
	Samples []SampleInput            `json:"samples,omitempty"`
	Start   string                   `json:"start,omitempty"`
	Metrics map[string]series.Series `json:"metrics,omitempty"`
}

// handleUsersDispatch routes /api/v1/users/* requests.
func (s *Server) handleUsersDispatch(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/users"), "/")
	userID, rest, _ := strings.Cut(path, "/")
	if userID == "" {
		jsonError(w, http.StatusNotFound, "user id required")
		return
	}
	if s.store == nil || s.adapter == nil {
		jsonError(w, http.StatusServiceUnavailable, "store not initialised")
		return
	}

	switch {
	case rest == "samples":
		s.handleIngestSamples(w, r, userID)
	case rest == "metrics":
		s.handleListMetrics(w, r, userID)
	case strings.HasPrefix(rest, "series/"):
		s.handleGetSeries(w, r, userID, strings.TrimPrefix(rest, "series/"))
	case rest == "report":
		s.handleBuildReport(w, r, userID)
	case rest == "report/latest":
		s.handleLatestReport(w, r, userID)
	case rest == "anomalies":
		s.handleAnomalyQuery(w, r, userID)
	case rest == "anomalies/summary":
		s.handleAnomalySummary(w, r, userID)
	default:
		jsonError(w, http.StatusNotFound, "not found")
	}
}

// ─── Samples ──────────────────────────────────────────────────────────────────

func (s *Server) handleIngestSamples(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := samplesFromRequest(userID, req, time.Now().UTC())
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(recs) == 0 {
		jsonError(w, http.StatusBadRequest, "no samples in request")
		return
	}

	if err := s.store.UpsertSamples(r.Context(), recs); err != nil {
		s.logger.Error("upsert samples failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, rec := range recs {
		metrics.SamplesIngested.WithLabelValues(rec.Metric).Inc()
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":   "stored",
		"user_id":  userID,
		"accepted": len(recs),
	})
}

// samplesFromRequest turns an ingest request into store records with
// canonical metric names.
func samplesFromRequest(userID string, req IngestRequest, now time.Time) ([]*db.SampleRecord, error) {
	var recs []*db.SampleRecord
	for i, in := range req.Samples {
		metric := analytics.CanonicalMetric(in.Metric)
		if metric == "" {
			return nil, fmt.Errorf("samples[%d]: metric required", i)
		}
		day := db.Day(now)
		if in.Day != "" {
			d, err := db.ParseDay(in.Day)
			if err != nil {
				return nil, fmt.Errorf("samples[%d]: invalid day %q", i, in.Day)
			}
			day = d
		}
		recs = append(recs, &db.SampleRecord{
			UserID:     userID,
			Metric:     metric,
			Day:        day,
			Value:      series.Coerce(in.Value),
			RecordedAt: now,
		})
	}

	if len(req.Metrics) > 0 {
		if req.Start == "" {
			return nil, fmt.Errorf("start is required with metrics")
		}
		start, err := db.ParseDay(req.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid start %q", req.Start)
		}
		for name, values := range req.Metrics {
			metric := analytics.CanonicalMetric(name)
			if metric == "" {
				continue
			}
			for i, v := range values {
				recs = append(recs, &db.SampleRecord{
					UserID:     userID,
					Metric:     metric,
					Day:        start.AddDate(0, 0, i),
					Value:      v,
					RecordedAt: now,
				})
			}
		}
	}
	return recs, nil
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	names, err := s.store.ListMetrics(r.Context(), userID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	jsonOK(w, map[string]interface{}{"user_id": userID, "metrics": names})
}

func (s *Server) handleGetSeries(w http.ResponseWriter, r *http.Request, userID, metric string) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metric = analytics.CanonicalMetric(metric)
	if metric == "" {
		jsonError(w, http.StatusBadRequest, "metric required")
		return
	}

	q := r.URL.Query()
	days, err := s.windowDays(q.Get("days"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to := s.adapter.Window(days)
	if v := q.Get("from"); v != "" {
		d, err := db.ParseDay(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid from: "+v)
			return
		}
		from = d
	}
	if v := q.Get("to"); v != "" {
		d, err := db.ParseDay(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid to: "+v)
			return
		}
		to = d
	}
	if to.Before(from) {
		jsonError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	if limit := s.config.WindowLimit(); to.Sub(from) >= time.Duration(limit)*24*time.Hour {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("range cannot exceed %d days", limit))
		return
	}

	values, err := s.store.QuerySeries(r.Context(), userID, metric, from, to)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]interface{}{
		"user_id": userID,
		"metric":  metric,
		"from":    from.Format(db.DayLayout),
		"to":      to.Format(db.DayLayout),
		"values":  values,
	})
}

// windowDays parses a days parameter, defaulting to the lookback period and
// rejecting spans wider than the configured window limit.
func (s *Server) windowDays(v string) (int, error) {
	days := parseIntParam(v, s.config.Analytics.LookbackDays)
	if limit := s.config.WindowLimit(); days > limit {
		return 0, fmt.Errorf("days cannot exceed %d", limit)
	}
	return days, nil
}

// ─── Reports ──────────────────────────────────────────────────────────────────

func (s *Server) handleBuildReport(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	days, err := s.windowDays(r.URL.Query().Get("days"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, notes, err := s.adapter.BuildAndDeliver(r.Context(), s.engine, userID, days)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("build report failed", zap.String("user_id", userID), zap.Error(err))
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notes == nil {
		notes = []analytics.Notification{}
	}
	jsonOK(w, map[string]interface{}{
		"report":        report,
		"notifications": notes,
	})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec, err := s.store.LatestReport(r.Context(), userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "no report for user "+userID)
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonOK(w, map[string]interface{}{
		"id":         rec.ID,
		"created_at": rec.CreatedAt,
		"report":     json.RawMessage(rec.Payload),
	})
}

// ─── Anomalies ────────────────────────────────────────────────────────────────

func (s *Server) handleAnomalyQuery(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	aq := db.AnomalyQuery{
		UserID:   userID,
		Metric:   analytics.CanonicalMetric(q.Get("metric")),
		Method:   q.Get("method"),
		Severity: q.Get("severity"),
		Limit:    parseIntParam(q.Get("limit"), 100),
		Offset:   parseIntParam(q.Get("offset"), 0),
	}
	if v := q.Get("from"); v != "" {
		aq.From, _ = time.Parse(time.RFC3339, v)
	}
	if v := q.Get("to"); v != "" {
		aq.To, _ = time.Parse(time.RFC3339, v)
	}

	anomalies, err := s.store.QueryAnomalies(r.Context(), aq)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if anomalies == nil {
		anomalies = []*db.AnomalyRecord{}
	}
	jsonOK(w, map[string]interface{}{
		"anomalies": anomalies,
		"total":     len(anomalies),
	})
}

func (s *Server) handleAnomalySummary(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour * time.Duration(s.config.Analytics.LookbackDays))
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}

	summary, err := s.store.AnomalySummary(r.Context(), userID, from, to)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := 0
	for _, n := range summary {
		total += n
	}
	jsonOK(w, map[string]interface{}{
		"user_id":     userID,
		"from":        from,
		"to":          to,
		"by_severity": summary,
		"total":       total,
	})
}
