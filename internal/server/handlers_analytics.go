package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/correlation"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/forecasting"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/series"
	"github.com/healthtrack/healthtrack-analytics/internal/metrics"
)

// ─── Stateless analytics endpoints ────────────────────────────────────────────
//
// POST /api/v1/analytics/anomalies     z-score and rolling anomalies per metric
// POST /api/v1/analytics/correlations  correlation matrix plus insights
// POST /api/v1/analytics/forecast      forecast for one series
// POST /api/v1/analytics/risk          stress / fatigue / dehydration bands
// POST /api/v1/analytics/report        full report, nothing persisted

// AnomalyRequest overrides detector parameters for one call. Zero values
// keep the engine defaults.
type AnomalyRequest struct {
	Metrics          map[string]series.Series `json:"metrics"`
	Threshold        float64                  `json:"threshold,omitempty"`
	Window           int                      `json:"window,omitempty"`
	RollingThreshold float64                  `json:"rolling_threshold,omitempty"`
}

// CorrelationRequest accepts either a metric map or an ordered list of
// series with optional names.
type CorrelationRequest struct {
	Metrics map[string]series.Series `json:"metrics,omitempty"`
	Series  []series.Series          `json:"series,omitempty"`
	Names   []string                 `json:"names,omitempty"`
}

// CorrelationResponse is the correlation endpoint payload.
type CorrelationResponse struct {
	Matrix   *correlation.Matrix `json:"matrix"`
	Insights []string            `json:"insights"`
}

// ForecastRequest forecasts one series. Confidence defaults to the
// metric's configured constant.
type ForecastRequest struct {
	Metric     string        `json:"metric"`
	Series     series.Series `json:"series"`
	Confidence *float64      `json:"confidence,omitempty"`
	Window     int           `json:"window,omitempty"`
	Alpha      float64       `json:"alpha,omitempty"`
}

// handleAnalyticsDispatch is the single dispatcher for /api/v1/analytics/...
func (s *Server) handleAnalyticsDispatch(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/api/v1/analytics")
	suffix = strings.Trim(suffix, "/")

	if r.Method != http.MethodPost {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch suffix {
	case "anomalies":
		s.handleAnalyticsAnomalies(w, r)
	case "correlations":
		s.handleAnalyticsCorrelations(w, r)
	case "forecast":
		s.handleAnalyticsForecast(w, r)
	case "risk":
		s.handleAnalyticsRisk(w, r)
	case "report":
		s.handleAnalyticsReport(w, r)
	default:
		jsonError(w, http.StatusNotFound, "not found")
	}
}

// handleAnalyticsAnomalies serves POST /api/v1/analytics/anomalies
func (s *Server) handleAnalyticsAnomalies(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req AnomalyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := s.engine.Options().Anomaly
	if req.Threshold > 0 {
		opts.ZThreshold = req.Threshold
	}
	if req.Window > 0 {
		opts.RollingWindow = req.Window
	}
	if req.RollingThreshold > 0 {
		opts.RollingThreshold = req.RollingThreshold
	}

	data := analytics.Normalize(series.Map(req.Metrics))
	reports := anomaly.DetectAllWithOptions(data, opts)
	total := 0
	for name, rep := range reports {
		total += rep.Total()
		if n := len(rep.ZAnomalies); n > 0 {
			metrics.AnomaliesDetected.WithLabelValues(name, "zscore").Add(float64(n))
		}
		if n := len(rep.RollingAnomalies); n > 0 {
			metrics.AnomaliesDetected.WithLabelValues(name, "rolling").Add(float64(n))
		}
	}
	metrics.ObserveOperation("anomalies", start, nil)

	jsonOK(w, map[string]interface{}{
		"anomalies": reports,
		"total":     total,
		"timestamp": time.Now().UTC(),
	})
}

// handleAnalyticsCorrelations serves POST /api/v1/analytics/correlations
func (s *Server) handleAnalyticsCorrelations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req CorrelationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	var m *correlation.Matrix
	if len(req.Series) > 0 {
		list := make([][]float64, len(req.Series))
		for i, sr := range req.Series {
			list[i] = sr.Floats()
		}
		m = correlation.BuildMatrix(list, req.Names)
	} else {
		m = correlation.BuildMatrixFromMap(analytics.Normalize(series.Map(req.Metrics)))
	}
	metrics.ObserveOperation("correlations", start, nil)

	jsonOK(w, CorrelationResponse{Matrix: m, Insights: s.engine.Insights(m)})
}

// handleAnalyticsForecast serves POST /api/v1/analytics/forecast
func (s *Server) handleAnalyticsForecast(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req ForecastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	metric := analytics.CanonicalMetric(req.Metric)
	confidence := s.engine.ConfidenceFor(metric)
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	opts := s.engine.Options().Forecast
	if req.Window > 0 {
		opts.Window = req.Window
	}
	if req.Alpha > 0 {
		opts.Alpha = req.Alpha
	}

	result := forecasting.PredictWithOptions(req.Series.Floats(), confidence, opts)
	metrics.ObserveOperation("forecast", start, nil)

	jsonOK(w, map[string]interface{}{
		"metric":         metric,
		"forecastSeries": result.Forecast,
		"trendDirection": result.TrendDirection,
		"confidence":     result.Confidence,
	})
}

// handleAnalyticsRisk serves POST /api/v1/analytics/risk
func (s *Server) handleAnalyticsRisk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req MetricsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	risks := s.engine.AssessRisks(analytics.Normalize(series.Map(req.Metrics)))
	for kind, c := range risks {
		metrics.RiskClassifications.WithLabelValues(string(kind), string(c.Level)).Inc()
	}
	metrics.ObserveOperation("risk", start, nil)

	jsonOK(w, map[string]interface{}{"risks": risks})
}

// handleAnalyticsReport serves POST /api/v1/analytics/report
func (s *Server) handleAnalyticsReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req MetricsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.engine.BuildReport(r.Context(), req.UserID, series.Map(req.Metrics))
	metrics.ObserveOperation("report", start, err)
	if err != nil {
		jsonError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	jsonOK(w, map[string]interface{}{
		"report":        report,
		"notifications": s.engine.MorningSummary(report),
	})
}
