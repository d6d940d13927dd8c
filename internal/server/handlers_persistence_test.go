package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/series"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
)

// seedHeartRate stores eight days ending today: a flat heart rate that
// jumps on the last day, and a constant stress score of 6.
func seedHeartRate(t *testing.T, h http.Handler, userID string) {
	t.Helper()
	start := db.Day(time.Now()).AddDate(0, 0, -7).Format(db.DayLayout)
	body := map[string]interface{}{
		"start": start,
		"metrics": map[string]interface{}{
			"heart_rate":   []float64{60, 62, 60, 62, 60, 62, 60, 90},
			"stress_level": []float64{6, 6, 6, 6, 6, 6, 6, 6},
		},
	}
	rec := do(t, h, http.MethodPost, "/api/v1/users/"+userID+"/samples", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(16), decodeBody(t, rec)["accepted"])
}

func TestIngestSamples_Individual(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	body := map[string]interface{}{
		"samples": []map[string]interface{}{
			{"metric": "Sleep_Hours", "day": "2024-03-01", "value": 7.5},
			{"metric": "sleep", "day": "2024-03-03", "value": "6"},
			{"metric": "steps", "day": "2024-03-02", "value": nil},
		},
	}
	rec := do(t, h, http.MethodPost, "/api/v1/users/u1/samples", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/series/sleep_hours?from=2024-03-01&to=2024-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	assert.Equal(t, "sleep", resp["metric"])
	assert.Equal(t, []interface{}{7.5, float64(0), float64(6), float64(0)}, resp["values"])

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"sleep", "steps"}, decodeBody(t, rec)["metrics"])
}

func TestIngestSamples_Invalid(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body interface{}
	}{
		{"bad day", `{"samples": [{"metric": "sleep", "day": "03/01/2024", "value": 7}]}`},
		{"missing metric", `{"samples": [{"day": "2024-03-01", "value": 7}]}`},
		{"metrics without start", `{"metrics": {"sleep": [7, 8]}}`},
		{"bad start", `{"start": "yesterday", "metrics": {"sleep": [7]}}`},
		{"nothing to store", `{}`},
		{"invalid json", `{"samples": [`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/users/u1/samples", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, h, http.MethodGet, "/api/v1/users/u1/samples", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSamplesFromRequest(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)
	recs, err := samplesFromRequest("u1", IngestRequest{
		Samples: []SampleInput{{Metric: "water_liters", Value: 1.5}},
		Start:   "2024-05-01",
		Metrics: map[string]series.Series{"stress": {4, 5}},
	}, now)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "hydration", recs[0].Metric)
	assert.Equal(t, db.Day(now), recs[0].Day, "missing day defaults to today")
	assert.Equal(t, 1.5, recs[0].Value)

	assert.Equal(t, "stress", recs[2].Metric)
	assert.Equal(t, "2024-05-02", recs[2].Day.Format(db.DayLayout))
	assert.Equal(t, float64(5), recs[2].Value)
}

func TestUserReport(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	seedHeartRate(t, h, "u1")

	rec := do(t, h, http.MethodGet, "/api/v1/users/u1/report?days=8", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody(t, rec)
	report := resp["report"].(map[string]interface{})
	reportID := report["id"].(string)
	assert.Equal(t, "u1", report["user_id"])

	// the trend line is info and falls below the default warning floor
	notes := resp["notifications"].([]interface{})
	require.Len(t, notes, 2)
	first := notes[0].(map[string]interface{})
	assert.Equal(t, "anomaly", first["kind"])
	assert.Equal(t, "critical", first["severity"])
	assert.Equal(t, "Heart rate yesterday (90) was unusual compared with the previous 7 days (average 60.86).", first["message"])
	assert.Equal(t, "Stress risk is high (75%).", notes[1].(map[string]interface{})["message"])

	// persisted report
	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/report/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	latest := decodeBody(t, rec)
	assert.Equal(t, reportID, latest["id"])
	assert.Equal(t, "u1", latest["report"].(map[string]interface{})["user_id"])

	// persisted anomalies: the last heart rate sample is flagged by both detectors
	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/anomalies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	anomalies := decodeBody(t, rec)
	assert.Equal(t, float64(2), anomalies["total"])
	for _, raw := range anomalies["anomalies"].([]interface{}) {
		a := raw.(map[string]interface{})
		assert.Equal(t, "heart_rate", a["metric"])
		assert.Equal(t, float64(90), a["value"])
		assert.Equal(t, reportID, a["report_id"])
	}

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/anomalies?method=rolling", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rolling := decodeBody(t, rec)["anomalies"].([]interface{})
	require.Len(t, rolling, 1)
	assert.Equal(t, "critical", rolling[0].(map[string]interface{})["severity"])

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/anomalies/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])
}

func TestUserReport_NoData(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/users/ghost/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/users/ghost/report/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/users/ghost/anomalies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{}, decodeBody(t, rec)["anomalies"])
}

func TestUsersDispatch_Errors(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/users/", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/users/u1/unknown", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/api/v1/users/u1/report", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/users/u1/series/sleep?from=bad", nil).Code)
}

func TestUserRanges_Bounded(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	seedHeartRate(t, h, "u1")
	limit := srv.config.WindowLimit()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"series huge days", "/api/v1/users/u1/series/heart_rate?days=100000000", http.StatusBadRequest},
		{"series days over limit", fmt.Sprintf("/api/v1/users/u1/series/heart_rate?days=%d", limit+1), http.StatusBadRequest},
		{"series days at limit", fmt.Sprintf("/api/v1/users/u1/series/heart_rate?days=%d", limit), http.StatusOK},
		{"series full calendar", "/api/v1/users/u1/series/heart_rate?from=0001-01-01&to=9999-12-31", http.StatusBadRequest},
		{"series to before from", "/api/v1/users/u1/series/heart_rate?from=2024-03-10&to=2024-03-01", http.StatusBadRequest},
		{"series single day", "/api/v1/users/u1/series/heart_rate?from=2024-03-10&to=2024-03-10", http.StatusOK},
		{"report huge days", "/api/v1/users/u1/report?days=100000000", http.StatusBadRequest},
		{"report days over limit", fmt.Sprintf("/api/v1/users/u1/report?days=%d", limit+1), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			if tc.want == http.StatusBadRequest {
				assert.Contains(t, decodeBody(t, rec), "error")
			}
		})
	}

	rec := do(t, h, http.MethodGet, fmt.Sprintf("/api/v1/users/u1/series/heart_rate?days=%d", limit), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["values"], limit)
}

func TestUserReport_RepeatedBuildsDoNotDuplicateAnomalies(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()
	seedHeartRate(t, h, "u1")

	for i := 0; i < 3; i++ {
		rec := do(t, h, http.MethodGet, "/api/v1/users/u1/report?days=8", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, h, http.MethodGet, "/api/v1/users/u1/anomalies/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])
}

func TestUsersDispatch_NoStore(t *testing.T) {
	cfg := createTestConfig()
	srv, err := NewServer(cfg, analytics.NewEngine(cfg.EngineOptions(), nil), nil, nil)
	require.NoError(t, err)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/users/u1/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
