package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/healthtrack-analytics/internal/analytics"
	"github.com/healthtrack/healthtrack-analytics/internal/analytics/anomaly"
	appconfig "github.com/healthtrack/healthtrack-analytics/internal/config"
	"github.com/healthtrack/healthtrack-analytics/internal/db"
)

func newTestAdapter(t *testing.T, minSeverity string) (*StoreAdapter, db.Store, *Hub) {
	t.Helper()
	store := db.NewMemoryStore(0)
	hub := NewHub(nil)
	t.Cleanup(hub.Close)
	a := NewStoreAdapter(store, hub, minSeverity, anomaly.DefaultOptions(), nil)
	a.now = func() time.Time { return time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC) }
	return a, store, hub
}

func putSeries(t *testing.T, store db.Store, userID, metric string, start time.Time, values ...float64) {
	t.Helper()
	recs := make([]*db.SampleRecord, len(values))
	for i, v := range values {
		recs[i] = &db.SampleRecord{UserID: userID, Metric: metric, Day: start.AddDate(0, 0, i), Value: v}
	}
	require.NoError(t, store.UpsertSamples(context.Background(), recs))
}

func TestStoreAdapter_Window(t *testing.T) {
	a, _, _ := newTestAdapter(t, "")
	from, to := a.Window(3)
	assert.Equal(t, "2024-06-08", from.Format(db.DayLayout))
	assert.Equal(t, "2024-06-10", to.Format(db.DayLayout))

	from, to = a.Window(0)
	assert.Equal(t, from, to)

	from, to = a.Window(100000000)
	assert.Equal(t, appconfig.MaxWindowDays-1, int(to.Sub(from).Hours()/24))
}

func TestStoreAdapter_LoadSeries(t *testing.T) {
	a, store, _ := newTestAdapter(t, "")
	ctx := context.Background()
	putSeries(t, store, "u1", "sleep", time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), 7, 8)
	putSeries(t, store, "u1", "steps", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), 9000)

	data, asOf, err := a.LoadSeries(ctx, "u1", 4)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-10", asOf.Format(db.DayLayout))
	assert.Equal(t, []float64{0, 7, 8, 0}, data["sleep"])
	assert.Equal(t, []float64{0, 0, 0, 9000}, data["steps"])

	users, err := a.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)
}

func TestStoreAdapter_DeliverFiltersAndPublishes(t *testing.T) {
	a, store, hub := newTestAdapter(t, analytics.SeverityWarning)
	ctx := context.Background()
	sub := hub.Subscribe("u1")

	report := &analytics.Report{
		ID:          "r-1",
		UserID:      "u1",
		GeneratedAt: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	notes := []analytics.Notification{
		{UserID: "u1", Kind: analytics.NotificationTrend, Severity: analytics.SeverityInfo, Message: "trend"},
		{UserID: "u1", Kind: analytics.NotificationRisk, Severity: analytics.SeverityCritical, Message: "risk"},
	}
	require.NoError(t, a.Deliver(ctx, report, notes))

	select {
	case n := <-sub.Ch:
		assert.Equal(t, "risk", n.Message)
	default:
		t.Fatal("expected a published notification")
	}
	select {
	case n := <-sub.Ch:
		t.Fatalf("info notification should have been filtered: %+v", n)
	default:
	}

	rec, err := store.LatestReport(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", rec.ID)
	assert.Contains(t, rec.Payload, `"user_id":"u1"`)
}

func TestAnomalyRecords(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions(), nil)
	report, err := engine.BuildReport(context.Background(), "u1", map[string][]float64{
		"heart_rate": {60, 62, 60, 62, 60, 62, 60, 90},
	})
	require.NoError(t, err)
	report.GeneratedAt = time.Date(2024, 6, 11, 0, 30, 0, 0, time.UTC)
	report.AsOf = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	recs := AnomalyRecords(report, anomaly.DefaultOptions())
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "2024-06-10", rec.Day.Format(db.DayLayout), "latest sample is dated by the window end")
		assert.Equal(t, float64(90), rec.Value)
		assert.Equal(t, report.ID, rec.ReportID)
		assert.Equal(t, report.GeneratedAt, rec.DetectedAt)
	}
	assert.Equal(t, "zscore", recs[0].Method)
	assert.Equal(t, "low", recs[0].Severity)
	assert.Equal(t, "rolling", recs[1].Method)
	assert.Equal(t, "critical", recs[1].Severity)

	report.AsOf = time.Time{}
	recs = AnomalyRecords(report, anomaly.DefaultOptions())
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-06-11", recs[0].Day.Format(db.DayLayout), "falls back to the generation day")
}

func TestAnomalyRecords_LatestSampleOnly(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		inWindow int
		want     int
	}{
		{"spike early in window", []float64{60, 62, 60, 120, 60, 62, 60, 62, 60, 62}, 1, 0},
		{"spike on latest day", []float64{60, 62, 60, 62, 60, 62, 60, 90}, 2, 2},
		{"flat series", []float64{60, 60, 60, 60, 60}, 0, 0},
	}
	engine := analytics.NewEngine(analytics.DefaultOptions(), nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			report, err := engine.BuildReport(context.Background(), "u1", map[string][]float64{"heart_rate": tc.values})
			require.NoError(t, err)
			require.Equal(t, tc.inWindow, report.AnomalyCount())
			recs := AnomalyRecords(report, anomaly.DefaultOptions())
			assert.Len(t, recs, tc.want)
			for _, rec := range recs {
				assert.Equal(t, tc.values[len(tc.values)-1], rec.Value)
			}
		})
	}
}

func TestBuildAndDeliver_RepeatedBuildsKeepOneEventPerDay(t *testing.T) {
	a, store, _ := newTestAdapter(t, "")
	ctx := context.Background()
	putSeries(t, store, "u1", "heart_rate", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 60, 62, 60, 62, 60, 62, 60, 90)
	engine := analytics.NewEngine(analytics.DefaultOptions(), nil)

	for i := 0; i < 3; i++ {
		report, _, err := a.BuildAndDeliver(ctx, engine, "u1", 8)
		require.NoError(t, err)
		assert.Equal(t, "2024-06-10", report.AsOf.Format(db.DayLayout))

		recs, err := store.QueryAnomalies(ctx, db.AnomalyQuery{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, recs, 2, "build %d", i+1)
		for _, rec := range recs {
			assert.Equal(t, "2024-06-10", rec.Day.Format(db.DayLayout))
			assert.Equal(t, report.ID, rec.ReportID)
		}
	}

	summary, err := store.AnomalySummary(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"low": 1, "critical": 1}, summary)
}

func TestBuildAndDeliver_NoSamples(t *testing.T) {
	a, _, _ := newTestAdapter(t, "")
	engine := analytics.NewEngine(analytics.DefaultOptions(), nil)
	_, _, err := a.BuildAndDeliver(context.Background(), engine, "nobody", 30)
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestBuildAndDeliver_WithPipeline(t *testing.T) {
	a, store, _ := newTestAdapter(t, "")
	ctx := context.Background()
	putSeries(t, store, "u1", "stress", time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), 6, 6, 6)
	putSeries(t, store, "u2", "sleep", time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), 7, 7, 7)

	engine := analytics.NewEngine(analytics.DefaultOptions(), nil)
	p := analytics.NewPipeline(engine, a, a, time.Hour, 3, nil)
	delivered, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	for _, user := range []string{"u1", "u2"} {
		_, err := store.LatestReport(ctx, user)
		assert.NoError(t, err, user)
	}
}
