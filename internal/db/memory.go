package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMemoryCapacity is the number of days kept per series by the
// in-memory store: roughly two years of daily samples.
const DefaultMemoryCapacity = 730

// sample is an internal storage entry.
type sample struct {
	day        time.Time
	value      float64
	recordedAt time.Time
}

// ringBuffer is a fixed-capacity circular buffer of daily samples. Writing a
// day that is already buffered replaces it in place.
type ringBuffer struct {
	data     []sample
	head     int
	size     int
	capacity int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		data:     make([]sample, capacity),
		capacity: capacity,
	}
}

func (rb *ringBuffer) upsert(s sample) {
	for i := 0; i < rb.size; i++ {
		idx := (rb.head + i) % rb.capacity
		if rb.data[idx].day.Equal(s.day) {
			rb.data[idx] = s
			return
		}
	}
	idx := (rb.head + rb.size) % rb.capacity
	rb.data[idx] = s
	if rb.size < rb.capacity {
		rb.size++
	} else {
		rb.head = (rb.head + 1) % rb.capacity
	}
}

// slice returns all samples ordered by day.
func (rb *ringBuffer) slice() []sample {
	out := make([]sample, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.data[(rb.head+i)%rb.capacity]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].day.Before(out[j].day) })
	return out
}

// retain drops samples before the cutoff and returns how many were removed.
func (rb *ringBuffer) retain(cutoff time.Time) int {
	kept := make([]sample, 0, rb.size)
	for _, s := range rb.slice() {
		if !s.day.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	removed := rb.size - len(kept)
	rb.head, rb.size = 0, 0
	for _, s := range kept {
		rb.upsert(s)
	}
	return removed
}

// memoryStore is the in-memory Store implementation used for
// database.type=memory and in tests.
type memoryStore struct {
	mu sync.RWMutex
	// key = userID + "\x00" + metric
	series   map[string]*ringBuffer
	capacity int

	anomalies []*AnomalyRecord
	nextID    int64
	reports   []*ReportRecord
}

// NewMemoryStore creates an in-memory store keeping up to capacity days per
// series. A non-positive capacity uses DefaultMemoryCapacity.
func NewMemoryStore(capacity int) Store {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &memoryStore{
		series:   make(map[string]*ringBuffer),
		capacity: capacity,
	}
}

func seriesKey(userID, metric string) string {
	return userID + "\x00" + metric
}

func splitKey(k string) (userID, metric string) {
	i := strings.IndexByte(k, 0)
	return k[:i], k[i+1:]
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// ─── Samples ──────────────────────────────────────────────────────────────────

func (m *memoryStore) UpsertSamples(ctx context.Context, recs []*SampleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		k := seriesKey(rec.UserID, rec.Metric)
		rb, ok := m.series[k]
		if !ok {
			rb = newRingBuffer(m.capacity)
			m.series[k] = rb
		}
		recorded := rec.RecordedAt
		if recorded.IsZero() {
			recorded = time.Now()
		}
		rb.upsert(sample{day: Day(rec.Day), value: rec.Value, recordedAt: recorded.UTC()})
	}
	return nil
}

func (m *memoryStore) QuerySamples(ctx context.Context, userID, metric string, from, to time.Time) ([]*SampleRecord, error) {
	m.mu.RLock()
	rb, ok := m.series[seriesKey(userID, metric)]
	var points []sample
	if ok {
		points = rb.slice()
	}
	m.mu.RUnlock()

	from, to = Day(from), Day(to)
	var result []*SampleRecord
	for _, p := range points {
		if p.day.Before(from) || p.day.After(to) {
			continue
		}
		result = append(result, &SampleRecord{
			UserID:     userID,
			Metric:     metric,
			Day:        p.day,
			Value:      p.value,
			RecordedAt: p.recordedAt,
		})
	}
	return result, nil
}

func (m *memoryStore) QuerySeries(ctx context.Context, userID, metric string, from, to time.Time) ([]float64, error) {
	recs, err := m.QuerySamples(ctx, userID, metric, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]float64, len(recs))
	for _, r := range recs {
		byDay[r.Day.Format(DayLayout)] = r.Value
	}
	return denseSeries(from, to, byDay), nil
}

func (m *memoryStore) ListMetrics(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for k, rb := range m.series {
		if u, metric := splitKey(k); u == userID && rb.size > 0 {
			out = append(out, metric)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) ListUsers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	out := []string{}
	for k, rb := range m.series {
		u, _ := splitKey(k)
		if rb.size > 0 && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryStore) DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	cutoff := Day(before)
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for _, rb := range m.series {
		removed += int64(rb.retain(cutoff))
	}
	return removed, nil
}

// ─── Anomalies ────────────────────────────────────────────────────────────────

func (m *memoryStore) AppendAnomalies(ctx context.Context, recs []*AnomalyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if rec.DetectedAt.IsZero() {
			rec.DetectedAt = time.Now().UTC()
		}
		cp := *rec
		cp.Day = Day(rec.Day)
		if i := m.anomalyIndex(&cp); i >= 0 {
			cp.ID = m.anomalies[i].ID
			rec.ID = cp.ID
			m.anomalies[i] = &cp
			continue
		}
		m.nextID++
		rec.ID = m.nextID
		cp.ID = rec.ID
		m.anomalies = append(m.anomalies, &cp)
	}
	return nil
}

// anomalyIndex finds the stored event for the same user, metric, method
// and day, or returns -1.
func (m *memoryStore) anomalyIndex(rec *AnomalyRecord) int {
	for i, a := range m.anomalies {
		if a.UserID == rec.UserID && a.Metric == rec.Metric && a.Method == rec.Method && a.Day.Equal(rec.Day) {
			return i
		}
	}
	return -1
}

func (m *memoryStore) QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*AnomalyRecord, error) {
	m.mu.RLock()
	var matched []*AnomalyRecord
	for _, a := range m.anomalies {
		if q.UserID != "" && a.UserID != q.UserID {
			continue
		}
		if q.Metric != "" && a.Metric != q.Metric {
			continue
		}
		if q.Method != "" && a.Method != q.Method {
			continue
		}
		if q.Severity != "" && a.Severity != q.Severity {
			continue
		}
		if !q.From.IsZero() && a.DetectedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && a.DetectedAt.After(q.To) {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].DetectedAt.Equal(matched[j].DetectedAt) {
			return matched[i].DetectedAt.After(matched[j].DetectedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (m *memoryStore) AnomalySummary(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	recs, err := m.QueryAnomalies(ctx, AnomalyQuery{UserID: userID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	summary := map[string]int{}
	for _, r := range recs {
		summary[r.Severity]++
	}
	return summary, nil
}

// ─── Reports ──────────────────────────────────────────────────────────────────

func (m *memoryStore) SaveReport(ctx context.Context, rec *ReportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	for i, r := range m.reports {
		if r.ID == rec.ID {
			m.reports[i] = &cp
			return nil
		}
	}
	m.reports = append(m.reports, &cp)
	return nil
}

func (m *memoryStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.reports {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryStore) LatestReport(ctx context.Context, userID string) (*ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *ReportRecord
	for _, r := range m.reports {
		if r.UserID != userID {
			continue
		}
		// later insertion wins ties, matching rowid order in SQLite
		if latest == nil || !r.CreatedAt.Before(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}
