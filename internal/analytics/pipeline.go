package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SeriesSource supplies stored daily series per user. LoadSeries also
// returns the day the loaded window ends on.
type SeriesSource interface {
	ListUsers(ctx context.Context) ([]string, error)
	LoadSeries(ctx context.Context, userID string, days int) (map[string][]float64, time.Time, error)
}

// ReportSink receives every report the pipeline builds along with its
// morning summary.
type ReportSink interface {
	Deliver(ctx context.Context, report *Report, notes []Notification) error
}

// Pipeline periodically rebuilds reports for all known users and hands
// them to a sink.
type Pipeline struct {
	mu sync.RWMutex

	engine *Engine
	source SeriesSource
	sink   ReportSink
	logger *zap.Logger

	interval     time.Duration
	lookbackDays int
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once

	lastRun    time.Time
	lastErrors int
}

// NewPipeline creates a report pipeline. interval is the time between runs.
func NewPipeline(engine *Engine, source SeriesSource, sink ReportSink, interval time.Duration, lookbackDays int, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Pipeline{
		engine:       engine,
		source:       source,
		sink:         sink,
		logger:       logger,
		interval:     interval,
		lookbackDays: lookbackDays,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the background loop. The first run happens after one interval.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := p.RunOnce(ctx); err != nil {
					p.logger.Warn("report pipeline run failed", zap.Error(err))
				}
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the pipeline and waits for the loop to exit.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// RunOnce builds and delivers a report for every user. Per-user failures are
// logged and counted; only a failure to list users aborts the run.
func (p *Pipeline) RunOnce(ctx context.Context) (int, error) {
	users, err := p.source.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	delivered, failed := 0, 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := p.runUser(ctx, userID); err != nil {
			failed++
			p.logger.Warn("report build failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		delivered++
	}

	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastErrors = failed
	p.mu.Unlock()

	p.logger.Info("report pipeline run complete",
		zap.Int("users", len(users)),
		zap.Int("delivered", delivered),
		zap.Int("failed", failed),
	)
	return delivered, nil
}

func (p *Pipeline) runUser(ctx context.Context, userID string) error {
	data, asOf, err := p.source.LoadSeries(ctx, userID, p.lookbackDays)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	report, err := p.engine.BuildReport(ctx, userID, data)
	if err != nil {
		return err
	}
	if !asOf.IsZero() {
		report.AsOf = asOf
	}
	return p.sink.Deliver(ctx, report, p.engine.MorningSummary(report))
}

// LastRun reports when the last run finished and how many users failed.
func (p *Pipeline) LastRun() (time.Time, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun, p.lastErrors
}
