package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
	"github.com/odvcencio/docgraph/internal/service"
)

const defaultRefreshInterval = time.Minute

type RefresherOptions struct {
	Interval time.Duration
	Logger   *slog.Logger
	// Registry, when set, receives an instance heartbeat after every refresh
	// so liveness tracks the same cadence as the cached report.
	Registry *service.InstanceRegistry
}

// Refresher periodically recomputes the unscoped metrics report in the
// background and caches the latest result for the admin health endpoint.
// Scrape requests do not read the cache; they always aggregate fresh.
type Refresher struct {
	aggregator *service.Aggregator
	registry   *service.InstanceRegistry
	interval   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	reportMu   sync.RWMutex
	report     models.MetricsReport
	computedAt time.Time
	hasReport  bool
}

func NewRefresher(aggregator *service.Aggregator, opts RefresherOptions) *Refresher {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		aggregator: aggregator,
		registry:   opts.Registry,
		interval:   interval,
		logger:     logger,
	}
}

func (r *Refresher) Start(parent context.Context) error {
	if r == nil || r.aggregator == nil {
		return fmt.Errorf("refresher is not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.started = true

	go r.run(ctx, done)
	return nil
}

func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.started = false
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// LastReport returns the most recently cached report and its computation
// time. The second value is false until the first refresh completes.
func (r *Refresher) LastReport() (models.MetricsReport, time.Time, bool) {
	r.reportMu.RLock()
	defer r.reportMu.RUnlock()
	return r.report, r.computedAt, r.hasReport
}

func (r *Refresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	report, err := r.aggregator.ComputeMetrics(ctx, database.AllWorkspaces())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("refresh metrics report", "error", err)
		return
	}

	r.reportMu.Lock()
	r.report = *report
	r.computedAt = time.Now().UTC()
	r.hasReport = true
	r.reportMu.Unlock()

	r.logger.Debug("metrics report refreshed",
		"queue_depth", report.QueueDepth,
		"workspaces", report.WorkspaceCount,
	)

	if r.registry != nil {
		busy := report.Documents.Processing > 0
		if err := r.registry.Heartbeat(ctx, report.Documents.Processing, busy); err != nil && ctx.Err() == nil {
			r.logger.Error("instance heartbeat", "error", err)
		}
	}
}
