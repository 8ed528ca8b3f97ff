package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
	"github.com/odvcencio/docgraph/internal/service"
)

type stubReader struct {
	mu    sync.Mutex
	snap  database.MetricsSnapshot
	err   error
	calls atomic.Int64
}

func (s *stubReader) AggregateMetrics(ctx context.Context, scope database.Scope) (database.MetricsSnapshot, error) {
	s.calls.Add(1)
	if _, scoped := scope.Workspace(); scoped {
		return database.MetricsSnapshot{}, errors.New("refresher must aggregate unscoped")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *stubReader) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRefresherCachesReport(t *testing.T) {
	reader := &stubReader{snap: database.MetricsSnapshot{
		Documents:  models.DocumentCounts{Pending: 2},
		QueueDepth: 2,
	}}
	r := NewRefresher(service.NewAggregator(reader), RefresherOptions{Interval: 5 * time.Millisecond})

	if _, _, ok := r.LastReport(); ok {
		t.Fatal("expected no cached report before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, _, ok := r.LastReport()
		return ok
	})

	report, computedAt, ok := r.LastReport()
	if !ok {
		t.Fatal("expected cached report")
	}
	if report.Status != "ok" || report.QueueDepth != 2 {
		t.Fatalf("cached report = %#v", report)
	}
	if computedAt.IsZero() {
		t.Fatal("expected computation timestamp")
	}
}

func TestRefresherKeepsLastGoodReportOnFailure(t *testing.T) {
	reader := &stubReader{snap: database.MetricsSnapshot{QueueDepth: 1}}
	r := NewRefresher(service.NewAggregator(reader), RefresherOptions{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, _, ok := r.LastReport()
		return ok
	})

	// Subsequent refreshes fail; the cached report must survive.
	reader.setErr(errors.New("storage down"))
	before := reader.calls.Load()
	waitFor(t, 2*time.Second, func() bool {
		return reader.calls.Load() > before
	})

	report, _, ok := r.LastReport()
	if !ok {
		t.Fatal("expected cached report to survive refresh failure")
	}
	if report.QueueDepth != 1 {
		t.Fatalf("cached report = %#v", report)
	}
}

func TestRefresherStartIsIdempotentAndStops(t *testing.T) {
	reader := &stubReader{}
	r := NewRefresher(service.NewAggregator(reader), RefresherOptions{Interval: time.Hour})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, _, ok := r.LastReport()
		return ok
	})

	r.Stop()
	// A second Stop is a no-op.
	r.Stop()
}

type recordingInstanceStore struct {
	mu         sync.Mutex
	heartbeats []database.InstanceHeartbeat
}

func (s *recordingInstanceStore) RegisterInstance(ctx context.Context, inst *models.Instance) error {
	return nil
}

func (s *recordingInstanceStore) InstanceHeartbeat(ctx context.Context, hb database.InstanceHeartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats = append(s.heartbeats, hb)
	return nil
}

func (s *recordingInstanceStore) ListLiveInstances(ctx context.Context, cutoff time.Time) ([]models.Instance, error) {
	return nil, nil
}

func (s *recordingInstanceStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heartbeats)
}

func (s *recordingInstanceStore) last() database.InstanceHeartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeats[len(s.heartbeats)-1]
}

func TestRefresherHeartbeatsRegistry(t *testing.T) {
	reader := &stubReader{snap: database.MetricsSnapshot{
		Documents: models.DocumentCounts{Pending: 1, Processing: 3},
	}}
	store := &recordingInstanceStore{}
	registry := service.NewInstanceRegistry(store, service.RegistryOptions{InstanceID: "inst-1"})
	r := NewRefresher(service.NewAggregator(reader), RefresherOptions{
		Interval: 5 * time.Millisecond,
		Registry: registry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return store.count() > 0
	})

	hb := store.last()
	if hb.InstanceID != "inst-1" {
		t.Fatalf("heartbeat instance = %q, want inst-1", hb.InstanceID)
	}
	if hb.ProcessingCount != 3 {
		t.Fatalf("heartbeat processing_count = %d, want 3", hb.ProcessingCount)
	}
	if !hb.PipelineBusy {
		t.Fatal("expected pipeline_busy while documents are processing")
	}
}

func TestRefresherNilAggregator(t *testing.T) {
	r := &Refresher{}
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured refresher")
	}
}
