package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
)

type stubMetricsReader struct {
	snap  database.MetricsSnapshot
	err   error
	calls atomic.Int64
	block chan struct{}
}

func (s *stubMetricsReader) AggregateMetrics(ctx context.Context, scope database.Scope) (database.MetricsSnapshot, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return s.snap, s.err
}

func TestComputeMetricsAssemblesReport(t *testing.T) {
	reader := &stubMetricsReader{
		snap: database.MetricsSnapshot{
			Documents:      models.DocumentCounts{Pending: 4, Failed: 2, Processed: 1},
			QueueDepth:     5,
			WorkspaceCount: 2,
			Nodes:          7,
			Edges:          3,
		},
	}
	agg := NewAggregator(reader)

	report, err := agg.ComputeMetrics(context.Background(), database.AllWorkspaces())
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if report.Status != "ok" {
		t.Fatalf("report.Status = %q, want ok", report.Status)
	}
	if report.Documents != reader.snap.Documents {
		t.Fatalf("report.Documents = %#v", report.Documents)
	}
	if report.Graph.Nodes != 7 || report.Graph.Edges != 3 {
		t.Fatalf("report.Graph = %#v", report.Graph)
	}
	if report.WorkspaceCount != 2 || report.QueueDepth != 5 {
		t.Fatalf("report = %#v", report)
	}
	if report.QueueDepth > report.Documents.Pending+report.Documents.Failed {
		t.Fatalf("queue depth %d exceeds pending+failed %d", report.QueueDepth, report.Documents.Pending+report.Documents.Failed)
	}
}

func TestComputeMetricsEmptyStoreIsZeroFilledOK(t *testing.T) {
	agg := NewAggregator(&stubMetricsReader{})

	report, err := agg.ComputeMetrics(context.Background(), database.AllWorkspaces())
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if report.Status != "ok" {
		t.Fatalf("report.Status = %q, want ok", report.Status)
	}
	if report.Documents != (models.DocumentCounts{}) || report.QueueDepth != 0 || report.WorkspaceCount != 0 {
		t.Fatalf("expected zero-filled report, got %#v", report)
	}
}

func TestComputeMetricsStorageErrorReturnsNoReport(t *testing.T) {
	readErr := errors.New("connection refused")
	agg := NewAggregator(&stubMetricsReader{err: readErr})

	report, err := agg.ComputeMetrics(context.Background(), database.AllWorkspaces())
	if err == nil {
		t.Fatal("expected error from failed storage read")
	}
	if !errors.Is(err, readErr) {
		t.Fatalf("error = %v, want wrapped %v", err, readErr)
	}
	if report != nil {
		t.Fatalf("expected nil report on failure, got %#v", report)
	}
}

func TestComputeMetricsCollapsesConcurrentCallsPerScope(t *testing.T) {
	reader := &stubMetricsReader{block: make(chan struct{})}
	agg := NewAggregator(reader)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = agg.ComputeMetrics(context.Background(), database.SingleWorkspace("w1"))
		}(i)
	}

	// Let the goroutines pile onto the in-flight read, then release it.
	close(reader.block)
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := reader.calls.Load(); got > callers {
		t.Fatalf("reader called %d times for %d callers", got, callers)
	}
}

func TestComputeMetricsCanceledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	reader := &stubMetricsReader{
		snap:  database.MetricsSnapshot{QueueDepth: 4},
		block: release,
	}
	agg := NewAggregator(reader)

	started := make(chan struct{})
	firstErr := make(chan error, 1)
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	go func() {
		close(started)
		_, err := agg.ComputeMetrics(firstCtx, database.AllWorkspaces())
		firstErr <- err
	}()
	<-started

	// Give the first caller time to start the shared read, then join a
	// second caller onto it before canceling the first.
	waitFor(t, 2*time.Second, func() bool { return reader.calls.Load() > 0 })

	secondErr := make(chan error, 1)
	var secondReport *models.MetricsReport
	go func() {
		report, err := agg.ComputeMetrics(context.Background(), database.AllWorkspaces())
		secondReport = report
		secondErr <- err
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller error = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("surviving caller failed: %v", err)
	}
	if secondReport == nil || secondReport.QueueDepth != 4 {
		t.Fatalf("surviving caller report = %#v", secondReport)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestComputeMetricsScopeKeysDoNotCollide(t *testing.T) {
	reader := &stubMetricsReader{}
	agg := NewAggregator(reader)

	// Sequential calls with distinct scopes must each reach storage.
	if _, err := agg.ComputeMetrics(context.Background(), database.SingleWorkspace("w1")); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.ComputeMetrics(context.Background(), database.SingleWorkspace("w2")); err != nil {
		t.Fatal(err)
	}
	if _, err := agg.ComputeMetrics(context.Background(), database.AllWorkspaces()); err != nil {
		t.Fatal(err)
	}
	if got := reader.calls.Load(); got != 3 {
		t.Fatalf("reader called %d times, want 3", got)
	}
}
