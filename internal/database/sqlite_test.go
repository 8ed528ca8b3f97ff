package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/odvcencio/docgraph/internal/models"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db
}

func seedDoc(t *testing.T, db *SQLiteDB, workspace, id, status, metadata string) {
	t.Helper()
	rec := &models.DocStatusRecord{
		ID:        id,
		Workspace: workspace,
		Status:    status,
	}
	if metadata != "" {
		rec.Metadata = json.RawMessage(metadata)
	}
	if err := db.UpsertDocStatus(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteUpsertDocStatusOverwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "doc-1", "pending", "")
	seedDoc(t, db, "w1", "doc-1", "processed", `{"is_duplicate":false}`)

	got, err := db.GetDocStatus(ctx, "w1", "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "processed" {
		t.Fatalf("expected status processed after upsert, got %q", got.Status)
	}

	// Same id in a different workspace is a distinct record.
	seedDoc(t, db, "w2", "doc-1", "pending", "")
	other, err := db.GetDocStatus(ctx, "w2", "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if other.Status != "pending" {
		t.Fatalf("expected workspace-isolated record, got status %q", other.Status)
	}
}

func TestSQLiteUpsertDocStatusRequiresID(t *testing.T) {
	db := newTestDB(t)
	err := db.UpsertDocStatus(context.Background(), &models.DocStatusRecord{Workspace: "w1", Status: "pending"})
	if err == nil {
		t.Fatal("expected error for empty document id")
	}
}

func TestSQLiteListDocStatusesFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "a", "pending", "")
	seedDoc(t, db, "w1", "b", "failed", "")
	seedDoc(t, db, "w2", "c", "pending", "")

	all, err := db.ListDocStatuses(ctx, AllWorkspaces(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	w1Pending, err := db.ListDocStatuses(ctx, SingleWorkspace("w1"), "pending")
	if err != nil {
		t.Fatal(err)
	}
	if len(w1Pending) != 1 || w1Pending[0].ID != "a" {
		t.Fatalf("expected only w1/a, got %#v", w1Pending)
	}
}

func TestSQLiteDeleteDocStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "doc-1", "pending", "")
	if err := db.DeleteDocStatus(ctx, "w1", "doc-1"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteDocStatus(ctx, "w1", "doc-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing record, got %v", err)
	}
}

func TestSQLiteAggregateMetricsEmpty(t *testing.T) {
	db := newTestDB(t)

	snap, err := db.AggregateMetrics(context.Background(), AllWorkspaces())
	if err != nil {
		t.Fatal(err)
	}
	if snap != (MetricsSnapshot{}) {
		t.Fatalf("expected zero snapshot for empty store, got %#v", snap)
	}
}

func TestSQLiteAggregateMetricsUnscoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// w1: 3 pending (1 duplicate), 2 failed, 1 processed; w2: 1 pending.
	seedDoc(t, db, "w1", "p1", "pending", "")
	seedDoc(t, db, "w1", "p2", "pending", "")
	seedDoc(t, db, "w1", "p3", "pending", `{"is_duplicate":true}`)
	seedDoc(t, db, "w1", "f1", "failed", "")
	seedDoc(t, db, "w1", "f2", "failed", "")
	seedDoc(t, db, "w1", "d1", "processed", "")
	seedDoc(t, db, "w2", "p4", "pending", "")

	if err := db.InsertGraphNode(ctx, &models.GraphNode{Workspace: "w1", EntityName: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertGraphNode(ctx, &models.GraphNode{Workspace: "w2", EntityName: "beta"}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertGraphEdge(ctx, &models.GraphEdge{Workspace: "w1", SourceName: "alpha", TargetName: "gamma"}); err != nil {
		t.Fatal(err)
	}

	snap, err := db.AggregateMetrics(ctx, AllWorkspaces())
	if err != nil {
		t.Fatal(err)
	}
	want := MetricsSnapshot{
		Documents:      models.DocumentCounts{Pending: 4, Failed: 2, Processed: 1},
		QueueDepth:     5, // 3 non-duplicate pending + 2 failed
		WorkspaceCount: 2,
		Nodes:          2,
		Edges:          1,
	}
	if snap != want {
		t.Fatalf("snapshot = %#v, want %#v", snap, want)
	}
}

func TestSQLiteAggregateMetricsScoped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "p1", "pending", "")
	seedDoc(t, db, "w2", "p2", "pending", "")
	if err := db.InsertGraphNode(ctx, &models.GraphNode{Workspace: "w2", EntityName: "beta"}); err != nil {
		t.Fatal(err)
	}

	snap, err := db.AggregateMetrics(ctx, SingleWorkspace("w2"))
	if err != nil {
		t.Fatal(err)
	}
	want := MetricsSnapshot{
		Documents:      models.DocumentCounts{Pending: 1},
		QueueDepth:     1,
		WorkspaceCount: 1,
		Nodes:          1,
	}
	if snap != want {
		t.Fatalf("snapshot = %#v, want %#v", snap, want)
	}

	// A scope that matches nothing is not an error, just zeros. The empty
	// string is a valid identifier that happens to have no records here.
	for _, name := range []string{"w3", ""} {
		snap, err := db.AggregateMetrics(ctx, SingleWorkspace(name))
		if err != nil {
			t.Fatalf("scope %q: %v", name, err)
		}
		if snap != (MetricsSnapshot{}) {
			t.Fatalf("scope %q: expected zero snapshot, got %#v", name, snap)
		}
	}
}

func TestSQLiteAggregateMetricsUnknownStatusAndMalformedMetadata(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "a", "archived", "")
	seedDoc(t, db, "w1", "b", "pending", `{is_duplicate: yes`)

	snap, err := db.AggregateMetrics(ctx, AllWorkspaces())
	if err != nil {
		t.Fatal(err)
	}
	// "archived" lands in no bucket but its workspace still counts; the
	// malformed duplicate flag fails open into the backlog.
	want := MetricsSnapshot{
		Documents:      models.DocumentCounts{Pending: 1},
		QueueDepth:     1,
		WorkspaceCount: 1,
	}
	if snap != want {
		t.Fatalf("snapshot = %#v, want %#v", snap, want)
	}
}

func TestSQLiteAggregateMetricsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "a", "pending", "")
	seedDoc(t, db, "w1", "b", "failed", `{"is_duplicate":true}`)

	first, err := db.AggregateMetrics(ctx, AllWorkspaces())
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.AggregateMetrics(ctx, AllWorkspaces())
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("repeated aggregation diverged: %#v vs %#v", first, second)
	}
}

func TestSQLitePipelineQueueStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDoc(t, db, "w1", "a", "pending", "")
	seedDoc(t, db, "w1", "b", "processing", "")
	seedDoc(t, db, "w2", "c", "failed", "")
	seedDoc(t, db, "w2", "d", "processed", "")

	stats, err := db.PipelineQueueStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Pending != 1 || stats.Processing != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected queue stats: %#v", stats)
	}
	if stats.OldestPendingAt == nil {
		t.Fatal("expected oldest pending timestamp")
	}
}

func TestSQLiteGraphUpsertsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.InsertGraphNode(ctx, &models.GraphNode{Workspace: "w1", EntityName: "alpha"}); err != nil {
			t.Fatal(err)
		}
		if err := db.InsertGraphEdge(ctx, &models.GraphEdge{Workspace: "w1", SourceName: "alpha", TargetName: "beta"}); err != nil {
			t.Fatal(err)
		}
	}

	snap, err := db.AggregateMetrics(ctx, AllWorkspaces())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Nodes != 1 || snap.Edges != 1 {
		t.Fatalf("expected 1 node and 1 edge after repeat inserts, got %d/%d", snap.Nodes, snap.Edges)
	}
}
