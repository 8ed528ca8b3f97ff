package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/odvcencio/docgraph/internal/models"
)

// InstanceHeartbeat is one liveness update. Metrics carries the instance's
// self-reported counters as raw JSON; empty means "no payload", stored as {}.
type InstanceHeartbeat struct {
	InstanceID      string
	ProcessingCount int64
	PipelineBusy    bool
	Metrics         json.RawMessage
}

// Scope selects which workspaces a read covers: every workspace, or exactly
// one identifier compared by exact string equality. A scoped read on an
// identifier with no records (including the empty string) matches nothing;
// it is never an error.
type Scope struct {
	workspace string
	scoped    bool
}

// AllWorkspaces is the unbounded scope.
func AllWorkspaces() Scope { return Scope{} }

// SingleWorkspace scopes a read to one workspace identifier.
func SingleWorkspace(name string) Scope { return Scope{workspace: name, scoped: true} }

// Workspace returns the scoped identifier, or false for the unbounded scope.
func (s Scope) Workspace() (string, bool) { return s.workspace, s.scoped }

// MetricsSnapshot holds the raw counters produced by one consistent read.
// All sub-counts reflect the same point-in-time view of the data.
type MetricsSnapshot struct {
	Documents      models.DocumentCounts
	QueueDepth     int64
	WorkspaceCount int64
	Nodes          int64
	Edges          int64
}

// DB defines the data access interface. Implemented by SQLite and PostgreSQL backends.
type DB interface {
	Close() error
	Migrate(ctx context.Context) error

	// Document status records
	UpsertDocStatus(ctx context.Context, rec *models.DocStatusRecord) error
	GetDocStatus(ctx context.Context, workspace, id string) (*models.DocStatusRecord, error)
	ListDocStatuses(ctx context.Context, scope Scope, status string) ([]models.DocStatusRecord, error)
	DeleteDocStatus(ctx context.Context, workspace, id string) error

	// Graph
	InsertGraphNode(ctx context.Context, node *models.GraphNode) error
	InsertGraphEdge(ctx context.Context, edge *models.GraphEdge) error

	// Instance registry. RegisterInstance claims a row for this process;
	// InstanceHeartbeat refreshes its liveness plus the metrics payload;
	// ListLiveInstances returns every instance whose heartbeat is at or
	// after the cutoff.
	RegisterInstance(ctx context.Context, inst *models.Instance) error
	InstanceHeartbeat(ctx context.Context, hb InstanceHeartbeat) error
	ListLiveInstances(ctx context.Context, cutoff time.Time) ([]models.Instance, error)

	// AggregateMetrics computes every metrics counter against one consistent
	// snapshot: a single transaction covering one pass over the filtered
	// document-status rows plus the two graph counts.
	AggregateMetrics(ctx context.Context, scope Scope) (MetricsSnapshot, error)

	// PipelineQueueStats summarizes pipeline backlog for health endpoints.
	PipelineQueueStats(ctx context.Context) (PipelineQueueStats, error)
}
