package service

import (
	"context"
	"fmt"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const metricsTracerName = "github.com/odvcencio/docgraph/internal/service"

// MetricsReader is the storage capability the aggregator consumes: one
// consistent snapshot covering document-status and graph counters.
type MetricsReader interface {
	AggregateMetrics(ctx context.Context, scope database.Scope) (database.MetricsSnapshot, error)
}

// Aggregator turns a storage snapshot into the metrics report served to
// monitoring consumers. It is stateless and safe for concurrent use;
// concurrent calls for the same scope are collapsed onto one storage read.
type Aggregator struct {
	reader MetricsReader
	group  singleflight.Group
}

func NewAggregator(reader MetricsReader) *Aggregator {
	return &Aggregator{reader: reader}
}

// ComputeMetrics builds the aggregated report for the given scope. The report
// is complete or absent: a storage failure returns an error, never a partial
// or zeroed report.
func (a *Aggregator) ComputeMetrics(ctx context.Context, scope database.Scope) (*models.MetricsReport, error) {
	tracer := otel.Tracer(metricsTracerName)
	ctx, span := tracer.Start(ctx, "metrics.aggregate")
	defer span.End()

	workspace, scoped := scope.Workspace()
	span.SetAttributes(
		attribute.Bool("metrics.scope.all", !scoped),
		attribute.String("metrics.scope.workspace", workspace),
	)

	key := "all"
	if scoped {
		key = "workspace\x00" + workspace
	}
	// The shared read runs detached from any single caller's context, so a
	// canceled caller cannot fail the other callers collapsed onto it. Each
	// caller still honors its own cancellation while waiting.
	ch := a.group.DoChan(key, func() (any, error) {
		return a.reader.AggregateMetrics(context.WithoutCancel(ctx), scope)
	})
	var snap database.MetricsSnapshot
	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "canceled")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			span.SetStatus(codes.Error, "aggregate failed")
			return nil, fmt.Errorf("aggregate metrics: %w", res.Err)
		}
		snap = res.Val.(database.MetricsSnapshot)
	}

	return &models.MetricsReport{
		Status:         "ok",
		Documents:      snap.Documents,
		Graph:          models.GraphStats{Nodes: snap.Nodes, Edges: snap.Edges},
		WorkspaceCount: snap.WorkspaceCount,
		QueueDepth:     snap.QueueDepth,
	}, nil
}
