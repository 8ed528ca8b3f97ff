package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/docgraph/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresDB struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*PostgresDB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error { return p.db.Close() }

func (p *PostgresDB) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, pgSchema)
	return err
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS doc_status (
	workspace TEXT NOT NULL DEFAULT '',
	id TEXT NOT NULL,
	status TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (workspace, id)
);

CREATE INDEX IF NOT EXISTS idx_doc_status_workspace_status ON doc_status(workspace, status);

CREATE TABLE IF NOT EXISTS graph_nodes (
	id BIGSERIAL PRIMARY KEY,
	workspace TEXT NOT NULL DEFAULT '',
	entity_name TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(workspace, entity_name)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	id BIGSERIAL PRIMARY KEY,
	workspace TEXT NOT NULL DEFAULT '',
	source_name TEXT NOT NULL,
	target_name TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(workspace, source_name, target_name)
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_workspace ON graph_nodes(workspace);
CREATE INDEX IF NOT EXISTS idx_graph_edges_workspace ON graph_edges(workspace);

CREATE TABLE IF NOT EXISTS instances (
	instance_id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL DEFAULT '',
	last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	drain_requested BOOLEAN NOT NULL DEFAULT FALSE,
	processing_count BIGINT NOT NULL DEFAULT 0,
	pipeline_busy BOOLEAN NOT NULL DEFAULT FALSE,
	metrics JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_instances_last_heartbeat ON instances(last_heartbeat);
`

func (p *PostgresDB) UpsertDocStatus(ctx context.Context, rec *models.DocStatusRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	metadata := rec.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	now := time.Now().UTC()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO doc_status (workspace, id, status, summary, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (workspace, id) DO UPDATE SET
			status = EXCLUDED.status,
			summary = EXCLUDED.summary,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`,
		rec.Workspace, rec.ID, rec.Status, rec.Summary, string(metadata), now, now)
	if err != nil {
		return fmt.Errorf("upsert doc status: %w", err)
	}
	return nil
}

func (p *PostgresDB) GetDocStatus(ctx context.Context, workspace, id string) (*models.DocStatusRecord, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT workspace, id, status, summary, metadata, created_at, updated_at
		 FROM doc_status WHERE workspace = $1 AND id = $2`, workspace, id)
	return scanDocStatus(row)
}

func (p *PostgresDB) ListDocStatuses(ctx context.Context, scope Scope, status string) ([]models.DocStatusRecord, error) {
	query := `SELECT workspace, id, status, summary, metadata, created_at, updated_at FROM doc_status`
	var conds []string
	var args []any
	if ws, ok := scope.Workspace(); ok {
		args = append(args, ws)
		conds = append(conds, fmt.Sprintf("workspace = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocStatusRecord
	for rows.Next() {
		var rec models.DocStatusRecord
		var metadata string
		if err := rows.Scan(&rec.Workspace, &rec.ID, &rec.Status, &rec.Summary, &metadata, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Metadata = []byte(metadata)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresDB) DeleteDocStatus(ctx context.Context, workspace, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM doc_status WHERE workspace = $1 AND id = $2`, workspace, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (p *PostgresDB) InsertGraphNode(ctx context.Context, node *models.GraphNode) error {
	properties := node.Properties
	if len(properties) == 0 {
		properties = []byte("{}")
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO graph_nodes (workspace, entity_name, properties)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (workspace, entity_name) DO UPDATE SET properties = EXCLUDED.properties
		 RETURNING id`,
		node.Workspace, node.EntityName, string(properties)).Scan(&node.ID)
	if err != nil {
		return fmt.Errorf("insert graph node: %w", err)
	}
	return nil
}

func (p *PostgresDB) InsertGraphEdge(ctx context.Context, edge *models.GraphEdge) error {
	properties := edge.Properties
	if len(properties) == 0 {
		properties = []byte("{}")
	}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO graph_edges (workspace, source_name, target_name, properties)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (workspace, source_name, target_name) DO UPDATE SET properties = EXCLUDED.properties
		 RETURNING id`,
		edge.Workspace, edge.SourceName, edge.TargetName, string(properties)).Scan(&edge.ID)
	if err != nil {
		return fmt.Errorf("insert graph edge: %w", err)
	}
	return nil
}

// AggregateMetrics runs every counter in one REPEATABLE READ read-only
// transaction, so all sub-counts see the same database snapshot even under
// concurrent ingestion writes.
func (p *PostgresDB) AggregateMetrics(ctx context.Context, scope Scope) (MetricsSnapshot, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("begin metrics snapshot: %w", err)
	}
	defer tx.Rollback()

	docQuery := `SELECT workspace, status, metadata FROM doc_status`
	nodeQuery := `SELECT COUNT(*) FROM graph_nodes`
	edgeQuery := `SELECT COUNT(*) FROM graph_edges`
	var args []any
	if ws, ok := scope.Workspace(); ok {
		docQuery += ` WHERE workspace = $1`
		nodeQuery += ` WHERE workspace = $1`
		edgeQuery += ` WHERE workspace = $1`
		args = append(args, ws)
	}

	rows, err := tx.QueryContext(ctx, docQuery, args...)
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("scan doc statuses: %w", err)
	}
	snap, err := aggregateDocRows(rows)
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("aggregate doc statuses: %w", err)
	}

	if err := tx.QueryRowContext(ctx, nodeQuery, args...).Scan(&snap.Nodes); err != nil {
		return MetricsSnapshot{}, fmt.Errorf("count graph nodes: %w", err)
	}
	if err := tx.QueryRowContext(ctx, edgeQuery, args...).Scan(&snap.Edges); err != nil {
		return MetricsSnapshot{}, fmt.Errorf("count graph edges: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return MetricsSnapshot{}, fmt.Errorf("commit metrics snapshot: %w", err)
	}
	return snap, nil
}
