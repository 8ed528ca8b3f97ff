package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/docgraph/internal/models"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Enable WAL mode and foreign keys
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %s: %w", pragma, err)
		}
	}
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Close() error { return s.db.Close() }

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS doc_status (
	workspace TEXT NOT NULL DEFAULT '',
	id TEXT NOT NULL,
	status TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (workspace, id)
);

CREATE INDEX IF NOT EXISTS idx_doc_status_workspace_status ON doc_status(workspace, status);

CREATE TABLE IF NOT EXISTS graph_nodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL DEFAULT '',
	entity_name TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(workspace, entity_name)
);

CREATE TABLE IF NOT EXISTS graph_edges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace TEXT NOT NULL DEFAULT '',
	source_name TEXT NOT NULL,
	target_name TEXT NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(workspace, source_name, target_name)
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_workspace ON graph_nodes(workspace);
CREATE INDEX IF NOT EXISTS idx_graph_edges_workspace ON graph_edges(workspace);

CREATE TABLE IF NOT EXISTS instances (
	instance_id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL DEFAULT '',
	last_heartbeat DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	drain_requested INTEGER NOT NULL DEFAULT 0,
	processing_count INTEGER NOT NULL DEFAULT 0,
	pipeline_busy INTEGER NOT NULL DEFAULT 0,
	metrics TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_instances_last_heartbeat ON instances(last_heartbeat);
`

func (s *SQLiteDB) UpsertDocStatus(ctx context.Context, rec *models.DocStatusRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	metadata := rec.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO doc_status (workspace, id, status, summary, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workspace, id) DO UPDATE SET
			status = excluded.status,
			summary = excluded.summary,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		rec.Workspace, rec.ID, rec.Status, rec.Summary, string(metadata), now, now)
	if err != nil {
		return fmt.Errorf("upsert doc status: %w", err)
	}
	return nil
}

func (s *SQLiteDB) GetDocStatus(ctx context.Context, workspace, id string) (*models.DocStatusRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT workspace, id, status, summary, metadata, created_at, updated_at
		 FROM doc_status WHERE workspace = ? AND id = ?`, workspace, id)
	return scanDocStatus(row)
}

func (s *SQLiteDB) ListDocStatuses(ctx context.Context, scope Scope, status string) ([]models.DocStatusRecord, error) {
	query := `SELECT workspace, id, status, summary, metadata, created_at, updated_at FROM doc_status`
	var conds []string
	var args []any
	if ws, ok := scope.Workspace(); ok {
		conds = append(conds, "workspace = ?")
		args = append(args, ws)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteDB) DeleteDocStatus(ctx context.Context, workspace, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM doc_status WHERE workspace = ? AND id = ?`, workspace, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteDB) InsertGraphNode(ctx context.Context, node *models.GraphNode) error {
	properties := node.Properties
	if len(properties) == 0 {
		properties = []byte("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_nodes (workspace, entity_name, properties)
		 VALUES (?, ?, ?)
		 ON CONFLICT(workspace, entity_name) DO UPDATE SET properties = excluded.properties`,
		node.Workspace, node.EntityName, string(properties))
	if err != nil {
		return fmt.Errorf("insert graph node: %w", err)
	}
	node.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteDB) InsertGraphEdge(ctx context.Context, edge *models.GraphEdge) error {
	properties := edge.Properties
	if len(properties) == 0 {
		properties = []byte("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_edges (workspace, source_name, target_name, properties)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(workspace, source_name, target_name) DO UPDATE SET properties = excluded.properties`,
		edge.Workspace, edge.SourceName, edge.TargetName, string(properties))
	if err != nil {
		return fmt.Errorf("insert graph edge: %w", err)
	}
	edge.ID, _ = res.LastInsertId()
	return nil
}

// AggregateMetrics reads every counter inside one transaction so the report
// reflects a single point in time even while ingestion is writing. SQLite
// gives each transaction a stable snapshot in WAL mode.
func (s *SQLiteDB) AggregateMetrics(ctx context.Context, scope Scope) (MetricsSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MetricsSnapshot{}, fmt.Errorf("begin metrics snapshot: %w", err)
	}
	defer tx.Rollback()

	docQuery := `SELECT workspace, status, metadata FROM doc_status`
	nodeQuery := `SELECT COUNT(*) FROM graph_nodes`
	edgeQuery := `SELECT COUNT(*) FROM graph_edges`
	var args []any
	if ws, ok := scope.Workspace(); ok {
		docQuery += ` WHERE workspace = ?`
		nodeQuery += ` WHERE workspace = ?`
		edgeQuery += ` WHERE workspace = ?`
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

func scanDocStatus(row *sql.Row) (*models.DocStatusRecord, error) {
	rec := &models.DocStatusRecord{}
	var metadata string
	err := row.Scan(&rec.Workspace, &rec.ID, &rec.Status, &rec.Summary, &metadata, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Metadata = []byte(metadata)
	return rec, nil
}
