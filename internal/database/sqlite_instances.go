package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/docgraph/internal/models"
)

func (s *SQLiteDB) RegisterInstance(ctx context.Context, inst *models.Instance) error {
	if strings.TrimSpace(inst.ID) == "" {
		return fmt.Errorf("instance id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (instance_id, hostname, last_heartbeat)
		 VALUES (?, ?, ?)
		 ON CONFLICT(instance_id) DO UPDATE SET
			hostname = excluded.hostname,
			last_heartbeat = excluded.last_heartbeat`,
		inst.ID, inst.Hostname, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	return nil
}

func (s *SQLiteDB) InstanceHeartbeat(ctx context.Context, hb InstanceHeartbeat) error {
	metrics := hb.Metrics
	if len(metrics) == 0 {
		metrics = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE instances SET
			last_heartbeat = ?,
			processing_count = ?,
			pipeline_busy = ?,
			metrics = ?
		 WHERE instance_id = ?`,
		time.Now().UTC(), hb.ProcessingCount, hb.PipelineBusy, string(metrics), hb.InstanceID)
	if err != nil {
		return fmt.Errorf("instance heartbeat: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("instance heartbeat: instance %q is not registered", hb.InstanceID)
	}
	return nil
}

func (s *SQLiteDB) ListLiveInstances(ctx context.Context, cutoff time.Time) ([]models.Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, hostname, last_heartbeat, drain_requested, processing_count, pipeline_busy, metrics
		 FROM instances WHERE last_heartbeat >= ? ORDER BY instance_id`,
		cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list live instances: %w", err)
	}
	defer rows.Close()

	var out []models.Instance
	for rows.Next() {
		var inst models.Instance
		var metrics string
		if err := rows.Scan(&inst.ID, &inst.Hostname, &inst.LastHeartbeat, &inst.DrainRequested,
			&inst.ProcessingCount, &inst.PipelineBusy, &metrics); err != nil {
			return nil, err
		}
		inst.Metrics = normalizeInstanceMetrics([]byte(metrics))
		out = append(out, inst)
	}
	return out, rows.Err()
}

// normalizeInstanceMetrics applies the fail-open rule to a stored metrics
// payload: null, empty, or invalid JSON reads as the empty object so a bad
// heartbeat payload cannot take the cluster view down.
func normalizeInstanceMetrics(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
