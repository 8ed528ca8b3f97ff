package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/docgraph/internal/models"
)

func (p *PostgresDB) RegisterInstance(ctx context.Context, inst *models.Instance) error {
	if strings.TrimSpace(inst.ID) == "" {
		return fmt.Errorf("instance id is required")
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO instances (instance_id, hostname, last_heartbeat)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (instance_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			last_heartbeat = EXCLUDED.last_heartbeat`,
		inst.ID, inst.Hostname)
	if err != nil {
		return fmt.Errorf("register instance: %w", err)
	}
	return nil
}

func (p *PostgresDB) InstanceHeartbeat(ctx context.Context, hb InstanceHeartbeat) error {
	metrics := hb.Metrics
	if len(metrics) == 0 {
		metrics = json.RawMessage("{}")
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE instances SET
			last_heartbeat = NOW(),
			processing_count = $1,
			pipeline_busy = $2,
			metrics = $3::jsonb
		 WHERE instance_id = $4`,
		hb.ProcessingCount, hb.PipelineBusy, string(metrics), hb.InstanceID)
	if err != nil {
		return fmt.Errorf("instance heartbeat: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("instance heartbeat: instance %q is not registered", hb.InstanceID)
	}
	return nil
}

func (p *PostgresDB) ListLiveInstances(ctx context.Context, cutoff time.Time) ([]models.Instance, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT instance_id, hostname, last_heartbeat, drain_requested, processing_count, pipeline_busy, metrics
		 FROM instances WHERE last_heartbeat >= $1 ORDER BY instance_id`,
		cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list live instances: %w", err)
	}
	defer rows.Close()

	var out []models.Instance
	for rows.Next() {
		var inst models.Instance
		var metrics []byte
		if err := rows.Scan(&inst.ID, &inst.Hostname, &inst.LastHeartbeat, &inst.DrainRequested,
			&inst.ProcessingCount, &inst.PipelineBusy, &metrics); err != nil {
			return nil, err
		}
		inst.Metrics = normalizeInstanceMetrics(metrics)
		out = append(out, inst)
	}
	return out, rows.Err()
}
