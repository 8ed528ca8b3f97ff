package models

import (
	"encoding/json"
	"time"
)

// Instance is one registered server process. Each instance heartbeats its
// pipeline counters plus a free-form metrics payload; liveness is judged by
// heartbeat age, never by explicit deregistration.
type Instance struct {
	ID              string          `json:"instance_id"`
	Hostname        string          `json:"hostname"`
	LastHeartbeat   time.Time       `json:"last_heartbeat"`
	DrainRequested  bool            `json:"drain_requested"`
	ProcessingCount int64           `json:"processing_count"`
	PipelineBusy    bool            `json:"pipeline_busy"`
	Metrics         json.RawMessage `json:"metrics"`
}

// MetricValue extracts a numeric field from the instance's metrics payload.
// Missing keys, malformed payloads, and non-numeric values all read as zero
// so that one bad instance cannot break cluster-wide sums.
func (i *Instance) MetricValue(key string) float64 {
	if len(i.Metrics) == 0 {
		return 0
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(i.Metrics, &payload); err != nil {
		return 0
	}
	raw, ok := payload[key]
	if !ok {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}

// ClusterTotals are the counters summed across live instances.
type ClusterTotals struct {
	ProcessingCount int64 `json:"processing_count"`
	PipelinesBusy   int64 `json:"pipelines_busy"`
	DBPoolActive    int64 `json:"db_pool_active"`
}

// ClusterReport is the multi-instance view served alongside the storage
// snapshot: every live instance's heartbeat payload plus summed totals.
// Source is "registry" when built from live registry rows and "local" when
// the registry was empty or unreachable and only this process's own counters
// could be reported.
type ClusterReport struct {
	Status        string        `json:"status"`
	Source        string        `json:"source"`
	InstanceCount int           `json:"instance_count"`
	Totals        ClusterTotals `json:"totals"`
	Instances     []Instance    `json:"instances"`
}
