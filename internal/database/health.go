package database

import "time"

// PipelineQueueStats summarizes document pipeline backlog for health and
// observability endpoints. Unlike MetricsSnapshot it is unscoped and cheap:
// one SUM(CASE) query, no metadata inspection.
type PipelineQueueStats struct {
	Pending         int64
	Processing      int64
	Failed          int64
	OldestPendingAt *time.Time
}
