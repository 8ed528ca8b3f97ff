package models

import (
	"encoding/json"
	"time"
)

// DocStatus is the processing state of a tracked document. The set is closed:
// values outside it are preserved in storage but never counted in metrics.
type DocStatus string

const (
	DocStatusPending      DocStatus = "pending"
	DocStatusProcessing   DocStatus = "processing"
	DocStatusProcessed    DocStatus = "processed"
	DocStatusFailed       DocStatus = "failed"
	DocStatusPreprocessed DocStatus = "preprocessed"
)

// DocStatuses lists the recognized statuses in report order.
func DocStatuses() []DocStatus {
	return []DocStatus{
		DocStatusPending,
		DocStatusProcessing,
		DocStatusProcessed,
		DocStatusFailed,
		DocStatusPreprocessed,
	}
}

// ParseDocStatus reports whether raw is one of the recognized statuses.
func ParseDocStatus(raw string) (DocStatus, bool) {
	switch DocStatus(raw) {
	case DocStatusPending, DocStatusProcessing, DocStatusProcessed,
		DocStatusFailed, DocStatusPreprocessed:
		return DocStatus(raw), true
	default:
		return "", false
	}
}

type DocStatusRecord struct {
	ID        string          `json:"id"`
	Workspace string          `json:"workspace"`
	Status    string          `json:"status"`
	Summary   string          `json:"summary,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsDuplicate reports whether the record's metadata marks it as a duplicate
// of another document. Duplicates stay in the status buckets but contribute
// no actionable work, so they are excluded from queue depth.
func (r *DocStatusRecord) IsDuplicate() bool {
	return ParseIsDuplicate(r.Metadata)
}

// ParseIsDuplicate extracts the is_duplicate flag from raw document metadata.
// This is the fail-open boundary for data quality: missing, malformed, or
// non-boolean metadata means "not a duplicate" so that one bad record cannot
// abort an aggregation or understate the backlog.
func ParseIsDuplicate(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var meta struct {
		IsDuplicate *bool `json:"is_duplicate"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return false
	}
	return meta.IsDuplicate != nil && *meta.IsDuplicate
}

type GraphNode struct {
	ID         int64           `json:"id"`
	Workspace  string          `json:"workspace"`
	EntityName string          `json:"entity_name"`
	Properties json.RawMessage `json:"properties,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type GraphEdge struct {
	ID         int64           `json:"id"`
	Workspace  string          `json:"workspace"`
	SourceName string          `json:"source_name"`
	TargetName string          `json:"target_name"`
	Properties json.RawMessage `json:"properties,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DocumentCounts maps each recognized status to its count. All five keys are
// always present in the JSON form, zero-filled when empty.
type DocumentCounts struct {
	Pending      int64 `json:"pending"`
	Processing   int64 `json:"processing"`
	Processed    int64 `json:"processed"`
	Failed       int64 `json:"failed"`
	Preprocessed int64 `json:"preprocessed"`
}

// Total sums the five recognized buckets.
func (c DocumentCounts) Total() int64 {
	return c.Pending + c.Processing + c.Processed + c.Failed + c.Preprocessed
}

type GraphStats struct {
	Nodes int64 `json:"nodes"`
	Edges int64 `json:"edges"`
}

// MetricsReport is the aggregated snapshot returned by the metrics endpoint.
// Field names are stable for downstream scrape consumers.
type MetricsReport struct {
	Status         string         `json:"status"`
	Documents      DocumentCounts `json:"documents"`
	Graph          GraphStats     `json:"graph"`
	WorkspaceCount int64          `json:"workspace_count"`
	QueueDepth     int64          `json:"queue_depth"`
}
