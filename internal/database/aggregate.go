package database

import (
	"database/sql"

	"github.com/odvcencio/docgraph/internal/models"
)

// aggregateDocRows folds one pass over (workspace, status, metadata) rows
// into status buckets, queue depth, and the distinct workspace count. Shared
// by both backends; the caller owns transaction scope and row ordering.
//
// Classification rules:
//   - statuses outside the five-value enumeration count toward no bucket and
//     never toward queue depth, but their workspace still counts;
//   - queue depth is pending+failed rows whose metadata does not carry a
//     truthy is_duplicate flag (models.ParseIsDuplicate is fail-open, so a
//     malformed row counts as backlog rather than aborting the report).
func aggregateDocRows(rows *sql.Rows) (MetricsSnapshot, error) {
	defer rows.Close()

	var snap MetricsSnapshot
	workspaces := make(map[string]struct{})
	for rows.Next() {
		var workspace, status string
		var metadata []byte
		if err := rows.Scan(&workspace, &status, &metadata); err != nil {
			return MetricsSnapshot{}, err
		}
		workspaces[workspace] = struct{}{}

		parsed, ok := models.ParseDocStatus(status)
		if !ok {
			continue
		}
		switch parsed {
		case models.DocStatusPending:
			snap.Documents.Pending++
		case models.DocStatusProcessing:
			snap.Documents.Processing++
		case models.DocStatusProcessed:
			snap.Documents.Processed++
		case models.DocStatusFailed:
			snap.Documents.Failed++
		case models.DocStatusPreprocessed:
			snap.Documents.Preprocessed++
		}

		if parsed == models.DocStatusPending || parsed == models.DocStatusFailed {
			if !models.ParseIsDuplicate(metadata) {
				snap.QueueDepth++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return MetricsSnapshot{}, err
	}
	snap.WorkspaceCount = int64(len(workspaces))
	return snap, nil
}
