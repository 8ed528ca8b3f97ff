package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/docgraph/internal/models"
)

func (s *SQLiteDB) PipelineQueueStats(ctx context.Context) (PipelineQueueStats, error) {
	var stats PipelineQueueStats
	var oldestPending sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT
			 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
			 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS processing,
			 COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
			 MIN(CASE WHEN status = ? THEN created_at END) AS oldest_pending_at
		 FROM doc_status`,
		models.DocStatusPending,
		models.DocStatusProcessing,
		models.DocStatusFailed,
		models.DocStatusPending,
	).Scan(&stats.Pending, &stats.Processing, &stats.Failed, &oldestPending)
	if err != nil {
		return PipelineQueueStats{}, err
	}
	if oldestPending.Valid {
		t := oldestPending.Time.UTC()
		stats.OldestPendingAt = &t
	}
	return stats, nil
}

func (s *SQLiteDB) DBStats() sql.DBStats {
	return s.db.Stats()
}
