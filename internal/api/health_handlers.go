package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/odvcencio/docgraph/internal/models"
)

type dbStatsProvider interface {
	DBStats() sql.DBStats
}

type adminHealthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Queue     adminHealthQueue    `json:"queue"`
	Report    *adminHealthReport  `json:"report,omitempty"`
	Database  adminHealthDatabase `json:"database"`
	Errors    []string            `json:"errors,omitempty"`
}

type adminHealthQueue struct {
	Pending                int64   `json:"pending"`
	Processing             int64   `json:"processing"`
	Failed                 int64   `json:"failed"`
	OldestPendingAgeSecond float64 `json:"oldest_pending_age_seconds"`
}

type adminHealthReport struct {
	ComputedAt time.Time            `json:"computed_at"`
	Metrics    models.MetricsReport `json:"metrics"`
}

type adminHealthDatabase struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	WaitDurationMS  int64 `json:"wait_duration_ms"`
	MaxIdleClosed   int64 `json:"max_idle_closed"`
	MaxLifetime     int64 `json:"max_lifetime_closed"`
	MaxIdleTime     int64 `json:"max_idle_time_closed"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	resp := adminHealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	stats, err := s.db.PipelineQueueStats(r.Context())
	if err != nil {
		resp.Errors = append(resp.Errors, "pipeline_queue_stats")
	} else {
		resp.Queue.Pending = stats.Pending
		resp.Queue.Processing = stats.Processing
		resp.Queue.Failed = stats.Failed
		if stats.OldestPendingAt != nil {
			age := time.Since(stats.OldestPendingAt.UTC()).Seconds()
			if age < 0 {
				age = 0
			}
			resp.Queue.OldestPendingAgeSecond = age
		}
	}

	if s.refresher != nil {
		if report, computedAt, ok := s.refresher.LastReport(); ok {
			resp.Report = &adminHealthReport{ComputedAt: computedAt, Metrics: report}
		}
	}

	if poolProvider, ok := s.db.(dbStatsProvider); ok {
		poolStats := poolProvider.DBStats()
		resp.Database = adminHealthDatabase{
			OpenConnections: poolStats.OpenConnections,
			InUse:           poolStats.InUse,
			Idle:            poolStats.Idle,
			WaitCount:       poolStats.WaitCount,
			WaitDurationMS:  poolStats.WaitDuration.Milliseconds(),
			MaxIdleClosed:   poolStats.MaxIdleClosed,
			MaxLifetime:     poolStats.MaxLifetimeClosed,
			MaxIdleTime:     poolStats.MaxIdleTimeClosed,
		}
	}

	if len(resp.Errors) > 0 {
		resp.Status = "degraded"
		jsonResponse(w, http.StatusServiceUnavailable, resp)
		return
	}
	jsonResponse(w, http.StatusOK, resp)
}
