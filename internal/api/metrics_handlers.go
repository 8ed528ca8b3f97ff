package api

import (
	"log/slog"
	"net/http"
)

// handleDocumentMetrics serves the aggregated report consumed by monitoring
// systems. The report is computed against a single storage snapshot; when
// that read fails the endpoint returns an error body rather than a zeroed
// "ok" report.
func (s *Server) handleDocumentMetrics(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(r)
	if !ok {
		jsonError(w, "workspace may be given at most once", http.StatusBadRequest)
		return
	}

	report, err := s.aggregator.ComputeMetrics(r.Context(), scope)
	if err != nil {
		slog.Error("compute document metrics", "error", err)
		jsonError(w, "metrics aggregation unavailable", http.StatusServiceUnavailable)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}
