package api

import (
	"net/http"
)

// handleClusterMetrics serves the multi-instance view: per-instance heartbeat
// payloads and summed totals across every live instance. The registry layer
// already degrades to a local-only report when no registry rows are live, so
// this endpoint never fails outright over registry state.
func (s *Server) handleClusterMetrics(w http.ResponseWriter, r *http.Request) {
	report := s.instances.ClusterMetrics(r.Context())
	jsonResponse(w, http.StatusOK, report)
}
