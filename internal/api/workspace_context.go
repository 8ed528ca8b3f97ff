package api

import (
	"net/http"

	"github.com/odvcencio/docgraph/internal/database"
)

// workspaceContextMiddleware lifts the workspace header, when configured and
// present, into the request context. An explicit workspace in a query
// parameter or request body always wins over the header.
func (s *Server) workspaceContextMiddleware(next http.Handler) http.Handler {
	if s.workspaceHeader == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if workspace := r.Header.Get(s.workspaceHeader); workspace != "" {
			r = r.WithContext(database.WithWorkspace(r.Context(), workspace))
		}
		next.ServeHTTP(w, r)
	})
}

// scopeFromRequest resolves the workspace scope for a read endpoint.
// Resolution order: explicit ?workspace= parameter (present but empty means
// "exactly the empty identifier", which matches nothing), then the workspace
// header, then all workspaces. A repeated parameter is rejected as invalid
// before any storage read happens.
func (s *Server) scopeFromRequest(r *http.Request) (database.Scope, bool) {
	values, ok := r.URL.Query()["workspace"]
	if ok {
		if len(values) > 1 {
			return database.Scope{}, false
		}
		return database.SingleWorkspace(values[0]), true
	}
	if workspace, ok := database.WorkspaceFromContext(r.Context()); ok {
		return database.SingleWorkspace(workspace), true
	}
	return database.AllWorkspaces(), true
}
