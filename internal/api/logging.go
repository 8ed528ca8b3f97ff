package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxAPIBodyBytes int64 = 2 << 20

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

// requestWorkspace resolves the workspace a request addresses, for log and
// trace attribution only: an explicit single-valued query parameter wins,
// then the configured scope header. Empty means unscoped (or ambiguous, which
// the handler rejects on its own).
func (s *Server) requestWorkspace(r *http.Request) string {
	if values, ok := r.URL.Query()["workspace"]; ok && len(values) == 1 {
		return values[0]
	}
	if s.workspaceHeader != "" {
		return r.Header.Get(s.workspaceHeader)
	}
	return ""
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.written,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if workspace := s.requestWorkspace(r); workspace != "" {
			attrs = append(attrs, "workspace", workspace)
		}
		slog.Info("http request", attrs...)
	})
}

// requestBodyLimitMiddleware caps write-request bodies on the API surface so
// an oversized metadata payload fails fast instead of buffering.
func requestBodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v1/") {
			next.ServeHTTP(w, r)
			return
		}
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > maxAPIBodyBytes {
			http.Error(w, `{"error":"request body too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxAPIBodyBytes)
		next.ServeHTTP(w, r)
	})
}
