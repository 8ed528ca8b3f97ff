package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odvcencio/docgraph/internal/auth"
	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
	"github.com/odvcencio/docgraph/internal/service"
)

type Server struct {
	db         database.DB
	authSvc    *auth.Service
	docSvc     *service.DocumentService
	aggregator *service.Aggregator
	instances  *service.InstanceRegistry
	refresher  ReportProvider
	mux        *http.ServeMux

	workspaceHeader string
	httpMetrics     *httpMetrics
	gatherer        prometheus.Gatherer
}

// ReportProvider exposes the most recent cached metrics report, if any.
// Implemented by jobs.Refresher; nil disables the cached view.
type ReportProvider interface {
	LastReport() (models.MetricsReport, time.Time, bool)
}

type ServerOptions struct {
	// WorkspaceHeader names the request header carrying an implicit
	// workspace scope; empty disables header scoping.
	WorkspaceHeader string
	// Registry receives both HTTP metrics and the aggregated report
	// collector; nil uses the default registry.
	Registry *prometheus.Registry
	// Refresher supplies the cached report for the admin health endpoint.
	Refresher ReportProvider
	// Instances serves the multi-instance metrics view; nil builds a
	// registry over db with default identity and TTL.
	Instances *service.InstanceRegistry
}

func NewServer(db database.DB, authSvc *auth.Service, docSvc *service.DocumentService, aggregator *service.Aggregator) *Server {
	return NewServerWithOptions(db, authSvc, docSvc, aggregator, ServerOptions{})
}

func NewServerWithOptions(db database.DB, authSvc *auth.Service, docSvc *service.DocumentService, aggregator *service.Aggregator, opts ServerOptions) *Server {
	instances := opts.Instances
	if instances == nil {
		instances = service.NewInstanceRegistry(db, service.RegistryOptions{})
	}
	s := &Server{
		db:              db,
		authSvc:         authSvc,
		docSvc:          docSvc,
		aggregator:      aggregator,
		instances:       instances,
		refresher:       opts.Refresher,
		mux:             http.NewServeMux(),
		workspaceHeader: opts.WorkspaceHeader,
	}
	if opts.Registry != nil {
		s.httpMetrics = newHTTPMetrics(opts.Registry)
		opts.Registry.MustRegister(newReportCollector(aggregator))
		s.gatherer = opts.Registry
	} else {
		s.httpMetrics = getDefaultHTTPMetrics()
		registerDefaultReportCollector(aggregator)
		s.gatherer = prometheus.DefaultGatherer
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := http.Handler(s.mux)
	handler = auth.Middleware(s.authSvc)(handler)
	handler = s.workspaceContextMiddleware(handler)
	handler = requestBodyLimitMiddleware(handler)
	handler = s.requestTracingMiddleware(handler)
	handler = requestMetricsMiddleware(s.httpMetrics, handler)
	handler = s.requestLoggingMiddleware(handler)
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Auth
	s.mux.HandleFunc("POST /api/v1/auth/token", s.handleIssueToken)

	// Metrics reports (the scrape-facing JSON views)
	s.mux.HandleFunc("GET /api/v1/metrics/documents", s.handleDocumentMetrics)
	s.mux.HandleFunc("GET /api/v1/metrics/all", s.handleClusterMetrics)

	// Document status records
	s.mux.HandleFunc("POST /api/v1/documents", s.requireAuth(s.handleUpsertDocument))
	s.mux.HandleFunc("GET /api/v1/documents", s.handleListDocuments)
	s.mux.HandleFunc("GET /api/v1/documents/{id}", s.handleGetDocument)
	s.mux.HandleFunc("DELETE /api/v1/documents/{id}", s.requireAuth(s.handleDeleteDocument))

	// Graph
	s.mux.HandleFunc("POST /api/v1/graph/nodes", s.requireAuth(s.handleAddNode))
	s.mux.HandleFunc("POST /api/v1/graph/edges", s.requireAuth(s.handleAddEdge))

	// Operational endpoints
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/v1/admin/health", s.handleAdminHealth)
	s.mux.Handle("GET /metrics", metricsHandler(s.gatherer))
}

func (s *Server) requireAuth(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.GetClaims(r.Context()) == nil {
			http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
			return
		}
		fn(w, r)
	}
}
