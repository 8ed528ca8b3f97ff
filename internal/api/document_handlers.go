package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
	"github.com/odvcencio/docgraph/internal/service"
)

type upsertDocumentRequest struct {
	ID        string          `json:"id"`
	Workspace string          `json:"workspace"`
	Status    string          `json:"status"`
	Summary   string          `json:"summary"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Server) handleUpsertDocument(w http.ResponseWriter, r *http.Request) {
	var req upsertDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Workspace == "" {
		if workspace, ok := database.WorkspaceFromContext(r.Context()); ok {
			req.Workspace = workspace
		}
	}

	rec, err := s.docSvc.UpsertStatus(r.Context(), &models.DocStatusRecord{
		ID:        req.ID,
		Workspace: req.Workspace,
		Status:    req.Status,
		Summary:   req.Summary,
		Metadata:  req.Metadata,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, "failed to store document status", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusCreated, rec)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	workspace := r.URL.Query().Get("workspace")
	if workspace == "" {
		workspace, _ = database.WorkspaceFromContext(r.Context())
	}

	rec, err := s.docSvc.GetStatus(r.Context(), workspace, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			jsonError(w, "document not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load document status", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, http.StatusOK, rec)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	scope, ok := s.scopeFromRequest(r)
	if !ok {
		jsonError(w, "workspace may be given at most once", http.StatusBadRequest)
		return
	}
	status := r.URL.Query().Get("status")

	records, err := s.docSvc.ListStatuses(r.Context(), scope, status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		jsonError(w, "failed to list document statuses", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.DocStatusRecord{}
	}
	jsonResponse(w, http.StatusOK, records)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	workspace := r.URL.Query().Get("workspace")
	if workspace == "" {
		workspace, _ = database.WorkspaceFromContext(r.Context())
	}

	if err := s.docSvc.DeleteStatus(r.Context(), workspace, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			jsonError(w, "document not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to delete document status", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
