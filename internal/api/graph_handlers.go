package api

import (
	"encoding/json"
	"net/http"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
)

type addNodeRequest struct {
	Workspace  string          `json:"workspace"`
	EntityName string          `json:"entity_name"`
	Properties json.RawMessage `json:"properties"`
}

type addEdgeRequest struct {
	Workspace  string          `json:"workspace"`
	SourceName string          `json:"source_name"`
	TargetName string          `json:"target_name"`
	Properties json.RawMessage `json:"properties"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Workspace == "" {
		req.Workspace, _ = database.WorkspaceFromContext(r.Context())
	}

	node := &models.GraphNode{
		Workspace:  req.Workspace,
		EntityName: req.EntityName,
		Properties: req.Properties,
	}
	if err := s.docSvc.AddNode(r.Context(), node); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, http.StatusCreated, node)
}

func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req addEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Workspace == "" {
		req.Workspace, _ = database.WorkspaceFromContext(r.Context())
	}

	edge := &models.GraphEdge{
		Workspace:  req.Workspace,
		SourceName: req.SourceName,
		TargetName: req.TargetName,
		Properties: req.Properties,
	}
	if err := s.docSvc.AddEdge(r.Context(), edge); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, http.StatusCreated, edge)
}
