package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/odvcencio/docgraph/internal/database"
	"github.com/odvcencio/docgraph/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidStatus = errors.New("invalid document status")
)

// DocumentService handles writes to document-status and graph records,
// applying workspace defaulting and status validation at the API boundary.
// Unknown statuses may still exist in storage (older writers); they are
// tolerated on read and simply excluded from metrics buckets.
type DocumentService struct {
	db               database.DB
	defaultWorkspace string
}

func NewDocumentService(db database.DB, defaultWorkspace string) *DocumentService {
	return &DocumentService{db: db, defaultWorkspace: strings.TrimSpace(defaultWorkspace)}
}

func (s *DocumentService) workspaceOrDefault(workspace string) string {
	if workspace == "" {
		return s.defaultWorkspace
	}
	return workspace
}

// UpsertStatus creates or replaces a document status record. A missing ID is
// assigned server-side.
func (s *DocumentService) UpsertStatus(ctx context.Context, rec *models.DocStatusRecord) (*models.DocStatusRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("document record is required")
	}
	if _, ok := models.ParseDocStatus(rec.Status); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}
	rec.Workspace = s.workspaceOrDefault(rec.Workspace)
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.db.UpsertDocStatus(ctx, rec); err != nil {
		return nil, err
	}
	stored, err := s.db.GetDocStatus(ctx, rec.Workspace, rec.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *DocumentService) GetStatus(ctx context.Context, workspace, id string) (*models.DocStatusRecord, error) {
	rec, err := s.db.GetDocStatus(ctx, s.workspaceOrDefault(workspace), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *DocumentService) ListStatuses(ctx context.Context, scope database.Scope, status string) ([]models.DocStatusRecord, error) {
	if status != "" {
		if _, ok := models.ParseDocStatus(status); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
		}
	}
	return s.db.ListDocStatuses(ctx, scope, status)
}

func (s *DocumentService) DeleteStatus(ctx context.Context, workspace, id string) error {
	err := s.db.DeleteDocStatus(ctx, s.workspaceOrDefault(workspace), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *DocumentService) AddNode(ctx context.Context, node *models.GraphNode) error {
	if node == nil || strings.TrimSpace(node.EntityName) == "" {
		return fmt.Errorf("entity name is required")
	}
	node.Workspace = s.workspaceOrDefault(node.Workspace)
	return s.db.InsertGraphNode(ctx, node)
}

func (s *DocumentService) AddEdge(ctx context.Context, edge *models.GraphEdge) error {
	if edge == nil || strings.TrimSpace(edge.SourceName) == "" || strings.TrimSpace(edge.TargetName) == "" {
		return fmt.Errorf("source and target names are required")
	}
	edge.Workspace = s.workspaceOrDefault(edge.Workspace)
	return s.db.InsertGraphEdge(ctx, edge)
}
