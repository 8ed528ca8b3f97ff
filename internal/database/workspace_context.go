package database

import (
	"context"
	"strings"
)

type workspaceContextKey struct{}

// WithWorkspace stores a workspace identifier in context for downstream reads
// and writes that carry no explicit workspace.
func WithWorkspace(ctx context.Context, workspace string) context.Context {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" || ctx == nil {
		return ctx
	}
	return context.WithValue(ctx, workspaceContextKey{}, workspace)
}

// WorkspaceFromContext retrieves a workspace identifier from context.
func WorkspaceFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	workspace, ok := ctx.Value(workspaceContextKey{}).(string)
	if !ok {
		return "", false
	}
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		return "", false
	}
	return workspace, true
}
