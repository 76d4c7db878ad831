package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ProjectKey is the context key for the resolved project name
	ProjectKey contextKey = "project"
)

// GetRequestIDFromContext retrieves the request ID from context, falling
// back to the ID assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return chimw.GetReqID(ctx)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetProjectFromContext retrieves the project name from context
func GetProjectFromContext(ctx context.Context) string {
	if val := ctx.Value(ProjectKey); val != nil {
		if project, ok := val.(string); ok {
			return project
		}
	}
	return ""
}

// WithProject adds a project name to the context
func WithProject(ctx context.Context, project string) context.Context {
	return context.WithValue(ctx, ProjectKey, project)
}
