package middleware

import (
	"net/http"

	"github.com/upb/lovely-prompts/internal/projects"
	"github.com/upb/lovely-prompts/utils"
	"go.uber.org/zap"
)

// ProjectQueryParam selects the project a request addresses
const ProjectQueryParam = "project"

// ProjectChecker reports whether a project exists
type ProjectChecker interface {
	Exists(name string) bool
}

// ProjectMiddleware resolves the project of each request
type ProjectMiddleware struct {
	projects       ProjectChecker
	defaultProject string
	logger         *zap.Logger
}

// NewProjectMiddleware creates a new ProjectMiddleware
func NewProjectMiddleware(checker ProjectChecker, defaultProject string, logger *zap.Logger) *ProjectMiddleware {
	return &ProjectMiddleware{
		projects:       checker,
		defaultProject: defaultProject,
		logger:         logger,
	}
}

// ResolveProject stores the project named by the query string, or the
// default project, in the request context. Invalid names are rejected.
func (m *ProjectMiddleware) ResolveProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project := r.URL.Query().Get(ProjectQueryParam)
		if project == "" {
			project = m.defaultProject
		}

		if err := projects.ValidateName(project); err != nil {
			m.logger.Debug("rejected project name",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("project", project))
			_ = utils.WriteBadRequest(w, "invalid project name", map[string]interface{}{
				ProjectQueryParam: project,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithProject(r.Context(), project)))
	})
}

// RequireProject rejects requests whose resolved project does not exist.
// It must run after ResolveProject.
func (m *ProjectMiddleware) RequireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project := GetProjectFromContext(r.Context())
		if project == "" || !m.projects.Exists(project) {
			_ = utils.WriteNotFound(w, "project not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}
