package handlers

import (
	"net/http"

	"github.com/upb/lovely-prompts/internal/observability"
	"github.com/upb/lovely-prompts/utils"
	"go.uber.org/zap"
)

// ProjectLister enumerates the projects stored on disk
type ProjectLister interface {
	List() ([]string, error)
}

// ProjectsHandler serves the project index
type ProjectsHandler struct {
	projects ProjectLister
	logger   *zap.Logger
}

// NewProjectsHandler creates a new ProjectsHandler
func NewProjectsHandler(projects ProjectLister, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		logger:   logger,
	}
}

// HandleList handles GET /projects/
func (h *ProjectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	names, err := h.projects.List()
	if err != nil {
		observability.FromContext(r.Context(), h.logger).Error("failed to list projects", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	if names == nil {
		names = []string{}
	}

	_ = utils.WriteOK(w, names)
}
