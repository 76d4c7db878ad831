package handlers

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/lovely-prompts/internal/observability"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/services/records"
	"github.com/upb/lovely-prompts/utils"
	"go.uber.org/zap"
)

// Patch body media types
const (
	ContentTypeJSON       = "application/json"
	ContentTypeMergePatch = "application/merge-patch+json"
	ContentTypeJSONPatch  = "application/json-patch+json"
)

// RecordService defines the record operations the HTTP layer needs
type RecordService[R models.Record] interface {
	Kind() models.Kind
	NewRecord() R
	List(ctx context.Context, project string, skip, limit int) ([]R, error)
	Get(ctx context.Context, project, id string) (R, error)
	Create(ctx context.Context, project string, rec R) (R, error)
	Replace(ctx context.Context, project, id string, rec R) (R, error)
	Patch(ctx context.Context, project, id string, doc []byte, format records.PatchFormat) (R, error)
	Delete(ctx context.Context, project, id string) error
}

// RecordHandler serves CRUD routes for one record kind
type RecordHandler[R models.Record] struct {
	service RecordService[R]
	logger  *zap.Logger
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler[R models.Record](service RecordService[R], logger *zap.Logger) *RecordHandler[R] {
	return &RecordHandler[R]{
		service: service,
		logger:  logger.With(zap.String("kind", string(service.Kind()))),
	}
}

// HandleList handles GET /<kind>/?project=&skip=&limit=
func (h *RecordHandler[R]) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	skip, limit, err := utils.ParsePagination(r)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	recs, err := h.service.List(ctx, middleware.GetProjectFromContext(ctx), skip, limit)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	if recs == nil {
		recs = []R{}
	}

	_ = utils.WriteOK(w, recs)
}

// HandleGet handles GET /<kind>/{id}
func (h *RecordHandler[R]) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, err := h.service.Get(ctx, middleware.GetProjectFromContext(ctx), chi.URLParam(r, "id"))
	if err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	_ = utils.WriteOK(w, rec)
}

// HandleCreate handles POST /<kind>/
func (h *RecordHandler[R]) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	rec := h.service.NewRecord()
	if err := utils.DecodeJSON(r, rec); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	created, err := h.service.Create(ctx, middleware.GetProjectFromContext(ctx), rec)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logger.Debug("record created", zap.String("id", created.Entry().ID))
	_ = utils.WriteCreated(w, created)
}

// HandleReplace handles PUT /<kind>/{id}
func (h *RecordHandler[R]) HandleReplace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	rec := h.service.NewRecord()
	if err := utils.DecodeJSON(r, rec); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	updated, err := h.service.Replace(ctx, middleware.GetProjectFromContext(ctx), chi.URLParam(r, "id"), rec)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandlePatch handles PATCH /<kind>/{id}. The Content-Type selects between
// JSON merge patch (the default) and JSON patch.
func (h *RecordHandler[R]) HandlePatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	format, ok := patchFormat(r.Header.Get("Content-Type"))
	if !ok {
		_ = utils.WriteError(w, http.StatusUnsupportedMediaType,
			"unsupported patch content type", map[string]interface{}{
				"accepted": []string{ContentTypeMergePatch, ContentTypeJSONPatch, ContentTypeJSON},
			})
		return
	}

	doc, err := io.ReadAll(r.Body)
	if err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	updated, err := h.service.Patch(ctx, middleware.GetProjectFromContext(ctx), chi.URLParam(r, "id"), doc, format)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	_ = utils.WriteOK(w, updated)
}

// HandleDelete handles DELETE /<kind>/{id}
func (h *RecordHandler[R]) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Delete(ctx, middleware.GetProjectFromContext(ctx), chi.URLParam(r, "id")); err != nil {
		HandleServiceError(w, err, h.requestLogger(r))
		return
	}

	utils.WriteNoContent(w)
}

func (h *RecordHandler[R]) requestLogger(r *http.Request) *zap.Logger {
	return observability.FromContext(r.Context(), h.logger).With(
		zap.String("project", middleware.GetProjectFromContext(r.Context())))
}

func patchFormat(contentType string) (records.PatchFormat, bool) {
	if contentType == "" {
		return records.MergePatch, true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, false
	}
	switch mediaType {
	case ContentTypeJSONPatch:
		return records.JSONPatch, true
	case ContentTypeMergePatch, ContentTypeJSON:
		return records.MergePatch, true
	default:
		return 0, false
	}
}
