package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/app"
	"github.com/upb/lovely-prompts/config"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/models"
	"go.uber.org/zap"
)

func newTestDeps(t *testing.T) *app.Dependencies {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })
	return deps
}

// mountRecords registers the CRUD routes of one kind the way the server does
func mountRecords[R models.Record](r chi.Router, deps *app.Dependencies, path string, service RecordService[R]) {
	pm := middleware.NewProjectMiddleware(deps.Registry, deps.Config.Storage.DefaultProject, zap.NewNop())
	h := NewRecordHandler(service, zap.NewNop())

	r.Route(path, func(r chi.Router) {
		r.Use(pm.ResolveProject)
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleReplace)
		r.Patch("/{id}", h.HandlePatch)
		r.Delete("/{id}", h.HandleDelete)
	})
}

func doRequest(t *testing.T, h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// decodeData unwraps the {"data": ...} envelope into v
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
