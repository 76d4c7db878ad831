package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/models"
)

func newRecordsServer(t *testing.T) http.Handler {
	t.Helper()
	deps := newTestDeps(t)
	r := chi.NewRouter()
	mountRecords[*models.ChatPrompt](r, deps, "/chat_prompts", deps.ChatPrompts)
	mountRecords[*models.ChatResponse](r, deps, "/chat_responses", deps.ChatResponses)
	mountRecords[*models.CompletionPrompt](r, deps, "/completion_prompts", deps.CompletionPrompts)
	return r
}

func createChatPrompt(t *testing.T, srv http.Handler, body string) *models.ChatPrompt {
	t.Helper()
	w := doRequest(t, srv, http.MethodPost, "/chat_prompts/", ContentTypeJSON, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p models.ChatPrompt
	decodeData(t, w, &p)
	return &p
}

func TestRecordHandler_CreateAndGet(t *testing.T) {
	srv := newRecordsServer(t)

	created := createChatPrompt(t, srv, `{"title":"greeting","prompt":[{"role":"user","content":"hi"}]}`)
	assert.True(t, strings.HasPrefix(created.ID, "chp_"))
	require.NotNil(t, created.Title)
	assert.Equal(t, "greeting", *created.Title)
	assert.JSONEq(t, `[{"role":"user","content":"hi"}]`, string(created.Prompt))

	w := doRequest(t, srv, http.MethodGet, "/chat_prompts/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.ChatPrompt
	decodeData(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.False(t, got.Synced)
}

func TestRecordHandler_List(t *testing.T) {
	srv := newRecordsServer(t)

	for i := 0; i < 3; i++ {
		createChatPrompt(t, srv, `{}`)
	}

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLen    int
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantLen: 3},
		{name: "limit", query: "?limit=2", wantStatus: http.StatusOK, wantLen: 2},
		{name: "skip past end", query: "?skip=10", wantStatus: http.StatusOK, wantLen: 0},
		{name: "negative skip", query: "?skip=-1", wantStatus: http.StatusBadRequest},
		{name: "invalid project", query: "?project=..%2Fx", wantStatus: http.StatusBadRequest},
		{name: "unknown project", query: "?project=missing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodGet, "/chat_prompts/"+tt.query, "", "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got []models.ChatPrompt
			decodeData(t, w, &got)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestRecordHandler_CreateInNewProject(t *testing.T) {
	srv := newRecordsServer(t)

	w := doRequest(t, srv, http.MethodPost, "/completion_prompts/?project=team", ContentTypeJSON, `{"prompt":"Once upon"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doRequest(t, srv, http.MethodGet, "/completion_prompts/?project=team", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.CompletionPrompt
	decodeData(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "Once upon", *got[0].Prompt)
}

func TestRecordHandler_CreateErrors(t *testing.T) {
	srv := newRecordsServer(t)

	t.Run("empty body", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/chat_prompts/", ContentTypeJSON, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/chat_prompts/", ContentTypeJSON, `{"title":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("response without prompt id", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/chat_responses/", ContentTypeJSON, `{"content":"hi"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeError(t, w)["details"], "prompt_id")
	})

	t.Run("response for unknown prompt", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/chat_responses/", ContentTypeJSON, `{"prompt_id":"chp_missing"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w)["error"])
	})
}

func TestRecordHandler_Replace(t *testing.T) {
	srv := newRecordsServer(t)
	created := createChatPrompt(t, srv, `{"title":"old","comment":"keep?"}`)

	w := doRequest(t, srv, http.MethodPut, "/chat_prompts/"+created.ID, ContentTypeJSON, `{"title":"new"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.ChatPrompt
	decodeData(t, w, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "new", *got.Title)
	assert.Nil(t, got.Comment, "replace clears omitted fields")
	assert.True(t, got.Created.Equal(created.Created))
}

func TestRecordHandler_Patch(t *testing.T) {
	srv := newRecordsServer(t)
	created := createChatPrompt(t, srv, `{"title":"old","comment":"note"}`)
	target := "/chat_prompts/" + created.ID

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantTitle   string
	}{
		{
			name:        "merge patch",
			contentType: ContentTypeMergePatch,
			body:        `{"title":"merged"}`,
			wantStatus:  http.StatusOK,
			wantTitle:   "merged",
		},
		{
			name:        "plain json is a merge patch",
			contentType: ContentTypeJSON + "; charset=utf-8",
			body:        `{"title":"plain"}`,
			wantStatus:  http.StatusOK,
			wantTitle:   "plain",
		},
		{
			name:        "json patch",
			contentType: ContentTypeJSONPatch,
			body:        `[{"op":"replace","path":"/title","value":"ops"}]`,
			wantStatus:  http.StatusOK,
			wantTitle:   "ops",
		},
		{
			name:        "json patch test failure",
			contentType: ContentTypeJSONPatch,
			body:        `[{"op":"test","path":"/title","value":"nope"}]`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "unsupported media type",
			contentType: "text/plain",
			body:        `title=x`,
			wantStatus:  http.StatusUnsupportedMediaType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodPatch, target, tt.contentType, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got models.ChatPrompt
			decodeData(t, w, &got)
			assert.Equal(t, tt.wantTitle, *got.Title)
			require.NotNil(t, got.Comment)
			assert.Equal(t, "note", *got.Comment)
		})
	}

	t.Run("missing record", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPatch, "/chat_prompts/chp_missing", ContentTypeMergePatch, `{}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRecordHandler_Delete(t *testing.T) {
	srv := newRecordsServer(t)
	prompt := createChatPrompt(t, srv, `{}`)

	w := doRequest(t, srv, http.MethodPost, "/chat_responses/", ContentTypeJSON, `{"prompt_id":"`+prompt.ID+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp models.ChatResponse
	decodeData(t, w, &resp)

	w = doRequest(t, srv, http.MethodDelete, "/chat_prompts/"+prompt.ID, "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = doRequest(t, srv, http.MethodGet, "/chat_prompts/"+prompt.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// responses go with their prompt
	w = doRequest(t, srv, http.MethodGet, "/chat_responses/"+resp.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(t, srv, http.MethodDelete, "/chat_prompts/"+prompt.ID, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
