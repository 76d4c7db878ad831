package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/app"
	"github.com/upb/lovely-prompts/config"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts
}

func TestSetupRoutes(t *testing.T) {
	ts := newTestServer(t)

	testCases := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
	}{
		{"health", "GET", "/healthz", "", http.StatusOK},
		{"readiness", "GET", "/readyz", "", http.StatusOK},
		{"status", "GET", "/api/v1/status", "", http.StatusOK},
		{"projects", "GET", "/projects/", "", http.StatusOK},
		{"list chat prompts", "GET", "/chat_prompts/", "", http.StatusOK},
		{"list without trailing slash", "GET", "/chat_prompts", "", http.StatusOK},
		{"list completion responses", "GET", "/completion_responses/?project=default", "", http.StatusOK},
		{"create completion prompt", "POST", "/completion_prompts/", `{"prompt":"hi"}`, http.StatusCreated},
		{"missing chat response", "GET", "/chat_responses/chr_missing", "", http.StatusNotFound},
		{"stream for missing record", "GET", "/completion_responses/cor_missing/update_stream/", "", http.StatusNotFound},
		{"unknown project", "GET", "/chat_prompts/?project=nope", "", http.StatusNotFound},
		{"invalid project", "GET", "/chat_prompts/?project=.hidden", "", http.StatusBadRequest},
		{"updates for unknown project", "GET", "/updates/?project=nope", "", http.StatusNotFound},
		{"not found", "GET", "/api/v1/nonexistent", "", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
			require.NoError(t, err)
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestProjectsAppearAfterFirstWrite(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/chat_prompts/?project=team", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/projects/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"default", "team"}, body.Data)
}

func TestCORSMiddleware(t *testing.T) {
	ts := newTestServer(t)

	t.Run("OPTIONS preflight request", func(t *testing.T) {
		req, err := http.NewRequest("OPTIONS", ts.URL+"/chat_prompts/", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", "PATCH")
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("simple request", func(t *testing.T) {
		req, err := http.NewRequest("GET", ts.URL+"/healthz", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://example.com")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}
