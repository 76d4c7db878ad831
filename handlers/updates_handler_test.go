package handlers

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/internal/events"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/models"
	"go.uber.org/zap"
)

func newUpdatesServer(t *testing.T, bus *events.Bus, heartbeat time.Duration) *httptest.Server {
	t.Helper()
	h := NewUpdatesHandler(bus, heartbeat, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/updates/", func(w http.ResponseWriter, r *http.Request) {
		project := r.URL.Query().Get("project")
		if project == "" {
			project = "default"
		}
		h.HandleUpdates(w, r.WithContext(middleware.WithProject(r.Context(), project)))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// openStream connects and waits until the subscription is registered
func openStream(t *testing.T, ctx context.Context, srv *httptest.Server, bus *events.Bus, query string) (*http.Response, *bufio.Reader) {
	t.Helper()
	before := bus.Stats().Total

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/updates/"+query, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return bus.Stats().Total > before }, time.Second, 5*time.Millisecond)
	return resp, bufio.NewReader(resp.Body)
}

// readFrame returns the lines of the next frame without the blank terminator
func readFrame(t *testing.T, rd *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestUpdatesHandler_StreamsProjectEvents(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), zap.NewNop())
	srv := newUpdatesServer(t, bus, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, rd := openStream(t, ctx, srv, bus, "?project=alpha")

	other, err := events.New(events.ChatPromptCreated, map[string]string{"id": "chp_other"})
	require.NoError(t, err)
	bus.Publish("beta", other)

	first, err := events.New(events.ChatPromptCreated, map[string]string{"id": "chp_1"})
	require.NoError(t, err)
	second, err := events.New(events.ChatPromptDeleted, events.Deleted{ID: "chp_1"})
	require.NoError(t, err)
	bus.Publish("alpha", first)
	bus.Publish("alpha", second)

	assert.Equal(t, []string{"event: new_chp", `data: {"id":"chp_1"}`}, readFrame(t, rd))
	assert.Equal(t, []string{"event: del_chp", `data: {"id":"chp_1"}`}, readFrame(t, rd))
}

func TestUpdatesHandler_Heartbeat(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), zap.NewNop())
	srv := newUpdatesServer(t, bus, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, rd := openStream(t, ctx, srv, bus, "")

	assert.Equal(t, []string{": ping"}, readFrame(t, rd))
}

func TestUpdatesHandler_UnsubscribesOnDisconnect(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), zap.NewNop())
	srv := newUpdatesServer(t, bus, 0)

	ctx, cancel := context.WithCancel(context.Background())
	openStream(t, ctx, srv, bus, "")
	assert.Equal(t, 1, bus.Stats().Subscribers["default"])

	cancel()
	assert.Eventually(t, func() bool { return bus.Stats().Total == 0 }, time.Second, 5*time.Millisecond)
}

func TestUpdatesHandler_EndsWhenBusCloses(t *testing.T) {
	bus := events.NewBus(events.DefaultConfig(), zap.NewNop())
	srv := newUpdatesServer(t, bus, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, rd := openStream(t, ctx, srv, bus, "")

	bus.Close()
	_, err := rd.ReadString('\n')
	assert.Error(t, err, "the response body ends")

	resp, err := http.Get(srv.URL + "/updates/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestUpdatesHandler_RecordLifecycle(t *testing.T) {
	deps := newTestDeps(t)
	srv := newUpdatesServer(t, deps.Events, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, rd := openStream(t, ctx, srv, deps.Events, "")

	prompt, err := deps.ChatPrompts.Create(ctx, "default", models.NewChatPrompt())
	require.NoError(t, err)
	require.NoError(t, deps.ChatPrompts.Delete(ctx, "default", prompt.ID))

	created := readFrame(t, rd)
	require.Len(t, created, 2)
	assert.Equal(t, "event: new_chp", created[0])
	assert.Contains(t, created[1], prompt.ID)

	assert.Equal(t, []string{"event: del_chp", `data: {"id":"` + prompt.ID + `"}`}, readFrame(t, rd))
}
