package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/app"
	"github.com/upb/lovely-prompts/internal/events"
	"github.com/upb/lovely-prompts/internal/stream"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/models"
	"go.uber.org/zap"
)

func newStreamServer(t *testing.T, deps *app.Dependencies) *httptest.Server {
	t.Helper()
	pm := middleware.NewProjectMiddleware(deps.Registry, "default", zap.NewNop())
	cfg := StreamConfig{
		ReadLimit:  1 << 16,
		PingPeriod: time.Second,
		PongWait:   5 * time.Second,
		Session:    stream.Config{},
	}
	chat := NewStreamHandler(deps.ChatResponses, models.ChatResponseFields, cfg, zap.NewNop())

	r := chi.NewRouter()
	r.With(pm.ResolveProject).Get("/chat_responses/{id}/update_stream/", chat.HandleStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func streamURL(srv *httptest.Server, id string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat_responses/" + id + "/update_stream/"
}

func seedChatResponse(t *testing.T, deps *app.Dependencies) *models.ChatResponse {
	t.Helper()
	ctx := context.Background()
	prompt, err := deps.ChatPrompts.Create(ctx, "default", models.NewChatPrompt())
	require.NoError(t, err)
	resp, err := deps.ChatResponses.Create(ctx, "default", models.NewChatResponse(prompt.ID))
	require.NoError(t, err)
	return resp
}

func nextEvent(t *testing.T, sub *events.Subscription) events.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestStreamHandler_AppliesAndPersists(t *testing.T) {
	deps := newTestDeps(t)
	srv := newStreamServer(t, deps)
	resp := seedChatResponse(t, deps)

	sub, err := deps.Events.Subscribe("default")
	require.NoError(t, err)
	defer deps.Events.Unsubscribe(sub)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv, resp.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	for _, msg := range []string{
		`{"action":"replace","key":"content","value":"Hel"}`,
		`{"action":"append","key":"content","value":"lo!"}`,
		`{"action":"replace","key":"tok_out","value":3}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
	}
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	first := nextEvent(t, sub)
	assert.Equal(t, events.ChatResponseStreamed, first.Kind)
	assert.JSONEq(t,
		`{"id":"`+resp.ID+`","prompt_id":"`+resp.PromptID+`","action":"replace","key":"content","value":"Hel"}`,
		first.Data)
	assert.Equal(t, events.ChatResponseStreamed, nextEvent(t, sub).Kind)
	assert.Equal(t, events.ChatResponseStreamed, nextEvent(t, sub).Kind)
	assert.Equal(t, events.ChatResponseUpdated, nextEvent(t, sub).Kind)

	stored, err := deps.ChatResponses.Get(context.Background(), "default", resp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Content)
	assert.Equal(t, "Hello!", *stored.Content)
	require.NotNil(t, stored.TokOut)
	assert.Equal(t, int64(3), *stored.TokOut)
}

func TestStreamHandler_UnknownKeyClosesWithProtocolError(t *testing.T) {
	deps := newTestDeps(t)
	srv := newStreamServer(t, deps)
	resp := seedChatResponse(t, deps)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv, resp.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"replace","key":"content","value":"partial"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"replace","key":"colour","value":"red"}`)))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseProtocolError), "got %v", err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Contains(t, closeErr.Text, "colour")

	// nothing from an aborted stream is stored
	stored, err := deps.ChatResponses.Get(context.Background(), "default", resp.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Content)
}

func TestStreamHandler_MissingRecord(t *testing.T) {
	deps := newTestDeps(t)
	srv := newStreamServer(t, deps)

	_, resp, err := websocket.DefaultDialer.Dial(streamURL(srv, "chr_missing"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamHandler_DroppedConnectionDoesNotPersist(t *testing.T) {
	deps := newTestDeps(t)
	srv := newStreamServer(t, deps)
	resp := seedChatResponse(t, deps)

	sub, err := deps.Events.Subscribe("default")
	require.NoError(t, err)
	defer deps.Events.Unsubscribe(sub)

	conn, _, err := websocket.DefaultDialer.Dial(streamURL(srv, resp.ID), nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"action":"replace","key":"content","value":"lost"}`)))

	// the edit is visible live before the drop
	assert.Equal(t, events.ChatResponseStreamed, nextEvent(t, sub).Kind)
	require.NoError(t, conn.UnderlyingConn().Close())

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s after drop", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}

	stored, err := deps.ChatResponses.Get(context.Background(), "default", resp.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Content)
}
