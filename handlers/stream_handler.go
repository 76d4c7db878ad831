package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/upb/lovely-prompts/internal/observability"
	"github.com/upb/lovely-prompts/internal/patch"
	"github.com/upb/lovely-prompts/internal/stream"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/models"
	"go.uber.org/zap"
)

// maxCloseReason is the largest close reason a control frame can carry
const maxCloseReason = 123

// StreamConfig holds websocket settings for patch streams
type StreamConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	Session    stream.Config
}

// StreamHandler accepts patch streams that edit one response record
type StreamHandler[R models.Record] struct {
	target   stream.Target[R]
	fields   models.FieldTable[R]
	config   StreamConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler
func NewStreamHandler[R models.Record](target stream.Target[R], fields models.FieldTable[R], config StreamConfig, logger *zap.Logger) *StreamHandler[R] {
	return &StreamHandler[R]{
		target: target,
		fields: fields,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// HandleStream handles GET /<kind>/{id}/update_stream/. The record is
// loaded before the upgrade so a missing record is a plain 404.
func (h *StreamHandler[R]) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := middleware.GetProjectFromContext(ctx)
	id := chi.URLParam(r, "id")
	logger := observability.FromContext(ctx, h.logger).With(
		zap.String("project", project),
		zap.String("id", id))

	session, err := stream.Open(ctx, h.target, h.fields, project, id, h.config.Session, logger)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	src := h.newSocketSource(conn)
	done := make(chan struct{})
	go h.keepAlive(conn, done)

	err = session.Run(ctx, src)
	close(done)

	h.closeWith(conn, err, logger)
}

// keepAlive pings the peer until done is closed
func (h *StreamHandler[R]) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	if h.config.PingPeriod <= 0 {
		return
	}
	ticker := time.NewTicker(h.config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.config.PingPeriod)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// closeWith sends the close frame matching how the session ended
func (h *StreamHandler[R]) closeWith(conn *websocket.Conn, err error, logger *zap.Logger) {
	var code int
	reason := ""
	switch {
	case err == nil:
		code = websocket.CloseNormalClosure
	case patch.IsProtocolError(err):
		code = websocket.CloseProtocolError
		reason = err.Error()
	case errors.Is(err, stream.ErrTransport):
		// the peer is gone
		return
	default:
		logger.Error("stream failed", zap.Error(err))
		code = websocket.CloseInternalServerErr
		reason = "internal error"
	}

	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// socketSource adapts a websocket connection to stream.Source
type socketSource struct {
	conn     *websocket.Conn
	pongWait time.Duration
}

func (h *StreamHandler[R]) newSocketSource(conn *websocket.Conn) *socketSource {
	s := &socketSource{conn: conn, pongWait: h.config.PongWait}
	if h.config.ReadLimit > 0 {
		conn.SetReadLimit(h.config.ReadLimit)
	}
	s.extendDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})
	return s
}

func (s *socketSource) extendDeadline() {
	if s.pongWait > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	}
}

// Next returns the next data message. A normal close from the peer ends
// the stream with io.EOF.
func (s *socketSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	s.extendDeadline()
	return data, nil
}
