package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/upb/lovely-prompts/internal/events"
	"github.com/upb/lovely-prompts/internal/observability"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/utils"
	"go.uber.org/zap"
)

// Subscriber hands out per-project event subscriptions
type Subscriber interface {
	Subscribe(project string) (*events.Subscription, error)
	Unsubscribe(sub *events.Subscription)
}

// UpdatesHandler streams a project's change events as server-sent events
type UpdatesHandler struct {
	bus       Subscriber
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewUpdatesHandler creates a new UpdatesHandler. A zero heartbeat
// disables keep-alive comments.
func NewUpdatesHandler(bus Subscriber, heartbeat time.Duration, logger *zap.Logger) *UpdatesHandler {
	return &UpdatesHandler{
		bus:       bus,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// HandleUpdates handles GET /updates/?project=
func (h *UpdatesHandler) HandleUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := middleware.GetProjectFromContext(ctx)
	logger := observability.FromContext(ctx, h.logger).With(zap.String("project", project))

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = utils.WriteInternalServerError(w, "streaming unsupported")
		return
	}

	sub, err := h.bus.Subscribe(project)
	if err != nil {
		if errors.Is(err, events.ErrBusClosed) {
			_ = utils.WriteServiceUnavailable(w, "server is shutting down")
			return
		}
		logger.Error("failed to subscribe", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	defer h.bus.Unsubscribe(sub)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Debug("subscriber connected")

	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("subscriber disconnected")
			return

		case ev, ok := <-sub.Events():
			if !ok {
				logger.Info("subscription closed",
					zap.Bool("overflowed", sub.Overflowed()),
					zap.Int64("dropped", sub.Dropped()))
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				logger.Debug("failed to write event", zap.Error(err))
				return
			}
			flusher.Flush()

		case <-tick:
			if err := writeSSEComment(w, "ping"); err != nil {
				logger.Debug("failed to write heartbeat", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}
