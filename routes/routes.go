package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/lovely-prompts/app"
	"github.com/upb/lovely-prompts/handlers"
	"github.com/upb/lovely-prompts/internal/stream"
	"github.com/upb/lovely-prompts/middleware"
	"github.com/upb/lovely-prompts/models"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	if cfg.Observability.LogBodies {
		r.Use(middleware.BodyLogger(deps.Logger, cfg.Observability.LogBodyLimit))
	}
	r.Use(chimw.Recoverer)

	// Any origin may read and write prompts
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Link", "X-Request-ID"},
		MaxAge:         300,
	}))

	pm := middleware.NewProjectMiddleware(deps.Registry, cfg.Storage.DefaultProject, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))
	r.Get("/api/v1/status", handlers.StatusHandler(deps))

	projectsHandler := handlers.NewProjectsHandler(deps.Registry, deps.Logger)
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", projectsHandler.HandleList)
	})

	// Live change feed; long-lived, so no request timeout
	updates := handlers.NewUpdatesHandler(deps.Events, cfg.Events.HeartbeatInterval, deps.Logger)
	r.Route("/updates", func(r chi.Router) {
		r.Use(pm.ResolveProject)
		r.Use(pm.RequireProject)
		r.Get("/", updates.HandleUpdates)
	})

	streamCfg := handlers.StreamConfig{
		ReadLimit:  cfg.Stream.ReadLimit,
		PingPeriod: cfg.Stream.PingPeriod,
		PongWait:   cfg.Stream.PongWait,
		Session:    stream.Config{CheckpointEvery: cfg.Stream.CheckpointEvery},
	}
	timeout := cfg.Server.RequestTimeout

	mountRecords(r, "/chat_prompts", pm, timeout,
		handlers.NewRecordHandler[*models.ChatPrompt](deps.ChatPrompts, deps.Logger), nil)
	mountRecords(r, "/chat_responses", pm, timeout,
		handlers.NewRecordHandler[*models.ChatResponse](deps.ChatResponses, deps.Logger),
		handlers.NewStreamHandler(deps.ChatResponses, models.ChatResponseFields, streamCfg, deps.Logger).HandleStream)
	mountRecords(r, "/completion_prompts", pm, timeout,
		handlers.NewRecordHandler[*models.CompletionPrompt](deps.CompletionPrompts, deps.Logger), nil)
	mountRecords(r, "/completion_responses", pm, timeout,
		handlers.NewRecordHandler[*models.CompletionResponse](deps.CompletionResponses, deps.Logger),
		handlers.NewStreamHandler(deps.CompletionResponses, models.CompletionResponseFields, streamCfg, deps.Logger).HandleStream)

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

// recordRoutes is the CRUD surface shared by every record kind
type recordRoutes interface {
	HandleList(w http.ResponseWriter, r *http.Request)
	HandleGet(w http.ResponseWriter, r *http.Request)
	HandleCreate(w http.ResponseWriter, r *http.Request)
	HandleReplace(w http.ResponseWriter, r *http.Request)
	HandlePatch(w http.ResponseWriter, r *http.Request)
	HandleDelete(w http.ResponseWriter, r *http.Request)
}

// mountRecords registers one record kind. The stream route, when present,
// is kept out of the request timeout.
func mountRecords(r chi.Router, path string, pm *middleware.ProjectMiddleware, timeout time.Duration, h recordRoutes, streamHandler http.HandlerFunc) {
	r.Route(path, func(r chi.Router) {
		r.Use(pm.ResolveProject)

		r.Group(func(r chi.Router) {
			if timeout > 0 {
				r.Use(chimw.Timeout(timeout))
			}
			r.Get("/", h.HandleList)
			r.Post("/", h.HandleCreate)
			r.Get("/{id}", h.HandleGet)
			r.Put("/{id}", h.HandleReplace)
			r.Patch("/{id}", h.HandlePatch)
			r.Delete("/{id}", h.HandleDelete)
		})

		if streamHandler != nil {
			r.Get("/{id}/update_stream/", streamHandler)
		}
	})
}
