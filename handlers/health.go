package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/upb/lovely-prompts/app"
	"go.uber.org/zap"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck reports whether records can be stored right now
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ready"
		checks := map[string]string{}

		if err := checkWritable(deps.Registry.Dir()); err != nil {
			status = "not_ready"
			checks["storage"] = "unwritable"
			deps.Logger.Error("storage health check failed", zap.Error(err))
		} else {
			checks["storage"] = "healthy"
		}

		if deps.Registry.Exists(deps.Config.Storage.DefaultProject) {
			checks["default_project"] = "present"
		} else {
			status = "not_ready"
			checks["default_project"] = "missing"
		}

		switch {
		case deps.Replica == nil:
			checks["replica"] = "disabled"
		case deps.Replica.HealthCheck(ctx) != nil:
			// sync retries on its own; an unreachable replica does not block writes
			checks["replica"] = "unreachable"
		default:
			checks["replica"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if status == "ready" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bus := deps.Events.Stats()
		response := map[string]interface{}{
			"version":      app.Version,
			"environment":  deps.Config.Environment,
			"storage":      deps.Router.Stats(),
			"subscribers":  bus.Total,
			"dropped":      bus.Dropped,
			"disconnects":  bus.Disconnects,
			"sync_enabled": deps.Syncer != nil,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// checkWritable creates and removes a scratch file in dir
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".ready-*")
	if err != nil {
		return fmt.Errorf("create probe: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
