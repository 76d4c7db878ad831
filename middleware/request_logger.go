package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/lovely-prompts/internal/observability"
	"go.uber.org/zap"
)

// RequestLogger writes one access log line per request and places a
// request scoped logger in the context
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLogger := logger.With(zap.String("request_id", GetRequestIDFromContext(r.Context())))
			r = r.WithContext(observability.WithLogger(r.Context(), reqLogger))

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				}
				if status >= http.StatusInternalServerError {
					reqLogger.Warn("request completed", fields...)
					return
				}
				reqLogger.Info("request completed", fields...)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
