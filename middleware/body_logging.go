package middleware

import (
	"bytes"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const defaultBodyLogLimit = 4096

// BodyLogger logs the bodies of non-GET requests at debug level, cut to
// limit bytes. Only the logged prefix is buffered; the handler still reads
// the complete body.
func BodyLogger(logger *zap.Logger, limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = defaultBodyLogLimit
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Body == nil || !logger.Core().Enabled(zap.DebugLevel) {
				next.ServeHTTP(w, r)
				return
			}

			// one byte past the limit tells whether anything was cut
			head, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
			r.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
			if err != nil {
				logger.Warn("failed to read request body", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			logged, truncated := head, false
			if len(logged) > limit {
				logged, truncated = logged[:limit], true
			}
			logger.Debug("request body",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.ByteString("body", logged),
				zap.Bool("truncated", truncated))

			next.ServeHTTP(w, r)
		})
	}
}

// prefixedBody replays the logged prefix before the unread rest of the body
type prefixedBody struct {
	io.Reader
	io.Closer
}
