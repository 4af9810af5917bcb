package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/wolfman30/isp-support-bot/pkg/logging"
)

// RequestLogger emits one structured line per request. Probe paths log at debug.
func RequestLogger(logger *logging.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())
			if reqID == "" {
				reqID = r.Header.Get("X-Request-ID")
			}
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"request_id", reqID,
				"remote_ip", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			switch _, isQuiet := quiet[r.URL.Path]; {
			case status >= http.StatusInternalServerError:
				logger.Error("request completed", attrs...)
			case isQuiet:
				logger.Debug("request completed", attrs...)
			default:
				logger.Info("request completed", attrs...)
			}
		})
	}
}
