package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

// Logging writes one structured line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// the actor is attached further down the chain, see Capture
		var seen *http.Request
		next.ServeHTTP(ww, r.WithContext(withCapture(r.Context(), &seen)))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		}
		if seen != nil {
			if a := tenant.ActorFromContext(seen.Context()); a != nil {
				attrs = append(attrs, "actor", a.ID, "tenant_id", tenant.IDFromContext(seen.Context()))
			}
		}
		level := slog.LevelInfo
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}
