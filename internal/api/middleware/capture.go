package middleware

import (
	"context"
	"net/http"
)

type captureKey struct{}

func withCapture(ctx context.Context, slot **http.Request) context.Context {
	return context.WithValue(ctx, captureKey{}, slot)
}

// Capture records the authenticated request for Logging. Mount it right
// after authentication.
func Capture(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slot, ok := r.Context().Value(captureKey{}).(**http.Request); ok {
			*slot = r
		}
		next.ServeHTTP(w, r)
	})
}
