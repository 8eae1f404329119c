package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Counter counts hits in a fixed window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter allows perMinute requests per client address. Counters live
// in redis so every API replica shares them.
type RateLimiter struct {
	counter   Counter
	perMinute int64
	prefix    string
}

func NewRateLimiter(counter Counter, perMinute int) *RateLimiter {
	return &RateLimiter{counter: counter, perMinute: int64(perMinute), prefix: "staffcore:ratelimit:"}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.counter == nil || rl.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		window := time.Now().Unix() / 60
		key := fmt.Sprintf("%s%s:%d", rl.prefix, r.RemoteAddr, window)

		n, err := rl.counter.Hit(r.Context(), key, time.Minute)
		if err != nil {
			// fail open
			slog.Warn("rate limit counter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if n > rl.perMinute {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.FormatInt(60-time.Now().Unix()%60, 10))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
