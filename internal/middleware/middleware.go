// Package middleware holds the HTTP middlewares: request logging and a
// process-wide rate limit on mutating requests.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestLogger logs one line per request with method, path, status and
// duration.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	once   sync.Once
}

func (r *statusRecorder) WriteHeader(status int) {
	r.once.Do(func() { r.status = status })
	r.ResponseWriter.WriteHeader(status)
}

// RateLimiter bounds mutating requests. The service is single-user; one
// process-wide limiter is enough.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows a sustained 20 mutations per second with a burst of
// 40. Reads are never limited.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(20, 40)}
}

// Middleware applies the limit to non-GET requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && !rl.limiter.Allow() {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
