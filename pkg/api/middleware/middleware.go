package middleware

import (
	"net/http"

	"github.com/cbodonnell/roadtrip/pkg/log"
	"github.com/felixge/httpsnoop"
)

// NewLoggingMiddleware logs every request with its status and duration.
func NewLoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			if m.Code >= http.StatusInternalServerError {
				log.Error("%s %s %d %s", r.Method, r.URL.Path, m.Code, m.Duration)
				return
			}
			log.Debug("%s %s %d %s (%d bytes)", r.Method, r.URL.Path, m.Code, m.Duration, m.Written)
		})
	}
}

// NewCORSMiddleware allows read-only cross-origin access.
func NewCORSMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
