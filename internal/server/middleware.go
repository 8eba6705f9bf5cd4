package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/payhook/internal/metrics"
	"github.com/learnhub/payhook/internal/requestctx"
)

const (
	requestIDHeader    = "X-Request-ID"
	maxRequestIDLength = 128

	// unmatchedPath labels requests outside the registered routes.
	unmatchedPath = "unmatched"
)

// RecoveryMiddleware turns a handler panic into a gateway-shaped 500.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			requestctx.Logger(r.Context()).Error().
				Interface("panic", rec).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from handler panic")

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"error":"internal server error"}`))
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware propagates the caller's request id or assigns one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), id)))
	})
}

// LoggingMiddleware logs one line per request. The query string is left out
// since redirect callbacks carry payment fields in it.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, start := newStatusRecorder(w), time.Now()
		next.ServeHTTP(rec, r)

		requestctx.Logger(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.written).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("Request completed")
	})
}

// MetricsMiddleware records request counts and latency. Paths outside
// routes are collapsed into one label and skip is not measured at all.
func MetricsMiddleware(routes []string, skip string) Middleware {
	known := make(map[string]struct{}, len(routes))
	for _, p := range routes {
		known[p] = struct{}{}
	}

	label := func(path string) string {
		if _, ok := known[path]; ok {
			return path
		}
		return unmatchedPath
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == skip {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncrementInFlight()
			defer metrics.DecrementInFlight()

			rec, start := newStatusRecorder(w), time.Now()
			next.ServeHTTP(rec, r)

			metrics.RecordHTTPRequest(r.Method, label(r.URL.Path), rec.status, time.Since(start))
		})
	}
}

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.written += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
