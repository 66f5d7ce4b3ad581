package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/akolanti/BidExtract/internal/metrics"
	"github.com/akolanti/BidExtract/pkg/logger_i"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-Id"

var _logger = logger_i.NewLogger("middleware")

// Trace reuses the caller's X-Trace-Id or mints one, and carries it in the
// request context for logger_i.WithContext.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace := r.Header.Get(TraceHeader)
		if trace == "" {
			trace = uuid.NewString()
		}
		w.Header().Set(TraceHeader, trace)
		next.ServeHTTP(w, r.WithContext(logger_i.WithTrace(r.Context(), trace)))
	})
}

// Metrics counts requests by route pattern and status.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		metrics.HttpRequestsTotal.WithLabelValues(path, strconv.Itoa(rec.Status)).Inc()
		requestLogger(r).Debug("request served", "path", path, "status", rec.Status)
	})
}

func requestLogger(r *http.Request) *logger_i.Logger {
	return _logger.WithContext(r.Context())
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
