// Package api exposes batch evaluation over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/deck-evaluator/internal/observability"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "deck-evaluator"

// RouterConfig holds router settings.
type RouterConfig struct {
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, evaluations *EvaluationHandler, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Minute
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"` + ServiceName + `"}`))
	})

	// Legacy single-route trigger.
	r.Get("/test_pipeline", evaluations.Evaluate)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/evaluations", evaluations.Evaluate)
	})

	return r
}

// RequestLogger logs one line per request through the structured logger.
func RequestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	logger = logger.WithOperation("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimiddleware.GetReqID(r.Context())
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(observability.ContextWithTraceID(r.Context(), reqID)))

			logger.Info().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}
