package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kishlaychandan/feedback-backend/internal/observability"
	"github.com/kishlaychandan/feedback-backend/internal/ratelimit"
)

const serviceName = "feedback-service"

// RouterOptions carries the optional cross-cutting pieces. A nil Limiter
// disables rate limiting, a nil Tracer disables the tracing middleware and a
// nil Metrics handler leaves /metrics unmounted.
type RouterOptions struct {
	Limiter *ratelimit.RateLimiter
	Tracer  oteltrace.Tracer
	Metrics http.Handler
}

// NewRouter creates the HTTP router
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Trace-ID", "Retry-After"},
		MaxAge:         300,
	}))
	if opts.Tracer != nil {
		r.Use(observability.MetricsAndTracingMiddleware(opts.Tracer, serviceName))
	}

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	limited := func(r chi.Router) chi.Router { return r }
	if opts.Limiter != nil {
		mw := opts.Limiter.Middleware(ratelimit.KeyByIP)
		limited = func(r chi.Router) chi.Router { return r.With(mw) }
	}

	r.Get("/api/health", h.Health)
	limited(r).Post("/api/feedback", h.Feedback)
	r.Get("/api/conversations", h.Conversations)
	r.Get("/api/devices/{deviceId}", h.Device)
	r.Get("/api/devices/{deviceId}/telemetry", h.Telemetry)

	limited(r).Get("/ws/feedback", h.HandleWebSocket)

	return r
}
