package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/school-platform/attendance-service/internal/auth"
	"github.com/school-platform/attendance-service/internal/observability"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	MetricsEnabled bool
	MetricsPath    string
	AuthMiddleware *auth.Middleware
	RequestTimeout time.Duration
	Metrics        *observability.Metrics
}

// NewRouter creates a new HTTP router.
func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(correlationMiddleware)

	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.Metrics != nil {
		r.Use(metricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", handler.Health)
	r.Get("/ready", handler.Ready)

	// Metrics endpoint (no auth)
	if cfg.MetricsEnabled {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware.Authenticate)
		}

		r.Route("/attendance", func(r chi.Router) {
			r.Post("/marks", handler.RegisterMark)
			r.Get("/marks/{key}", handler.MarkStatus)
			r.Delete("/marks/{key}", handler.DiscardMark)
			r.Get("/marks/{key}/consistency", handler.MarkConsistency)

			r.Post("/windows/{population}", handler.OpenWindow)
			r.Get("/windows/{population}", handler.WindowStatus)
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Get("/{name}", handler.FetchDataset)
			r.Post("/{name}/invalidate", handler.InvalidateDataset)
		})
	})

	return r
}

// correlationMiddleware ensures every request carries a correlation ID,
// taking an inbound X-Correlation-ID header when present.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Correlation-ID"); id != "" {
			ctx = observability.WithCorrelationID(ctx, id)
		}
		ctx = observability.EnsureCorrelationID(ctx)
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = observability.WithRequestID(ctx, reqID)
		}

		w.Header().Set("X-Correlation-ID", observability.GetCorrelationID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// metricsMiddleware records request counts and latency per route pattern.
func metricsMiddleware(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			endpoint := chi.RouteContext(r.Context()).RoutePattern()
			if endpoint == "" {
				endpoint = "unmatched"
			}
			m.RecordRequest(r.Method, endpoint, strconv.Itoa(ww.Status()))
			m.RecordLatency(r.Method, endpoint, time.Since(start).Seconds())
		})
	}
}
