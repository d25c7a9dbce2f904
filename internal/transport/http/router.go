package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reconcile/internal/platform/metrics"
	"reconcile/internal/platform/middleware"
	"reconcile/pkg/platform/httputil"
)

// RouteRegistrar is implemented by module handlers that mount their own routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// RouterConfig carries the shared pieces every route needs.
type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	// Gatherer backs GET /metrics. Nil leaves the endpoint unmounted.
	Gatherer prometheus.Gatherer
}

// NewRouter wires the middleware chain and mounts each module's routes.
// Unknown paths and wrong verbs answer with the JSON error envelope.
func NewRouter(cfg RouterConfig, modules ...RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(cfg.Logger))
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.LatencyMiddleware(cfg.Metrics))

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		for _, m := range modules {
			m.Register(r)
		}
	})
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
		"error":             "not_found",
		"error_description": "Route " + r.Method + " " + r.URL.RequestURI() + " not found",
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error":             "method_not_allowed",
		"error_description": "method " + r.Method + " not allowed on " + r.URL.Path,
	})
}
