package server

import (
	"net/http"

	"github.com/qj0r9j0vc2/slacks/internal/adapter/handler"
	"github.com/qj0r9j0vc2/slacks/internal/adapter/handler/middleware"
	"github.com/qj0r9j0vc2/slacks/internal/domain/logger"
	"github.com/qj0r9j0vc2/slacks/internal/infrastructure/observability"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Ready   *handler.ReadyHandler
	Reload  *handler.ReloadHandler
	Metrics *handler.MetricsHandler
}

// RouterConfig carries optional router dependencies.
type RouterConfig struct {
	Metrics *observability.Metrics
	Stream  middleware.StreamState
}

// NewRouter creates the HTTP router with all handlers.
func NewRouter(handlers *Handlers, log logger.Logger, cfg *RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", handlers.Health)
	mux.Handle("/", handlers.Health)

	if handlers.Ready != nil {
		mux.Handle("/ready", handlers.Ready)
	}
	if handlers.Metrics != nil {
		mux.Handle("/metrics", handlers.Metrics)
	}
	if handlers.Reload != nil {
		mux.Handle("/-/reload", handlers.Reload)
	}

	var (
		metrics *observability.Metrics
		stream  middleware.StreamState
	)
	if cfg != nil {
		metrics = cfg.Metrics
		stream = cfg.Stream
	}

	// Applied innermost first; recovery wraps everything.
	var h http.Handler = mux
	h = middleware.Observability(metrics)(h)
	h = middleware.Logging(log, stream)(h)
	h = middleware.RequestID(h)
	h = middleware.Recovery(log)(h)

	return h
}
