package server

import (
	"net/http"

	"github.com/learnhub/payhook/internal/metrics"
	"github.com/learnhub/payhook/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	cfg := r.server.cfg

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	if cfg.Metrics.Enabled {
		routes := []string{
			cfg.Server.WebhookPath,
			cfg.Server.HashPath,
			"/health",
			"/health/ready",
		}
		r.Use(MetricsMiddleware(routes, cfg.Metrics.Path))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	cfg := r.server.cfg

	// The webhook handler answers preflight and method errors itself.
	r.mux.Handle(cfg.Server.WebhookPath, r.server.webhook)

	hash := handlers.NewPaymentHashHandler(cfg.Gateways.Bank.StoreKey, cfg.Server.MaxBodySize)
	r.mux.Handle(cfg.Server.HashPath, r.server.hashLimiter.Middleware(hash))

	health := handlers.NewHealthHandlers(r.server.DB(), cfg.Store.Driver, r.server.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.HandleFunc("GET /health/ready", health.Readiness)

	if cfg.Metrics.Enabled {
		r.mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
	}

	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		handlers.NotFound(w, "not found")
	})
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
