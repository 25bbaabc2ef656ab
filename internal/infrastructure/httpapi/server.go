// Package httpapi is Rockestra's ambient HTTP surface: liveness, metrics
// scraping, and a debug endpoint that runs a registered flow and returns its
// execution trace. It is deliberately not the out-of-scope validator/explain
// CLI — an ops/debug surface, built with the same go-chi/chi and go-chi/cors
// combination the retrieval pack's kubernaut repo uses for its own gateway.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rockestra/rockestra/internal/infrastructure/metrics"
	"github.com/rockestra/rockestra/internal/rockestra/flowhost"
	"github.com/rockestra/rockestra/internal/rockestra/ports"
)

// Server wraps a chi.Mux exposing /healthz, /metrics, and /explain/{flowName}
// over a flowhost.Host. It holds no per-request state of its own.
type Server struct {
	router *chi.Mux
	host   *flowhost.Host
	logger ports.Logger
}

// New builds the router. metricsCollector may be nil, in which case /metrics
// serves an empty registry rather than panicking.
func New(host *flowhost.Host, metricsCollector *metrics.Collector, logger ports.Logger) *Server {
	s := &Server{host: host, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	if metricsCollector != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metricsCollector.Registry(), promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}))
	}
	r.Get("/explain/{flowName}", s.handleExplain)

	s.router = r
	return s
}

// ServeHTTP lets Server itself act as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
