package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/gita-reflect/internal/health"
	"github.com/ashureev/gita-reflect/internal/middleware"
	"github.com/ashureev/gita-reflect/internal/reflection"
	"github.com/ashureev/gita-reflect/internal/store"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Service        *reflection.Service
	Verses         store.VerseRepository
	Probe          *health.Probe
	Storage        StorageInfo
	Limiter        *RateLimiter
	Gatherer       prometheus.Gatherer // nil disables /metrics
	AllowedOrigins []string
	MaxBodySize    int64
	RequestLogging bool
}

// NewRouter builds the HTTP router.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if d.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))

	NewHealthHandler(d.Probe, d.Storage).RegisterHealth(r)
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		NewConversationHandler(d.Service, d.Limiter, d.MaxBodySize).RegisterRoutes(r)
		NewVerseHandler(d.Verses).RegisterRoutes(r)
		NewTTSHandler(d.MaxBodySize).RegisterRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
