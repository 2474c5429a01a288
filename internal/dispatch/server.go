// Package dispatch is the Dispatch Protocol Endpoint and Query Surface
// (spec.md §4.F, §4.G): the HTTP boundary printers and upstream callers
// cross to reach the Job Store, Device Registry, Presence Tracker, and
// History Log.
package dispatch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jonaohana/vessale/internal/audit"
	"github.com/jonaohana/vessale/internal/config"
	"github.com/jonaohana/vessale/internal/history"
	"github.com/jonaohana/vessale/internal/jobstore"
	"github.com/jonaohana/vessale/internal/presence"
	"github.com/jonaohana/vessale/internal/registry"
	"github.com/jonaohana/vessale/internal/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracerName is the instrumentation scope name for every span this package
// opens.
const tracerName = "github.com/jonaohana/vessale/internal/dispatch"

// Server wires the protocol handlers to the core components. It is stateless
// beyond those references — all mutable state lives in the components it
// holds.
type Server struct {
	store    *jobstore.Store
	registry *registry.Registry
	presence *presence.Tracker
	history  *history.Log
	audit    audit.Sink
	broker   *render.Broker
	loader   *config.Loader

	logger   *zap.Logger
	tracer   trace.Tracer
	validate *validator.Validate
}

// Deps bundles Server's collaborators.
type Deps struct {
	Store    *jobstore.Store
	Registry *registry.Registry
	Presence *presence.Tracker
	History  *history.Log
	Audit    audit.Sink
	Broker   *render.Broker
	Loader   *config.Loader
	Logger   *zap.Logger
}

// NewServer constructs a Server from deps.
func NewServer(deps Deps) *Server {
	return &Server{
		store:    deps.Store,
		registry: deps.Registry,
		presence: deps.Presence,
		history:  deps.History,
		audit:    deps.Audit,
		broker:   deps.Broker,
		loader:   deps.Loader,
		logger:   deps.Logger,
		tracer:   otel.Tracer(tracerName),
		validate: validator.New(),
	}
}

// NewRouter builds the full chi mux: the printer protocol, the intake
// endpoint, the read-only query surface, and a Prometheus scrape endpoint.
// CORS is permissive by default (spec.md lists CORS policy itself as an
// external-collaborator non-goal; the transport boundary still exists).
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	}))

	r.Route("/cloudprnt", func(r chi.Router) {
		r.Post("/", s.handlePoll)
		r.Get("/", s.handleFetch)
		r.Delete("/", s.handleConfirm)
	})

	r.Post("/api/print", s.handleIntake)
	r.Post("/api/config/reload", s.handleReload)

	r.Get("/api/printers", s.handleListPrinters)
	r.Get("/api/printers/online", s.handleOnlinePrinters)
	r.Get("/api/printers/{serial}/history", s.handleSerialHistory)
	r.Get("/api/tenants/{tenant}/queue", s.handleTenantQueue)
	r.Get("/api/presence", s.handlePresenceDump)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
