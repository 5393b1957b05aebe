// Package api provides the read-only HTTP API of a tramboard device.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tramboard/tramboard/internal/api/handler"
	"github.com/tramboard/tramboard/internal/api/middleware"
	"github.com/tramboard/tramboard/internal/api/response"
	"github.com/tramboard/tramboard/internal/location"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	// Metrics is optional; without it no HTTP metrics are recorded.
	Metrics *middleware.Metrics

	Tracker  handler.TrackerSource
	Location location.Provider
	Registry handler.HealthRegistry

	// RequestsPerMinute limits each client on the departure routes.
	RequestsPerMinute int
}

// NewRouter creates a chi router serving the departure and ops routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tramboard"
	}

	// Order matters: request ID first so every later layer can log it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r, "the API is read-only")
	})

	departures := handler.NewDeparturesHandler(cfg.Tracker)
	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Tracker:   cfg.Tracker,
		Location:  cfg.Location,
		Registry:  cfg.Registry,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", ops.HealthCheck)
			r.Get("/ready", ops.ReadinessCheck)
			r.Get("/status", ops.SystemStatus)
		})

		r.Route("/departures", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(cfg.RequestsPerMinute))
			r.Get("/", departures.ListDepartures)
			r.Get("/board", departures.Board)
		})
	})

	return r
}
