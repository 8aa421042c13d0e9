package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Simplici0/importcost/internal/config"
	"github.com/Simplici0/importcost/internal/form"
	"github.com/Simplici0/importcost/internal/metrics"
)

type server struct {
	cfg      config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	defaults form.Defaults
}

func newServer(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *server {
	return &server{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		defaults: cfg.FormDefaults(),
	}
}

// routes builds the router. HTTP collectors are registered on reg, which is
// also what /metrics serves.
func (s *server) routes(reg *prometheus.Registry) http.Handler {
	metricMiddleware := metrics.NewMiddleware(reg, nil)

	r := chi.NewRouter()
	r.Use(
		requestID,
		accessLog(s.log, "http"),
		middleware.Recoverer,
		metricMiddleware.Handler,
	)
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Post("/recompute", s.handleRecompute)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/defaults", s.handleDefaults)
		r.Post("/compute", s.handleCompute)
		r.Post("/reports", s.handleReports)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return r
}
