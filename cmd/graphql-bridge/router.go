package main

import (
	"net/http"
	"time"

	server "github.com/bhoriuchi/graphql-ws-bridge"
	"github.com/bhoriuchi/graphql-ws-bridge/config"
	"github.com/bhoriuchi/graphql-ws-bridge/logger"
	"github.com/bhoriuchi/graphql-ws-bridge/metrics"
	"github.com/bhoriuchi/graphql-ws-bridge/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const limiterIdle = 10 * time.Minute

// newRouter mounts the bridge, health and metrics endpoints. Only the
// GraphQL route is rate limited and the limiter decides which requests count.
func newRouter(cfg *config.Config, srv *server.Server, m *metrics.Metrics, limiter *middleware.RateLimiter, log *logger.LogWrapper) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewTracing(log).Handler)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderRequestID},
		ExposedHeaders:   []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", srv.HealthHandler)
	r.Method(http.MethodGet, cfg.MetricsPath, m.Handler())
	r.With(limiter.Handler).Handle(cfg.GraphQLPath, srv)

	return r
}
