package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/faciam-dev/gcdisk/internal/server/middleware"
)

// setupMetrics exposes /metrics and records request metrics for every
// operation registered afterwards.
func setupMetrics(api huma.API, r chi.Router) {
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	api.UseMiddleware(middleware.MetricsMW)
}
