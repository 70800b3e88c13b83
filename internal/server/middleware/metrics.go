package middleware

import (
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/felixge/httpsnoop"

	"github.com/faciam-dev/gcdisk/internal/metrics"
)

// MetricsMW counts and times API requests. Requests are labelled with the
// route template, so /v1/disks/{uuid} is one series for all disks.
func MetricsMW(ctx huma.Context, next func(huma.Context)) {
	r, w := humachi.Unwrap(ctx)
	route := "unmatched"
	if op := ctx.Operation(); op != nil && op.Path != "" {
		route = op.Path
	}
	m := httpsnoop.CaptureMetricsFn(w, func(w http.ResponseWriter) {
		next(humachi.NewContext(ctx.Operation(), r, w))
	})
	metrics.APIRequests.WithLabelValues(r.Method, route, strconv.Itoa(m.Code)).Inc()
	metrics.APILatency.WithLabelValues(r.Method, route).Observe(m.Duration.Seconds())
}
