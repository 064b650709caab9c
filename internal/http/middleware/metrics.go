package middleware

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"signalkeep/internal/metrics"
)

// RequestMetrics times every request and records it against the Prometheus
// histogram, feeding local metrics rather than looping a self-reported event
// back into the ingest pipeline.
func RequestMetrics(routeLabel string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			duration := time.Since(start)

			status := strconv.Itoa(ctx.Response.StatusCode())
			method := string(ctx.Method())
			metrics.HTTPRequestDuration.WithLabelValues(routeLabel, method, status).Observe(duration.Seconds())
		}
	}
}
