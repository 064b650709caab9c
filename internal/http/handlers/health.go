package handlers

import (
	"context"
	"encoding/json"

	"github.com/valyala/fasthttp"
)

// HealthStore is the durable-storage round-trip the health endpoint probes.
type HealthStore interface {
	Health(ctx context.Context) error
}

// QueueUsage reports a pipeline's current fill fraction (0.0-1.0).
type QueueUsage interface {
	Usage() float64
}

type healthResponse struct {
	Status      string  `json:"status"`
	DBOk        bool    `json:"db_ok"`
	BufferUsage float64 `json:"buffer_usage"`
}

// Health handles GET /health (no auth required): a trivial store round-trip
// plus the error pipeline's current queue fill.
func Health(st HealthStore, errorQueue QueueUsage) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		dbOk := st.Health(ctx) == nil

		status := "ok"
		if !dbOk {
			status = "degraded"
		}

		resp := healthResponse{
			Status:      status,
			DBOk:        dbOk,
			BufferUsage: errorQueue.Usage(),
		}

		buf, _ := json.Marshal(resp)
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("application/json")
		ctx.SetBody(buf)
	}
}
