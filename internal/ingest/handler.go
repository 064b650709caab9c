package ingest

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"signalkeep/internal/apierr"
	"signalkeep/internal/config"
	"signalkeep/internal/fingerprint"
	httpctx "signalkeep/internal/http/ctx"
	"signalkeep/internal/metrics"
)

// Enqueuer is the non-blocking hand-off into the error pipeline worker.
// TryEnqueue returns false when the queue is full; the handler never
// treats that as an error.
type Enqueuer interface {
	TryEnqueue(ProcessedEvent) bool
}

const pipelineLabel = "error"

// Single handles POST /v1/ingest: a single raw event.
func Single(cfg config.IngestConfig, q Enqueuer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		body, ok := httpctx.VerifiedBodyFromCtx(ctx)
		if !ok {
			body = ctx.PostBody()
		}

		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil {
			metrics.IngestTotal.WithLabelValues(pipelineLabel, "bad_request").Inc()
			apierr.Write(ctx, apierr.BadRequest, "invalid JSON body")
			return
		}

		projectID, _ := httpctx.ProjectIDFromCtx(ctx)

		if err := validate(ev, cfg); err != nil {
			metrics.IngestTotal.WithLabelValues(pipelineLabel, "bad_request").Inc()
			apierr.Write(ctx, apierr.BadRequest, err.Error())
			return
		}

		pe := process(ev, projectID)
		accepted := q.TryEnqueue(pe)
		if !accepted {
			metrics.QueueDropsTotal.WithLabelValues(pipelineLabel).Inc()
		}
		metrics.IngestTotal.WithLabelValues(pipelineLabel, "accepted").Inc()

		// ACK-and-drop: the response is 200 whether or not the event was
		// actually enqueued.
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"accepted"}`)
	}
}

// Batch handles POST /v1/ingest/batch: {"events":[...]} with at most
// cfg.MaxBatchSize entries, continuing per-entry on queue-full with
// independent drop accounting. The whole batch is validated before any
// entry is enqueued, so a later invalid entry never leaves earlier entries
// enqueued behind a 400 response.
func Batch(cfg config.IngestConfig, q Enqueuer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		body, ok := httpctx.VerifiedBodyFromCtx(ctx)
		if !ok {
			body = ctx.PostBody()
		}

		var req BatchRequest
		if err := json.Unmarshal(body, &req); err != nil {
			apierr.Write(ctx, apierr.BadRequest, "invalid JSON body")
			return
		}
		if len(req.Events) > cfg.MaxBatchSize {
			apierr.Write(ctx, apierr.BadRequest, "batch exceeds maximum size")
			return
		}

		for _, ev := range req.Events {
			if err := validate(ev, cfg); err != nil {
				apierr.Write(ctx, apierr.BadRequest, err.Error())
				return
			}
		}

		projectID, _ := httpctx.ProjectIDFromCtx(ctx)

		var resp BatchResponse
		for _, ev := range req.Events {
			pe := process(ev, projectID)
			if q.TryEnqueue(pe) {
				resp.Accepted++
			} else {
				resp.Dropped++
				metrics.QueueDropsTotal.WithLabelValues(pipelineLabel).Inc()
			}
		}
		metrics.IngestTotal.WithLabelValues(pipelineLabel, "accepted").Add(float64(resp.Accepted))

		buf, _ := json.Marshal(resp)
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("application/json")
		ctx.SetBody(buf)
	}
}

func process(ev Event, projectID string) ProcessedEvent {
	fp := fingerprint.Resolve(ev.Fingerprint, ev.Source, ev.ErrorType, ev.RouteOrProcedure, ev.Message, ev.Stack)
	if projectID == "" {
		projectID = "default"
	}
	return ProcessedEvent{
		Event:       ev,
		Fingerprint: fp,
		ReceivedAt:  time.Now().UnixMilli(),
		ProjectID:   projectID,
	}
}
