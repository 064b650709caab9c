package tracing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"signalkeep/internal/apierr"
	"signalkeep/internal/config"
	httpctx "signalkeep/internal/http/ctx"
	"signalkeep/internal/metrics"
)

const pipelineLabel = "trace"

// Enqueuer is the non-blocking hand-off into the trace pipeline worker (C7).
type Enqueuer interface {
	TryEnqueue(ProcessedTrace) bool
}

// PolicyResolver resolves a project's content-storage policy, falling back
// to the configured default on lookup failure.
type PolicyResolver interface {
	ContentPolicy(ctx context.Context, projectID string) (ContentStoragePolicy, error)
}

// Single handles POST /v1/traces: a single trace.
func Single(cfg config.LLMTracingConfig, q Enqueuer, policies PolicyResolver, pricing *PricingTable) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		body, ok := httpctx.VerifiedBodyFromCtx(ctx)
		if !ok {
			body = ctx.PostBody()
		}

		var tr Trace
		if err := json.Unmarshal(body, &tr); err != nil {
			apierr.Write(ctx, apierr.BadRequest, "invalid JSON body")
			return
		}

		if err := validate(tr, cfg); err != nil {
			metrics.IngestTotal.WithLabelValues(pipelineLabel, "bad_request").Inc()
			apierr.Write(ctx, apierr.BadRequest, err.Error())
			return
		}

		projectID := resolveProjectID(ctx)
		pt := process(ctx, tr, projectID, cfg, policies, pricing)
		enqueueOne(ctx, q, pt)
	}
}

// Update handles PUT /v1/traces/{id}: a partial update of a running trace.
// Unlike Single/Batch, the request body is a sparse field set — only the
// columns the client actually sent are touched. It is routed through the
// same worker/queue as Single for backpressure consistency, carrying a
// TraceUpdate so the flush applies a field-wise UPDATE instead of the
// full-row create upsert, and so it never contributes to hourly usage
// rollup (see DESIGN.md).
func Update(cfg config.LLMTracingConfig, q Enqueuer, policies PolicyResolver, pricing *PricingTable) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := ctx.UserValue("id").(string)
		if !ok || id == "" {
			apierr.Write(ctx, apierr.BadRequest, "trace id is required")
			return
		}

		body, ok := httpctx.VerifiedBodyFromCtx(ctx)
		if !ok {
			body = ctx.PostBody()
		}

		var upd TraceUpdate
		if err := json.Unmarshal(body, &upd); err != nil {
			apierr.Write(ctx, apierr.BadRequest, "invalid JSON body")
			return
		}

		projectID := resolveProjectID(ctx)
		pt := ProcessedTrace{
			Trace:      Trace{ID: id},
			Update:     &upd,
			ProjectID:  projectID,
			ReceivedAt: time.Now().UnixMilli(),
			IsUpdate:   true,
		}
		enqueueOne(ctx, q, pt)
	}
}

func resolveProjectID(ctx *fasthttp.RequestCtx) string {
	projectID, _ := httpctx.ProjectIDFromCtx(ctx)
	if projectID == "" {
		projectID = "default"
	}
	return projectID
}

func enqueueOne(ctx *fasthttp.RequestCtx, q Enqueuer, pt ProcessedTrace) {
	accepted := q.TryEnqueue(pt)
	if !accepted {
		metrics.QueueDropsTotal.WithLabelValues(pipelineLabel).Inc()
	}
	metrics.IngestTotal.WithLabelValues(pipelineLabel, "accepted").Inc()

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"status":"accepted"}`)
}

// Batch handles POST /v1/traces/batch. The whole batch is validated before
// any entry is enqueued, so a later invalid entry never leaves earlier
// entries enqueued behind a 400 response.
func Batch(cfg config.LLMTracingConfig, q Enqueuer, policies PolicyResolver, pricing *PricingTable) fasthttp.RequestHandler {
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
		if len(req.Traces) > cfg.MaxBatchSize {
			apierr.Write(ctx, apierr.BadRequest, "batch exceeds maximum size")
			return
		}

		for _, tr := range req.Traces {
			if err := validate(tr, cfg); err != nil {
				apierr.Write(ctx, apierr.BadRequest, err.Error())
				return
			}
		}

		projectID := resolveProjectID(ctx)

		var resp BatchResponse
		for _, tr := range req.Traces {
			pt := process(ctx, tr, projectID, cfg, policies, pricing)
			if q.TryEnqueue(pt) {
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

// process applies content-policy projection, cost conversion, and the
// span-to-trace token/cost rollup for a create (POST) entry.
func process(ctx context.Context, tr Trace, projectID string, cfg config.LLMTracingConfig, policies PolicyResolver, pricing *PricingTable) ProcessedTrace {
	policy := ContentStoragePolicy(cfg.DefaultContentStorage)
	if policies != nil {
		if p, err := policies.ContentPolicy(ctx, projectID); err == nil {
			policy = p
		}
	}

	var totalInput, totalOutput, totalCost int64
	for i := range tr.Spans {
		sp := &tr.Spans[i]
		sp.TotalTokens = sp.InputTokens + sp.OutputTokens

		if sp.Cost != 0 {
			sp.CostMicros = DollarsToMicros(sp.Cost)
		} else if pricing != nil && sp.Model != "" {
			sp.CostMicros = pricing.CalculateCostMicros(sp.Model, sp.InputTokens, sp.OutputTokens)
		}

		totalInput += sp.InputTokens
		totalOutput += sp.OutputTokens
		totalCost += sp.CostMicros
	}
	tr.InputTokens = totalInput
	tr.OutputTokens = totalOutput
	tr.TotalTokens = totalInput + totalOutput
	tr.CostMicros = totalCost

	applyContentPolicy(&tr, policy)

	if tr.CreatedAt == 0 {
		tr.CreatedAt = time.Now().UnixMilli()
	}

	return ProcessedTrace{
		Trace:      tr,
		ProjectID:  projectID,
		ReceivedAt: time.Now().UnixMilli(),
		IsUpdate:   false,
	}
}
