package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"signalkeep/internal/config"
)

func newFastHTTPCtx(t *testing.T, method, body string) *fasthttp.RequestCtx {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetBody([]byte(body))
	return ctx
}

func testTracingConfig() config.LLMTracingConfig {
	return config.LLMTracingConfig{
		Enabled:               true,
		ChannelCapacity:       4096,
		FlushIntervalSecs:     2,
		FlushBatchSize:        200,
		MaxSpansPerTrace:      100,
		MaxBatchSize:          50,
		DefaultContentStorage: "none",
	}
}

func TestValidateRequiresID(t *testing.T) {
	assert.Error(t, validate(Trace{}, testTracingConfig()))
}

func TestValidateRejectsTooManySpans(t *testing.T) {
	cfg := testTracingConfig()
	spans := make([]Span, cfg.MaxSpansPerTrace+1)
	for i := range spans {
		spans[i].ID = "s"
	}
	tr := Trace{ID: "t1", Spans: spans}
	assert.Error(t, validate(tr, cfg))
}

type fakePolicyResolver struct {
	policy ContentStoragePolicy
}

func (f fakePolicyResolver) ContentPolicy(ctx context.Context, projectID string) (ContentStoragePolicy, error) {
	return f.policy, nil
}

func TestProcessComputesRollupAndStripsContentUnderNone(t *testing.T) {
	pricing := NewPricingTable()
	tr := Trace{
		ID:     "t1",
		Name:   "chat",
		Status: "completed",
		Input:  "sensitive prompt",
		Spans: []Span{
			{ID: "s1", SpanType: "generation", Model: "gpt-4o", InputTokens: 100, OutputTokens: 50, Cost: 0.0025, Status: "ok", Input: "hi"},
		},
	}

	pt := process(context.Background(), tr, "default", testTracingConfig(), fakePolicyResolver{policy: PolicyNone}, pricing)

	require.Len(t, pt.Trace.Spans, 1)
	assert.False(t, pt.IsUpdate)
	assert.Nil(t, pt.Update)
	assert.Equal(t, int64(150), pt.Trace.TotalTokens)
	assert.Equal(t, int64(2500), pt.Trace.CostMicros)
	assert.Equal(t, int64(150), pt.Trace.Spans[0].TotalTokens)
	assert.Nil(t, pt.Trace.Input)
	assert.Nil(t, pt.Trace.Spans[0].Input)
}

func TestProcessAutoPricesWhenCostOmitted(t *testing.T) {
	pricing := NewPricingTable()
	tr := Trace{
		ID: "t2", Name: "chat", Status: "completed",
		Spans: []Span{{ID: "s1", SpanType: "generation", Model: "gpt-4o", InputTokens: 500, OutputTokens: 100, Status: "ok"}},
	}

	pt := process(context.Background(), tr, "default", testTracingConfig(), fakePolicyResolver{policy: PolicyFull}, pricing)

	assert.Equal(t, int64(2250), pt.Trace.CostMicros)
}

func TestDollarsToMicrosRounds(t *testing.T) {
	assert.Equal(t, int64(2500), DollarsToMicros(0.0025))
	assert.Equal(t, int64(0), DollarsToMicros(0))
}

type fakeEnqueuer struct {
	items []ProcessedTrace
}

func (f *fakeEnqueuer) TryEnqueue(pt ProcessedTrace) bool {
	f.items = append(f.items, pt)
	return true
}

func TestUpdateHandlerEnqueuesPartialFieldsOnly(t *testing.T) {
	q := &fakeEnqueuer{}
	h := Update(testTracingConfig(), q, nil, nil)

	ctx := newFastHTTPCtx(t, "PUT", `{"status":"completed","ended_at":1700000000000}`)
	ctx.SetUserValue("id", "t1")
	h(ctx)

	require.Len(t, q.items, 1)
	got := q.items[0]
	assert.True(t, got.IsUpdate)
	require.NotNil(t, got.Update)
	assert.Equal(t, "t1", got.Trace.ID)
	require.NotNil(t, got.Update.Status)
	assert.Equal(t, "completed", *got.Update.Status)
	require.NotNil(t, got.Update.EndedAt)
	assert.Equal(t, int64(1700000000000), *got.Update.EndedAt)
	assert.Nil(t, got.Update.InputTokens)
	assert.Nil(t, got.Update.OutputTokens)
	assert.Nil(t, got.Update.Cost)
	// A partial update never carries spans or a recomputed rollup.
	assert.Empty(t, got.Trace.Spans)
	assert.Zero(t, got.Trace.TotalTokens)
}

func TestUpdateHandlerRequiresID(t *testing.T) {
	q := &fakeEnqueuer{}
	h := Update(testTracingConfig(), q, nil, nil)

	ctx := newFastHTTPCtx(t, "PUT", `{"status":"completed"}`)
	h(ctx)

	assert.Empty(t, q.items)
	assert.Equal(t, 400, ctx.Response.StatusCode())
}

func TestBatchValidatesBeforeEnqueuingAny(t *testing.T) {
	q := &fakeEnqueuer{}
	h := Batch(testTracingConfig(), q, nil, NewPricingTable())

	body := `{"traces":[{"id":"ok1","name":"chat","status":"completed"},{"name":"missing-id","status":"completed"}]}`
	ctx := newFastHTTPCtx(t, "POST", body)
	h(ctx)

	assert.Equal(t, 400, ctx.Response.StatusCode())
	assert.Empty(t, q.items)
}
