package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
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

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		MaxPayloadBytes:  32 * 1024,
		MaxStackBytes:    8 * 1024,
		MaxMetadataBytes: 4 * 1024,
		MaxMessageBytes:  2 * 1024,
		MaxBatchSize:     50,
		ChannelCapacity:  8192,
	}
}

func TestValidateRequiresFields(t *testing.T) {
	cfg := testIngestConfig()
	err := validate(Event{}, cfg)
	assert.Error(t, err)
}

func TestValidateMessageSizeCap(t *testing.T) {
	cfg := testIngestConfig()
	ev := Event{
		Source: "api", Environment: "prod", Release: "1.0.0",
		ErrorType: "TypeError", Message: strings.Repeat("a", cfg.MaxMessageBytes+1),
	}
	assert.Error(t, validate(ev, cfg))
}

func TestValidateAccepts(t *testing.T) {
	cfg := testIngestConfig()
	ev := Event{
		Source: "api", Environment: "prod", Release: "1.0.0",
		ErrorType: "TypeError", Message: "Cannot read property id of undefined",
	}
	assert.NoError(t, validate(ev, cfg))
}

type fakeEnqueuer struct {
	accept bool
	got    []ProcessedEvent
}

func (f *fakeEnqueuer) TryEnqueue(pe ProcessedEvent) bool {
	f.got = append(f.got, pe)
	return f.accept
}

func TestProcessDerivesFingerprintAndDefaultsProject(t *testing.T) {
	ev := Event{
		Source: "api", Environment: "prod", Release: "1.0.0",
		ErrorType: "TypeError", Message: "Cannot read property id of undefined",
		RouteOrProcedure: "/api/users",
	}
	pe := process(ev, "")
	assert.Equal(t, "default", pe.ProjectID)
	assert.Len(t, pe.Fingerprint, 16)
	assert.NotZero(t, pe.ReceivedAt)
}

func TestBatchValidatesBeforeEnqueuingAny(t *testing.T) {
	cfg := testIngestConfig()
	q := &fakeEnqueuer{accept: true}
	h := Batch(cfg, q)

	valid := `{"source":"api","environment":"prod","release":"1.0.0","error_type":"TypeError","message":"ok"}`
	body := `{"events":[` + valid + `,{"message":"missing required fields"}]}`
	ctx := newFastHTTPCtx(t, "POST", body)
	h(ctx)

	assert.Equal(t, 400, ctx.Response.StatusCode())
	assert.Empty(t, q.got)
}
