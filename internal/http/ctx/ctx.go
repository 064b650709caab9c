// Package ctx stores per-request values on the fasthttp.RequestCtx, using
// typed user-value keys to pass auth results from middleware down to
// handlers.
package ctx

import "github.com/valyala/fasthttp"

const (
	ProjectIDKey    = "projectID"
	VerifiedBodyKey = "verifiedBody"
)

// SetProjectID records the project resolved by the HMAC-auth middleware.
func SetProjectID(ctx *fasthttp.RequestCtx, projectID string) {
	ctx.SetUserValue(ProjectIDKey, projectID)
}

func ProjectIDFromCtx(ctx *fasthttp.RequestCtx) (string, bool) {
	v := ctx.UserValue(ProjectIDKey)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetVerifiedBody records the already-HMAC-verified raw body, so handlers
// never need to re-buffer or re-check it.
func SetVerifiedBody(ctx *fasthttp.RequestCtx, body []byte) {
	ctx.SetUserValue(VerifiedBodyKey, body)
}

func VerifiedBodyFromCtx(ctx *fasthttp.RequestCtx) ([]byte, bool) {
	v := ctx.UserValue(VerifiedBodyKey)
	if v == nil {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}
