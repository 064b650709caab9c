package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/valyala/fasthttp"

	"signalkeep/internal/apierr"
	httpctx "signalkeep/internal/http/ctx"
	"signalkeep/internal/projectkey"
)

const defaultProjectID = "default"

// HMACAuth is the request verifier (C3) plus project-key resolver (C2): it
// enforces the body size cap, resolves the signing project, and compares
// the HMAC-SHA256 signature over the raw body in constant time. It never
// parses the body — handlers parse a buffer this middleware has already
// verified.
func HMACAuth(cache *projectkey.Cache, maxPayloadBytes int) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			body := ctx.PostBody()
			if len(body) > maxPayloadBytes {
				apierr.Write(ctx, apierr.BadRequest, "request body exceeds size limit")
				return
			}

			projectID := string(ctx.Request.Header.Peek("X-Project-Key"))
			if projectID == "" {
				projectID = defaultProjectID
			}

			secret, err := cache.Secret(ctx, projectID)
			if err != nil {
				// Auth failures never distinguish which factor failed.
				apierr.Write(ctx, apierr.Unauthorized, "unauthorized")
				return
			}

			sigHex := ctx.Request.Header.Peek("X-Signature")
			if len(sigHex) == 0 {
				apierr.Write(ctx, apierr.Unauthorized, "unauthorized")
				return
			}

			provided, err := hex.DecodeString(string(sigHex))
			if err != nil {
				apierr.Write(ctx, apierr.Unauthorized, "unauthorized")
				return
			}

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			expected := mac.Sum(nil)

			if len(provided) != len(expected) || subtle.ConstantTimeCompare(provided, expected) != 1 {
				apierr.Write(ctx, apierr.Unauthorized, "unauthorized")
				return
			}

			httpctx.SetProjectID(ctx, projectID)
			httpctx.SetVerifiedBody(ctx, body)
			next(ctx)
		}
	}
}
