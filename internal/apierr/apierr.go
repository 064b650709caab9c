// Package apierr defines the uniform error-response shape the HTTP surface
// returns to clients: a stable kind string, never a stack trace.
package apierr

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

type Kind string

const (
	BadRequest   Kind = "bad_request"
	Unauthorized Kind = "unauthorized"
	ServerError  Kind = "server_error"
)

type body struct {
	Error struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// Write sets the status code matching kind and writes the uniform JSON body.
func Write(ctx *fasthttp.RequestCtx, kind Kind, message string) {
	var status int
	switch kind {
	case BadRequest:
		status = fasthttp.StatusBadRequest
	case Unauthorized:
		status = fasthttp.StatusUnauthorized
	default:
		status = fasthttp.StatusInternalServerError
	}

	var b body
	b.Error.Kind = kind
	b.Error.Message = message

	buf, err := json.Marshal(b)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"error":{"kind":"server_error","message":"internal error"}}`)
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(buf)
}
