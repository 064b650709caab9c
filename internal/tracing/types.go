// Package tracing implements the LLM-trace intake and pipeline (C6, C7):
// a structurally analogous but independent path from the error pipeline,
// additionally performing content-policy stripping, span-to-trace token and
// cost rollup, and per-hour usage pre-aggregation.
package tracing

// ContentStoragePolicy controls which textual fields of a trace/span
// survive ingest.
type ContentStoragePolicy string

const (
	PolicyNone         ContentStoragePolicy = "none"
	PolicyMetadataOnly ContentStoragePolicy = "metadata_only"
	PolicyFull         ContentStoragePolicy = "full"
)

// Span is a single LLM operation within a trace.
type Span struct {
	ID                 string         `json:"id"`
	ParentSpanID       string         `json:"parent_span_id,omitempty"`
	SpanType           string         `json:"span_type"`
	Model              string         `json:"model,omitempty"`
	Provider           string         `json:"provider,omitempty"`
	InputTokens        int64          `json:"input_tokens,omitempty"`
	OutputTokens       int64          `json:"output_tokens,omitempty"`
	TotalTokens        int64          `json:"total_tokens,omitempty"`
	Cost               float64        `json:"cost,omitempty"`
	CostMicros         int64          `json:"-"`
	LatencyMs          int64          `json:"latency_ms,omitempty"`
	TimeToFirstTokenMs int64          `json:"time_to_first_token_ms,omitempty"`
	Status             string         `json:"status"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	StartedAt          int64          `json:"started_at"`
	Input              any            `json:"input,omitempty"`
	Output             any            `json:"output,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Trace is the top-level grouping of spans for one end-user interaction.
type Trace struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Status        string         `json:"status"`
	SessionID     string         `json:"session_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	PromptName    string         `json:"prompt_name,omitempty"`
	PromptVersion string         `json:"prompt_version,omitempty"`
	InputTokens   int64          `json:"input_tokens,omitempty"`
	OutputTokens  int64          `json:"output_tokens,omitempty"`
	TotalTokens   int64          `json:"total_tokens,omitempty"`
	CostMicros    int64          `json:"-"`
	Input         any            `json:"input,omitempty"`
	Output        any            `json:"output,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	StartedAt     int64          `json:"started_at,omitempty"`
	EndedAt       int64          `json:"ended_at,omitempty"`
	CreatedAt     int64          `json:"created_at,omitempty"`
	Spans         []Span         `json:"spans,omitempty"`
}

// TraceUpdate carries only the client-supplied fields of a PUT
// /v1/traces/{id} request. A nil field was not sent and must not touch the
// stored column — this is the partial-update counterpart of Trace, applied
// with a field-wise UPDATE rather than the full-row create upsert.
type TraceUpdate struct {
	Status       *string  `json:"status"`
	Output       *string  `json:"output"`
	EndedAt      *int64   `json:"ended_at"`
	InputTokens  *int64   `json:"input_tokens"`
	OutputTokens *int64   `json:"output_tokens"`
	Cost         *float64 `json:"cost"`
}

// ProcessedTrace is the queue element handed from the ingest handler to the
// pipeline worker. For a create/batch entry (IsUpdate false), Trace is the
// full processed trace with content-policy projection, cost conversion, and
// token rollup already applied. For a PUT-origin entry (IsUpdate true),
// Update carries the partial column set to apply and Trace only carries the
// target ID; the flush applies Update as a field-wise UPDATE and excludes it
// from hourly usage rollup entirely (see DESIGN.md).
type ProcessedTrace struct {
	Trace      Trace
	Update     *TraceUpdate
	ProjectID  string
	ReceivedAt int64
	IsUpdate   bool
}

// BatchRequest is the body of POST /v1/traces/batch.
type BatchRequest struct {
	Traces []Trace `json:"traces"`
}

// BatchResponse reports per-entry accept/drop accounting.
type BatchResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}
