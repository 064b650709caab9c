// Package ingest implements the error-event intake path (C4): validation,
// fingerprinting, and non-blocking hand-off to the error pipeline worker.
package ingest

// Event is the raw event submitted by a client.
type Event struct {
	Timestamp        int64          `json:"timestamp"`
	Source           string         `json:"source"`
	Environment      string         `json:"environment"`
	Release          string         `json:"release"`
	AppVersion       string         `json:"app_version,omitempty"`
	BuildNumber      string         `json:"build_number,omitempty"`
	RouteOrProcedure string         `json:"route_or_procedure,omitempty"`
	Screen           string         `json:"screen,omitempty"`
	ErrorType        string         `json:"error_type"`
	Message          string         `json:"message"`
	Stack            string         `json:"stack,omitempty"`
	HTTPStatus       int            `json:"http_status,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
	UserIDHash       string         `json:"user_id_hash,omitempty"`
	DeviceIDHash     string         `json:"device_id_hash,omitempty"`
	Fingerprint      string         `json:"fingerprint,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ProcessedEvent is the queue element: the raw event plus a derived
// fingerprint and a monotonic receive timestamp. Immutable once enqueued.
type ProcessedEvent struct {
	Event       Event
	Fingerprint string
	ReceivedAt  int64
	ProjectID   string
}

// BatchRequest is the body of POST /v1/ingest/batch.
type BatchRequest struct {
	Events []Event `json:"events"`
}

// BatchResponse reports per-entry accept/drop accounting.
type BatchResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}
