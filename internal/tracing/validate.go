package tracing

import (
	"errors"

	"signalkeep/internal/config"
)

// validate enforces the size/shape invariants of a trace. Any violation
// rejects the whole request with 400 and no enqueue.
func validate(tr Trace, cfg config.LLMTracingConfig) error {
	if tr.ID == "" {
		return errors.New("id is required")
	}
	if len(tr.ID) > 128 {
		return errors.New("id exceeds 128 characters")
	}
	if len(tr.Spans) > cfg.MaxSpansPerTrace {
		return errors.New("trace exceeds maximum spans")
	}
	for _, sp := range tr.Spans {
		if sp.ID == "" {
			return errors.New("span id is required")
		}
	}
	return nil
}
