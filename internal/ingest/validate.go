package ingest

import (
	"encoding/json"
	"errors"

	"signalkeep/internal/config"
)

// validate enforces the size invariants and required fields of an event.
// Any violation rejects the whole request with 400 and no enqueue.
func validate(ev Event, cfg config.IngestConfig) error {
	if ev.Source == "" {
		return errors.New("source is required")
	}
	if ev.Environment == "" {
		return errors.New("environment is required")
	}
	if ev.Release == "" {
		return errors.New("release is required")
	}
	if ev.ErrorType == "" {
		return errors.New("error_type is required")
	}
	if ev.Message == "" {
		return errors.New("message is required")
	}
	if len(ev.Message) > cfg.MaxMessageBytes {
		return errors.New("message exceeds size limit")
	}
	if len(ev.Stack) > cfg.MaxStackBytes {
		return errors.New("stack exceeds size limit")
	}
	if ev.Metadata != nil {
		buf, err := json.Marshal(ev.Metadata)
		if err != nil {
			return errors.New("metadata is not valid JSON")
		}
		if len(buf) > cfg.MaxMetadataBytes {
			return errors.New("metadata exceeds size limit")
		}
	}
	return nil
}
