package store

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"signalkeep/internal/ingest"
)

// BufferedErrorEvent is one item held in the error worker's flush buffer.
// FirstSeenByWorker mirrors the aggregator-cache miss recorded at the
// moment the worker received the event: a sample row is only captured for
// fingerprints not already present in the in-memory aggregator cache.
type BufferedErrorEvent struct {
	PE                ingest.ProcessedEvent
	FirstSeenByWorker bool
}

// NewFingerprint is emitted for every aggregate row newly inserted (not
// updated) by a flush — the trigger for alert evaluation.
type NewFingerprint struct {
	ProjectID   string
	Fingerprint string
	Event       ingest.ProcessedEvent
}

// WriteErrorBatch performs the error pipeline's flush in a single immediate
// transaction: raw-event insert, aggregate upsert, hourly counter upsert,
// and reservoir-bounded sample capture.
func (s *Store) WriteErrorBatch(ctx context.Context, items []BufferedErrorEvent, reservoirSize int) (newFPs []NewFingerprint, err error) {
	if len(items) == 0 {
		return nil, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("store: begin error flush transaction: %w", err)
	}
	defer endTransaction(&err)

	for _, item := range items {
		e := item.PE.Event
		metadataJSON := marshalMetadata(e.Metadata)

		if err = insertRawEvent(conn, item.PE, metadataJSON); err != nil {
			return nil, err
		}

		existed, existErr := aggregateExists(conn, item.PE.ProjectID, item.PE.Fingerprint, e.Release, e.Environment)
		if existErr != nil {
			err = existErr
			return nil, err
		}

		if err = upsertAggregate(conn, item.PE); err != nil {
			return nil, err
		}

		if !existed {
			newFPs = append(newFPs, NewFingerprint{
				ProjectID:   item.PE.ProjectID,
				Fingerprint: item.PE.Fingerprint,
				Event:       item.PE,
			})
		}

		hourBucket := (e.Timestamp / 3_600_000) * 3_600_000
		if err = upsertHourlyCount(conn, item.PE, hourBucket); err != nil {
			return nil, err
		}

		if item.FirstSeenByWorker {
			if err = insertSample(conn, item.PE, metadataJSON); err != nil {
				return nil, err
			}
			if err = pruneSamples(conn, item.PE.ProjectID, item.PE.Fingerprint, reservoirSize); err != nil {
				return nil, err
			}
		}
	}

	return newFPs, nil
}

func marshalMetadata(m map[string]any) string {
	if m == nil {
		return ""
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(buf)
}

func insertRawEvent(conn *sqlite.Conn, pe ingest.ProcessedEvent, metadataJSON string) error {
	e := pe.Event
	return sqlitex.Execute(conn,
		`INSERT INTO raw_events (
			timestamp, source, environment, release, app_version, build_number,
			route_or_procedure, screen, error_type, message, stack, http_status,
			request_id, user_id_hash, device_id_hash, fingerprint, metadata,
			received_at, project_id
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		&sqlitex.ExecOptions{Args: []any{
			e.Timestamp, e.Source, e.Environment, e.Release, e.AppVersion, e.BuildNumber,
			e.RouteOrProcedure, e.Screen, e.ErrorType, e.Message, e.Stack, e.HTTPStatus,
			e.RequestID, e.UserIDHash, e.DeviceIDHash, pe.Fingerprint, metadataJSON,
			pe.ReceivedAt, pe.ProjectID,
		}},
	)
}

func aggregateExists(conn *sqlite.Conn, projectID, fingerprint, release, environment string) (bool, error) {
	found := false
	err := sqlitex.Execute(conn,
		`SELECT 1 FROM error_aggregates WHERE project_id=? AND fingerprint=? AND release=? AND environment=?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID, fingerprint, release, environment},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return nil
			},
		},
	)
	return found, err
}

// upsertAggregate increments total_count, advances last_seen, and
// transitions resolved -> unresolved on re-arrival.
func upsertAggregate(conn *sqlite.Conn, pe ingest.ProcessedEvent) error {
	e := pe.Event
	return sqlitex.Execute(conn,
		`INSERT INTO error_aggregates (
			project_id, fingerprint, release, environment,
			total_count, first_seen, last_seen,
			error_type, message, source, route_or_procedure, screen, status
		) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, 'unresolved')
		ON CONFLICT (project_id, fingerprint, release, environment) DO UPDATE SET
			total_count = total_count + 1,
			last_seen   = MAX(last_seen, excluded.last_seen),
			status      = CASE WHEN status = 'resolved' THEN 'unresolved' ELSE status END`,
		&sqlitex.ExecOptions{Args: []any{
			pe.ProjectID, pe.Fingerprint, e.Release, e.Environment,
			e.Timestamp, e.Timestamp,
			e.ErrorType, e.Message, e.Source, e.RouteOrProcedure, e.Screen,
		}},
	)
}

func upsertHourlyCount(conn *sqlite.Conn, pe ingest.ProcessedEvent, hourBucket int64) error {
	e := pe.Event
	return sqlitex.Execute(conn,
		`INSERT INTO event_counts_hourly (project_id, fingerprint, hour_bucket, environment, source, count)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT (project_id, fingerprint, hour_bucket, environment, source) DO UPDATE SET
			count = count + 1`,
		&sqlitex.ExecOptions{Args: []any{pe.ProjectID, pe.Fingerprint, hourBucket, e.Environment, e.Source}},
	)
}

func insertSample(conn *sqlite.Conn, pe ingest.ProcessedEvent, metadataJSON string) error {
	e := pe.Event
	return sqlitex.Execute(conn,
		`INSERT INTO sample_occurrences (
			fingerprint, project_id, captured_at, source, environment, release,
			error_type, message, stack, request_id, metadata,
			user_id_hash, device_id_hash, app_version, build_number, screen,
			http_status, route_or_procedure
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		&sqlitex.ExecOptions{Args: []any{
			pe.Fingerprint, pe.ProjectID, pe.ReceivedAt, e.Source, e.Environment, e.Release,
			e.ErrorType, e.Message, e.Stack, e.RequestID, metadataJSON,
			e.UserIDHash, e.DeviceIDHash, e.AppVersion, e.BuildNumber, e.Screen,
			e.HTTPStatus, e.RouteOrProcedure,
		}},
	)
}

func pruneSamples(conn *sqlite.Conn, projectID, fingerprint string, reservoirSize int) error {
	return sqlitex.Execute(conn,
		`DELETE FROM sample_occurrences WHERE fingerprint = ? AND project_id = ? AND id NOT IN (
			SELECT id FROM sample_occurrences WHERE fingerprint = ? AND project_id = ?
			ORDER BY captured_at DESC LIMIT ?
		)`,
		&sqlitex.ExecOptions{Args: []any{fingerprint, projectID, fingerprint, projectID, reservoirSize}},
	)
}
