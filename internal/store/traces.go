package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"signalkeep/internal/tracing"
)

// traceKey identifies one (project_id, trace_id) pair for last-write-wins
// merging within a single flush.
type traceKey struct {
	projectID string
	id        string
}

// WriteTraceBatch performs the trace pipeline's flush in a single immediate
// transaction: merged trace upsert, span upsert, hourly usage rollup, and
// field-wise partial updates.
//
// Create/batch entries and PUT-origin update entries are handled by
// disjoint code paths: only creates participate in the last-write-wins
// merge and the full-row upsert, so a create and a PUT for the same trace
// landing in one flush window never collapse into a single zeroing write.
// An update only ever issues a column-wise UPDATE against llm_traces and
// carries no spans, so it never touches llm_usage_hourly (see DESIGN.md).
func (s *Store) WriteTraceBatch(ctx context.Context, items []tracing.ProcessedTrace) (err error) {
	if len(items) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: begin trace flush transaction: %w", err)
	}
	defer endTransaction(&err)

	creates := make([]tracing.ProcessedTrace, 0, len(items))
	updates := make([]tracing.ProcessedTrace, 0, len(items))
	for _, item := range items {
		if item.IsUpdate {
			updates = append(updates, item)
		} else {
			creates = append(creates, item)
		}
	}

	// Last-write-wins merge per (project_id, id) for the trace row itself.
	merged := make(map[traceKey]tracing.ProcessedTrace, len(creates))
	order := make([]traceKey, 0, len(creates))
	for _, item := range creates {
		k := traceKey{projectID: item.ProjectID, id: item.Trace.ID}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = item
	}

	for _, k := range order {
		if err = upsertTrace(conn, merged[k]); err != nil {
			return err
		}
	}

	for _, item := range creates {
		for _, sp := range item.Trace.Spans {
			if err = upsertSpan(conn, item.ProjectID, item.Trace.ID, sp); err != nil {
				return err
			}
			hourBucket := (sp.StartedAt / 3_600_000) * 3_600_000
			if err = upsertUsageHourly(conn, item.ProjectID, hourBucket, sp); err != nil {
				return err
			}
		}
	}

	for _, item := range updates {
		if item.Update == nil {
			continue
		}
		if err = applyTraceUpdate(conn, item.ProjectID, item.Trace.ID, *item.Update); err != nil {
			return err
		}
	}

	return nil
}

// applyTraceUpdate issues a column-wise UPDATE against llm_traces touching
// only the fields present in upd, leaving every other column as-is. When
// both InputTokens and OutputTokens are present together, total_tokens is
// recomputed from the pair; a lone InputTokens or OutputTokens updates only
// itself. A fully empty upd is a no-op.
func applyTraceUpdate(conn *sqlite.Conn, projectID, traceID string, upd tracing.TraceUpdate) error {
	var sets []string
	var args []any

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, *upd.Output)
	}
	if upd.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, *upd.EndedAt)
	}
	if upd.InputTokens != nil && upd.OutputTokens != nil {
		sets = append(sets, "input_tokens = ?", "output_tokens = ?", "total_tokens = ?")
		args = append(args, *upd.InputTokens, *upd.OutputTokens, *upd.InputTokens+*upd.OutputTokens)
	} else if upd.InputTokens != nil {
		sets = append(sets, "input_tokens = ?")
		args = append(args, *upd.InputTokens)
	} else if upd.OutputTokens != nil {
		sets = append(sets, "output_tokens = ?")
		args = append(args, *upd.OutputTokens)
	}
	if upd.Cost != nil {
		sets = append(sets, "cost_micros = ?")
		args = append(args, tracing.DollarsToMicros(*upd.Cost))
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, projectID, traceID)
	query := fmt.Sprintf(
		"UPDATE llm_traces SET %s WHERE project_id = ? AND id = ?",
		strings.Join(sets, ", "),
	)
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
}

func upsertTrace(conn *sqlite.Conn, item tracing.ProcessedTrace) error {
	tr := item.Trace
	inputJSON := marshalAny(tr.Input)
	outputJSON := marshalAny(tr.Output)
	metadataJSON := marshalAny(tr.Metadata)

	return sqlitex.Execute(conn,
		`INSERT INTO llm_traces (
			project_id, id, name, status, session_id, user_id, prompt_name, prompt_version,
			input_tokens, output_tokens, total_tokens, cost_micros,
			input, output, metadata, started_at, ended_at, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (project_id, id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			session_id = excluded.session_id,
			user_id = excluded.user_id,
			prompt_name = excluded.prompt_name,
			prompt_version = excluded.prompt_version,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			total_tokens = excluded.total_tokens,
			cost_micros = excluded.cost_micros,
			input = excluded.input,
			output = excluded.output,
			metadata = excluded.metadata,
			ended_at = excluded.ended_at`,
		&sqlitex.ExecOptions{Args: []any{
			item.ProjectID, tr.ID, tr.Name, tr.Status, tr.SessionID, tr.UserID, tr.PromptName, tr.PromptVersion,
			tr.InputTokens, tr.OutputTokens, tr.TotalTokens, tr.CostMicros,
			inputJSON, outputJSON, metadataJSON, tr.StartedAt, tr.EndedAt, tr.CreatedAt,
		}},
	)
}

func upsertSpan(conn *sqlite.Conn, projectID, traceID string, sp tracing.Span) error {
	inputJSON := marshalAny(sp.Input)
	outputJSON := marshalAny(sp.Output)
	metadataJSON := marshalAny(sp.Metadata)

	return sqlitex.Execute(conn,
		`INSERT INTO llm_spans (
			project_id, id, trace_id, parent_span_id, span_type, model, provider,
			input_tokens, output_tokens, total_tokens, cost_micros,
			latency_ms, time_to_first_token_ms, status, error_message,
			input, output, metadata, started_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (project_id, id) DO UPDATE SET
			trace_id = excluded.trace_id,
			parent_span_id = excluded.parent_span_id,
			span_type = excluded.span_type,
			model = excluded.model,
			provider = excluded.provider,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			total_tokens = excluded.total_tokens,
			cost_micros = excluded.cost_micros,
			latency_ms = excluded.latency_ms,
			time_to_first_token_ms = excluded.time_to_first_token_ms,
			status = excluded.status,
			error_message = excluded.error_message,
			input = excluded.input,
			output = excluded.output,
			metadata = excluded.metadata`,
		&sqlitex.ExecOptions{Args: []any{
			projectID, sp.ID, traceID, nullableString(sp.ParentSpanID), sp.SpanType, sp.Model, sp.Provider,
			sp.InputTokens, sp.OutputTokens, sp.TotalTokens, sp.CostMicros,
			sp.LatencyMs, sp.TimeToFirstTokenMs, sp.Status, sp.ErrorMessage,
			inputJSON, outputJSON, metadataJSON, sp.StartedAt,
		}},
	)
}

func upsertUsageHourly(conn *sqlite.Conn, projectID string, hourBucket int64, sp tracing.Span) error {
	errCount := 0
	if sp.Status == "error" {
		errCount = 1
	}
	return sqlitex.Execute(conn,
		`INSERT INTO llm_usage_hourly (
			project_id, hour_bucket, model, provider,
			span_count, input_tokens, output_tokens, total_tokens, cost_micros,
			error_count, total_latency_ms
		) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, hour_bucket, model, provider) DO UPDATE SET
			span_count = span_count + 1,
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			total_tokens = total_tokens + excluded.total_tokens,
			cost_micros = cost_micros + excluded.cost_micros,
			error_count = error_count + excluded.error_count,
			total_latency_ms = total_latency_ms + excluded.total_latency_ms`,
		&sqlitex.ExecOptions{Args: []any{
			projectID, hourBucket, sp.Model, sp.Provider,
			sp.InputTokens, sp.OutputTokens, sp.TotalTokens, sp.CostMicros,
			errCount, sp.LatencyMs,
		}},
	)
}

// ContentPolicy implements tracing.PolicyResolver by reading the project's
// row in llm_project_settings. When no row exists it returns
// ErrProjectNotFound, and the caller falls back to its configured default.
func (s *Store) ContentPolicy(ctx context.Context, projectID string) (tracing.ContentStoragePolicy, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Put(conn)

	var policy string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT content_storage FROM llm_project_settings WHERE project_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				policy = stmt.GetText("content_storage")
				found = true
				return nil
			},
		},
	)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrProjectNotFound
	}
	return tracing.ContentStoragePolicy(policy), nil
}

func marshalAny(v any) any {
	if v == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(buf)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
