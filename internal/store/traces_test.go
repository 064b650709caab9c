package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"signalkeep/internal/tracing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traces.db")
	pool, err := OpenPool(PoolConfig{Path: path, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	s := New(pool, nil)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.EnsureDefaultProject(context.Background(), "default", "Default", "default", "secret", 1000))
	return s
}

func loadTrace(t *testing.T, s *Store, projectID, id string) (name, status string, inputTokens, outputTokens, totalTokens, costMicros int64) {
	t.Helper()
	conn, err := s.pool.Take(context.Background())
	require.NoError(t, err)
	defer s.pool.Put(conn)

	found := false
	err = sqlitex.Execute(conn,
		`SELECT name, status, input_tokens, output_tokens, total_tokens, cost_micros FROM llm_traces WHERE project_id = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{projectID, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				name = stmt.GetText("name")
				status = stmt.GetText("status")
				inputTokens = stmt.GetInt64("input_tokens")
				outputTokens = stmt.GetInt64("output_tokens")
				totalTokens = stmt.GetInt64("total_tokens")
				costMicros = stmt.GetInt64("cost_micros")
				found = true
				return nil
			},
		},
	)
	require.NoError(t, err)
	require.True(t, found)
	return
}

func TestWriteTraceBatchCreateThenPartialUpdatePreservesUnsentColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	create := tracing.ProcessedTrace{
		ProjectID:  "default",
		ReceivedAt: 1000,
		Trace: tracing.Trace{
			ID: "t1", Name: "chat-completion", Status: "running",
			InputTokens: 100, OutputTokens: 50, TotalTokens: 150, CostMicros: 2500,
			Spans: []tracing.Span{
				{ID: "s1", SpanType: "generation", Model: "gpt-4o", InputTokens: 100, OutputTokens: 50, TotalTokens: 150, CostMicros: 2500, Status: "ok", StartedAt: 1000},
			},
		},
	}
	require.NoError(t, s.WriteTraceBatch(ctx, []tracing.ProcessedTrace{create}))

	status := "completed"
	endedAt := int64(2000)
	update := tracing.ProcessedTrace{
		ProjectID: "default",
		IsUpdate:  true,
		Trace:     tracing.Trace{ID: "t1"},
		Update:    &tracing.TraceUpdate{Status: &status, EndedAt: &endedAt},
	}
	require.NoError(t, s.WriteTraceBatch(ctx, []tracing.ProcessedTrace{update}))

	name, gotStatus, inputTokens, outputTokens, totalTokens, costMicros := loadTrace(t, s, "default", "t1")
	require.Equal(t, "chat-completion", name, "name must survive a PUT that never sent it")
	require.Equal(t, "completed", gotStatus)
	require.Equal(t, int64(100), inputTokens, "token rollup must survive a partial update")
	require.Equal(t, int64(50), outputTokens)
	require.Equal(t, int64(150), totalTokens)
	require.Equal(t, int64(2500), costMicros, "cost rollup must survive a partial update")
}

func TestWriteTraceBatchUpdateInSameWindowDoesNotClobberCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	status := "completed"
	create := tracing.ProcessedTrace{
		ProjectID: "default",
		Trace: tracing.Trace{
			ID: "t1", Name: "chat-completion", Status: "running",
			InputTokens: 10, OutputTokens: 20, TotalTokens: 30, CostMicros: 900,
			Spans: []tracing.Span{
				{ID: "s1", SpanType: "generation", InputTokens: 10, OutputTokens: 20, TotalTokens: 30, CostMicros: 900, Status: "ok", StartedAt: 1000},
			},
		},
	}
	update := tracing.ProcessedTrace{
		ProjectID: "default",
		IsUpdate:  true,
		Trace:     tracing.Trace{ID: "t1"},
		Update:    &tracing.TraceUpdate{Status: &status},
	}

	// A create and a PUT for the same trace land in one flush window.
	require.NoError(t, s.WriteTraceBatch(ctx, []tracing.ProcessedTrace{create, update}))

	name, gotStatus, inputTokens, _, totalTokens, costMicros := loadTrace(t, s, "default", "t1")
	require.Equal(t, "chat-completion", name)
	require.Equal(t, "completed", gotStatus)
	require.Equal(t, int64(10), inputTokens)
	require.Equal(t, int64(30), totalTokens)
	require.Equal(t, int64(900), costMicros)
}

func TestWriteTraceBatchUpdateCombinesTokensOnlyWhenBothPresent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	create := tracing.ProcessedTrace{
		ProjectID: "default",
		Trace:     tracing.Trace{ID: "t1", Name: "chat", Status: "running"},
	}
	require.NoError(t, s.WriteTraceBatch(ctx, []tracing.ProcessedTrace{create}))

	input := int64(40)
	update := tracing.ProcessedTrace{
		ProjectID: "default",
		IsUpdate:  true,
		Trace:     tracing.Trace{ID: "t1"},
		Update:    &tracing.TraceUpdate{InputTokens: &input},
	}
	require.NoError(t, s.WriteTraceBatch(ctx, []tracing.ProcessedTrace{update}))

	_, _, inputTokens, outputTokens, totalTokens, _ := loadTrace(t, s, "default", "t1")
	require.Equal(t, int64(40), inputTokens)
	require.Equal(t, int64(0), outputTokens)
	require.Equal(t, int64(0), totalTokens, "total_tokens only recomputes when both input and output are sent together")
}
