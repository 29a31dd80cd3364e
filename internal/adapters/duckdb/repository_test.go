package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleTrace(id string, start time.Time) *domain.Trace {
	end := start.Add(1500 * time.Millisecond)
	root := domain.SpanID(id + "-root")
	return &domain.Trace{
		ID:         domain.TraceID(id),
		RootSpanID: root,
		Name:       "search: " + id,
		Status:     domain.SpanStatusOK,
		ModelID:    "gpt-4o",
		Strategy:   "direct",
		StartTime:  start,
		EndTime:    &end,
		DurationMs: 1500,
		SpanCount:  2,
		Spans: []domain.Span{
			{
				ID: root, TraceID: domain.TraceID(id), Name: "search", Kind: domain.SpanKindSearch,
				Status: domain.SpanStatusOK, StartTime: start, EndTime: &end, DurationMs: 1500,
			},
			{
				ID: domain.SpanID(id + "-llm"), ParentID: root, TraceID: domain.TraceID(id),
				Name: "llm.generate", Kind: domain.SpanKindLLM, Status: domain.SpanStatusOK,
				Input: "what is go", Output: "a language", Model: "gpt-4o",
				Attributes: map[string]string{"provider": "openai"},
				StartTime:  start.Add(time.Millisecond),
			},
		},
	}
}

func TestRepository_Traces(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.SaveTrace(ctx, sampleTrace("t1", start.Add(-time.Minute))))
	require.NoError(t, repo.SaveTrace(ctx, sampleTrace("t2", start)))

	// 1. List newest first
	list, err := repo.ListTraces(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.TraceID("t2"), list[0].ID)
	assert.Equal(t, "gpt-4o", list[0].ModelID)
	assert.Equal(t, 2, list[0].SpanCount)

	// 2. Full trace with spans
	got, err := repo.GetTrace(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "direct", got.Strategy)
	assert.Equal(t, domain.SpanID("t2-root"), got.RootSpanID)
	require.NotNil(t, got.EndTime)
	assert.WithinDuration(t, start.Add(1500*time.Millisecond), *got.EndTime, time.Millisecond)
	require.Len(t, got.Spans, 2)
	assert.Equal(t, domain.SpanKindSearch, got.Spans[0].Kind)
	llm := got.Spans[1]
	assert.Equal(t, domain.SpanID("t2-root"), llm.ParentID)
	assert.Equal(t, "openai", llm.Attributes["provider"])
	assert.Nil(t, llm.EndTime)

	// 3. Upsert updates status
	updated := sampleTrace("t2", start)
	updated.Status = domain.SpanStatusError
	require.NoError(t, repo.SaveTrace(ctx, updated))
	got, err = repo.GetTrace(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, domain.SpanStatusError, got.Status)

	// 4. Limit
	list, err = repo.ListTraces(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepository_GetTraceNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetTrace(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTraceNotFound)
}

func TestRepository_EmptyList(t *testing.T) {
	repo := newTestRepo(t)
	list, err := repo.ListTraces(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}
