package services

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBackend is a testify mock for ports.ModelBackend.
type mockBackend struct {
	mock.Mock
	id       string
	name     string
	provider string
	caps     domain.Capabilities
}

func newMockBackend(id, provider string) *mockBackend {
	return &mockBackend{
		id:       id,
		name:     strings.ToUpper(id),
		provider: provider,
		caps:     domain.Capabilities{MaxTokens: 4096, ModelType: domain.ModelTypeChat},
	}
}

func (m *mockBackend) ID() string                        { return m.id }
func (m *mockBackend) Name() string                      { return m.name }
func (m *mockBackend) Provider() string                  { return m.provider }
func (m *mockBackend) Version() string                   { return "1" }
func (m *mockBackend) Capabilities() domain.Capabilities { return m.caps }

func (m *mockBackend) GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(domain.Response), args.Error(1)
}

func (m *mockBackend) IsAvailable(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// stopped builds a response that finished cleanly.
func stopped(content string) domain.Response {
	return domain.Response{
		Content:  content,
		Metadata: &domain.ResponseMetadata{FinishReason: domain.FinishReasonStop},
		Usage:    &domain.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}
}

// panicBackend blows up when probed.
type panicBackend struct{ *mockBackend }

func (panicBackend) IsAvailable(context.Context) bool { panic("probe exploded") }

// fakeStreamer yields cumulative content for each chunk, then a final stop element.
type fakeStreamer struct {
	*mockBackend
	chunks   []string
	err      error // yielded after the chunks, if set
	produced atomic.Int32
	released atomic.Bool
}

func newFakeStreamer(id string, chunks ...string) *fakeStreamer {
	b := newMockBackend(id, "openai")
	b.caps.SupportsStreaming = true
	return &fakeStreamer{mockBackend: b, chunks: chunks}
}

func (f *fakeStreamer) GenerateStreamingResponse(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.Response, error] {
	return func(yield func(domain.Response, error) bool) {
		defer f.released.Store(true)

		var acc strings.Builder
		for _, c := range f.chunks {
			acc.WriteString(c)
			f.produced.Add(1)
			if !yield(domain.Response{Content: acc.String(), ModelID: f.id}, nil) {
				return
			}
		}
		if f.err != nil {
			yield(domain.Response{}, f.err)
			return
		}
		yield(domain.Response{
			Content:  acc.String(),
			ModelID:  f.id,
			Metadata: &domain.ResponseMetadata{FinishReason: domain.FinishReasonStop},
		}, nil)
	}
}

// fixedStrategy is a strategy with a configurable priority and applicability.
type fixedStrategy struct {
	name       string
	priority   int
	applicable bool
}

func (s fixedStrategy) Name() string                         { return s.name }
func (s fixedStrategy) Description() string                  { return "fixed " + s.name }
func (s fixedStrategy) IsApplicable(domain.SearchQuery) bool { return s.applicable }
func (s fixedStrategy) Priority() int                        { return s.priority }

func (s fixedStrategy) Execute(_ context.Context, _ domain.SearchQuery, backend ports.ModelBackend) (domain.SearchResult, error) {
	return domain.SearchResult{Answer: "from " + s.name, ModelUsed: backend.ID(), Confidence: 0.5}, nil
}

// memoryTraceRepo is an in-memory ports.TraceRepository.
type memoryTraceRepo struct {
	mock.Mock
	saved chan *domain.Trace
}

func newMemoryTraceRepo() *memoryTraceRepo {
	return &memoryTraceRepo{saved: make(chan *domain.Trace, 16)}
}

func (r *memoryTraceRepo) SaveTrace(_ context.Context, trace *domain.Trace) error {
	r.saved <- trace
	return nil
}

func (r *memoryTraceRepo) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	args := r.Called(ctx, limit)
	return args.Get(0).([]domain.TraceSummary), args.Error(1)
}

func (r *memoryTraceRepo) GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error) {
	args := r.Called(ctx, id)
	trace, _ := args.Get(0).(*domain.Trace)
	return trace, args.Error(1)
}
