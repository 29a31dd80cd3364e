package ports

import (
	"context"
	"iter"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

// ModelBackend abstracts a language-model provider integration.
type ModelBackend interface {
	ID() string
	Name() string
	Provider() string
	Version() string
	Capabilities() domain.Capabilities

	// GenerateResponse runs one completion. Provider failures are *domain.BackendError.
	GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error)

	// IsAvailable is a cheap reachability probe. It reports false instead of failing.
	IsAvailable(ctx context.Context) bool
}

// StreamingBackend is implemented by backends that can stream a completion.
type StreamingBackend interface {
	ModelBackend

	// GenerateStreamingResponse yields cumulative content, not deltas.
	// Breaking out of the loop releases the underlying connection.
	GenerateStreamingResponse(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.Response, error]
}

// FunctionCallingBackend is implemented by backends that accept tool definitions.
type FunctionCallingBackend interface {
	ModelBackend
	GenerateWithFunctions(ctx context.Context, prompt domain.Prompt, functions []domain.FunctionDefinition) (domain.Response, error)
}

// VisionBackend is implemented by backends that accept image inputs.
type VisionBackend interface {
	ModelBackend
	GenerateWithVision(ctx context.Context, prompt domain.Prompt, imageURLs []string) (domain.Response, error)
}

// SearchStrategy turns a query and a backend into a result.
type SearchStrategy interface {
	Name() string
	Description() string
	Execute(ctx context.Context, query domain.SearchQuery, backend ModelBackend) (domain.SearchResult, error)
	IsApplicable(query domain.SearchQuery) bool
	// Priority orders strategies; higher is tried first.
	Priority() int
}

// TraceRepository persists completed traces (DuckDB).
type TraceRepository interface {
	SaveTrace(ctx context.Context, trace *domain.Trace) error
	ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error)
	GetTrace(ctx context.Context, id domain.TraceID) (*domain.Trace, error)
}
