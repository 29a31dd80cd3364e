package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

const (
	strategySystemPrompt  = "You are a search strategy expert. Provide a clear, step-by-step approach for answering this query."
	assistantSystemPrompt = "You are a helpful AI assistant. Provide accurate, well-reasoned answers with clear explanations."

	strategyTemperature = 0.3
)

func promptFromQuery(q domain.SearchQuery) domain.Prompt {
	temperature := q.Temperature
	return domain.Prompt{
		Content:     q.Query,
		Context:     q.Context,
		Temperature: &temperature,
		MaxTokens:   q.MaxTokens,
	}
}

// DirectSearchStrategy answers with one backend call.
type DirectSearchStrategy struct{}

var _ ports.SearchStrategy = DirectSearchStrategy{}

func (DirectSearchStrategy) Name() string { return "direct" }

func (DirectSearchStrategy) Description() string {
	return "Direct query to the AI model for a quick answer"
}

func (DirectSearchStrategy) IsApplicable(domain.SearchQuery) bool { return true }

func (DirectSearchStrategy) Priority() int { return 1 }

func (DirectSearchStrategy) Execute(ctx context.Context, q domain.SearchQuery, backend ports.ModelBackend) (domain.SearchResult, error) {
	resp, err := backend.GenerateResponse(ctx, promptFromQuery(q))
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("direct search: %w", err)
	}

	refs := []domain.Reference{}
	if q.IncludeReferences {
		refs = ExtractReferences(resp.Content)
	}

	return domain.SearchResult{
		Answer:     resp.Content,
		References: refs,
		ModelUsed:  backend.ID(),
		Confidence: DirectConfidence(resp),
		TokenUsage: domain.TokenUsageFrom(resp.Usage),
	}, nil
}

// ReasoningSearchStrategy runs a four-step pipeline: analyse the query, ask
// for a search strategy, answer, then extract references.
type ReasoningSearchStrategy struct{}

var _ ports.SearchStrategy = ReasoningSearchStrategy{}

func (ReasoningSearchStrategy) Name() string { return "reasoning" }

func (ReasoningSearchStrategy) Description() string {
	return "Multi-step reasoning approach for complex queries"
}

// IsApplicable matches long queries and ones asking "why" or "how". The word
// match is case-sensitive.
func (ReasoningSearchStrategy) IsApplicable(q domain.SearchQuery) bool {
	return utf8.RuneCountInString(q.Query) > 50 ||
		strings.Contains(q.Query, "why") ||
		strings.Contains(q.Query, "how")
}

func (ReasoningSearchStrategy) Priority() int { return 2 }

func (ReasoningSearchStrategy) Execute(ctx context.Context, q domain.SearchQuery, backend ports.ModelBackend) (domain.SearchResult, error) {
	steps := []domain.ReasoningStep{{
		Step:      1,
		Action:    "query_analysis",
		Reasoning: fmt.Sprintf("Analyzing query: \"%s\"", q.Query),
		Result:    map[string]any{"query": q.Query, "search_mode": q.SearchMode},
	}}

	temperature := strategyTemperature
	plan, err := backend.GenerateResponse(ctx, domain.Prompt{
		Content:      fmt.Sprintf("Analyze this search query and provide a search strategy: \"%s\"", q.Query),
		SystemPrompt: strategySystemPrompt,
		Temperature:  &temperature,
	})
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("reasoning search: strategy generation: %w", err)
	}
	steps = append(steps, domain.ReasoningStep{
		Step:      2,
		Action:    "strategy_generation",
		Reasoning: "Generated search strategy",
		Result:    plan.Content,
		ModelID:   backend.ID(),
	})

	prompt := promptFromQuery(q)
	prompt.SystemPrompt = assistantSystemPrompt
	answer, err := backend.GenerateResponse(ctx, prompt)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("reasoning search: response generation: %w", err)
	}
	steps = append(steps, domain.ReasoningStep{
		Step:      3,
		Action:    "response_generation",
		Reasoning: "Generated comprehensive response",
		Result:    answer.Content,
		ModelID:   backend.ID(),
	})

	refs := []domain.Reference{}
	if q.IncludeReferences {
		refs = ExtractReferences(answer.Content)
	}
	steps = append(steps, domain.ReasoningStep{
		Step:      4,
		Action:    "reference_extraction",
		Reasoning: fmt.Sprintf("Extracted %d relevant references", len(refs)),
		Result:    refs,
	})

	return domain.SearchResult{
		Answer:         answer.Content,
		References:     refs,
		ModelUsed:      backend.ID(),
		Confidence:     ReasoningConfidence(answer),
		TokenUsage:     domain.TokenUsageFrom(answer.Usage),
		ReasoningSteps: steps,
	}, nil
}
