package domain

import (
	"math"
	"strings"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

// SearchQueryBuilder assembles a SearchQuery fluently. Validation happens in Build.
type SearchQueryBuilder struct {
	draft SearchQuery
}

func NewSearchQueryBuilder() *SearchQueryBuilder {
	return &SearchQueryBuilder{
		draft: SearchQuery{
			Temperature:       DefaultTemperature,
			MaxTokens:         DefaultMaxTokens,
			IncludeReferences: true,
			SearchMode:        SearchModeBoth,
		},
	}
}

func (b *SearchQueryBuilder) SetQuery(query string) *SearchQueryBuilder {
	b.draft.Query = query
	return b
}

func (b *SearchQueryBuilder) SetContext(context string) *SearchQueryBuilder {
	b.draft.Context = context
	return b
}

func (b *SearchQueryBuilder) SetModelID(modelID string) *SearchQueryBuilder {
	b.draft.ModelID = modelID
	return b
}

// SetTemperature clamps t into [0, 2]. NaN leaves the current value untouched.
func (b *SearchQueryBuilder) SetTemperature(t float64) *SearchQueryBuilder {
	if math.IsNaN(t) {
		return b
	}
	b.draft.Temperature = min(max(t, 0), 2)
	return b
}

// SetMaxTokens clamps n to at least 1.
func (b *SearchQueryBuilder) SetMaxTokens(n int) *SearchQueryBuilder {
	b.draft.MaxTokens = max(n, 1)
	return b
}

func (b *SearchQueryBuilder) SetIncludeReferences(include bool) *SearchQueryBuilder {
	b.draft.IncludeReferences = include
	return b
}

func (b *SearchQueryBuilder) SetSearchMode(mode SearchMode) *SearchQueryBuilder {
	b.draft.SearchMode = mode
	return b
}

func (b *SearchQueryBuilder) ForWebSearch() *SearchQueryBuilder {
	return b.SetSearchMode(SearchModeWeb)
}

func (b *SearchQueryBuilder) ForDocumentSearch() *SearchQueryBuilder {
	return b.SetSearchMode(SearchModeDocuments)
}

func (b *SearchQueryBuilder) WithHighCreativity() *SearchQueryBuilder {
	return b.SetTemperature(0.9)
}

func (b *SearchQueryBuilder) WithLowCreativity() *SearchQueryBuilder {
	return b.SetTemperature(0.3)
}

func (b *SearchQueryBuilder) WithLongResponse() *SearchQueryBuilder {
	return b.SetMaxTokens(8000)
}

func (b *SearchQueryBuilder) WithShortResponse() *SearchQueryBuilder {
	return b.SetMaxTokens(1000)
}

func (b *SearchQueryBuilder) WithoutReferences() *SearchQueryBuilder {
	return b.SetIncludeReferences(false)
}

// Build validates the draft and returns a copy of it.
func (b *SearchQueryBuilder) Build() (SearchQuery, error) {
	if strings.TrimSpace(b.draft.Query) == "" {
		return SearchQuery{}, ErrEmptyQuery
	}
	return b.draft, nil
}

func SimpleQuery(query string) (SearchQuery, error) {
	return NewSearchQueryBuilder().SetQuery(query).Build()
}

func WebSearchQuery(query string) (SearchQuery, error) {
	return NewSearchQueryBuilder().SetQuery(query).ForWebSearch().Build()
}

func CreativeQuery(query string) (SearchQuery, error) {
	return NewSearchQueryBuilder().SetQuery(query).WithHighCreativity().WithLongResponse().Build()
}

func PreciseQuery(query string) (SearchQuery, error) {
	return NewSearchQueryBuilder().SetQuery(query).WithLowCreativity().WithShortResponse().Build()
}
