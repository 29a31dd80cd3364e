package domain

// SearchMode narrows which sources a search should favour.
type SearchMode string

const (
	SearchModeWeb       SearchMode = "web"
	SearchModeDocuments SearchMode = "documents"
	SearchModeBoth      SearchMode = "both"
)

// SearchQuery holds the execution parameters of one search.
// All fields are scalars, so a copy never shares state with its source.
type SearchQuery struct {
	Query             string     `json:"query"`
	Context           string     `json:"context,omitempty"`
	ModelID           string     `json:"model_id,omitempty"`
	Temperature       float64    `json:"temperature"`
	MaxTokens         int        `json:"max_tokens"`
	IncludeReferences bool       `json:"include_references"`
	SearchMode        SearchMode `json:"search_mode"`
}

// ReferenceSource tells where a reference came from.
type ReferenceSource string

const (
	ReferenceSourceWeb      ReferenceSource = "web"
	ReferenceSourceDocument ReferenceSource = "document"
	ReferenceSourceDatabase ReferenceSource = "database"
)

type Reference struct {
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Snippet   string          `json:"snippet"`
	Relevance float64         `json:"relevance"` // 0..1
	Source    ReferenceSource `json:"source"`
}

// TokenUsage is the token accounting surfaced on a search result.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// TokenUsageFrom converts backend usage, returning nil when absent.
func TokenUsageFrom(u *Usage) *TokenUsage {
	if u == nil {
		return nil
	}
	return &TokenUsage{Prompt: u.PromptTokens, Completion: u.CompletionTokens, Total: u.TotalTokens}
}

// ReasoningStep is one entry of the reasoning pipeline's audit trail.
type ReasoningStep struct {
	Step      int    `json:"step"` // 1-based
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
	Result    any    `json:"result,omitempty"`
	ModelID   string `json:"model_id,omitempty"`
}

type SearchResult struct {
	Answer         string          `json:"answer"`
	References     []Reference     `json:"references"`
	ModelUsed      string          `json:"model_used"`
	Confidence     float64         `json:"confidence"` // 0..1
	SearchTimeMs   int64           `json:"search_time_ms"`
	TokenUsage     *TokenUsage     `json:"token_usage,omitempty"`
	ReasoningSteps []ReasoningStep `json:"reasoning_steps,omitempty"`
	TraceID        TraceID         `json:"trace_id,omitempty"`
}

// PartialResult is one element of a streamed search. The answer is cumulative.
type PartialResult struct {
	Answer       string      `json:"answer"`
	References   []Reference `json:"references,omitempty"`
	ModelUsed    string      `json:"model_used"`
	Confidence   float64     `json:"confidence"`
	SearchTimeMs int64       `json:"search_time_ms,omitempty"`
	Final        bool        `json:"final"`
}

type DebateResponse struct {
	ModelID    string  `json:"model_id"`
	ModelName  string  `json:"model_name"`
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

// DebateResult aggregates a multi-model run. An empty Consensus means no overlap.
type DebateResult struct {
	Responses     []DebateResponse `json:"responses"`
	Consensus     string           `json:"consensus,omitempty"`
	Disagreements []string         `json:"disagreements,omitempty"`
	TraceID       TraceID          `json:"trace_id,omitempty"`
}

// HealthReport is the orchestrator-level health snapshot.
type HealthReport struct {
	Orchestrator bool            `json:"orchestrator"`
	Models       map[string]bool `json:"models"`
	Services     map[string]bool `json:"services"`
}
