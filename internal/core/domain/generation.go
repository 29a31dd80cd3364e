package domain

// FinishReasonStop is the normalised finish reason for a clean completion.
const FinishReasonStop = "stop"

// Prompt is a single generation request.
type Prompt struct {
	Content      string   `json:"content"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Context      string   `json:"context,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"` // nil = backend default
	MaxTokens    int      `json:"max_tokens,omitempty"`  // 0 = backend default
	Stream       bool     `json:"stream,omitempty"`
}

// UserContent joins the optional context and the content the way every backend sends it.
func (p Prompt) UserContent() string {
	if p.Context == "" {
		return p.Content
	}
	return p.Context + "\n\n" + p.Content
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseMetadata carries provider signals about a generation.
type ResponseMetadata struct {
	FinishReason string   `json:"finish_reason,omitempty"`
	LatencyMs    int64    `json:"latency_ms,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// Response is one (possibly cumulative, when streamed) generation result.
type Response struct {
	Content       string            `json:"content"`
	ModelID       string            `json:"model_id"`
	Provider      string            `json:"provider"`
	Usage         *Usage            `json:"usage,omitempty"`
	Metadata      *ResponseMetadata `json:"metadata,omitempty"`
	FunctionCalls []FunctionCall    `json:"function_calls,omitempty"`
}

// FinishReason returns the metadata finish reason, or "" when absent.
func (r Response) FinishReason() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.FinishReason
}

// FunctionDefinition declares a callable tool for function-calling backends.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ReferencedResponse is a plain generation enriched with extracted references.
type ReferencedResponse struct {
	Response
	References []Reference `json:"references"`
}
