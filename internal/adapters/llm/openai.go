package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

// DefaultOpenAIEndpoint is used when a config leaves the endpoint empty.
const DefaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAIBackend talks to any OpenAI-compatible chat completions API.
// Works with: OpenAI, Together AI, LiteLLM, vLLM, local Ollama /v1, etc.
type OpenAIBackend struct {
	modelInfo
	client *resty.Client
	model  string // upstream model name
}

var (
	_ ports.StreamingBackend       = (*OpenAIBackend)(nil)
	_ ports.FunctionCallingBackend = (*OpenAIBackend)(nil)
	_ ports.VisionBackend          = (*OpenAIBackend)(nil)
)

// NewOpenAIBackend builds the backend. The upstream model defaults to cfg.ID
// and can be overridden with the "model" setting.
func NewOpenAIBackend(cfg domain.ModelConfig, caps domain.Capabilities) *OpenAIBackend {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}

	client := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &OpenAIBackend{
		modelInfo: newModelInfo(cfg, caps),
		client:    client,
		model:     cfg.SettingString("model", cfg.ID),
	}
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []chatContentPart
}

type chatTool struct {
	Type     string                    `json:"type"`
	Function domain.FunctionDefinition `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *chatUsage) toDomain() *domain.Usage {
	if u == nil {
		return nil
	}
	return &domain.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

func (b *OpenAIBackend) buildRequest(prompt domain.Prompt, userContent any) chatRequest {
	messages := make([]chatMessage, 0, 2)
	if prompt.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.SystemPrompt})
	}
	if userContent == nil {
		userContent = prompt.UserContent()
	}
	messages = append(messages, chatMessage{Role: "user", Content: userContent})

	return chatRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: temperatureOf(prompt),
		MaxTokens:   maxTokensOf(prompt),
	}
}

// GenerateResponse calls POST /chat/completions.
func (b *OpenAIBackend) GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error) {
	return b.complete(ctx, b.buildRequest(prompt, nil))
}

// GenerateWithFunctions sends the functions as tools and surfaces any tool calls.
func (b *OpenAIBackend) GenerateWithFunctions(ctx context.Context, prompt domain.Prompt, functions []domain.FunctionDefinition) (domain.Response, error) {
	req := b.buildRequest(prompt, nil)
	for _, fn := range functions {
		req.Tools = append(req.Tools, chatTool{Type: "function", Function: fn})
	}
	return b.complete(ctx, req)
}

// GenerateWithVision sends the prompt text plus one image_url part per image.
func (b *OpenAIBackend) GenerateWithVision(ctx context.Context, prompt domain.Prompt, imageURLs []string) (domain.Response, error) {
	parts := make([]chatContentPart, 0, len(imageURLs)+1)
	parts = append(parts, chatContentPart{Type: "text", Text: prompt.UserContent()})
	for _, u := range imageURLs {
		parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: u}})
	}
	return b.complete(ctx, b.buildRequest(prompt, parts))
}

func (b *OpenAIBackend) complete(ctx context.Context, req chatRequest) (domain.Response, error) {
	start := time.Now()

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return domain.Response{}, b.transportError(err)
	}
	if resp.IsError() {
		return domain.Response{}, b.statusError(resp.StatusCode(), resp.Body())
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return domain.Response{}, b.transportError(fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return domain.Response{}, &domain.BackendError{
			Provider:   b.provider,
			ModelID:    b.id,
			StatusCode: resp.StatusCode(),
			Message:    "no choices in response",
		}
	}

	choice := out.Choices[0]
	result := b.response(choice.Message.Content, choice.FinishReason, out.Usage.toDomain(), start)
	for _, tc := range choice.Message.ToolCalls {
		result.FunctionCalls = append(result.FunctionCalls, domain.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

// GenerateStreamingResponse reads the SSE stream and yields cumulative content.
func (b *OpenAIBackend) GenerateStreamingResponse(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.Response, error] {
	return func(yield func(domain.Response, error) bool) {
		req := b.buildRequest(prompt, nil)
		req.Stream = true
		start := time.Now()

		resp, err := b.client.R().
			SetContext(ctx).
			SetHeader("Accept", "text/event-stream").
			SetBody(req).
			SetDoNotParseResponse(true).
			Post("/chat/completions")
		if err != nil {
			yield(domain.Response{}, b.transportError(err))
			return
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.IsError() {
			data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
			yield(domain.Response{}, b.statusError(resp.StatusCode(), data))
			return
		}

		stream := newSSEReader(body)
		var content strings.Builder
		var usage *domain.Usage
		for {
			ev, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.Response{}, b.transportError(err))
				return
			}
			if ev.Data == sseDone {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				continue
			}
			if chunk.Usage != nil {
				usage = chunk.Usage.toDomain()
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			finish := ""
			if choice.FinishReason != nil {
				finish = *choice.FinishReason
			}
			if choice.Delta.Content == "" && finish == "" {
				continue
			}

			content.WriteString(choice.Delta.Content)
			if !yield(b.response(content.String(), finish, usage, start), nil) {
				return
			}
		}
	}
}

// IsAvailable probes GET /models.
func (b *OpenAIBackend) IsAvailable(ctx context.Context) bool {
	resp, err := b.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}
