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

const (
	DefaultAnthropicEndpoint = "https://api.anthropic.com"
	anthropicVersion         = "2023-06-01"
)

// AnthropicBackend talks to the Anthropic Messages API.
type AnthropicBackend struct {
	modelInfo
	client *resty.Client
	model  string
}

var _ ports.StreamingBackend = (*AnthropicBackend)(nil)

func NewAnthropicBackend(cfg domain.ModelConfig, caps domain.Capabilities) *AnthropicBackend {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultAnthropicEndpoint
	}
	return &AnthropicBackend{
		modelInfo: newModelInfo(cfg, caps),
		client: resty.New().
			SetBaseURL(endpoint).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-api-key", cfg.APIKey).
			SetHeader("anthropic-version", anthropicVersion),
		model: cfg.SettingString("model", cfg.ID),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

// anthropicEvent covers the stream event payloads we read.
type anthropicEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// normalizeStopReason maps Anthropic stop reasons onto the OpenAI vocabulary.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return domain.FinishReasonStop
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}

func (b *AnthropicBackend) buildRequest(prompt domain.Prompt, stream bool) anthropicRequest {
	return anthropicRequest{
		Model:       b.model,
		MaxTokens:   maxTokensOf(prompt),
		System:      prompt.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt.UserContent()}},
		Temperature: temperatureOf(prompt),
		Stream:      stream,
	}
}

func (b *AnthropicBackend) GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error) {
	start := time.Now()

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(b.buildRequest(prompt, false)).
		Post("/v1/messages")
	if err != nil {
		return domain.Response{}, b.transportError(err)
	}
	if resp.IsError() {
		return domain.Response{}, b.statusError(resp.StatusCode(), resp.Body())
	}

	var out anthropicResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return domain.Response{}, b.transportError(fmt.Errorf("decode response: %w", err))
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	usage := &domain.Usage{
		PromptTokens:     out.Usage.InputTokens,
		CompletionTokens: out.Usage.OutputTokens,
		TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
	}
	return b.response(text.String(), normalizeStopReason(out.StopReason), usage, start), nil
}

// GenerateStreamingResponse reads content_block_delta and message_delta events.
func (b *AnthropicBackend) GenerateStreamingResponse(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.Response, error] {
	return func(yield func(domain.Response, error) bool) {
		start := time.Now()

		resp, err := b.client.R().
			SetContext(ctx).
			SetHeader("Accept", "text/event-stream").
			SetBody(b.buildRequest(prompt, true)).
			SetDoNotParseResponse(true).
			Post("/v1/messages")
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
		var inputTokens int
		for {
			ev, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.Response{}, b.transportError(err))
				return
			}

			var event anthropicEvent
			if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				inputTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				content.WriteString(event.Delta.Text)
				if !yield(b.response(content.String(), "", nil, start), nil) {
					return
				}
			case "message_delta":
				if event.Delta.StopReason == "" {
					continue
				}
				usage := &domain.Usage{
					PromptTokens:     inputTokens,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      inputTokens + event.Usage.OutputTokens,
				}
				if !yield(b.response(content.String(), normalizeStopReason(event.Delta.StopReason), usage, start), nil) {
					return
				}
			case "message_stop":
				return
			case "error":
				yield(domain.Response{}, &domain.BackendError{
					Provider: b.provider,
					ModelID:  b.id,
					Code:     event.Error.Type,
					Message:  sanitizeErrorText(event.Error.Message),
				})
				return
			}
		}
	}
}

// IsAvailable probes GET /v1/models.
func (b *AnthropicBackend) IsAvailable(ctx context.Context) bool {
	resp, err := b.client.R().SetContext(ctx).Get("/v1/models")
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}
