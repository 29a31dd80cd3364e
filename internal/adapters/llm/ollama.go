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

const DefaultOllamaEndpoint = "http://localhost:11434"

// OllamaBackend talks to a local Ollama instance through /api/chat.
type OllamaBackend struct {
	modelInfo
	client *resty.Client
	model  string
}

var _ ports.StreamingBackend = (*OllamaBackend)(nil)

func NewOllamaBackend(cfg domain.ModelConfig, caps domain.Capabilities) *OllamaBackend {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultOllamaEndpoint
	}
	return &OllamaBackend{
		modelInfo: newModelInfo(cfg, caps),
		client: resty.New().
			SetBaseURL(endpoint).
			SetHeader("Content-Type", "application/json"),
		model: cfg.SettingString("model", cfg.ID),
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (r ollamaChatResponse) usage() *domain.Usage {
	if !r.Done {
		return nil
	}
	return &domain.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

func (r ollamaChatResponse) finishReason() string {
	if !r.Done {
		return ""
	}
	if r.DoneReason == "" {
		return domain.FinishReasonStop
	}
	return r.DoneReason
}

func (b *OllamaBackend) buildRequest(prompt domain.Prompt, stream bool) ollamaChatRequest {
	messages := make([]ollamaMessage, 0, 2)
	if prompt.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: prompt.SystemPrompt})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt.UserContent()})

	return ollamaChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: temperatureOf(prompt),
			NumPredict:  maxTokensOf(prompt),
		},
	}
}

func (b *OllamaBackend) GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error) {
	start := time.Now()

	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(b.buildRequest(prompt, false)).
		Post("/api/chat")
	if err != nil {
		return domain.Response{}, b.transportError(err)
	}
	if resp.IsError() {
		return domain.Response{}, b.statusError(resp.StatusCode(), resp.Body())
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return domain.Response{}, b.transportError(fmt.Errorf("decode response: %w", err))
	}
	return b.response(out.Message.Content, out.finishReason(), out.usage(), start), nil
}

// GenerateStreamingResponse decodes Ollama's newline-delimited JSON stream.
func (b *OllamaBackend) GenerateStreamingResponse(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.Response, error] {
	return func(yield func(domain.Response, error) bool) {
		start := time.Now()

		resp, err := b.client.R().
			SetContext(ctx).
			SetBody(b.buildRequest(prompt, true)).
			SetDoNotParseResponse(true).
			Post("/api/chat")
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

		decoder := json.NewDecoder(body)
		var content strings.Builder
		for {
			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(domain.Response{}, b.transportError(fmt.Errorf("decode stream: %w", err)))
				return
			}
			if chunk.Error != "" {
				yield(domain.Response{}, &domain.BackendError{
					Provider: b.provider,
					ModelID:  b.id,
					Message:  sanitizeErrorText(chunk.Error),
				})
				return
			}
			if chunk.Message.Content == "" && !chunk.Done {
				continue
			}

			content.WriteString(chunk.Message.Content)
			if !yield(b.response(content.String(), chunk.finishReason(), chunk.usage(), start), nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
	}
}

// IsAvailable probes GET /api/tags.
func (b *OllamaBackend) IsAvailable(ctx context.Context) bool {
	resp, err := b.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}
