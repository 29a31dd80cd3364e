package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

// AzureBackend talks to an Azure OpenAI deployment through go-openai.
type AzureBackend struct {
	modelInfo
	client     *openai.Client
	deployment string
}

var _ ports.StreamingBackend = (*AzureBackend)(nil)

// NewAzureBackend maps every request onto the "deployment" setting (default cfg.ID).
// "api_version" overrides the client's default API version.
func NewAzureBackend(cfg domain.ModelConfig, caps domain.Capabilities) *AzureBackend {
	deployment := cfg.SettingString("deployment", cfg.ID)

	conf := openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"))
	if v := cfg.SettingString("api_version", ""); v != "" {
		conf.APIVersion = v
	}
	conf.AzureModelMapperFunc = func(string) string { return deployment }

	return &AzureBackend{
		modelInfo:  newModelInfo(cfg, caps),
		client:     openai.NewClientWithConfig(conf),
		deployment: deployment,
	}
}

func (b *AzureBackend) buildRequest(prompt domain.Prompt) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.UserContent(),
	})

	return openai.ChatCompletionRequest{
		Model:       b.deployment,
		Messages:    messages,
		Temperature: float32(temperatureOf(prompt)),
		MaxTokens:   maxTokensOf(prompt),
	}
}

func (b *AzureBackend) GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error) {
	start := time.Now()

	resp, err := b.client.CreateChatCompletion(ctx, b.buildRequest(prompt))
	if err != nil {
		return domain.Response{}, b.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Response{}, &domain.BackendError{
			Provider: b.provider,
			ModelID:  b.id,
			Message:  "no choices in response",
		}
	}

	usage := &domain.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	choice := resp.Choices[0]
	return b.response(choice.Message.Content, string(choice.FinishReason), usage, start), nil
}

func (b *AzureBackend) GenerateStreamingResponse(ctx context.Context, prompt domain.Prompt) iter.Seq2[domain.Response, error] {
	return func(yield func(domain.Response, error) bool) {
		start := time.Now()

		stream, err := b.client.CreateChatCompletionStream(ctx, b.buildRequest(prompt))
		if err != nil {
			yield(domain.Response{}, b.wrapError(err))
			return
		}
		defer stream.Close()

		var content strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.Response{}, b.wrapError(err))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			if !yield(b.response(content.String(), string(choice.FinishReason), nil, start), nil) {
				return
			}
		}
	}
}

// IsAvailable lists models on the Azure resource.
func (b *AzureBackend) IsAvailable(ctx context.Context) bool {
	_, err := b.client.ListModels(ctx)
	return err == nil
}

func (b *AzureBackend) wrapError(err error) *domain.BackendError {
	be := b.transportError(err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		be.StatusCode = apiErr.HTTPStatusCode
		be.Code = errorCode(apiErr.Code, apiErr.Type)
		be.Message = sanitizeErrorText(apiErr.Message)
		return be
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		be.StatusCode = reqErr.HTTPStatusCode
	}
	return be
}
