package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

func testConfig(provider, endpoint string) domain.ModelConfig {
	return domain.ModelConfig{
		ID:       "gpt-4o",
		Name:     "GPT-4o",
		Provider: provider,
		Version:  "2024-05-13",
		APIKey:   "sk-test-secret-key-123456",
		Endpoint: endpoint,
	}
}

func TestOpenAIBackend_GenerateResponse(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-secret-key-123456", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"content": "Go is a language. See https://go.dev"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
		}`)
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{SupportsStreaming: true})
	temp := 0.2
	resp, err := backend.GenerateResponse(context.Background(), domain.Prompt{
		Content:      "what is go",
		Context:      "programming",
		SystemPrompt: "be brief",
		Temperature:  &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "Go is a language. See https://go.dev", resp.Content)
	assert.Equal(t, "gpt-4o", resp.ModelID)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "stop", resp.FinishReason())
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 20, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", captured.Model)
	assert.Equal(t, 0.2, captured.Temperature)
	assert.Equal(t, 4000, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "be brief", captured.Messages[0].Content)
	assert.Equal(t, "programming\n\nwhat is go", captured.Messages[1].Content)
}

func TestOpenAIBackend_UpstreamModelSetting(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"choices": [{"message": {"content": "ok"}, "finish_reason": "stop"}]}`)
	}))
	defer srv.Close()

	cfg := testConfig("openai", srv.URL)
	cfg.Settings = map[string]any{"model": "gpt-4o-mini"}
	_, err := NewOpenAIBackend(cfg, domain.Capabilities{}).GenerateResponse(context.Background(), domain.Prompt{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Equal(t, 0.7, captured.Temperature)
}

func TestOpenAIBackend_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "Incorrect API key provided: sk-test-secret-key-123456", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{})
	_, err := backend.GenerateResponse(context.Background(), domain.Prompt{Content: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackend)

	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.StatusCode)
	assert.Equal(t, "invalid_api_key", be.Code)
	assert.NotContains(t, be.Message, "sk-test-secret-key-123456")
	assert.Contains(t, be.Message, "[REDACTED]")
}

func TestOpenAIBackend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", url), domain.Capabilities{})
	_, err := backend.GenerateResponse(context.Background(), domain.Prompt{Content: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackend)

	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Zero(t, be.StatusCode)
}

func TestOpenAIBackend_Streaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{SupportsStreaming: true})

	var contents []string
	var last domain.Response
	for resp, err := range backend.GenerateStreamingResponse(context.Background(), domain.Prompt{Content: "hi"}) {
		require.NoError(t, err)
		contents = append(contents, resp.Content)
		last = resp
	}

	assert.Equal(t, []string{"Hi", "Hi there", "Hi there"}, contents)
	assert.Equal(t, "stop", last.FinishReason())
}

func TestOpenAIBackend_StreamingEarlyBreak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 50; i++ {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%d \"}}]}\n\n", i)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{SupportsStreaming: true})

	count := 0
	for _, err := range backend.GenerateStreamingResponse(context.Background(), domain.Prompt{Content: "count"}) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestOpenAIBackend_StreamingStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "slow down", "type": "rate_limit"}}`)
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{SupportsStreaming: true})

	var errs []error
	for _, err := range backend.GenerateStreamingResponse(context.Background(), domain.Prompt{Content: "hi"}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)

	var be *domain.BackendError
	require.ErrorAs(t, errs[0], &be)
	assert.Equal(t, http.StatusTooManyRequests, be.StatusCode)
	assert.Equal(t, "rate_limit", be.Code)
	assert.Equal(t, "slow down", be.Message)
}

func TestOpenAIBackend_GenerateWithFunctions(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"choices": [{"message": {"content": "", "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "web_search", "arguments": "{\"q\":\"go\"}"}}
		]}, "finish_reason": "tool_calls"}]}`)
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{SupportsFunctionCalling: true})
	resp, err := backend.GenerateWithFunctions(context.Background(), domain.Prompt{Content: "search go"}, []domain.FunctionDefinition{
		{Name: "web_search", Description: "search the web", Parameters: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "web_search", captured.Tools[0].Function.Name)

	require.Len(t, resp.FunctionCalls, 1)
	assert.Equal(t, "call_1", resp.FunctionCalls[0].ID)
	assert.Equal(t, "web_search", resp.FunctionCalls[0].Name)
	assert.JSONEq(t, `{"q":"go"}`, resp.FunctionCalls[0].Arguments)
}

func TestOpenAIBackend_GenerateWithVision(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		fmt.Fprint(w, `{"choices": [{"message": {"content": "a cat"}, "finish_reason": "stop"}]}`)
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{SupportsVision: true})
	resp, err := backend.GenerateWithVision(context.Background(), domain.Prompt{Content: "what is this"}, []string{"https://img.example/cat.png"})
	require.NoError(t, err)
	assert.Equal(t, "a cat", resp.Content)

	messages := raw["messages"].([]any)
	user := messages[len(messages)-1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "https://img.example/cat.png", image["image_url"].(map[string]any)["url"])
}

func TestOpenAIBackend_IsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			fmt.Fprint(w, `{"data": []}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(testConfig("openai", srv.URL), domain.Capabilities{})
	assert.True(t, backend.IsAvailable(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.False(t, NewOpenAIBackend(testConfig("openai", down.URL), domain.Capabilities{}).IsAvailable(context.Background()))

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	assert.False(t, NewOpenAIBackend(testConfig("openai", closedURL), domain.Capabilities{}).IsAvailable(context.Background()))
}

func TestOpenAIBackend_Identity(t *testing.T) {
	caps := domain.Capabilities{MaxTokens: 128000, SupportsStreaming: true}
	backend := NewOpenAIBackend(testConfig("OpenAI", ""), caps)

	assert.Equal(t, "gpt-4o", backend.ID())
	assert.Equal(t, "GPT-4o", backend.Name())
	assert.Equal(t, "OpenAI", backend.Provider())
	assert.Equal(t, "2024-05-13", backend.Version())
	assert.Equal(t, caps, backend.Capabilities())
}
