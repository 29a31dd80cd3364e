package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

// ModelDiscovery lists models served by Ollama and OpenAI-compatible proxies
// and turns them into configs the factory can build.
type ModelDiscovery struct {
	logger *slog.Logger
	client *resty.Client
}

func NewModelDiscovery(logger *slog.Logger) *ModelDiscovery {
	return &ModelDiscovery{
		logger: logger,
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

// ollamaTagsResponse is the Ollama /api/tags JSON structure.
type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Model   string `json:"model"`
		Details struct {
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
			Family            string `json:"family"`
		} `json:"details"`
	} `json:"models"`
}

// openAIModelsResponse is the OpenAI-compatible /v1/models response.
type openAIModelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// DiscoverOllama queries the Ollama instance at baseURL for installed models.
func (d *ModelDiscovery) DiscoverOllama(ctx context.Context, baseURL string) ([]domain.ModelConfig, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var tags ollamaTagsResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&tags).
		Get(baseURL + "/api/tags")
	if err != nil {
		return nil, fmt.Errorf("ollama not reachable at %s: %w", baseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama returned %d", resp.StatusCode())
	}

	models := make([]domain.ModelConfig, 0, len(tags.Models))
	for _, m := range tags.Models {
		version := "latest"
		if _, tag, ok := strings.Cut(m.Name, ":"); ok && tag != "" {
			version = tag
		}
		models = append(models, domain.ModelConfig{
			ID:           m.Name,
			Name:         m.Name,
			Provider:     "ollama",
			Version:      version,
			Endpoint:     baseURL,
			Capabilities: inferCapabilities(m.Name, m.Details.Family),
			Settings: map[string]any{
				"parameter_size": m.Details.ParameterSize,
				"quantization":   m.Details.QuantizationLevel,
			},
		})
	}

	d.logger.Info("discovered ollama models", "count", len(models), "base_url", baseURL)
	return models, nil
}

// DiscoverOpenAICompatible queries a LiteLLM-style proxy via /v1/models.
// The results use the openai provider pointed at baseURL.
func (d *ModelDiscovery) DiscoverOpenAICompatible(ctx context.Context, baseURL, apiKey string) ([]domain.ModelConfig, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: discovery base URL is required", domain.ErrInvalidConfig)
	}
	baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")

	req := d.client.R().SetContext(ctx)
	if apiKey != "" {
		req.SetAuthToken(apiKey)
	}
	var result openAIModelsResponse
	resp, err := req.SetResult(&result).Get(baseURL + "/v1/models")
	if err != nil {
		return nil, fmt.Errorf("model proxy not reachable at %s: %w", baseURL, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model proxy returned %d", resp.StatusCode())
	}

	models := make([]domain.ModelConfig, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, domain.ModelConfig{
			ID:           m.ID,
			Name:         m.ID,
			Provider:     "openai",
			Version:      "latest",
			APIKey:       apiKey,
			Endpoint:     baseURL + "/v1",
			Capabilities: inferCapabilities(m.ID, m.OwnedBy),
		})
	}

	d.logger.Info("discovered openai-compatible models", "count", len(models), "base_url", baseURL)
	return models, nil
}

// inferCapabilities guesses capability overrides from the model name / family.
func inferCapabilities(name string, extra string) domain.CapabilityOverrides {
	lower := strings.ToLower(name + " " + extra)
	var caps domain.CapabilityOverrides

	switch {
	case strings.Contains(lower, "llava") || strings.Contains(lower, "vision") || strings.Contains(lower, "-vl"):
		vision := true
		multimodal := domain.ModelTypeMultimodal
		caps.SupportsVision = &vision
		caps.ModelType = &multimodal
	case strings.Contains(lower, "embed"):
		// embedding models cannot chat or stream
		no := false
		completion := domain.ModelTypeCompletion
		caps.SupportsStreaming = &no
		caps.SupportsReasoning = &no
		caps.ModelType = &completion
	}
	if strings.Contains(lower, "coder") || strings.Contains(lower, "code") {
		yes := true
		caps.SupportsCodeGeneration = &yes
	}
	return caps
}
