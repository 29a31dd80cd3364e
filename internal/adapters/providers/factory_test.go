package providers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aulesearch/internal/adapters/llm"
	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

func newTestFactory() *ModelFactory {
	return NewModelFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestModelFactory_CreateModelPreservesIdentity(t *testing.T) {
	f := newTestFactory()

	configs := []domain.ModelConfig{
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "openai", Version: "2024-05-13", APIKey: "sk-x"},
		{ID: "gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Version: "1", APIKey: "sk-x"},
		{ID: "claude", Name: "Claude", Provider: "anthropic", Version: "4", APIKey: "k"},
		{ID: "az", Name: "Azure GPT", Provider: "azure", Version: "1", APIKey: "k", Endpoint: "https://res.openai.azure.com"},
		{ID: "llama3", Name: "Llama 3", Provider: "ollama", Version: "latest"},
	}

	for _, cfg := range configs {
		t.Run(cfg.Provider+"/"+cfg.ID, func(t *testing.T) {
			backend, err := f.CreateModel(cfg)
			require.NoError(t, err)
			assert.Equal(t, cfg.ID, backend.ID())
			assert.Equal(t, cfg.Name, backend.Name())
			assert.Equal(t, cfg.Provider, backend.Provider())
			assert.Equal(t, cfg.Version, backend.Version())
		})
	}
}

func TestModelFactory_InvalidConfig(t *testing.T) {
	f := newTestFactory()

	tests := []struct {
		name string
		cfg  domain.ModelConfig
	}{
		{"missing id", domain.ModelConfig{Name: "n", Provider: "openai", Version: "1", APIKey: "k"}},
		{"missing name", domain.ModelConfig{ID: "i", Provider: "openai", Version: "1", APIKey: "k"}},
		{"missing provider", domain.ModelConfig{ID: "i", Name: "n", Version: "1", APIKey: "k"}},
		{"missing version", domain.ModelConfig{ID: "i", Name: "n", Provider: "openai", APIKey: "k"}},
		{"blank id", domain.ModelConfig{ID: "  ", Name: "n", Provider: "openai", Version: "1", APIKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.CreateModel(tt.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
			assert.NotErrorIs(t, err, domain.ErrUnsupportedProvider)
		})
	}
}

func TestModelFactory_UnsupportedProvider(t *testing.T) {
	f := newTestFactory()

	_, err := f.CreateModel(domain.ModelConfig{ID: "gemini", Name: "Gemini", Provider: "google", Version: "2", APIKey: "k"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.ErrorIs(t, err, domain.ErrUnsupportedProvider)

	// google has advisory defaults even without a creator
	caps, ok := f.ModelCapabilities("google")
	assert.True(t, ok)
	assert.Equal(t, 1000000, caps.MaxTokens)
}

func TestModelFactory_MissingCredential(t *testing.T) {
	f := newTestFactory()

	for _, provider := range []string{"openai", "anthropic", "azure"} {
		_, err := f.CreateModel(domain.ModelConfig{ID: "m", Name: "m", Provider: provider, Version: "1", Endpoint: "https://x"})
		assert.ErrorIs(t, err, domain.ErrMissingCredential, provider)
	}
}

func TestModelFactory_CapabilitiesMerged(t *testing.T) {
	f := newTestFactory()

	maxTokens := 16000
	noVision := false
	backend, err := f.CreateModel(domain.ModelConfig{
		ID: "gpt-4o-mini", Name: "mini", Provider: "openai", Version: "1", APIKey: "k",
		Capabilities: domain.CapabilityOverrides{MaxTokens: &maxTokens, SupportsVision: &noVision},
	})
	require.NoError(t, err)

	caps := backend.Capabilities()
	assert.Equal(t, 16000, caps.MaxTokens)
	assert.False(t, caps.SupportsVision)
	assert.True(t, caps.SupportsStreaming)
	assert.Equal(t, domain.ModelTypeMultimodal, caps.ModelType)

	_, isStreaming := backend.(ports.StreamingBackend)
	assert.True(t, isStreaming)
	_, isOpenAI := backend.(*llm.OpenAIBackend)
	assert.True(t, isOpenAI)
}

func TestModelFactory_DefaultCapabilities(t *testing.T) {
	f := newTestFactory()

	openai, ok := f.ModelCapabilities("OpenAI")
	require.True(t, ok)
	assert.Equal(t, 128000, openai.MaxTokens)
	assert.True(t, openai.SupportsFunctionCalling)

	anthropic, ok := f.ModelCapabilities("anthropic")
	require.True(t, ok)
	assert.Equal(t, 200000, anthropic.MaxTokens)
	assert.False(t, anthropic.SupportsFunctionCalling)
	assert.Equal(t, domain.ModelTypeChat, anthropic.ModelType)

	_, ok = f.ModelCapabilities("mystery")
	assert.False(t, ok)
}

type stubBackend struct{ cfg domain.ModelConfig }

func (s stubBackend) ID() string                        { return s.cfg.ID }
func (s stubBackend) Name() string                      { return s.cfg.Name }
func (s stubBackend) Provider() string                  { return s.cfg.Provider }
func (s stubBackend) Version() string                   { return s.cfg.Version }
func (s stubBackend) Capabilities() domain.Capabilities { return domain.Capabilities{} }
func (s stubBackend) GenerateResponse(context.Context, domain.Prompt) (domain.Response, error) {
	return domain.Response{Content: "stub"}, nil
}
func (s stubBackend) IsAvailable(context.Context) bool { return true }

func TestModelFactory_RegisterCreator(t *testing.T) {
	f := newTestFactory()
	f.RegisterCreator("Google", func(cfg domain.ModelConfig, _ domain.Capabilities) (ports.ModelBackend, error) {
		return stubBackend{cfg: cfg}, nil
	})

	assert.Equal(t, []string{"anthropic", "azure", "google", "ollama", "openai"}, f.SupportedProviders())

	backend, err := f.CreateModel(domain.ModelConfig{ID: "gemini", Name: "Gemini", Provider: "google", Version: "2"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", backend.ID())
}

func TestNormalizeOllamaBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:11434", NormalizeOllamaBaseURL("http://localhost:11434/v1/"))
	assert.Equal(t, "http://ollama:11434", NormalizeOllamaBaseURL(" http://ollama:11434 "))
	assert.Equal(t, "", NormalizeOllamaBaseURL(""))
}
