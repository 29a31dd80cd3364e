package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/manthysbr/aulesearch/internal/adapters/llm"
	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

// CreatorFunc builds a backend for one provider. caps already has the config's
// overrides applied on top of the provider defaults.
type CreatorFunc func(cfg domain.ModelConfig, caps domain.Capabilities) (ports.ModelBackend, error)

// ModelFactory turns ModelConfigs into backends through a provider-keyed creator table.
// It never registers what it builds.
type ModelFactory struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	creators map[string]CreatorFunc
}

// NewModelFactory returns a factory with the built-in providers installed.
func NewModelFactory(logger *slog.Logger) *ModelFactory {
	f := &ModelFactory{
		logger:   logger,
		creators: make(map[string]CreatorFunc),
	}
	f.RegisterCreator("openai", createOpenAI)
	f.RegisterCreator("azure", createAzure)
	f.RegisterCreator("anthropic", createAnthropic)
	f.RegisterCreator("ollama", createOllama)
	return f
}

// RegisterCreator adds or replaces the constructor for a provider.
func (f *ModelFactory) RegisterCreator(provider string, fn CreatorFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[normalizeProvider(provider)] = fn
}

// ValidateModelConfig runs the generic checks CreateModel performs before dispatch.
func (f *ModelFactory) ValidateModelConfig(cfg domain.ModelConfig) error {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"id", cfg.ID},
		{"name", cfg.Name},
		{"provider", cfg.Provider},
		{"version", cfg.Version},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if _, ok := f.creator(cfg.Provider); !ok {
		return fmt.Errorf("%w: %w: %s", domain.ErrInvalidConfig, domain.ErrUnsupportedProvider, cfg.Provider)
	}
	return nil
}

// CreateModel validates cfg and constructs its backend.
func (f *ModelFactory) CreateModel(cfg domain.ModelConfig) (ports.ModelBackend, error) {
	if err := f.ValidateModelConfig(cfg); err != nil {
		return nil, err
	}

	create, _ := f.creator(cfg.Provider)
	defaults, _ := f.ModelCapabilities(cfg.Provider)
	backend, err := create(cfg, cfg.Capabilities.Apply(defaults))
	if err != nil {
		return nil, fmt.Errorf("create %s model %s: %w", cfg.Provider, cfg.ID, err)
	}

	f.logger.Debug("model created", "model_id", cfg.ID, "provider", cfg.Provider)
	return backend, nil
}

// SupportedProviders lists providers with a registered creator, sorted.
func (f *ModelFactory) SupportedProviders() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.creators))
	for p := range f.creators {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ModelCapabilities returns advisory defaults for a provider. They are not
// checked against what a constructed backend really supports.
func (f *ModelFactory) ModelCapabilities(provider string) (domain.Capabilities, bool) {
	caps, ok := defaultCapabilities[normalizeProvider(provider)]
	return caps, ok
}

func (f *ModelFactory) creator(provider string) (CreatorFunc, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.creators[normalizeProvider(provider)]
	return fn, ok
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

var defaultCapabilities = map[string]domain.Capabilities{
	"openai": {
		MaxTokens:               128000,
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
		SupportsVision:          true,
		SupportsCodeGeneration:  true,
		SupportsReasoning:       true,
		ModelType:               domain.ModelTypeMultimodal,
	},
	"azure": {
		MaxTokens:               128000,
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
		SupportsVision:          true,
		SupportsCodeGeneration:  true,
		SupportsReasoning:       true,
		ModelType:               domain.ModelTypeMultimodal,
	},
	"anthropic": {
		MaxTokens:              200000,
		SupportsStreaming:      true,
		SupportsVision:         true,
		SupportsCodeGeneration: true,
		SupportsReasoning:      true,
		ModelType:              domain.ModelTypeChat,
	},
	"google": {
		MaxTokens:               1000000,
		SupportsStreaming:       true,
		SupportsFunctionCalling: true,
		SupportsVision:          true,
		SupportsCodeGeneration:  true,
		SupportsReasoning:       true,
		ModelType:               domain.ModelTypeMultimodal,
	},
	"ollama": {
		MaxTokens:              32768,
		SupportsStreaming:      true,
		SupportsCodeGeneration: true,
		SupportsReasoning:      true,
		ModelType:              domain.ModelTypeChat,
	},
}

func requireAPIKey(cfg domain.ModelConfig) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: %s requires an api key", domain.ErrMissingCredential, cfg.Provider)
	}
	return nil
}

func createOpenAI(cfg domain.ModelConfig, caps domain.Capabilities) (ports.ModelBackend, error) {
	if err := requireAPIKey(cfg); err != nil {
		return nil, err
	}
	return llm.NewOpenAIBackend(cfg, caps), nil
}

func createAzure(cfg domain.ModelConfig, caps domain.Capabilities) (ports.ModelBackend, error) {
	if err := requireAPIKey(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: azure requires an endpoint", domain.ErrInvalidConfig)
	}
	return llm.NewAzureBackend(cfg, caps), nil
}

func createAnthropic(cfg domain.ModelConfig, caps domain.Capabilities) (ports.ModelBackend, error) {
	if err := requireAPIKey(cfg); err != nil {
		return nil, err
	}
	return llm.NewAnthropicBackend(cfg, caps), nil
}

func createOllama(cfg domain.ModelConfig, caps domain.Capabilities) (ports.ModelBackend, error) {
	cfg.Endpoint = NormalizeOllamaBaseURL(cfg.Endpoint)
	return llm.NewOllamaBackend(cfg, caps), nil
}

// NormalizeOllamaBaseURL strips a trailing "/v1" so native /api routes resolve.
func NormalizeOllamaBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return strings.TrimSuffix(trimmed, "/v1")
	}
	return trimmed
}
