// Package config loads the aule-search configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

// Config is the full process configuration.
type Config struct {
	Server           ServerConfig    `yaml:"server"`
	LogLevel         string          `yaml:"log_level"`
	TraceDBPath      string          `yaml:"trace_db_path"`
	DefaultModel     string          `yaml:"default_model"`
	ActiveModel      string          `yaml:"active_model"`
	ProbeConcurrency int             `yaml:"probe_concurrency"`
	HealthInterval   time.Duration   `yaml:"health_interval"`
	Discovery        DiscoveryConfig `yaml:"discovery"`
	Models           []ModelEntry    `yaml:"models"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DiscoveryConfig enables startup model discovery. Empty URLs disable it.
type DiscoveryConfig struct {
	OllamaURL    string `yaml:"ollama_url"`
	OpenAIURL    string `yaml:"openai_url"` // LiteLLM or another OpenAI-compatible proxy
	OpenAIAPIKey string `yaml:"openai_api_key"`
}

// ModelEntry is one configured backend. APIKey may carry an "enc:" value.
type ModelEntry struct {
	ID           string                     `yaml:"id"`
	Name         string                     `yaml:"name"`
	Provider     string                     `yaml:"provider"`
	Version      string                     `yaml:"version"`
	APIKey       string                     `yaml:"api_key"`
	Endpoint     string                     `yaml:"endpoint"`
	Capabilities domain.CapabilityOverrides `yaml:"capabilities"`
	Settings     map[string]any             `yaml:"settings"`
}

// envOverrides is parsed separately so unset variables never clobber file values.
type envOverrides struct {
	Addr           string   `env:"AULE_ADDR"`
	LogLevel       string   `env:"AULE_LOG_LEVEL"`
	TraceDBPath    string   `env:"AULE_TRACE_DB"`
	DefaultModel   string   `env:"AULE_DEFAULT_MODEL"`
	CORSOrigins    []string `env:"AULE_CORS_ORIGINS" envSeparator:","`
	OpenAIKey      string   `env:"OPENAI_API_KEY"`
	AnthropicKey   string   `env:"ANTHROPIC_API_KEY"`
	AzureOpenAIKey string   `env:"AZURE_OPENAI_API_KEY"`
	OllamaHost     string   `env:"OLLAMA_HOST"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		LogLevel:         "info",
		ProbeConcurrency: 8,
		HealthInterval:   time.Minute,
	}
}

// DefaultSearchPaths lists where FindConfig looks, in order.
func DefaultSearchPaths() []string {
	paths := []string{"aule-search.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "aule-search", "config.yaml"))
	}
	return paths
}

// FindConfig resolves the config path. An explicit path must exist; otherwise
// AULE_CONFIG, then the default search paths. Returns "" when nothing is found.
func FindConfig(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv("AULE_CONFIG")
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load reads the YAML file at path over the defaults and applies env overrides.
// An empty path yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setIf(&c.Server.Addr, o.Addr)
	setIf(&c.LogLevel, o.LogLevel)
	setIf(&c.TraceDBPath, o.TraceDBPath)
	setIf(&c.DefaultModel, o.DefaultModel)
	if len(o.CORSOrigins) > 0 {
		c.Server.CORSOrigins = o.CORSOrigins
	}

	keys := map[string]string{
		"openai":    o.OpenAIKey,
		"anthropic": o.AnthropicKey,
		"azure":     o.AzureOpenAIKey,
	}
	for i := range c.Models {
		m := &c.Models[i]
		provider := strings.ToLower(m.Provider)
		if m.APIKey == "" {
			m.APIKey = keys[provider]
		}
		if provider == "ollama" && m.Endpoint == "" {
			m.Endpoint = o.OllamaHost
		}
	}
	if c.Discovery.OllamaURL == "" && o.OllamaHost != "" && len(c.Models) == 0 {
		c.Discovery.OllamaURL = o.OllamaHost
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.ProbeConcurrency < 0 {
		errs = append(errs, errors.New("probe_concurrency must not be negative"))
	}
	if c.HealthInterval < 0 {
		errs = append(errs, errors.New("health_interval must not be negative"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]struct{}, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			errs = append(errs, fmt.Errorf("models[%d]: duplicate id %q", i, m.ID))
		}
		seen[m.ID] = struct{}{}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ModelConfigs converts the entries into factory input, decrypting "enc:" keys.
// sk may be nil when no key is encrypted.
func (c *Config) ModelConfigs(sk *SecretKey) ([]domain.ModelConfig, error) {
	out := make([]domain.ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		key := m.APIKey
		if IsEncrypted(key) {
			if sk == nil {
				return nil, fmt.Errorf("model %s: encrypted api_key but no secret key", m.ID)
			}
			plain, err := sk.Decrypt(key)
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", m.ID, err)
			}
			key = plain
		}
		out = append(out, domain.ModelConfig{
			ID:           m.ID,
			Name:         m.Name,
			Provider:     m.Provider,
			Version:      m.Version,
			APIKey:       key,
			Endpoint:     m.Endpoint,
			Capabilities: m.Capabilities,
			Settings:     m.Settings,
		})
	}
	return out, nil
}

// DiscoveryAPIKey returns the proxy discovery key, decrypting an "enc:" value.
func (c *Config) DiscoveryAPIKey(sk *SecretKey) (string, error) {
	key := c.Discovery.OpenAIAPIKey
	if !IsEncrypted(key) {
		return key, nil
	}
	if sk == nil {
		return "", errors.New("discovery: encrypted openai_api_key but no secret key")
	}
	return sk.Decrypt(key)
}

// HasEncryptedKeys reports whether any configured key needs the secret key.
func (c *Config) HasEncryptedKeys() bool {
	if IsEncrypted(c.Discovery.OpenAIAPIKey) {
		return true
	}
	for _, m := range c.Models {
		if IsEncrypted(m.APIKey) {
			return true
		}
	}
	return false
}

// ParseLevel maps a log level name onto slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}
