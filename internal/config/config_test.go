package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AULE_ADDR", "AULE_LOG_LEVEL", "AULE_TRACE_DB", "AULE_DEFAULT_MODEL", "AULE_CORS_ORIGINS",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "AZURE_OPENAI_API_KEY", "OLLAMA_HOST", "AULE_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aule-search.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8, cfg.ProbeConcurrency)
	assert.Equal(t, time.Minute, cfg.HealthInterval)
	assert.Empty(t, cfg.Models)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_GPT_KEY", "sk-from-env")

	path := writeConfig(t, `
server:
  addr: ":9090"
  cors_origins: ["http://localhost:3000"]
log_level: debug
trace_db_path: /tmp/traces.duckdb
default_model: gpt
health_interval: 30s
models:
  - id: gpt
    name: GPT-4o
    provider: openai
    version: "2024-08"
    api_key: ${TEST_GPT_KEY}
    capabilities:
      max_tokens: 16000
      supports_vision: true
    settings:
      organization: acme
  - id: llama
    provider: ollama
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, 8, cfg.ProbeConcurrency, "unset fields keep defaults")
	require.Len(t, cfg.Models, 2)

	gpt := cfg.Models[0]
	assert.Equal(t, "sk-from-env", gpt.APIKey)
	require.NotNil(t, gpt.Capabilities.MaxTokens)
	assert.Equal(t, 16000, *gpt.Capabilities.MaxTokens)
	require.NotNil(t, gpt.Capabilities.SupportsVision)
	assert.True(t, *gpt.Capabilities.SupportsVision)
	assert.Nil(t, gpt.Capabilities.SupportsStreaming)
	assert.Equal(t, "acme", gpt.Settings["organization"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AULE_ADDR", ":7000")
	t.Setenv("AULE_DEFAULT_MODEL", "claude")
	t.Setenv("AULE_CORS_ORIGINS", "http://a,http://b")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")

	path := writeConfig(t, `
default_model: gpt
models:
  - id: claude
    provider: anthropic
  - id: gpt
    provider: openai
    api_key: sk-file
  - id: llama
    provider: Ollama
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "claude", cfg.DefaultModel)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sk-ant-env", cfg.Models[0].APIKey)
	assert.Equal(t, "sk-file", cfg.Models[1].APIKey, "file keys win over env")
	assert.Equal(t, "http://gpu-box:11434", cfg.Models[2].Endpoint)
	assert.Empty(t, cfg.Discovery.OllamaURL, "discovery is only implied when no models are configured")
}

func TestLoad_OllamaHostEnablesDiscovery(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_HOST", "http://localhost:11434")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", cfg.Discovery.OllamaURL)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, `
log_level: verbose
models:
  - id: a
    provider: openai
  - id: a
    provider: ollama
`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown log_level")
	assert.ErrorContains(t, err, `duplicate id "a"`)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFindConfig(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "log_level: info")
	found, err := FindConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	t.Setenv("AULE_CONFIG", path)
	found, err = FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestModelConfigs_DecryptsKeys(t *testing.T) {
	sk := SecretKeyFromPassphrase("config-test")
	enc, err := sk.Encrypt("sk-secret")
	require.NoError(t, err)

	cfg := Default()
	cfg.Models = []ModelEntry{
		{ID: "gpt", Provider: "openai", APIKey: enc},
		{ID: "llama", Provider: "ollama", Endpoint: "http://localhost:11434"},
	}
	assert.True(t, cfg.HasEncryptedKeys())

	models, err := cfg.ModelConfigs(sk)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "sk-secret", models[0].APIKey)
	assert.Equal(t, "openai", models[0].Provider)
	assert.Equal(t, "http://localhost:11434", models[1].Endpoint)

	_, err = cfg.ModelConfigs(nil)
	assert.ErrorContains(t, err, "no secret key")

	_, err = cfg.ModelConfigs(SecretKeyFromPassphrase("other"))
	assert.ErrorContains(t, err, "decryption failed")
}

func TestDiscoveryAPIKey(t *testing.T) {
	sk := SecretKeyFromPassphrase("discovery")

	cfg := Default()
	cfg.Discovery.OpenAIAPIKey = "sk-plain"
	assert.False(t, cfg.HasEncryptedKeys())
	key, err := cfg.DiscoveryAPIKey(nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", key)

	cfg.Discovery.OpenAIAPIKey, err = sk.Encrypt("sk-proxy")
	require.NoError(t, err)
	assert.True(t, cfg.HasEncryptedKeys())

	key, err = cfg.DiscoveryAPIKey(sk)
	require.NoError(t, err)
	assert.Equal(t, "sk-proxy", key)

	_, err = cfg.DiscoveryAPIKey(nil)
	assert.ErrorContains(t, err, "no secret key")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
