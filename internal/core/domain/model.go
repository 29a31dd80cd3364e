package domain

import "strings"

// ModelType classifies what kind of interaction a backend serves.
type ModelType string

const (
	ModelTypeChat       ModelType = "chat"
	ModelTypeCompletion ModelType = "completion"
	ModelTypeMultimodal ModelType = "multimodal"
)

// Capabilities describes what a backend can do. Fixed once the backend is built.
type Capabilities struct {
	MaxTokens               int       `json:"max_tokens"`
	SupportsStreaming       bool      `json:"supports_streaming"`
	SupportsFunctionCalling bool      `json:"supports_function_calling"`
	SupportsVision          bool      `json:"supports_vision"`
	SupportsCodeGeneration  bool      `json:"supports_code_generation"`
	SupportsReasoning       bool      `json:"supports_reasoning"`
	ModelType               ModelType `json:"model_type"`
}

// CapabilityFlag names a single boolean capability for filtering.
type CapabilityFlag string

const (
	CapabilityStreaming       CapabilityFlag = "streaming"
	CapabilityFunctionCalling CapabilityFlag = "function_calling"
	CapabilityVision          CapabilityFlag = "vision"
	CapabilityCodeGeneration  CapabilityFlag = "code_generation"
	CapabilityReasoning       CapabilityFlag = "reasoning"
)

// Has reports whether the flag is set. Unknown flags report false.
func (c Capabilities) Has(flag CapabilityFlag) bool {
	switch CapabilityFlag(strings.ToLower(string(flag))) {
	case CapabilityStreaming:
		return c.SupportsStreaming
	case CapabilityFunctionCalling:
		return c.SupportsFunctionCalling
	case CapabilityVision:
		return c.SupportsVision
	case CapabilityCodeGeneration:
		return c.SupportsCodeGeneration
	case CapabilityReasoning:
		return c.SupportsReasoning
	default:
		return false
	}
}

// CapabilityOverrides is the partial capability set carried by a ModelConfig.
// Nil fields keep the provider default.
type CapabilityOverrides struct {
	MaxTokens               *int       `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	SupportsStreaming       *bool      `json:"supports_streaming,omitempty" yaml:"supports_streaming,omitempty"`
	SupportsFunctionCalling *bool      `json:"supports_function_calling,omitempty" yaml:"supports_function_calling,omitempty"`
	SupportsVision          *bool      `json:"supports_vision,omitempty" yaml:"supports_vision,omitempty"`
	SupportsCodeGeneration  *bool      `json:"supports_code_generation,omitempty" yaml:"supports_code_generation,omitempty"`
	SupportsReasoning       *bool      `json:"supports_reasoning,omitempty" yaml:"supports_reasoning,omitempty"`
	ModelType               *ModelType `json:"model_type,omitempty" yaml:"model_type,omitempty"`
}

// Apply overlays the set fields on top of base.
func (o CapabilityOverrides) Apply(base Capabilities) Capabilities {
	out := base
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	}
	if o.SupportsStreaming != nil {
		out.SupportsStreaming = *o.SupportsStreaming
	}
	if o.SupportsFunctionCalling != nil {
		out.SupportsFunctionCalling = *o.SupportsFunctionCalling
	}
	if o.SupportsVision != nil {
		out.SupportsVision = *o.SupportsVision
	}
	if o.SupportsCodeGeneration != nil {
		out.SupportsCodeGeneration = *o.SupportsCodeGeneration
	}
	if o.SupportsReasoning != nil {
		out.SupportsReasoning = *o.SupportsReasoning
	}
	if o.ModelType != nil {
		out.ModelType = *o.ModelType
	}
	return out
}

// ModelConfig is the factory input for one backend.
// The API key is captured by the constructed backend and never handed back out.
type ModelConfig struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Provider     string              `json:"provider"` // "openai", "azure", "anthropic", "ollama", "google"
	Version      string              `json:"version"`
	APIKey       string              `json:"-"`
	Endpoint     string              `json:"endpoint,omitempty"` // empty = provider default
	Capabilities CapabilityOverrides `json:"capabilities"`
	Settings     map[string]any      `json:"settings,omitempty"`
}

// SettingString returns a string-valued setting or fallback.
func (c ModelConfig) SettingString(key, fallback string) string {
	if v, ok := c.Settings[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// ModelInfo is the read-only view of a registered backend.
type ModelInfo struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Provider     string       `json:"provider"`
	Version      string       `json:"version"`
	Capabilities Capabilities `json:"capabilities"`
	IsDefault    bool         `json:"is_default"`
	IsActive     bool         `json:"is_active"`
}
