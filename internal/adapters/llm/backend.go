package llm

import (
	"time"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4000
)

// modelInfo carries the identity shared by every backend.
type modelInfo struct {
	id       string
	name     string
	provider string
	version  string
	caps     domain.Capabilities
}

func newModelInfo(cfg domain.ModelConfig, caps domain.Capabilities) modelInfo {
	return modelInfo{
		id:       cfg.ID,
		name:     cfg.Name,
		provider: cfg.Provider,
		version:  cfg.Version,
		caps:     caps,
	}
}

func (m modelInfo) ID() string                        { return m.id }
func (m modelInfo) Name() string                      { return m.name }
func (m modelInfo) Provider() string                  { return m.provider }
func (m modelInfo) Version() string                   { return m.version }
func (m modelInfo) Capabilities() domain.Capabilities { return m.caps }

func (m modelInfo) response(content, finishReason string, usage *domain.Usage, start time.Time) domain.Response {
	return domain.Response{
		Content:  content,
		ModelID:  m.id,
		Provider: m.provider,
		Usage:    usage,
		Metadata: &domain.ResponseMetadata{
			FinishReason: finishReason,
			LatencyMs:    time.Since(start).Milliseconds(),
		},
	}
}

func temperatureOf(p domain.Prompt) float64 {
	if p.Temperature == nil {
		return defaultTemperature
	}
	return *p.Temperature
}

func maxTokensOf(p domain.Prompt) int {
	if p.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return p.MaxTokens
}
