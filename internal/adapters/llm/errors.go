package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

const maxErrorChars = 200

var secretPattern = regexp.MustCompile(`(sk-[A-Za-z0-9_\-]{4,}|xox[bp]-[A-Za-z0-9\-]+|Bearer\s+[A-Za-z0-9._\-]+)`)

// statusError builds a BackendError from a non-2xx provider response.
func (m modelInfo) statusError(status int, body []byte) *domain.BackendError {
	msg, code := providerErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &domain.BackendError{
		Provider:   m.provider,
		ModelID:    m.id,
		StatusCode: status,
		Code:       code,
		Message:    sanitizeErrorText(msg),
	}
}

// transportError wraps a failure that happened before a status was available.
func (m modelInfo) transportError(err error) *domain.BackendError {
	return &domain.BackendError{
		Provider: m.provider,
		ModelID:  m.id,
		Message:  sanitizeErrorText(err.Error()),
		Err:      err,
	}
}

// providerErrorMessage understands the OpenAI, Anthropic and Ollama error bodies.
func providerErrorMessage(body []byte) (string, string) {
	var shaped struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err != nil {
		return string(body), ""
	}

	if len(shaped.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		}
		if err := json.Unmarshal(shaped.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message, errorCode(nested.Code, nested.Type)
		}
		var plain string
		if err := json.Unmarshal(shaped.Error, &plain); err == nil && plain != "" {
			return plain, ""
		}
	}
	if shaped.Message != "" {
		return shaped.Message, ""
	}
	return string(body), ""
}

func errorCode(code any, fallback string) string {
	switch c := code.(type) {
	case string:
		if c != "" {
			return c
		}
	case float64:
		return fmt.Sprintf("%.0f", c)
	}
	return fallback
}

func sanitizeErrorText(input string) string {
	scrubbed := secretPattern.ReplaceAllString(input, "[REDACTED]")
	runes := []rune(scrubbed)
	if len(runes) <= maxErrorChars {
		return scrubbed
	}
	return string(runes[:maxErrorChars]) + "..."
}
