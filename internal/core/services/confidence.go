package services

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/manthysbr/aulesearch/internal/core/domain"
)

// DirectConfidence scores a single-call answer: 0.7 base, +0.2 on a clean
// stop, +0.1 for content over 100 characters.
func DirectConfidence(resp domain.Response) float64 {
	c := 0.7
	if resp.FinishReason() == domain.FinishReasonStop {
		c += 0.2
	}
	if utf8.RuneCountInString(resp.Content) > 100 {
		c += 0.1
	}
	return min(c, 1.0)
}

// ReasoningConfidence scores the reasoning pipeline's answer: 0.8 base, +0.15
// on a clean stop, +0.05 for content over 200 characters.
func ReasoningConfidence(resp domain.Response) float64 {
	c := 0.8
	if resp.FinishReason() == domain.FinishReasonStop {
		c += 0.15
	}
	if utf8.RuneCountInString(resp.Content) > 200 {
		c += 0.05
	}
	return min(c, 1.0)
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractReferences turns every URL in content into a web reference, in order.
func ExtractReferences(content string) []domain.Reference {
	matches := urlPattern.FindAllString(content, -1)
	refs := make([]domain.Reference, 0, len(matches))
	for i, u := range matches {
		refs = append(refs, domain.Reference{
			Title:     "Reference " + strconv.Itoa(i+1),
			URL:       u,
			Snippet:   "Extracted from AI response",
			Relevance: 0.8,
			Source:    domain.ReferenceSourceWeb,
		})
	}
	return refs
}
