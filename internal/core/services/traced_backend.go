package services

import (
	"context"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

// tracedBackend records every GenerateResponse call as an llm span.
type tracedBackend struct {
	ports.ModelBackend
	tracer *TraceCollector
}

func withTracing(backend ports.ModelBackend, tracer *TraceCollector) ports.ModelBackend {
	if tracer == nil {
		return backend
	}
	return tracedBackend{ModelBackend: backend, tracer: tracer}
}

func (b tracedBackend) GenerateResponse(ctx context.Context, prompt domain.Prompt) (domain.Response, error) {
	ctx, spanID := b.tracer.StartSpan(ctx, "llm.generate", domain.SpanKindLLM, map[string]string{
		"provider": b.Provider(),
	})
	b.tracer.SetSpanModel(spanID, b.ID())
	b.tracer.SetSpanInput(spanID, prompt.UserContent())

	resp, err := b.ModelBackend.GenerateResponse(ctx, prompt)
	b.tracer.EndSpan(spanID, resp.Content, err)
	return resp, err
}
