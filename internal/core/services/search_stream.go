package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
	"github.com/manthysbr/aulesearch/internal/metrics"
)

var errStreamAbandoned = fmt.Errorf("stream consumer stopped: %w", context.Canceled)

// StreamSearch streams q from a streaming backend. Every element carries the
// cumulative answer. An upstream element that only repeats the previous
// content (a bare finish frame) is not emitted. After the upstream ends one
// Final element follows with references, the elapsed time and a confidence
// scored on the final content alone. Resolution errors are returned eagerly.
func (o *SearchOrchestrator) StreamSearch(ctx context.Context, q domain.SearchQuery) (iter.Seq2[domain.PartialResult, error], error) {
	backend, err := o.resolveBackend(q.ModelID)
	if err != nil {
		return nil, err
	}
	streamer, ok := backend.(ports.StreamingBackend)
	if !ok || !backend.Capabilities().SupportsStreaming {
		return nil, fmt.Errorf("%w: %s", domain.ErrStreamingUnsupported, backend.ID())
	}

	modelID := backend.ID()
	return func(yield func(domain.PartialResult, error) bool) {
		start := time.Now()
		ctx, traceID := o.tracer.StartTrace(ctx, "stream: "+truncate(q.Query, traceNameLen), domain.SpanKindStream, map[string]string{
			"model_id": modelID,
		})
		o.tracer.SetTraceModel(traceID, modelID, "stream")

		var (
			last      domain.Response
			streamErr error
			chunks    int
		)
		defer func() {
			o.tracer.EndTrace(traceID, streamErr)
			status := metrics.Status(streamErr)
			if errors.Is(streamErr, errStreamAbandoned) {
				status = metrics.StatusAbandoned
			}
			metrics.RecordRequest("stream", "direct", status, time.Since(start).Seconds())
			o.logger.Debug("stream finished", "model_id", modelID, "chunks", chunks, "error", streamErr)
		}()

		for resp, err := range streamer.GenerateStreamingResponse(ctx, promptFromQuery(q)) {
			if err != nil {
				streamErr = err
				yield(domain.PartialResult{}, fmt.Errorf("stream search with %s: %w", modelID, err))
				return
			}
			repeat := chunks > 0 && resp.Content == last.Content
			last = resp
			if repeat {
				continue
			}
			chunks++
			metrics.RecordStreamChunk(modelID)

			if !yield(domain.PartialResult{
				Answer:     resp.Content,
				ModelUsed:  modelID,
				Confidence: DirectConfidence(resp),
			}, nil) {
				streamErr = errStreamAbandoned
				return
			}
		}

		refs := []domain.Reference{}
		if q.IncludeReferences {
			refs = ExtractReferences(last.Content)
		}
		yield(domain.PartialResult{
			Answer:       last.Content,
			References:   refs,
			ModelUsed:    modelID,
			Confidence:   DirectConfidence(domain.Response{Content: last.Content}),
			SearchTimeMs: time.Since(start).Milliseconds(),
			Final:        true,
		}, nil)
	}, nil
}
