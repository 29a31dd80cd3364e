package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

const (
	maxTraces      = 500  // ring buffer size
	maxInputOutput = 2000 // truncate input/output at 2KB
)

// TraceCollector gathers, stores, and exposes traces and spans.
// Thread-safe. Operates as a ring buffer of recent traces.
// A nil *TraceCollector is valid and records nothing.
type TraceCollector struct {
	mu     sync.RWMutex
	logger *slog.Logger
	repo   ports.TraceRepository // optional; completed traces are persisted

	traces     map[domain.TraceID]*domain.Trace
	spans      map[domain.SpanID]*domain.Span
	traceOrder []domain.TraceID // for eviction

	pending sync.WaitGroup
}

// NewTraceCollector creates a collector. repo may be nil.
func NewTraceCollector(logger *slog.Logger, repo ports.TraceRepository) *TraceCollector {
	return &TraceCollector{
		logger: logger,
		repo:   repo,
		traces: make(map[domain.TraceID]*domain.Trace, maxTraces),
		spans:  make(map[domain.SpanID]*domain.Span, maxTraces*10),
	}
}

// --- Context propagation ---

type traceCtxKey struct{}
type spanCtxKey struct{}

// ContextWithTrace stores trace and span IDs in context for propagation.
func ContextWithTrace(ctx context.Context, traceID domain.TraceID, spanID domain.SpanID) context.Context {
	ctx = context.WithValue(ctx, traceCtxKey{}, traceID)
	ctx = context.WithValue(ctx, spanCtxKey{}, spanID)
	return ctx
}

// TraceFromContext extracts trace and current span ID from context.
func TraceFromContext(ctx context.Context) (domain.TraceID, domain.SpanID, bool) {
	traceID, ok1 := ctx.Value(traceCtxKey{}).(domain.TraceID)
	spanID, ok2 := ctx.Value(spanCtxKey{}).(domain.SpanID)
	return traceID, spanID, ok1 && ok2
}

// --- Trace lifecycle ---

// StartTrace begins a new trace rooted at a span of the given kind.
func (tc *TraceCollector) StartTrace(ctx context.Context, name string, kind domain.SpanKind, attrs map[string]string) (context.Context, domain.TraceID) {
	if tc == nil {
		return ctx, ""
	}

	traceID := domain.TraceID(uuid.New().String())
	rootSpanID := domain.SpanID(uuid.New().String())
	now := time.Now()

	rootSpan := &domain.Span{
		ID:         rootSpanID,
		TraceID:    traceID,
		Name:       name,
		Kind:       kind,
		Status:     domain.SpanStatusRunning,
		Attributes: attrs,
		StartTime:  now,
	}

	trace := &domain.Trace{
		ID:         traceID,
		RootSpanID: rootSpanID,
		Name:       name,
		Status:     domain.SpanStatusRunning,
		StartTime:  now,
		SpanCount:  1,
	}

	tc.mu.Lock()
	tc.evictIfNeeded()
	tc.traces[traceID] = trace
	tc.spans[rootSpanID] = rootSpan
	tc.traceOrder = append(tc.traceOrder, traceID)
	tc.mu.Unlock()

	tc.logger.Debug("trace started", "trace_id", string(traceID), "name", name)

	return ContextWithTrace(ctx, traceID, rootSpanID), traceID
}

// EndTrace finalizes a trace and hands a copy to the repository, if any.
func (tc *TraceCollector) EndTrace(traceID domain.TraceID, err error) {
	if tc == nil || traceID == "" {
		return
	}
	status, errMsg := statusOf(err)

	tc.mu.Lock()

	trace, ok := tc.traces[traceID]
	if !ok {
		tc.mu.Unlock()
		return
	}

	now := time.Now()
	trace.Status = status
	trace.EndTime = &now
	trace.DurationMs = now.Sub(trace.StartTime).Milliseconds()

	if root, ok := tc.spans[trace.RootSpanID]; ok {
		root.Status = status
		root.EndTime = &now
		root.DurationMs = now.Sub(root.StartTime).Milliseconds()
		if errMsg != "" {
			root.Error = errMsg
		}
	}

	var persistCopy *domain.Trace
	if tc.repo != nil {
		persistCopy = tc.copyLocked(trace)
	}
	durationMs := trace.DurationMs

	tc.mu.Unlock()

	tc.logger.Debug("trace ended", "trace_id", string(traceID), "status", status, "duration_ms", durationMs)

	// Persist asynchronously to avoid blocking callers
	if persistCopy != nil {
		tc.pending.Add(1)
		go func() {
			defer tc.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := tc.repo.SaveTrace(ctx, persistCopy); err != nil {
				tc.logger.Warn("failed to persist trace", "trace_id", traceID, "error", err)
			}
		}()
	}
}

// Wait blocks until in-flight persistence finishes.
func (tc *TraceCollector) Wait() {
	if tc == nil {
		return
	}
	tc.pending.Wait()
}

// SetTraceModel records which model and strategy served the trace.
func (tc *TraceCollector) SetTraceModel(traceID domain.TraceID, modelID, strategy string) {
	if tc == nil || traceID == "" {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if trace, ok := tc.traces[traceID]; ok {
		trace.ModelID = modelID
		trace.Strategy = strategy
	}
}

// --- Span lifecycle ---

// StartSpan creates a child span under the current context's span.
func (tc *TraceCollector) StartSpan(ctx context.Context, name string, kind domain.SpanKind, attrs map[string]string) (context.Context, domain.SpanID) {
	if tc == nil {
		return ctx, ""
	}
	traceID, parentSpanID, ok := TraceFromContext(ctx)
	if !ok {
		// No trace in context, return a no-op span
		return ctx, ""
	}

	spanID := domain.SpanID(uuid.New().String())
	span := &domain.Span{
		ID:         spanID,
		ParentID:   parentSpanID,
		TraceID:    traceID,
		Name:       name,
		Kind:       kind,
		Status:     domain.SpanStatusRunning,
		Attributes: attrs,
		StartTime:  time.Now(),
	}

	tc.mu.Lock()
	tc.spans[spanID] = span
	if parent, ok := tc.spans[parentSpanID]; ok {
		parent.Children = append(parent.Children, spanID)
	}
	if trace, ok := tc.traces[traceID]; ok {
		trace.SpanCount++
	}
	tc.mu.Unlock()

	return ContextWithTrace(ctx, traceID, spanID), spanID
}

// EndSpan finalizes a span with output and status derived from err.
func (tc *TraceCollector) EndSpan(spanID domain.SpanID, output string, err error) {
	if tc == nil || spanID == "" {
		return
	}
	status, errMsg := statusOf(err)

	tc.mu.Lock()
	defer tc.mu.Unlock()

	span, ok := tc.spans[spanID]
	if !ok {
		return
	}

	now := time.Now()
	span.Status = status
	span.Output = truncate(output, maxInputOutput)
	span.EndTime = &now
	span.DurationMs = now.Sub(span.StartTime).Milliseconds()
	if errMsg != "" {
		span.Error = errMsg
	}
}

// SetSpanInput sets the input for a span.
func (tc *TraceCollector) SetSpanInput(spanID domain.SpanID, input string) {
	if tc == nil || spanID == "" {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if span, ok := tc.spans[spanID]; ok {
		span.Input = truncate(input, maxInputOutput)
	}
}

// SetSpanModel sets the model ID for an LLM span.
func (tc *TraceCollector) SetSpanModel(spanID domain.SpanID, model string) {
	if tc == nil || spanID == "" {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if span, ok := tc.spans[spanID]; ok {
		span.Model = model
	}
}

// --- Query ---

// ListTraces returns summaries of recent traces (newest first). Persisted
// traces that fell out of the ring fill the remainder of limit.
func (tc *TraceCollector) ListTraces(ctx context.Context, limit int) ([]domain.TraceSummary, error) {
	tc.mu.RLock()
	if limit <= 0 {
		limit = len(tc.traceOrder)
	}
	result := make([]domain.TraceSummary, 0, min(limit, len(tc.traceOrder)))
	seen := make(map[domain.TraceID]struct{}, len(tc.traceOrder))
	for i := len(tc.traceOrder) - 1; i >= 0 && len(result) < limit; i-- {
		if trace, ok := tc.traces[tc.traceOrder[i]]; ok {
			seen[trace.ID] = struct{}{}
			result = append(result, domain.TraceSummary{
				ID:         trace.ID,
				Name:       trace.Name,
				Status:     trace.Status,
				ModelID:    trace.ModelID,
				StartTime:  trace.StartTime,
				DurationMs: trace.DurationMs,
				SpanCount:  trace.SpanCount,
			})
		}
	}
	tc.mu.RUnlock()

	if tc.repo == nil || len(result) >= limit {
		return result, nil
	}

	stored, err := tc.repo.ListTraces(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("list persisted traces: %w", err)
	}
	for _, s := range stored {
		if len(result) >= limit {
			break
		}
		if _, dup := seen[s.ID]; !dup {
			result = append(result, s)
		}
	}
	return result, nil
}

// GetTrace returns a full trace with all spans, from memory or the repository.
func (tc *TraceCollector) GetTrace(ctx context.Context, traceID domain.TraceID) (*domain.Trace, error) {
	tc.mu.RLock()
	trace, ok := tc.traces[traceID]
	var result *domain.Trace
	if ok {
		result = tc.copyLocked(trace)
	}
	tc.mu.RUnlock()

	if result != nil {
		return result, nil
	}
	if tc.repo != nil {
		return tc.repo.GetTrace(ctx, traceID)
	}
	return nil, fmt.Errorf("trace %s: %w", traceID, domain.ErrTraceNotFound)
}

// --- Internal helpers ---

func (tc *TraceCollector) copyLocked(trace *domain.Trace) *domain.Trace {
	cp := *trace
	cp.Spans = nil
	for _, span := range tc.spans {
		if span.TraceID == trace.ID {
			cp.Spans = append(cp.Spans, *span)
		}
	}
	return &cp
}

func (tc *TraceCollector) evictIfNeeded() {
	for len(tc.traceOrder) >= maxTraces {
		oldID := tc.traceOrder[0]
		tc.traceOrder = tc.traceOrder[1:]

		if oldTrace, ok := tc.traces[oldID]; ok {
			for sid, span := range tc.spans {
				if span.TraceID == oldTrace.ID {
					delete(tc.spans, sid)
				}
			}
			delete(tc.traces, oldID)
		}
	}
}

func statusOf(err error) (domain.SpanStatus, string) {
	switch {
	case err == nil:
		return domain.SpanStatusOK, ""
	case errors.Is(err, context.Canceled):
		return domain.SpanStatusCancelled, err.Error()
	default:
		return domain.SpanStatusError, err.Error()
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...[truncated]"
}
