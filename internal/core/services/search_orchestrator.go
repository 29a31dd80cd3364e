package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
	"github.com/manthysbr/aulesearch/internal/metrics"
)

const traceNameLen = 80

// SearchOrchestrator resolves a backend and a strategy per query and runs them.
type SearchOrchestrator struct {
	logger   *slog.Logger
	registry *ModelRegistry
	tracer   *TraceCollector

	mu         sync.RWMutex
	strategies []ports.SearchStrategy // descending priority
	activeID   string
}

type OrchestratorOption func(*SearchOrchestrator)

// WithTracer records a trace per search, stream and debate.
func WithTracer(tc *TraceCollector) OrchestratorOption {
	return func(o *SearchOrchestrator) { o.tracer = tc }
}

// NewSearchOrchestrator creates an orchestrator with the reasoning and direct strategies.
func NewSearchOrchestrator(logger *slog.Logger, registry *ModelRegistry, opts ...OrchestratorOption) *SearchOrchestrator {
	o := &SearchOrchestrator{
		logger:     logger,
		registry:   registry,
		strategies: []ports.SearchStrategy{ReasoningSearchStrategy{}, DirectSearchStrategy{}},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Search answers q with the highest-priority applicable strategy.
func (o *SearchOrchestrator) Search(ctx context.Context, q domain.SearchQuery) (domain.SearchResult, error) {
	backend, err := o.resolveBackend(q.ModelID)
	if err != nil {
		metrics.RecordRequest("search", "none", metrics.StatusError, 0)
		return domain.SearchResult{}, err
	}
	return o.run(ctx, "search", q, backend, o.selectStrategy(q))
}

// SearchWithReasoning forces the reasoning pipeline.
func (o *SearchOrchestrator) SearchWithReasoning(ctx context.Context, q domain.SearchQuery) (domain.SearchResult, error) {
	backend, err := o.resolveBackend(q.ModelID)
	if err != nil {
		metrics.RecordRequest("search_reasoning", "reasoning", metrics.StatusError, 0)
		return domain.SearchResult{}, err
	}
	return o.run(ctx, "search_reasoning", q, backend, ReasoningSearchStrategy{})
}

func (o *SearchOrchestrator) run(ctx context.Context, operation string, q domain.SearchQuery, backend ports.ModelBackend, strategy ports.SearchStrategy) (domain.SearchResult, error) {
	start := time.Now()

	ctx, traceID := o.tracer.StartTrace(ctx, operation+": "+truncate(q.Query, traceNameLen), domain.SpanKindSearch, map[string]string{
		"strategy": strategy.Name(),
		"model_id": backend.ID(),
	})
	o.tracer.SetTraceModel(traceID, backend.ID(), strategy.Name())

	result, err := o.execute(ctx, q, backend, strategy)
	o.tracer.EndTrace(traceID, err)
	metrics.RecordRequest(operation, strategy.Name(), metrics.Status(err), time.Since(start).Seconds())

	if err != nil {
		o.logger.Error("search failed",
			"operation", operation,
			"model_id", backend.ID(),
			"strategy", strategy.Name(),
			"error", err,
		)
		return domain.SearchResult{}, fmt.Errorf("%s with %s: %w", operation, backend.ID(), err)
	}

	result.SearchTimeMs = time.Since(start).Milliseconds()
	result.TraceID = traceID

	o.logger.Info("search completed",
		"operation", operation,
		"model_id", backend.ID(),
		"strategy", strategy.Name(),
		"duration_ms", result.SearchTimeMs,
	)
	return result, nil
}

// execute runs one strategy under a strategy span with llm spans for each backend call.
func (o *SearchOrchestrator) execute(ctx context.Context, q domain.SearchQuery, backend ports.ModelBackend, strategy ports.SearchStrategy) (domain.SearchResult, error) {
	ctx, spanID := o.tracer.StartSpan(ctx, "strategy."+strategy.Name(), domain.SpanKindStrategy, nil)
	o.tracer.SetSpanInput(spanID, q.Query)

	result, err := strategy.Execute(ctx, q, withTracing(backend, o.tracer))
	o.tracer.EndSpan(spanID, result.Answer, err)
	return result, err
}

// resolveBackend picks the query's model, then the active model, then the
// registry default. An explicit ID that is no longer registered yields none.
func (o *SearchOrchestrator) resolveBackend(modelID string) (ports.ModelBackend, error) {
	if modelID == "" {
		modelID = o.ActiveModel()
	}
	if modelID != "" {
		if b, ok := o.registry.GetModel(modelID); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: model %q is not registered", domain.ErrNoAvailableModel, modelID)
	}
	if b, ok := o.registry.GetDefaultModel(); ok {
		return b, nil
	}
	return nil, domain.ErrNoAvailableModel
}

func (o *SearchOrchestrator) selectStrategy(q domain.SearchQuery) ports.SearchStrategy {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, s := range o.strategies {
		if s.IsApplicable(q) {
			return s
		}
	}
	return DirectSearchStrategy{}
}

// AddSearchStrategy registers s, keeping strategies ordered by descending priority.
// Equal priorities keep insertion order.
func (o *SearchOrchestrator) AddSearchStrategy(s ports.SearchStrategy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strategies = append(o.strategies, s)
	slices.SortStableFunc(o.strategies, func(a, b ports.SearchStrategy) int {
		return b.Priority() - a.Priority()
	})
}

// Strategies returns the strategy names in selection order.
func (o *SearchOrchestrator) Strategies() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

func (o *SearchOrchestrator) SetActiveModel(id string) error {
	if _, ok := o.registry.GetModel(id); !ok {
		return fmt.Errorf("set active %q: %w", id, domain.ErrNotFound)
	}
	o.mu.Lock()
	o.activeID = id
	o.mu.Unlock()
	o.logger.Info("active model changed", "model_id", id)
	return nil
}

// ActiveModel is the active model ID, or "" when unset.
func (o *SearchOrchestrator) ActiveModel() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.activeID
}

func (o *SearchOrchestrator) GetAvailableModels(ctx context.Context) []ports.ModelBackend {
	return o.registry.GetAvailableModels(ctx)
}

// ListModels describes every registered model, flagging the default and active ones.
func (o *SearchOrchestrator) ListModels() []domain.ModelInfo {
	active := o.ActiveModel()
	var defaultID string
	if b, ok := o.registry.GetDefaultModel(); ok {
		defaultID = b.ID()
	}

	backends := o.registry.GetAllModels()
	out := make([]domain.ModelInfo, 0, len(backends))
	for _, b := range backends {
		out = append(out, modelInfoOf(b, defaultID, active))
	}
	return out
}

func modelInfoOf(b ports.ModelBackend, defaultID, activeID string) domain.ModelInfo {
	return domain.ModelInfo{
		ID:           b.ID(),
		Name:         b.Name(),
		Provider:     b.Provider(),
		Version:      b.Version(),
		Capabilities: b.Capabilities(),
		IsDefault:    b.ID() == defaultID,
		IsActive:     b.ID() == activeID,
	}
}

// GenerateWithReferences runs a plain prompt on the active (or default) model
// and scans the answer for references.
func (o *SearchOrchestrator) GenerateWithReferences(ctx context.Context, prompt domain.Prompt) (domain.ReferencedResponse, error) {
	var (
		backend ports.ModelBackend
		ok      bool
	)
	if active := o.ActiveModel(); active != "" {
		backend, ok = o.registry.GetModel(active)
	} else {
		backend, ok = o.registry.GetDefaultModel()
	}
	if !ok {
		return domain.ReferencedResponse{}, domain.ErrNoActiveModel
	}

	start := time.Now()
	resp, err := backend.GenerateResponse(ctx, prompt)
	metrics.RecordRequest("generate", "none", metrics.Status(err), time.Since(start).Seconds())
	if err != nil {
		return domain.ReferencedResponse{}, fmt.Errorf("generate with %s: %w", backend.ID(), err)
	}

	return domain.ReferencedResponse{
		Response:   resp,
		References: ExtractReferences(resp.Content),
	}, nil
}

// CheckHealth probes every model. The orchestrator itself is always healthy.
func (o *SearchOrchestrator) CheckHealth(ctx context.Context) domain.HealthReport {
	models := o.registry.CheckAllModelsHealth(ctx)
	metrics.RecordModelHealth(models)
	return domain.HealthReport{
		Orchestrator: true,
		Models:       models,
		Services: map[string]bool{
			"search":    true,
			"reasoning": true,
			"streaming": true,
		},
	}
}
