package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/ports"
)

const defaultProbeConcurrency = 8

// ModelRegistry is the catalog of live backends. Iteration follows registration order.
type ModelRegistry struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	models    map[string]ports.ModelBackend
	order     []string
	defaultID string

	probeConcurrency int64
}

// NewModelRegistry creates an empty registry. probeConcurrency <= 0 uses the default.
func NewModelRegistry(logger *slog.Logger, probeConcurrency int) *ModelRegistry {
	if probeConcurrency <= 0 {
		probeConcurrency = defaultProbeConcurrency
	}
	return &ModelRegistry{
		logger:           logger,
		models:           make(map[string]ports.ModelBackend),
		probeConcurrency: int64(probeConcurrency),
	}
}

// RegisterModel inserts a backend, replacing any entry with the same ID in place.
func (r *ModelRegistry) RegisterModel(backend ports.ModelBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := backend.ID()
	if _, exists := r.models[id]; !exists {
		r.order = append(r.order, id)
	}
	r.models[id] = backend
	r.logger.Info("model registered", "model_id", id, "provider", backend.Provider())
}

// UnregisterModel removes a backend. Removing the default clears it.
func (r *ModelRegistry) UnregisterModel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[id]; !ok {
		return false
	}
	delete(r.models, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.defaultID == id {
		r.defaultID = ""
	}
	r.logger.Info("model unregistered", "model_id", id)
	return true
}

func (r *ModelRegistry) GetModel(id string) (ports.ModelBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.models[id]
	return b, ok
}

// GetAllModels returns a snapshot in registration order.
func (r *ModelRegistry) GetAllModels() []ports.ModelBackend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *ModelRegistry) snapshotLocked() []ports.ModelBackend {
	out := make([]ports.ModelBackend, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// GetAvailableModels probes every backend and keeps those that answered.
func (r *ModelRegistry) GetAvailableModels(ctx context.Context) []ports.ModelBackend {
	backends := r.GetAllModels()
	up := r.probe(ctx, backends)

	out := make([]ports.ModelBackend, 0, len(backends))
	for i, b := range backends {
		if up[i] {
			out = append(out, b)
		}
	}
	return out
}

// GetModelsByProvider matches the provider case-insensitively.
func (r *ModelRegistry) GetModelsByProvider(provider string) []ports.ModelBackend {
	var out []ports.ModelBackend
	for _, b := range r.GetAllModels() {
		if strings.EqualFold(b.Provider(), provider) {
			out = append(out, b)
		}
	}
	return out
}

// GetModelsByCapability filters on a capability flag. Unknown flags match nothing.
func (r *ModelRegistry) GetModelsByCapability(flag domain.CapabilityFlag) []ports.ModelBackend {
	var out []ports.ModelBackend
	for _, b := range r.GetAllModels() {
		if b.Capabilities().Has(flag) {
			out = append(out, b)
		}
	}
	return out
}

// GetDefaultModel returns the explicit default, else the first registered backend.
func (r *ModelRegistry) GetDefaultModel() (ports.ModelBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if b, ok := r.models[r.defaultID]; ok && r.defaultID != "" {
		return b, true
	}
	if len(r.order) > 0 {
		return r.models[r.order[0]], true
	}
	return nil, false
}

func (r *ModelRegistry) SetDefaultModel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[id]; !ok {
		return fmt.Errorf("set default %q: %w", id, domain.ErrNotFound)
	}
	r.defaultID = id
	return nil
}

// DefaultModelID is the explicitly configured default, or "".
func (r *ModelRegistry) DefaultModelID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// CheckAllModelsHealth probes every backend. One entry per registered ID.
func (r *ModelRegistry) CheckAllModelsHealth(ctx context.Context) map[string]bool {
	backends := r.GetAllModels()
	up := r.probe(ctx, backends)

	out := make(map[string]bool, len(backends))
	for i, b := range backends {
		out[b.ID()] = up[i]
	}
	return out
}

func (r *ModelRegistry) CheckModelHealth(ctx context.Context, id string) (bool, error) {
	b, ok := r.GetModel(id)
	if !ok {
		return false, fmt.Errorf("check health %q: %w", id, domain.ErrNotFound)
	}
	return r.probe(ctx, []ports.ModelBackend{b})[0], nil
}

func (r *ModelRegistry) ModelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Providers lists the distinct providers in the catalog, sorted.
func (r *ModelRegistry) Providers() []string {
	seen := make(map[string]struct{})
	for _, b := range r.GetAllModels() {
		seen[strings.ToLower(b.Provider())] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clear drops every backend and the default.
func (r *ModelRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]ports.ModelBackend)
	r.order = nil
	r.defaultID = ""
}

// probe runs IsAvailable on each backend concurrently. A probe that panics or
// cannot get a slot counts as unavailable; it never affects the others.
func (r *ModelRegistry) probe(ctx context.Context, backends []ports.ModelBackend) []bool {
	results := make([]bool, len(backends))
	sem := semaphore.NewWeighted(r.probeConcurrency)

	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Add(1)
		go func(i int, b ports.ModelBackend) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Warn("model probe panicked", "model_id", b.ID(), "panic", rec)
					results[i] = false
				}
			}()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			results[i] = b.IsAvailable(ctx)
		}(i, b)
	}
	wg.Wait()
	return results
}
