package services

import (
	"context"
	"log/slog"
	"time"
)

// HealthMonitor periodically probes every registered model. The orchestrator
// publishes each result to the model_up gauge.
type HealthMonitor struct {
	logger       *slog.Logger
	orchestrator *SearchOrchestrator
	interval     time.Duration // default 1 minute
}

func NewHealthMonitor(logger *slog.Logger, orchestrator *SearchOrchestrator, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &HealthMonitor{
		logger:       logger,
		orchestrator: orchestrator,
		interval:     interval,
	}
}

// Run starts the probe loop. Blocks until ctx is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) error {
	h.logger.Info("health monitor started", "interval", h.interval)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("health monitor stopped")
			return nil
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthMonitor) check(ctx context.Context) {
	report := h.orchestrator.CheckHealth(ctx)

	var down []string
	for id, up := range report.Models {
		if !up {
			down = append(down, id)
		}
	}
	if len(down) > 0 {
		h.logger.Warn("models unavailable", "count", len(down), "model_ids", down)
		return
	}
	h.logger.Debug("all models healthy", "count", len(report.Models))
}
