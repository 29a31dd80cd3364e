package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search orchestrator metrics
var (
	// Orchestrator operations by strategy and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aule",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of orchestrator operations",
		},
		[]string{"operation", "strategy", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aule",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Orchestrator operation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation", "strategy"},
	)

	// Last probe result per model (1 = up)
	ModelUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "aule",
			Subsystem: "search",
			Name:      "model_up",
			Help:      "Whether the model backend answered its last availability probe",
		},
		[]string{"model_id"},
	)

	StreamChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aule",
			Subsystem: "search",
			Name:      "stream_chunks_total",
			Help:      "Total partial results streamed",
		},
		[]string{"model_id"},
	)

	DebatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aule",
			Subsystem: "search",
			Name:      "debates_total",
			Help:      "Total multi-model debates",
		},
		[]string{"status"},
	)
)

const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusAbandoned = "abandoned" // stream consumer stopped pulling
)

// Status maps an error to the status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordRequest records one orchestrator operation
func RecordRequest(operation, strategy, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(operation, strategy, status).Inc()
	RequestDuration.WithLabelValues(operation, strategy).Observe(durationSec)
}

// RecordModelHealth sets model_up from a health snapshot
func RecordModelHealth(models map[string]bool) {
	for id, up := range models {
		v := 0.0
		if up {
			v = 1
		}
		ModelUp.WithLabelValues(id).Set(v)
	}
}

// RecordStreamChunk counts one streamed partial
func RecordStreamChunk(modelID string) {
	StreamChunksTotal.WithLabelValues(modelID).Inc()
}

// RecordDebate counts one debate
func RecordDebate(status string) {
	DebatesTotal.WithLabelValues(status).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
