// Package api exposes the search orchestrator over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aulesearch/internal/core/domain"
	"github.com/manthysbr/aulesearch/internal/core/services"
	"github.com/manthysbr/aulesearch/internal/metrics"
)

const (
	maxBodyBytes      = 1 << 20
	defaultTraceLimit = 50
)

type Server struct {
	logger       *slog.Logger
	orchestrator *services.SearchOrchestrator
	registry     *services.ModelRegistry
	tracer       *services.TraceCollector // optional
	validator    *requestValidator
}

// NewServer builds the API server. tracer may be nil.
func NewServer(logger *slog.Logger, orchestrator *services.SearchOrchestrator, registry *services.ModelRegistry, tracer *services.TraceCollector) (*Server, error) {
	v, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Server{
		logger:       logger,
		orchestrator: orchestrator,
		registry:     registry,
		tracer:       tracer,
		validator:    v,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("POST /v1/search/reasoning", s.handleSearchReasoning)
	mux.HandleFunc("POST /v1/search/stream", s.handleSearchStream)
	mux.HandleFunc("POST /v1/debate", s.handleDebate)
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)

	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("GET /v1/models/available", s.handleAvailableModels)
	mux.HandleFunc("PUT /v1/models/active", s.handleSetActiveModel)
	mux.HandleFunc("PUT /v1/models/default", s.handleSetDefaultModel)

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/traces", s.handleListTraces)
	mux.HandleFunc("GET /v1/traces/{id}", s.handleGetTrace)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(openapiSpec)
	})

	return mux
}

// --- Search ---

type searchRequest struct {
	Query             string             `json:"query"`
	Context           string             `json:"context"`
	ModelID           string             `json:"model_id"`
	Temperature       *float64           `json:"temperature"`
	MaxTokens         *int               `json:"max_tokens"`
	IncludeReferences *bool              `json:"include_references"`
	SearchMode        *domain.SearchMode `json:"search_mode"`
}

// toQuery applies the request on top of the builder defaults.
func (req searchRequest) toQuery() (domain.SearchQuery, error) {
	b := domain.NewSearchQueryBuilder().
		SetQuery(req.Query).
		SetContext(req.Context).
		SetModelID(req.ModelID)
	if req.Temperature != nil {
		b.SetTemperature(*req.Temperature)
	}
	if req.MaxTokens != nil {
		b.SetMaxTokens(*req.MaxTokens)
	}
	if req.IncludeReferences != nil {
		b.SetIncludeReferences(*req.IncludeReferences)
	}
	if req.SearchMode != nil {
		b.SetSearchMode(*req.SearchMode)
	}
	return b.Build()
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, "/v1/search", s.orchestrator.Search)
}

func (s *Server) handleSearchReasoning(w http.ResponseWriter, r *http.Request) {
	s.serveSearch(w, r, "/v1/search/reasoning", s.orchestrator.SearchWithReasoning)
}

func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request, path string, search func(context.Context, domain.SearchQuery) (domain.SearchResult, error)) {
	var req searchRequest
	if !s.decode(w, r, path, &req) {
		return
	}
	q, err := req.toQuery()
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSearchStream writes one SSE data frame per partial result, then [DONE].
// POST /v1/search/stream
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, "/v1/search/stream", &req) {
		return
	}
	q, err := req.toQuery()
	if err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	seq, err := s.orchestrator.StreamSearch(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for partial, err := range seq {
		if err != nil {
			s.logger.Warn("stream aborted", "error", err)
			data, _ := json.Marshal(errorBody{Error: err.Error()})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
			flusher.Flush()
			return
		}
		data, err := json.Marshal(partial)
		if err != nil {
			s.logger.Error("encode partial result", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

type debateRequest struct {
	searchRequest
	ModelIDs []string `json:"model_ids"`
}

func (s *Server) handleDebate(w http.ResponseWriter, r *http.Request) {
	var req debateRequest
	if !s.decode(w, r, "/v1/debate", &req) {
		return
	}
	q, err := req.toQuery()
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.orchestrator.DebateWithModels(r.Context(), q, req.ModelIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type generateRequest struct {
	Content      string   `json:"content"`
	SystemPrompt string   `json:"system_prompt"`
	Context      string   `json:"context"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, "/v1/generate", &req) {
		return
	}

	resp, err := s.orchestrator.GenerateWithReferences(r.Context(), domain.Prompt{
		Content:      req.Content,
		SystemPrompt: req.SystemPrompt,
		Context:      req.Context,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Models ---

type modelsResponse struct {
	Models []domain.ModelInfo `json:"models"`
	Count  int                `json:"count"`
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	models := s.orchestrator.ListModels()
	writeJSON(w, http.StatusOK, modelsResponse{Models: models, Count: len(models)})
}

// handleAvailableModels probes every model and lists the reachable ones.
func (s *Server) handleAvailableModels(w http.ResponseWriter, r *http.Request) {
	available := make(map[string]struct{})
	for _, b := range s.orchestrator.GetAvailableModels(r.Context()) {
		available[b.ID()] = struct{}{}
	}

	models := make([]domain.ModelInfo, 0, len(available))
	for _, m := range s.orchestrator.ListModels() {
		if _, ok := available[m.ID]; ok {
			models = append(models, m)
		}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models, Count: len(models)})
}

type modelSelection struct {
	ModelID string `json:"model_id"`
}

func (s *Server) handleSetActiveModel(w http.ResponseWriter, r *http.Request) {
	var req modelSelection
	if !s.decode(w, r, "/v1/models/active", &req) {
		return
	}
	if err := s.orchestrator.SetActiveModel(req.ModelID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req modelSelection
	if !s.decode(w, r, "/v1/models/default", &req) {
		return
	}
	if err := s.registry.SetDefaultModel(req.ModelID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.CheckHealth(r.Context()))
}

// --- Tracing ---

type tracesResponse struct {
	Traces []domain.TraceSummary `json:"traces"`
	Count  int                   `json:"count"`
}

// handleListTraces returns recent traces.
// GET /v1/traces?limit=50
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	if err := s.validator.Validate(r.Context(), r, "/v1/traces", nil); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	limit := defaultTraceLimit
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	if s.tracer == nil {
		writeJSON(w, http.StatusOK, tracesResponse{Traces: []domain.TraceSummary{}})
		return
	}
	traces, err := s.tracer.ListTraces(r.Context(), limit)
	if err != nil {
		s.logger.Warn("list traces incomplete", "error", err)
	}
	writeJSON(w, http.StatusOK, tracesResponse{Traces: traces, Count: len(traces)})
}

// handleGetTrace returns a single trace with all spans.
// GET /v1/traces/{id}
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", r.PathValue("id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if s.tracer == nil {
		s.writeError(w, domain.ErrTraceNotFound)
		return
	}

	trace, err := s.tracer.GetTrace(r.Context(), domain.TraceID(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// --- Helpers ---

type errorBody struct {
	Error string `json:"error"`
}

// decode buffers the body, validates the request against the OpenAPI
// operation at path and unmarshals it into dst. On failure it has already
// written the response.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, path string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error()})
		return false
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := s.validator.Validate(r.Context(), r, path, nil); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, domain.ErrStreamingUnsupported),
		errors.Is(err, domain.ErrNoValidModels):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrTraceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoAvailableModel),
		errors.Is(err, domain.ErrNoActiveModel):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBackend):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
