package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

const maxRequestBytes = 1 << 20

// RunService is the evaluation surface the API exposes.
type RunService interface {
	ports.RunEvaluator
	ports.RunComparator
	ports.RunReader
	Pipelines() []string
}

type RouterOptions struct {
	// Queue is optional; when set, runs without an inline dataset are
	// enqueued for a worker instead of executed in the request.
	Queue ports.RunQueue
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Instrument runs inside the router, after routing, so it can read the
	// matched route pattern.
	Instrument func(http.Handler) http.Handler
	Logger     *slog.Logger
}

type Router struct {
	svc     RunService
	queue   ports.RunQueue
	metrics http.Handler
	wrap    func(http.Handler) http.Handler
	logger  *slog.Logger
}

func NewRouter(svc RunService, opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		svc:     svc,
		queue:   opts.Queue,
		metrics: opts.Metrics,
		wrap:    opts.Instrument,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	r.Use(middleware.Recoverer)
	if rt.wrap != nil {
		r.Use(rt.wrap)
	}

	r.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/pipelines", rt.listPipelines)
		r.Post("/runs", rt.createRun)
		r.Get("/runs/{runID}", rt.getRun)
		r.Post("/comparisons", rt.compareRuns)
	})

	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listPipelines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pipelines": rt.svc.Pipelines()})
}

type createRunRequest struct {
	Pipeline    string          `json:"pipeline"`
	DatasetPath string          `json:"dataset_path"`
	Dataset     *domain.Dataset `json:"dataset"`
}

type createRunResponse struct {
	RunID   string                   `json:"run_id"`
	Status  string                   `json:"status"`
	Summary *domain.RunSummary       `json:"summary,omitempty"`
	Metrics map[string]float64       `json:"metrics,omitempty"`
	Failed  []domain.QuestionFailure `json:"failures,omitempty"`
}

func (rt *Router) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Pipeline = strings.TrimSpace(req.Pipeline)
	if req.Pipeline == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "create run", errors.New("pipeline is required")))
		return
	}

	runReq := domain.RunRequest{
		RunID:       uuid.NewString(),
		Pipeline:    req.Pipeline,
		DatasetPath: req.DatasetPath,
	}

	if rt.queue != nil && req.Dataset == nil {
		if err := rt.queue.PublishRunRequest(r.Context(), runReq); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, createRunResponse{RunID: runReq.RunID, Status: "queued"})
		return
	}

	result, err := rt.svc.Run(r.Context(), runReq, req.Dataset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRunResponse{
		RunID:   result.RunID,
		Status:  "completed",
		Summary: &result.Summary,
		Metrics: result.Metrics,
		Failed:  result.Failures,
	})
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(chi.URLParam(r, "runID"))
	if runID == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get run", errors.New("run id is required")))
		return
	}
	run, err := rt.svc.GetRun(r.Context(), runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type compareRequest struct {
	BaselineRunID string `json:"baseline_run_id"`
	EnhancedRunID string `json:"enhanced_run_id"`
}

func (rt *Router) compareRuns(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BaselineRunID) == "" || strings.TrimSpace(req.EnhancedRunID) == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "compare runs", errors.New("baseline_run_id and enhanced_run_id are required")))
		return
	}
	cmp, err := rt.svc.CompareRuns(r.Context(), req.BaselineRunID, req.EnhancedRunID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if errors.Is(err, context.Canceled) {
		// client went away; nobody reads this
		status = 499
	}
	body := map[string]string{"error": err.Error()}
	if id := requestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
