package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestEvalMetricsExportsPipelineEvents(t *testing.T) {
	m := NewEvalMetrics("evaluator")
	m.ObserveStage(domain.PipelineEnhanced, "retrieval", 20*time.Millisecond, nil)
	m.ObserveStage(domain.PipelineEnhanced, "generation", time.Second, errors.New("boom"))
	m.ExpansionDegraded()
	m.RetrievalSourceFailed("lexical")
	m.RerankCandidatesDropped(3)
	m.RerankCandidatesDropped(0)
	m.QuestionFinished(domain.PipelineEnhanced, true, 2*time.Second)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`rag_eval_pipeline_stage_errors_total{pipeline="enhanced",service="evaluator",stage="generation"} 1`,
		`rag_eval_expansion_degraded_total{service="evaluator"} 1`,
		`rag_eval_retrieval_source_failures_total{service="evaluator",source="lexical"} 1`,
		`rag_eval_rerank_dropped_candidates_total{service="evaluator"} 3`,
		`rag_eval_pipeline_questions_total{pipeline="enhanced",service="evaluator",status="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, body)
		}
	}
}

func TestRecordComparisonDropsUndefinedDeltas(t *testing.T) {
	m := NewEvalMetrics("evaluator")
	m.RecordComparison(&domain.ComparisonResult{
		TargetMet: true,
		PerMetric: map[string]domain.MetricComparison{
			domain.MetricContextPrecision: {DeltaPct: domain.DefinedDelta(30)},
		},
	})
	m.RecordComparison(&domain.ComparisonResult{
		PerMetric: map[string]domain.MetricComparison{
			domain.MetricContextPrecision: {DeltaPct: domain.UndefinedDelta()},
		},
	})

	body := scrape(t, m.Handler())
	if strings.Contains(body, `rag_eval_comparison_delta_pct{metric="context_precision"`) {
		t.Fatalf("undefined delta must not be exported:\n%s", body)
	}
	if !strings.Contains(body, `rag_eval_comparison_total{service="evaluator",target_met="true"} 1`) {
		t.Fatalf("expected comparison verdict counter:\n%s", body)
	}
}

func TestHTTPMetricsShareRegistry(t *testing.T) {
	eval := NewEvalMetrics("api")
	httpMetrics := NewHTTPServerMetrics("api", eval.Registry())

	r := chi.NewRouter()
	r.Use(httpMetrics.Middleware)
	r.Get("/v1/runs/{runID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))

	body := scrape(t, eval.Handler())
	want := `rag_eval_http_requests_total{method="GET",route="/v1/runs/{runID}",service="api",status="202"} 1`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %q in scrape output:\n%s", want, body)
	}
}

func TestResilienceEvents(t *testing.T) {
	m := NewEvalMetrics("worker")
	m.RetryScheduled("ollama.generate")
	m.RetryScheduled("ollama.generate")
	m.BreakerStateChanged("qdrant.dense_search", "open")
	m.BreakerStateChanged("qdrant.lexical_search", "half-open")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`rag_eval_resilience_retries_total{operation="ollama.generate",service="worker"} 2`,
		`rag_eval_resilience_breaker_state{operation="qdrant.dense_search",service="worker"} 2`,
		`rag_eval_resilience_breaker_state{operation="qdrant.lexical_search",service="worker"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in scrape output:\n%s", want, body)
		}
	}
}
