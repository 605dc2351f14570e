package usecase

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func testCases() []domain.TestCase {
	return []domain.TestCase{
		{ID: "q1", Question: "Question one about obesity", GroundTruth: "obesity", Keywords: []string{"obesity"}},
		{ID: "q2", Question: "Question two about vaccines", GroundTruth: "vaccines", Keywords: []string{"vaccine"}},
		{ID: "q3", Question: "Question three about dementia", GroundTruth: "dementia", Keywords: []string{"dementia"}},
	}
}

func newTestPipeline(generator *generatorFake) *Pipeline {
	docs := []domain.SearchHit{
		{Document: domain.Document{ID: "d1", Content: "obesity raises risk"}, Score: 0.9},
		{Document: domain.Document{ID: "d2", Content: "dementia screening"}, Score: 0.4},
	}
	dense := &searchFake{hits: map[string][]domain.SearchHit{}}
	for _, tc := range testCases() {
		dense.hits[tc.Question] = docs
	}
	cfg := DefaultHybridRetrieverConfig()
	cfg.Alpha = 1
	cfg.UnionCap = 5
	return NewPipeline(domain.PipelineBaseline, PipelineDeps{
		Retriever: NewHybridRetriever(dense, nil, nil, cfg, nil, nil),
		Generator: generator,
		Metrics:   NewMetricsEvaluator([]string{domain.MetricKeywordCoverage, domain.MetricContextPrecision}, KeywordJudge{}, nil, nil),
	})
}

func newTestBatch(t *testing.T, workers int) *BatchEvaluator {
	t.Helper()
	b, err := NewBatchEvaluator(BatchConfig{Workers: workers, QuestionTimeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("NewBatchEvaluator() error = %v", err)
	}
	b.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(b.Close)
	return b
}

func TestBatchEvaluatorIsolatesGenerationFailure(t *testing.T) {
	generator := &generatorFake{answer: "obesity and dementia", failOn: "Question two"}
	result := newTestBatch(t, 3).Evaluate(context.Background(), "run-1", newTestPipeline(generator), testCases())

	if len(result.Records) != 2 || len(result.Failures) != 1 {
		t.Fatalf("expected 2 records and 1 failure, got %d/%d", len(result.Records), len(result.Failures))
	}
	if result.Records[0].QuestionID != "q1" || result.Records[1].QuestionID != "q3" {
		t.Fatalf("records not in dataset order: %s, %s", result.Records[0].QuestionID, result.Records[1].QuestionID)
	}
	failure := result.Failures[0]
	if failure.QuestionID != "q2" || failure.Stage != domain.StageGeneration {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	stats := result.MetricStats[domain.MetricKeywordCoverage]
	if stats.Count != 2 || stats.Mean != 1 {
		t.Fatalf("expected aggregate over q1 and q3 only, got %+v", stats)
	}
	if result.Summary.TestSize != 3 || result.Summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", result.Summary)
	}
}

func TestBatchEvaluatorCancelledContextMarksQuestionsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := newTestBatch(t, 2).Evaluate(ctx, "run-1", newTestPipeline(&generatorFake{answer: "x"}), testCases())

	if len(result.Records) != 0 || len(result.Failures) != 3 {
		t.Fatalf("expected every question cancelled, got %d records %d failures", len(result.Records), len(result.Failures))
	}
	for _, f := range result.Failures {
		if f.Stage != domain.StageCancelled {
			t.Fatalf("expected cancelled stage, got %s", f.Stage)
		}
	}
}

func TestBatchEvaluatorIsDeterministic(t *testing.T) {
	run := func() *domain.RunResult {
		generator := &generatorFake{answer: "obesity vaccine dementia"}
		result := newTestBatch(t, 3).Evaluate(context.Background(), "run-1", newTestPipeline(generator), testCases())
		for i := range result.Records {
			result.Records[i].Duration = 0
		}
		return result
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results for identical inputs")
	}
}

type panicEvaluator struct{ calls atomic.Int32 }

func (p *panicEvaluator) Name() string { return "panicky" }

func (p *panicEvaluator) Evaluate(_ context.Context, tc domain.TestCase) (domain.EvaluationRecord, *domain.QuestionFailure) {
	p.calls.Add(1)
	if tc.ID == "q1" {
		panic("boom")
	}
	return domain.EvaluationRecord{QuestionID: tc.ID, Scores: map[string]float64{"m": 1}}, nil
}

func TestBatchEvaluatorRecoversPanics(t *testing.T) {
	evaluator := &panicEvaluator{}
	result := newTestBatch(t, 2).Evaluate(context.Background(), "", evaluator, testCases())

	if evaluator.calls.Load() != 3 {
		t.Fatalf("expected every question attempted, got %d", evaluator.calls.Load())
	}
	if len(result.Failures) != 1 || result.Failures[0].Stage != domain.StageInternal {
		t.Fatalf("expected panic recorded as internal failure, got %+v", result.Failures)
	}
	if result.RunID == "" {
		t.Fatalf("expected generated run id")
	}
}
