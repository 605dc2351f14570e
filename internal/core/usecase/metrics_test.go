package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func TestKeywordCoverageCaseInsensitive(t *testing.T) {
	got, err := KeywordCoverage("Major risk factors include Obesity and physical inactivity.", []string{"obesity", "physical inactivity"})
	if err != nil {
		t.Fatalf("KeywordCoverage() error = %v", err)
	}
	if got != 1.0 {
		t.Fatalf("expected coverage 1.0, got %v", got)
	}
}

func TestKeywordCoverageEmptyKeywordSetNotComputable(t *testing.T) {
	if _, err := KeywordCoverage("anything", nil); err == nil {
		t.Fatalf("expected error for empty keyword set")
	}
}

func TestAnswerSimilarity(t *testing.T) {
	same, err := AnswerSimilarity("High blood pressure", "high   blood pressure")
	if err != nil {
		t.Fatalf("AnswerSimilarity() error = %v", err)
	}
	if same != 1 {
		t.Fatalf("expected identical normalized text to score 1, got %v", same)
	}
	diff, _ := AnswerSimilarity("abc", "xyz")
	if diff != 0 {
		t.Fatalf("expected disjoint text to score 0, got %v", diff)
	}
	if _, err := AnswerSimilarity("abc", " "); err == nil {
		t.Fatalf("expected error without ground truth")
	}
}

func TestMetricsEvaluatorComputesIndependently(t *testing.T) {
	embedder := &embedderFake{err: errors.New("embedding service down")}
	m := NewMetricsEvaluator(domain.DefaultMetrics, KeywordJudge{}, embedder, nil)

	scores, failures := m.Evaluate(context.Background(), MetricInput{
		Question:    "What are the risk factors for diabetes?",
		Contexts:    []string{"Obesity is a risk factor.", "Unrelated text."},
		Answer:      "Obesity and age.",
		GroundTruth: "Obesity, age and family history.",
		Keywords:    []string{"obesity", "age"},
	})

	if scores[domain.MetricContextPrecision] != 0.5 {
		t.Fatalf("expected context precision 0.5, got %v", scores[domain.MetricContextPrecision])
	}
	if scores[domain.MetricKeywordCoverage] != 1 {
		t.Fatalf("expected keyword coverage 1, got %v", scores[domain.MetricKeywordCoverage])
	}
	if _, ok := scores[domain.MetricAnswerRelevancy]; ok {
		t.Fatalf("answer relevancy must be absent when embedding fails")
	}
	if failures[domain.MetricAnswerRelevancy] == "" {
		t.Fatalf("expected answer relevancy failure to be recorded")
	}
}

func TestMetricsEvaluatorAnswerRelevancyUsesNormalizedCosine(t *testing.T) {
	embedder := &embedderFake{vectors: map[string][]float32{
		"answer": {1, 0},
		"truth":  {0, 1},
	}}
	m := NewMetricsEvaluator([]string{domain.MetricAnswerRelevancy}, nil, embedder, nil)

	scores, failures := m.Evaluate(context.Background(), MetricInput{Answer: "answer", GroundTruth: "truth"})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if math.Abs(scores[domain.MetricAnswerRelevancy]-0.5) > 1e-9 {
		t.Fatalf("expected orthogonal vectors to score 0.5, got %v", scores[domain.MetricAnswerRelevancy])
	}
}

func TestSimilarityJudgeThreshold(t *testing.T) {
	embedder := &embedderFake{vectors: map[string][]float32{
		"q":    {1, 0},
		"near": {1, 0.1},
		"far":  {-1, 0},
	}}
	judge := SimilarityJudge{Embedder: embedder, Threshold: 0.75}
	got, err := judge.Judge(context.Background(), MetricInput{Question: "q", Contexts: []string{"near", "far"}})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if !got[0] || got[1] {
		t.Fatalf("unexpected verdicts: %v", got)
	}
}

func TestMetricsEvaluatorEmptyRetrievalScoresZeroPrecision(t *testing.T) {
	m := NewMetricsEvaluator([]string{domain.MetricContextPrecision}, KeywordJudge{}, nil, nil)
	scores, failures := m.Evaluate(context.Background(), MetricInput{Keywords: []string{"x"}})
	if len(failures) != 0 || scores[domain.MetricContextPrecision] != 0 {
		t.Fatalf("expected precision 0 without contexts, got %v %v", scores, failures)
	}
}
