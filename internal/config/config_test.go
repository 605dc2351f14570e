package config

import (
	"testing"
	"time"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Alpha != 0.5 {
		t.Fatalf("expected default alpha 0.5, got %v", cfg.Alpha)
	}
	if cfg.UnionCap != 20 {
		t.Fatalf("expected default union cap 20, got %d", cfg.UnionCap)
	}
	if cfg.RerankTopK != 5 {
		t.Fatalf("expected default rerank top k 5, got %d", cfg.RerankTopK)
	}
	if cfg.RetryCount != 2 {
		t.Fatalf("expected default retry count 2, got %d", cfg.RetryCount)
	}
	if cfg.ThresholdPct != 30 || cfg.MinMetricsAchieved != 1 {
		t.Fatalf("unexpected comparison defaults: %v/%d", cfg.ThresholdPct, cfg.MinMetricsAchieved)
	}
	if cfg.QuestionTimeout != 3*time.Minute {
		t.Fatalf("expected default question timeout 3m, got %s", cfg.QuestionTimeout)
	}
	if len(cfg.Metrics) != 3 || cfg.Metrics[0] != domain.MetricContextPrecision {
		t.Fatalf("unexpected default metrics: %v", cfg.Metrics)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("EVAL_ALPHA", "1")
	t.Setenv("EVAL_RETRIEVAL_MODE", "native")
	t.Setenv("EVAL_FUSION_STRATEGY", "rrf")
	t.Setenv("EVAL_TIMEOUT_PER_CALL", "5s")
	t.Setenv("EVAL_METRICS", " Keyword_Coverage , answer_similarity,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Alpha != 1 || cfg.RetrievalMode != "native" || cfg.FusionStrategy != "rrf" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.TimeoutPerCall != 5*time.Second {
		t.Fatalf("expected 5s per-call timeout, got %s", cfg.TimeoutPerCall)
	}
	if len(cfg.Metrics) != 2 || cfg.Metrics[0] != domain.MetricKeywordCoverage || cfg.Metrics[1] != domain.MetricAnswerSimilarity {
		t.Fatalf("unexpected metrics: %v", cfg.Metrics)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"EVAL_ALPHA":          "1.5",
		"EVAL_UNION_CAP":      "0",
		"EVAL_RETRIEVAL_MODE": "semantic",
		"EVAL_METRICS":        "bleu",
		"RUN_STORE":           "s3",
		"EVAL_THRESHOLD_PCT":  "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput for %s=%s, got %v", key, value, err)
			}
		})
	}
}

func TestLoadRejectsNegativeThreshold(t *testing.T) {
	t.Setenv("EVAL_THRESHOLD_PCT", "-5")
	if _, err := Load(); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("EVAL_TOP_K_DENSE", "many")
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
