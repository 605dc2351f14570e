package usecase

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func runWith(id string, scores ...map[string]float64) *domain.RunResult {
	records := make([]domain.EvaluationRecord, 0, len(scores))
	for _, s := range scores {
		records = append(records, domain.EvaluationRecord{Scores: s})
	}
	stats, summary := Aggregate(records, nil)
	return &domain.RunResult{RunID: id, Records: records, MetricStats: stats, Metrics: MetricMeans(stats), Summary: summary}
}

func TestCompareThirtyPercentIsAchieved(t *testing.T) {
	engine := NewComparisonEngine(30, 1)
	cmp, err := engine.Compare(
		runWith("base", map[string]float64{"context_precision": 0.5}),
		runWith("enh", map[string]float64{"context_precision": 0.65}),
	)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	mc := cmp.PerMetric["context_precision"]
	if !mc.DeltaPct.Defined || mc.DeltaPct.Value != 30 {
		t.Fatalf("expected delta exactly +30, got %+v", mc.DeltaPct)
	}
	if !mc.Achieved || mc.Status != domain.StatusTargetMet {
		t.Fatalf("expected achieved target_met, got %+v", mc)
	}
	if !cmp.TargetMet || cmp.AchievedCount != 1 || cmp.BestMetric != "context_precision" {
		t.Fatalf("unexpected comparison summary: %+v", cmp)
	}
}

func TestCompareZeroBaselineIsUndefined(t *testing.T) {
	engine := NewComparisonEngine(30, 1)
	cmp, err := engine.Compare(
		runWith("base", map[string]float64{"keyword_coverage": 0}),
		runWith("enh", map[string]float64{"keyword_coverage": 0.4}),
	)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	mc := cmp.PerMetric["keyword_coverage"]
	if mc.DeltaPct.Defined || mc.Achieved || mc.Status != domain.StatusUndefined {
		t.Fatalf("expected undefined, not achieved, got %+v", mc)
	}
	if cmp.TargetMet {
		t.Fatalf("undefined delta must not meet the target")
	}
	raw, err := json.Marshal(mc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"delta_pct":"undefined"`) {
		t.Fatalf("expected undefined delta in json, got %s", raw)
	}
}

func TestCompareRequiresSuccessfulRecords(t *testing.T) {
	engine := NewComparisonEngine(30, 1)
	empty := &domain.RunResult{RunID: "base", Failures: []domain.QuestionFailure{{QuestionID: "q1"}}}
	_, err := engine.Compare(empty, runWith("enh", map[string]float64{"a": 1}))
	if !errors.Is(err, domain.ErrNoSuccessfulRecords) {
		t.Fatalf("expected ErrNoSuccessfulRecords, got %v", err)
	}
}

func TestCompareStatusBands(t *testing.T) {
	engine := NewComparisonEngine(30, 2)
	cmp, err := engine.Compare(
		runWith("base", map[string]float64{"a": 1, "b": 1, "c": 1, "d": 1}),
		runWith("enh", map[string]float64{"a": 1.25, "b": 1.15, "c": 1.05, "d": 0.9}),
	)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	want := map[string]domain.ComparisonStatus{
		"a": domain.StatusStrong,
		"b": domain.StatusGood,
		"c": domain.StatusMinor,
		"d": domain.StatusDecreased,
	}
	for name, status := range want {
		if got := cmp.PerMetric[name].Status; got != status {
			t.Fatalf("%s: expected %s, got %s", name, status, got)
		}
	}
	if cmp.TargetMet {
		t.Fatalf("no metric reached the threshold")
	}
	if cmp.BestMetric != "a" {
		t.Fatalf("expected best metric a, got %s", cmp.BestMetric)
	}
}

func TestComparisonEngineKeepsExplicitThreshold(t *testing.T) {
	if got := NewComparisonEngine(0, 1).thresholdPct; got != defaultThresholdPct {
		t.Fatalf("expected unset threshold to default to %v, got %v", defaultThresholdPct, got)
	}
	cmp, err := NewComparisonEngine(5, 1).Compare(
		runWith("base", map[string]float64{"a": 0.5}),
		runWith("enh", map[string]float64{"a": 0.55}),
	)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if cmp.ThresholdPct != 5 || !cmp.PerMetric["a"].Achieved || !cmp.TargetMet {
		t.Fatalf("expected 10%% gain to meet a 5%% threshold, got %+v", cmp)
	}
}

func TestCompareSkipsMetricsMissingFromOneRun(t *testing.T) {
	engine := NewComparisonEngine(30, 1)
	cmp, err := engine.Compare(
		runWith("base", map[string]float64{"a": 0.5, "only_base": 0.5}),
		runWith("enh", map[string]float64{"a": 0.5}),
	)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if _, ok := cmp.PerMetric["only_base"]; ok {
		t.Fatalf("metric absent from enhanced run must be skipped")
	}
}

func TestAggregateExcludesNonComputableMetrics(t *testing.T) {
	records := []domain.EvaluationRecord{
		{Scores: map[string]float64{"keyword_coverage": 0.5}},
		{Scores: map[string]float64{}, MetricFailures: map[string]string{"keyword_coverage": "no expected keywords"}},
		{Scores: map[string]float64{"keyword_coverage": 1.0}},
	}
	stats, summary := Aggregate(records, []domain.QuestionFailure{{QuestionID: "q4"}})

	kc := stats["keyword_coverage"]
	if kc.Mean != 0.75 || kc.Count != 2 || kc.Excluded != 1 {
		t.Fatalf("unexpected summary: %+v", kc)
	}
	if summary.TestSize != 4 || summary.Evaluated != 3 || summary.Failed != 1 {
		t.Fatalf("unexpected run summary: %+v", summary)
	}
	if summary.AvgScore != 0.75 {
		t.Fatalf("expected avg score 0.75, got %v", summary.AvgScore)
	}
}
