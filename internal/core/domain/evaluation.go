package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	MetricContextPrecision = "context_precision"
	MetricAnswerRelevancy  = "answer_relevancy"
	MetricKeywordCoverage  = "keyword_coverage"
	MetricAnswerSimilarity = "answer_similarity"
)

// DefaultMetrics is the metric set computed when none is configured.
var DefaultMetrics = []string{MetricContextPrecision, MetricAnswerRelevancy, MetricKeywordCoverage}

type FailureStage string

const (
	StageExpansion  FailureStage = "expansion"
	StageRetrieval  FailureStage = "retrieval"
	StageRerank     FailureStage = "rerank"
	StageGeneration FailureStage = "generation"
	StageMetrics    FailureStage = "metrics"
	StageCancelled  FailureStage = "cancelled"
	StageInternal   FailureStage = "internal"
)

// EvaluationRecord is finalized once per question and never mutated after
// metric computation. Failed metrics are absent from Scores and listed in
// MetricFailures.
type EvaluationRecord struct {
	QuestionID     string             `json:"question_id"`
	Question       string             `json:"question"`
	ContextIDs     []string           `json:"context_ids"`
	Answer         string             `json:"answer"`
	GroundTruth    string             `json:"ground_truth"`
	Scores         map[string]float64 `json:"scores"`
	MetricFailures map[string]string  `json:"metric_failures,omitempty"`
	Variants       []string           `json:"variants,omitempty"`
	Degradations   []string           `json:"degradations,omitempty"`
	Duration       time.Duration      `json:"duration_ns"`
}

// QuestionFailure records a question whose pipeline could not finish.
type QuestionFailure struct {
	QuestionID string       `json:"question_id"`
	Stage      FailureStage `json:"stage"`
	Error      string       `json:"error"`
}

// MetricSummary aggregates one metric over a run. Count is the number of
// records contributing to Mean, Excluded the number where the metric was
// not computable.
type MetricSummary struct {
	Mean     float64 `json:"mean"`
	Count    int     `json:"count"`
	Excluded int     `json:"excluded"`
}

type RunSummary struct {
	AvgScore  float64 `json:"avg_score"`
	TestSize  int     `json:"test_size"`
	Evaluated int     `json:"evaluated"`
	Failed    int     `json:"failed"`
}

// RunResult is the read-only aggregate of one batch. It doubles as the
// persisted run artifact.
type RunResult struct {
	RunID       string                   `json:"run_id"`
	Name        string                   `json:"name"`
	Timestamp   time.Time                `json:"timestamp"`
	Metrics     map[string]float64       `json:"metrics"`
	MetricStats map[string]MetricSummary `json:"metric_stats"`
	Summary     RunSummary               `json:"summary"`
	Records     []EvaluationRecord       `json:"details"`
	Failures    []QuestionFailure        `json:"failures"`
}

// Delta is a signed percentage change that is undefined when the baseline
// mean is exactly zero. It marshals to a JSON number or the string
// "undefined".
type Delta struct {
	Value   float64
	Defined bool
}

const deltaUndefined = "undefined"

func DefinedDelta(v float64) Delta { return Delta{Value: v, Defined: true} }

func UndefinedDelta() Delta { return Delta{} }

func (d Delta) String() string {
	if !d.Defined {
		return deltaUndefined
	}
	return fmt.Sprintf("%+.1f%%", d.Value)
}

func (d Delta) MarshalJSON() ([]byte, error) {
	if !d.Defined {
		return json.Marshal(deltaUndefined)
	}
	return json.Marshal(d.Value)
}

func (d *Delta) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = Delta{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != deltaUndefined {
			return fmt.Errorf("unexpected delta %q", s)
		}
		*d = Delta{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*d = DefinedDelta(v)
	return nil
}

type ComparisonStatus string

const (
	StatusTargetMet ComparisonStatus = "target_met"
	StatusStrong    ComparisonStatus = "strong"
	StatusGood      ComparisonStatus = "good"
	StatusMinor     ComparisonStatus = "minor"
	StatusDecreased ComparisonStatus = "decreased"
	StatusUndefined ComparisonStatus = "undefined"
)

type MetricComparison struct {
	Baseline float64          `json:"baseline"`
	Enhanced float64          `json:"enhanced"`
	DeltaPct Delta            `json:"delta_pct"`
	Achieved bool             `json:"achieved"`
	Status   ComparisonStatus `json:"status"`
}

type ComparisonResult struct {
	BaselineRunID      string                      `json:"baseline_run_id"`
	EnhancedRunID      string                      `json:"enhanced_run_id"`
	ThresholdPct       float64                     `json:"threshold_pct"`
	MinMetricsAchieved int                         `json:"min_metrics_achieved"`
	PerMetric          map[string]MetricComparison `json:"per_metric"`
	AchievedCount      int                         `json:"achieved_count"`
	TargetMet          bool                        `json:"target_met"`
	BestMetric         string                      `json:"best_metric,omitempty"`
	BaselineAvgScore   float64                     `json:"baseline_avg_score"`
	EnhancedAvgScore   float64                     `json:"enhanced_avg_score"`
}

const (
	PipelineBaseline = "baseline"
	PipelineEnhanced = "enhanced"
)

// RunRequest asks a worker to evaluate one pipeline over a dataset.
type RunRequest struct {
	RunID       string `json:"run_id"`
	Pipeline    string `json:"pipeline"`
	DatasetPath string `json:"dataset_path,omitempty"`
}
