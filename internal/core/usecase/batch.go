package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

const (
	defaultBatchWorkers    = 4
	defaultQuestionTimeout = 3 * time.Minute
)

type BatchConfig struct {
	Workers         int
	QuestionTimeout time.Duration
}

// BatchEvaluator runs a pipeline over a dataset with bounded parallelism.
// A question that fails is recorded and never aborts the batch.
type BatchEvaluator struct {
	pool            *ants.Pool
	questionTimeout time.Duration
	logger          *slog.Logger
	now             func() time.Time
	newRunID        func() string
}

func NewBatchEvaluator(cfg BatchConfig, logger *slog.Logger) (*BatchEvaluator, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultBatchWorkers
	}
	if cfg.QuestionTimeout <= 0 {
		cfg.QuestionTimeout = defaultQuestionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create batch pool: %w", err)
	}
	return &BatchEvaluator{
		pool:            pool,
		questionTimeout: cfg.QuestionTimeout,
		logger:          logger,
		now:             time.Now,
		newRunID:        uuid.NewString,
	}, nil
}

func (b *BatchEvaluator) Close() {
	b.pool.Release()
}

type questionOutcome struct {
	record  domain.EvaluationRecord
	failure *domain.QuestionFailure
}

// Evaluate returns the run in dataset order regardless of completion order.
// A cancelled context turns every unfinished question into a cancelled
// failure.
func (b *BatchEvaluator) Evaluate(ctx context.Context, runID string, evaluator QuestionEvaluator, cases []domain.TestCase) *domain.RunResult {
	if runID == "" {
		runID = b.newRunID()
	}
	started := b.now()
	logger := b.logger.With("run_id", runID, "pipeline", evaluator.Name())
	logger.Info("batch_started", "questions", len(cases))

	outcomes := make([]questionOutcome, len(cases))
	var wg sync.WaitGroup
	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			outcomes[i] = cancelledOutcome(tc, err)
			continue
		}
		task := func() {
			defer wg.Done()
			outcomes[i] = b.runQuestion(ctx, evaluator, tc)
		}
		wg.Add(1)
		if err := b.pool.Submit(task); err != nil {
			wg.Done()
			outcomes[i] = questionOutcome{failure: &domain.QuestionFailure{
				QuestionID: tc.ID,
				Stage:      domain.StageCancelled,
				Error:      fmt.Sprintf("schedule question: %v", err),
			}}
		}
	}
	wg.Wait()

	records := make([]domain.EvaluationRecord, 0, len(cases))
	failures := make([]domain.QuestionFailure, 0)
	for _, o := range outcomes {
		if o.failure != nil {
			failures = append(failures, *o.failure)
			continue
		}
		records = append(records, o.record)
	}

	stats, summary := Aggregate(records, failures)
	result := &domain.RunResult{
		RunID:       runID,
		Name:        evaluator.Name(),
		Timestamp:   started.UTC(),
		Metrics:     MetricMeans(stats),
		MetricStats: stats,
		Summary:     summary,
		Records:     records,
		Failures:    failures,
	}
	logger.Info("batch_finished",
		"evaluated", summary.Evaluated,
		"failed", summary.Failed,
		"avg_score", summary.AvgScore,
		"duration_ms", b.now().Sub(started).Milliseconds(),
	)
	return result
}

func (b *BatchEvaluator) runQuestion(ctx context.Context, evaluator QuestionEvaluator, tc domain.TestCase) (out questionOutcome) {
	if err := ctx.Err(); err != nil {
		return cancelledOutcome(tc, err)
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("question_panic", "question_id", tc.ID, "panic", r)
			out = questionOutcome{failure: &domain.QuestionFailure{
				QuestionID: tc.ID,
				Stage:      domain.StageInternal,
				Error:      fmt.Sprintf("panic: %v", r),
			}}
		}
	}()

	qctx, cancel := context.WithTimeout(ctx, b.questionTimeout)
	defer cancel()
	record, failure := evaluator.Evaluate(qctx, tc)
	return questionOutcome{record: record, failure: failure}
}

func cancelledOutcome(tc domain.TestCase, err error) questionOutcome {
	return questionOutcome{failure: &domain.QuestionFailure{
		QuestionID: tc.ID,
		Stage:      domain.StageCancelled,
		Error:      err.Error(),
	}}
}
