package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

// EvaluationService runs named pipelines over datasets, persists the runs
// and compares them.
type EvaluationService struct {
	pipelines  map[string]QuestionEvaluator
	batch      *BatchEvaluator
	comparison *ComparisonEngine
	store      ports.RunStore
	datasets   ports.DatasetLoader
	observer   RunObserver
	logger     *slog.Logger
}

type ServiceOption func(*EvaluationService)

func WithRunObserver(observer RunObserver) ServiceOption {
	return func(s *EvaluationService) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func NewEvaluationService(
	pipelines []QuestionEvaluator,
	batch *BatchEvaluator,
	comparison *ComparisonEngine,
	store ports.RunStore,
	datasets ports.DatasetLoader,
	logger *slog.Logger,
	opts ...ServiceOption,
) *EvaluationService {
	if logger == nil {
		logger = slog.Default()
	}
	if comparison == nil {
		comparison = NewComparisonEngine(0, 0)
	}
	byName := make(map[string]QuestionEvaluator, len(pipelines))
	for _, p := range pipelines {
		byName[p.Name()] = p
	}
	s := &EvaluationService{
		pipelines:  byName,
		batch:      batch,
		comparison: comparison,
		store:      store,
		datasets:   datasets,
		observer:   noopRunObserver{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EvaluationService) Pipelines() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *EvaluationService) Run(ctx context.Context, req domain.RunRequest, dataset *domain.Dataset) (_ *domain.RunResult, err error) {
	pipeline, ok := s.pipelines[strings.TrimSpace(req.Pipeline)]
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run", fmt.Errorf("unknown pipeline %q", req.Pipeline))
	}

	if dataset == nil {
		if s.datasets == nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "run", errors.New("no dataset given"))
		}
		loaded, err := s.datasets.Load(ctx, req.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
		dataset = loaded
	}
	if err := ValidateDataset(dataset); err != nil {
		return nil, err
	}

	started := time.Now()
	s.observer.StartRun()
	defer func() {
		s.observer.FinishRun(pipeline.Name(), time.Since(started), err)
	}()

	result := s.batch.Evaluate(ctx, req.RunID, pipeline, dataset.Cases)
	if s.store != nil {
		if err := s.store.SaveRun(ctx, result); err != nil {
			return result, fmt.Errorf("save run %s: %w", result.RunID, err)
		}
	}
	return result, nil
}

func (s *EvaluationService) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	if s.store == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "get run", fmt.Errorf("run %q", runID))
	}
	return s.store.GetRun(ctx, runID)
}

func (s *EvaluationService) CompareRuns(ctx context.Context, baselineRunID, enhancedRunID string) (*domain.ComparisonResult, error) {
	baseline, err := s.GetRun(ctx, baselineRunID)
	if err != nil {
		return nil, fmt.Errorf("load baseline run: %w", err)
	}
	enhanced, err := s.GetRun(ctx, enhancedRunID)
	if err != nil {
		return nil, fmt.Errorf("load enhanced run: %w", err)
	}
	return s.Compare(ctx, baseline, enhanced)
}

// Compare compares two runs already in memory and persists the result.
func (s *EvaluationService) Compare(ctx context.Context, baseline, enhanced *domain.RunResult) (*domain.ComparisonResult, error) {
	cmp, err := s.comparison.Compare(baseline, enhanced)
	if err != nil {
		return nil, err
	}
	s.logger.Info("runs_compared",
		"baseline_run_id", cmp.BaselineRunID,
		"enhanced_run_id", cmp.EnhancedRunID,
		"achieved", cmp.AchievedCount,
		"target_met", cmp.TargetMet,
		"best_metric", cmp.BestMetric,
	)
	s.observer.RecordComparison(cmp)
	if s.store != nil {
		if err := s.store.SaveComparison(ctx, cmp); err != nil {
			return cmp, fmt.Errorf("save comparison: %w", err)
		}
	}
	return cmp, nil
}

// Evaluation is the outcome of running both pipelines on one dataset.
type Evaluation struct {
	Baseline   *domain.RunResult        `json:"baseline"`
	Enhanced   *domain.RunResult        `json:"enhanced"`
	Comparison *domain.ComparisonResult `json:"comparison,omitempty"`
}

// RunComparison evaluates the baseline and enhanced pipelines on the same
// dataset and compares them.
func (s *EvaluationService) RunComparison(ctx context.Context, dataset *domain.Dataset) (*Evaluation, error) {
	out := &Evaluation{}
	var err error
	out.Baseline, err = s.Run(ctx, domain.RunRequest{Pipeline: domain.PipelineBaseline}, dataset)
	if err != nil {
		return out, fmt.Errorf("baseline run: %w", err)
	}
	out.Enhanced, err = s.Run(ctx, domain.RunRequest{Pipeline: domain.PipelineEnhanced}, dataset)
	if err != nil {
		return out, fmt.Errorf("enhanced run: %w", err)
	}
	out.Comparison, err = s.Compare(ctx, out.Baseline, out.Enhanced)
	if err != nil {
		return out, err
	}
	return out, nil
}

// ValidateDataset rejects empty datasets and duplicate or blank questions.
func ValidateDataset(dataset *domain.Dataset) error {
	if dataset == nil || len(dataset.Cases) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate dataset", errors.New("dataset has no questions"))
	}
	seen := make(map[string]struct{}, len(dataset.Cases))
	for i, tc := range dataset.Cases {
		if strings.TrimSpace(tc.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate dataset", fmt.Errorf("case %d has no id", i))
		}
		if strings.TrimSpace(tc.Question) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate dataset", fmt.Errorf("case %q has no question", tc.ID))
		}
		if _, dup := seen[tc.ID]; dup {
			return domain.WrapError(domain.ErrInvalidInput, "validate dataset", fmt.Errorf("duplicate case id %q", tc.ID))
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}
