package ports

import (
	"context"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

// RunEvaluator evaluates one pipeline configuration over a dataset.
type RunEvaluator interface {
	Run(ctx context.Context, req domain.RunRequest, dataset *domain.Dataset) (*domain.RunResult, error)
}

// RunComparator compares two persisted runs.
type RunComparator interface {
	CompareRuns(ctx context.Context, baselineRunID, enhancedRunID string) (*domain.ComparisonResult, error)
}

// RunReader is the read model for persisted runs.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*domain.RunResult, error)
}
