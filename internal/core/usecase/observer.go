package usecase

import (
	"time"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

// Observer receives pipeline events. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObserveStage(pipeline, stage string, duration time.Duration, err error)
	ExpansionDegraded()
	RetrievalSourceFailed(source string)
	RerankCandidatesDropped(count int)
	QuestionFinished(pipeline string, failed bool, duration time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, string, time.Duration, error) {}
func (noopObserver) ExpansionDegraded()                                 {}
func (noopObserver) RetrievalSourceFailed(string)                       {}
func (noopObserver) RerankCandidatesDropped(int)                        {}
func (noopObserver) QuestionFinished(string, bool, time.Duration)       {}

// RunObserver receives run-level events from EvaluationService.
type RunObserver interface {
	StartRun()
	FinishRun(pipeline string, duration time.Duration, err error)
	RecordComparison(cmp *domain.ComparisonResult)
}

type noopRunObserver struct{}

func (noopRunObserver) StartRun()                                 {}
func (noopRunObserver) FinishRun(string, time.Duration, error)    {}
func (noopRunObserver) RecordComparison(*domain.ComparisonResult) {}
