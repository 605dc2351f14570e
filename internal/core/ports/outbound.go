package ports

import (
	"context"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

// DenseSearcher runs nearest-neighbour search over learned embeddings.
type DenseSearcher interface {
	DenseSearch(ctx context.Context, text string, topK int) ([]domain.SearchHit, error)
}

// LexicalSearcher runs keyword search.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, text string, topK int) ([]domain.SearchHit, error)
}

// HybridSearcher is a store that fuses dense and lexical results natively.
type HybridSearcher interface {
	HybridSearch(ctx context.Context, text string, topK int, alpha float64) ([]domain.SearchHit, error)
}

// RelevanceScorer scores (query, candidate) pairs jointly. Scores are
// returned in input order; higher is more relevant.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// Embedder builds vectors for metric similarity.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator wraps the generative model.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryRewriter asks the generative model for alternative phrasings.
type QueryRewriter interface {
	ExpandQuery(ctx context.Context, query string, n int) ([]string, error)
}

// RunStore persists run and comparison artifacts.
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.RunResult) error
	GetRun(ctx context.Context, runID string) (*domain.RunResult, error)
	SaveComparison(ctx context.Context, cmp *domain.ComparisonResult) error
}

// RunQueue publishes and consumes run requests.
type RunQueue interface {
	PublishRunRequest(ctx context.Context, req domain.RunRequest) error
	SubscribeRunRequests(ctx context.Context, handler func(context.Context, domain.RunRequest) error) error
}

// DatasetLoader resolves a dataset reference; an empty path selects the
// built-in question set.
type DatasetLoader interface {
	Load(ctx context.Context, path string) (*domain.Dataset, error)
}
