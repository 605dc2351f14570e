package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func hit(id string, score float64) domain.SearchHit {
	return domain.SearchHit{Document: domain.Document{ID: id, Content: "content of " + id}, Score: score}
}

type searchFake struct {
	mu    sync.Mutex
	hits  map[string][]domain.SearchHit
	errs  map[string]error
	calls []string
	topK  int
}

func (f *searchFake) search(text string, topK int) ([]domain.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	f.topK = topK
	if err := f.errs[text]; err != nil {
		return nil, err
	}
	if err := f.errs["*"]; err != nil {
		return nil, err
	}
	return f.hits[text], nil
}

func (f *searchFake) DenseSearch(_ context.Context, text string, topK int) ([]domain.SearchHit, error) {
	return f.search(text, topK)
}

func (f *searchFake) LexicalSearch(_ context.Context, text string, topK int) ([]domain.SearchHit, error) {
	return f.search(text, topK)
}

func (f *searchFake) HybridSearch(_ context.Context, text string, topK int, _ float64) ([]domain.SearchHit, error) {
	return f.search(text, topK)
}

func (f *searchFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type rewriterFake struct {
	alternatives []string
	err          error
}

func (f *rewriterFake) ExpandQuery(_ context.Context, _ string, n int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.alternatives) > n {
		return f.alternatives[:n], nil
	}
	return f.alternatives, nil
}

// scorerFake scores by a fixed table keyed on candidate text. Texts listed in
// fail make any call that includes them return an error.
type scorerFake struct {
	mu     sync.Mutex
	scores map[string]float64
	fail   map[string]bool
	calls  int
	seen   []string
}

func (f *scorerFake) Score(_ context.Context, _ string, candidates []string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, candidates...)
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		if f.fail[c] {
			return nil, errors.New("scorer unavailable")
		}
		out[i] = f.scores[c]
	}
	return out, nil
}

type generatorFake struct {
	mu      sync.Mutex
	answer  string
	failOn  string
	err     error
	prompts []string
}

func (f *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return "", errors.New("model timeout")
	}
	return f.answer, nil
}

// embedderFake maps texts to fixed vectors; unknown texts get fallback.
type embedderFake struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out = append(out, v)
			continue
		}
		out = append(out, f.fallback)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type runStoreFake struct {
	mu          sync.Mutex
	runs        map[string]*domain.RunResult
	comparisons []*domain.ComparisonResult
	saveErr     error
}

func newRunStoreFake() *runStoreFake {
	return &runStoreFake{runs: make(map[string]*domain.RunResult)}
}

func (f *runStoreFake) SaveRun(_ context.Context, run *domain.RunResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.runs[run.RunID] = run
	return nil
}

func (f *runStoreFake) GetRun(_ context.Context, runID string) (*domain.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get run", errors.New(runID))
	}
	return run, nil
}

func (f *runStoreFake) SaveComparison(_ context.Context, cmp *domain.ComparisonResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comparisons = append(f.comparisons, cmp)
	return nil
}
