package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

const (
	defaultRerankTopK      = 5
	defaultRerankBatchSize = 4
	defaultScorerWindow    = 512
)

type RerankerConfig struct {
	TopK         int
	BatchSize    int
	ScorerWindow int
}

// Reranker rescores fused candidates with a pairwise relevance scorer.
// Scoring batches run on a shared pool so one question cannot starve
// the scorer for others.
type Reranker struct {
	scorer   ports.RelevanceScorer
	pool     *ants.Pool
	cfg      RerankerConfig
	observer Observer
	logger   *slog.Logger
}

func NewReranker(scorer ports.RelevanceScorer, pool *ants.Pool, cfg RerankerConfig, observer Observer, logger *slog.Logger) *Reranker {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultRerankTopK
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultRerankBatchSize
	}
	if cfg.ScorerWindow <= 0 {
		cfg.ScorerWindow = defaultScorerWindow
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, pool: pool, cfg: cfg, observer: observer, logger: logger}
}

type scoredCandidate struct {
	index int
	score float64
}

// Rerank returns at most TopK results drawn from candidates, ordered by
// scorer output desc with ties broken by fused rank. Candidates whose
// scoring fails are dropped.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RetrievalCandidate) ([]domain.RankedResult, error) {
	if len(candidates) == 0 {
		return []domain.RankedResult{}, nil
	}
	if r.scorer == nil {
		return nil, domain.WrapError(domain.ErrRerank, "rerank", errors.New("relevance scorer is not configured"))
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = scorerWindow(c.Document.Content, r.cfg.ScorerWindow)
	}

	scores := make([]float64, len(candidates))
	scored := make([]bool, len(candidates))

	var wg sync.WaitGroup
	for start := 0; start < len(texts); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		task := func() {
			defer wg.Done()
			r.scoreBatch(ctx, query, texts, start, end, scores, scored)
		}
		wg.Add(1)
		if r.pool == nil {
			go task()
			continue
		}
		if err := r.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := make([]scoredCandidate, 0, len(candidates))
	for i := range candidates {
		if scored[i] {
			kept = append(kept, scoredCandidate{index: i, score: scores[i]})
		}
	}
	if dropped := len(candidates) - len(kept); dropped > 0 {
		r.observer.RerankCandidatesDropped(dropped)
		r.logger.Warn("rerank_candidates_dropped", "dropped", dropped, "total", len(candidates))
	}
	if len(kept) == 0 {
		return nil, domain.WrapError(domain.ErrRerank, "rerank", errors.New("scorer failed for every candidate"))
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].index < kept[j].index
	})
	if len(kept) > r.cfg.TopK {
		kept = kept[:r.cfg.TopK]
	}

	out := make([]domain.RankedResult, 0, len(kept))
	for rank, k := range kept {
		c := candidates[k.index]
		out = append(out, domain.RankedResult{
			DocumentID:  c.DocumentID,
			RerankScore: k.score,
			Rank:        rank + 1,
			FusedRank:   k.index + 1,
			Document:    c.Document,
		})
	}
	return out, nil
}

// scoreBatch scores texts[start:end] in one call. When the batch call fails
// each candidate is retried alone so a single bad pair only drops itself.
func (r *Reranker) scoreBatch(ctx context.Context, query string, texts []string, start, end int, scores []float64, scored []bool) {
	batch, err := r.scorer.Score(ctx, query, texts[start:end])
	if err == nil && len(batch) == end-start {
		for i, s := range batch {
			if isFinite(s) {
				scores[start+i] = s
				scored[start+i] = true
			}
		}
		return
	}
	if err == nil {
		err = fmt.Errorf("scorer returned %d scores for %d candidates", len(batch), end-start)
	}
	if end-start == 1 || ctx.Err() != nil {
		r.logger.Debug("rerank_batch_failed", "start", start, "end", end, "error", err)
		return
	}

	for i := start; i < end; i++ {
		single, err := r.scorer.Score(ctx, query, texts[i:i+1])
		if err != nil || len(single) != 1 || !isFinite(single[0]) {
			continue
		}
		scores[i] = single[0]
		scored[i] = true
	}
}

func scorerWindow(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LexicalOverlapScorer is a local relevance scorer: the fraction of query
// tokens present in the candidate text, with a small bonus for exact phrase
// containment.
type LexicalOverlapScorer struct{}

func (LexicalOverlapScorer) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryTokens := toTokenSet(query)
	phrase := strings.ToLower(strings.TrimSpace(query))
	out := make([]float64, len(candidates))
	for i, text := range candidates {
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		phraseHit := 0.0
		if phrase != "" && strings.Contains(strings.ToLower(text), phrase) {
			phraseHit = 1
		}
		out[i] = 0.90*overlap + 0.10*phraseHit
	}
	return out, nil
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
