package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

// MetricInput is everything a metric may look at for one question.
type MetricInput struct {
	Question    string
	Contexts    []string
	Answer      string
	GroundTruth string
	Keywords    []string
}

// ContextJudge decides which retrieved contexts are relevant to the question.
type ContextJudge interface {
	Judge(ctx context.Context, in MetricInput) ([]bool, error)
}

// KeywordJudge marks a context relevant when it contains any expected keyword.
type KeywordJudge struct{}

func (KeywordJudge) Judge(ctx context.Context, in MetricInput) ([]bool, error) {
	if len(in.Keywords) == 0 {
		return nil, errors.New("keyword judge needs expected keywords")
	}
	out := make([]bool, len(in.Contexts))
	for i, text := range in.Contexts {
		lower := strings.ToLower(text)
		for _, kw := range in.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lower, kw) {
				out[i] = true
				break
			}
		}
	}
	return out, nil
}

// SimilarityJudge marks a context relevant when its normalized cosine
// similarity to the question reaches Threshold.
type SimilarityJudge struct {
	Embedder  ports.Embedder
	Threshold float64
}

func (j SimilarityJudge) Judge(ctx context.Context, in MetricInput) ([]bool, error) {
	if j.Embedder == nil {
		return nil, errors.New("similarity judge needs an embedder")
	}
	if len(in.Contexts) == 0 {
		return []bool{}, nil
	}
	texts := make([]string, 0, len(in.Contexts)+1)
	texts = append(texts, in.Question)
	texts = append(texts, in.Contexts...)
	vectors, err := j.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed contexts: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	out := make([]bool, len(in.Contexts))
	for i := range in.Contexts {
		sim, err := normalizedCosine(vectors[0], vectors[i+1])
		if err != nil {
			return nil, err
		}
		out[i] = sim >= j.Threshold
	}
	return out, nil
}

// ScorerJudge delegates relevance to the pairwise scorer.
type ScorerJudge struct {
	Scorer    ports.RelevanceScorer
	Threshold float64
}

func (j ScorerJudge) Judge(ctx context.Context, in MetricInput) ([]bool, error) {
	if j.Scorer == nil {
		return nil, errors.New("scorer judge needs a relevance scorer")
	}
	if len(in.Contexts) == 0 {
		return []bool{}, nil
	}
	scores, err := j.Scorer.Score(ctx, in.Question, in.Contexts)
	if err != nil {
		return nil, fmt.Errorf("score contexts: %w", err)
	}
	if len(scores) != len(in.Contexts) {
		return nil, fmt.Errorf("scorer returned %d scores for %d contexts", len(scores), len(in.Contexts))
	}
	out := make([]bool, len(scores))
	for i, s := range scores {
		out[i] = isFinite(s) && s >= j.Threshold
	}
	return out, nil
}

// MetricsEvaluator computes every configured metric independently; one
// failing metric never affects the others.
type MetricsEvaluator struct {
	metrics  []string
	judge    ContextJudge
	embedder ports.Embedder
	logger   *slog.Logger
}

func NewMetricsEvaluator(metrics []string, judge ContextJudge, embedder ports.Embedder, logger *slog.Logger) *MetricsEvaluator {
	if len(metrics) == 0 {
		metrics = domain.DefaultMetrics
	}
	if judge == nil {
		judge = KeywordJudge{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsEvaluator{metrics: metrics, judge: judge, embedder: embedder, logger: logger}
}

func (m *MetricsEvaluator) Metrics() []string {
	return append([]string(nil), m.metrics...)
}

// Evaluate returns the computed scores and the reason for each metric that
// could not be computed.
func (m *MetricsEvaluator) Evaluate(ctx context.Context, in MetricInput) (map[string]float64, map[string]string) {
	scores := make(map[string]float64, len(m.metrics))
	failures := make(map[string]string)
	for _, name := range m.metrics {
		value, err := m.compute(ctx, name, in)
		if err != nil {
			failures[name] = domain.WrapError(domain.ErrMetric, name, err).Error()
			m.logger.Warn("metric_failed", "metric", name, "error", err)
			continue
		}
		scores[name] = value
	}
	return scores, failures
}

func (m *MetricsEvaluator) compute(ctx context.Context, name string, in MetricInput) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	switch name {
	case domain.MetricContextPrecision:
		return m.contextPrecision(ctx, in)
	case domain.MetricAnswerRelevancy:
		return m.answerRelevancy(ctx, in)
	case domain.MetricKeywordCoverage:
		return KeywordCoverage(in.Answer, in.Keywords)
	case domain.MetricAnswerSimilarity:
		return AnswerSimilarity(in.Answer, in.GroundTruth)
	default:
		return 0, fmt.Errorf("unknown metric %q", name)
	}
}

// contextPrecision is the fraction of retrieved contexts judged relevant.
// An empty retrieval scores 0.
func (m *MetricsEvaluator) contextPrecision(ctx context.Context, in MetricInput) (float64, error) {
	if len(in.Contexts) == 0 {
		return 0, nil
	}
	verdicts, err := m.judge.Judge(ctx, in)
	if err != nil {
		return 0, err
	}
	if len(verdicts) != len(in.Contexts) {
		return 0, fmt.Errorf("judge returned %d verdicts for %d contexts", len(verdicts), len(in.Contexts))
	}
	relevant := 0
	for _, ok := range verdicts {
		if ok {
			relevant++
		}
	}
	return float64(relevant) / float64(len(verdicts)), nil
}

// answerRelevancy compares the answer with the ground truth, or with the
// question when no ground truth is given.
func (m *MetricsEvaluator) answerRelevancy(ctx context.Context, in MetricInput) (float64, error) {
	if m.embedder == nil {
		return 0, errors.New("embedder is not configured")
	}
	if strings.TrimSpace(in.Answer) == "" {
		return 0, nil
	}
	reference := in.GroundTruth
	if strings.TrimSpace(reference) == "" {
		reference = in.Question
	}
	vectors, err := m.embedder.Embed(ctx, []string{in.Answer, reference})
	if err != nil {
		return 0, fmt.Errorf("embed answer: %w", err)
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("embedder returned %d vectors for 2 texts", len(vectors))
	}
	return normalizedCosine(vectors[0], vectors[1])
}

// KeywordCoverage is the fraction of expected keywords found in the answer,
// matched case-insensitively as substrings.
func KeywordCoverage(answer string, keywords []string) (float64, error) {
	expected := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			expected = append(expected, kw)
		}
	}
	if len(expected) == 0 {
		return 0, errors.New("no expected keywords")
	}
	lower := strings.ToLower(answer)
	found := 0
	for _, kw := range expected {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	return float64(found) / float64(len(expected)), nil
}

// AnswerSimilarity is 1 - word-level edit distance between answer and
// ground truth, divided by the longer word count. Comparison is
// case-insensitive.
func AnswerSimilarity(answer, groundTruth string) (float64, error) {
	referenceWords := strings.Fields(strings.ToLower(groundTruth))
	if len(referenceWords) == 0 {
		return 0, errors.New("no ground truth")
	}
	answerWords := strings.Fields(strings.ToLower(answer))

	// Each distinct word becomes one private-use rune so the rune-based
	// distance counts word edits.
	vocab := make(map[string]rune)
	encode := func(words []string) []rune {
		out := make([]rune, len(words))
		for i, w := range words {
			r, ok := vocab[w]
			if !ok {
				r = rune(0xF0000 + len(vocab))
				vocab[w] = r
			}
			out[i] = r
		}
		return out
	}
	reference := encode(referenceWords)
	candidate := encode(answerWords)

	opts := levenshtein.Options{
		InsCost: 1,
		DelCost: 1,
		SubCost: 1,
		Matches: levenshtein.IdenticalRunes,
	}
	distance := levenshtein.DistanceForStrings(reference, candidate, opts)
	longest := len(reference)
	if len(candidate) > longest {
		longest = len(candidate)
	}
	return 1 - float64(distance)/float64(longest), nil
}

// normalizedCosine maps cosine similarity from [-1, 1] to [0, 1].
func normalizedCosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions differ: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, errors.New("zero-length vector")
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return (cos + 1) / 2, nil
}
