package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

// Retriever produces the fused candidate set for a list of query variants.
type Retriever interface {
	Retrieve(ctx context.Context, variants []string) (Retrieval, error)
}

// QuestionEvaluator runs one test case end to end. Exactly one of the
// returned record or failure is meaningful: failure is nil on success.
type QuestionEvaluator interface {
	Name() string
	Evaluate(ctx context.Context, tc domain.TestCase) (domain.EvaluationRecord, *domain.QuestionFailure)
}

type PipelineDeps struct {
	// Expander is optional; without it only the original query is searched.
	Expander  *QueryExpander
	Retriever Retriever
	// Reranker is optional; without it the top RerankTopK fused candidates
	// are used in fused order.
	Reranker   *Reranker
	RerankTopK int
	Assembler  *PromptAssembler
	Generator  ports.AnswerGenerator
	Metrics    *MetricsEvaluator
	Observer   Observer
	Logger     *slog.Logger
}

type Pipeline struct {
	name string
	deps PipelineDeps
}

func NewPipeline(name string, deps PipelineDeps) *Pipeline {
	if deps.RerankTopK <= 0 {
		deps.RerankTopK = defaultRerankTopK
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Assembler == nil {
		deps.Assembler = NewPromptAssembler(PlainPromptConfig(defaultPromptMaxLength))
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetricsEvaluator(nil, nil, nil, deps.Logger)
	}
	return &Pipeline{name: name, deps: deps}
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Evaluate(ctx context.Context, tc domain.TestCase) (domain.EvaluationRecord, *domain.QuestionFailure) {
	started := time.Now()
	logger := p.deps.Logger.With("pipeline", p.name, "question_id", tc.ID)
	record := domain.EvaluationRecord{
		QuestionID:  tc.ID,
		Question:    tc.Question,
		GroundTruth: tc.GroundTruth,
	}

	variants := []string{tc.Question}
	if p.deps.Expander != nil {
		stageStarted := time.Now()
		expansion := p.deps.Expander.Expand(ctx, tc.Query())
		p.deps.Observer.ObserveStage(p.name, string(domain.StageExpansion), time.Since(stageStarted), expansion.Err)
		if expansion.Degraded {
			record.Degradations = append(record.Degradations, expansion.Err.Error())
		}
		variants = expansion.Variants
	}
	record.Variants = variants
	if err := ctx.Err(); err != nil {
		return record, p.fail(ctx, logger, tc, domain.StageExpansion, err, started)
	}

	stageStarted := time.Now()
	retrieval, err := p.deps.Retriever.Retrieve(ctx, variants)
	p.deps.Observer.ObserveStage(p.name, string(domain.StageRetrieval), time.Since(stageStarted), err)
	if err != nil {
		return record, p.fail(ctx, logger, tc, domain.StageRetrieval, err, started)
	}
	for _, f := range retrieval.SourceFailures {
		record.Degradations = append(record.Degradations,
			fmt.Sprintf("%s search failed for variant %d: %v", f.Source, f.Variant, f.Err))
	}

	var ranked []domain.RankedResult
	if p.deps.Reranker != nil {
		stageStarted = time.Now()
		ranked, err = p.deps.Reranker.Rerank(ctx, tc.Question, retrieval.Candidates)
		p.deps.Observer.ObserveStage(p.name, string(domain.StageRerank), time.Since(stageStarted), err)
		if err != nil {
			return record, p.fail(ctx, logger, tc, domain.StageRerank, err, started)
		}
	} else {
		ranked = rankByFusion(retrieval.Candidates, p.deps.RerankTopK)
	}

	// metrics judge every ranked context, including any the prompt budget drops
	contexts := make([]string, 0, len(ranked))
	record.ContextIDs = make([]string, 0, len(ranked))
	for _, r := range ranked {
		record.ContextIDs = append(record.ContextIDs, r.DocumentID)
		contexts = append(contexts, r.Document.Content)
	}

	prompt := p.deps.Assembler.Assemble(tc.Question, ranked)
	if prompt.Truncated {
		logger.Debug("prompt_truncated", "included", len(prompt.DocumentIDs), "ranked", len(ranked))
	}

	stageStarted = time.Now()
	answer, err := p.generate(ctx, prompt.Text)
	p.deps.Observer.ObserveStage(p.name, string(domain.StageGeneration), time.Since(stageStarted), err)
	if err != nil {
		return record, p.fail(ctx, logger, tc, domain.StageGeneration, err, started)
	}
	record.Answer = answer

	stageStarted = time.Now()
	scores, metricFailures := p.deps.Metrics.Evaluate(ctx, MetricInput{
		Question:    tc.Question,
		Contexts:    contexts,
		Answer:      answer,
		GroundTruth: tc.GroundTruth,
		Keywords:    tc.Keywords,
	})
	p.deps.Observer.ObserveStage(p.name, string(domain.StageMetrics), time.Since(stageStarted), nil)
	if err := ctx.Err(); err != nil {
		return record, p.fail(ctx, logger, tc, domain.StageMetrics, err, started)
	}
	record.Scores = scores
	if len(metricFailures) > 0 {
		record.MetricFailures = metricFailures
	}
	record.Duration = time.Since(started)

	p.deps.Observer.QuestionFinished(p.name, false, record.Duration)
	logger.Info("question_evaluated",
		"contexts", len(record.ContextIDs),
		"variants", len(variants),
		"metrics", len(scores),
		"duration_ms", record.Duration.Milliseconds(),
	)
	return record, nil
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	if p.deps.Generator == nil {
		return "", domain.WrapError(domain.ErrGeneration, "generate", fmt.Errorf("generator is not configured"))
	}
	answer, err := p.deps.Generator.Generate(ctx, prompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrGeneration, "generate", err)
	}
	return answer, nil
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, tc domain.TestCase, stage domain.FailureStage, err error, started time.Time) *domain.QuestionFailure {
	if ctx.Err() != nil {
		stage = domain.StageCancelled
	}
	p.deps.Observer.QuestionFinished(p.name, true, time.Since(started))
	logger.Error("question_failed", "stage", string(stage), "error", err)
	return &domain.QuestionFailure{
		QuestionID: tc.ID,
		Stage:      stage,
		Error:      err.Error(),
	}
}

// rankByFusion keeps the fused order for pipelines without a reranker.
func rankByFusion(candidates []domain.RetrievalCandidate, topK int) []domain.RankedResult {
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]domain.RankedResult, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, domain.RankedResult{
			DocumentID:  c.DocumentID,
			RerankScore: c.FusedScore,
			Rank:        i + 1,
			FusedRank:   i + 1,
			Document:    c.Document,
		})
	}
	return out
}
