package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/rag-eval/internal/config"
	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
	"github.com/kirillkom/rag-eval/internal/core/usecase"
	"github.com/kirillkom/rag-eval/internal/infrastructure/dataset"
	"github.com/kirillkom/rag-eval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/rag-eval/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/rag-eval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rag-eval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
	"github.com/kirillkom/rag-eval/internal/infrastructure/scorer/crossencoder"
	"github.com/kirillkom/rag-eval/internal/infrastructure/storage/artifacts"
	"github.com/kirillkom/rag-eval/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/rag-eval/internal/infrastructure/storage/objectstore"
	"github.com/kirillkom/rag-eval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/rag-eval/internal/observability/metrics"
)

var _ usecase.Observer = (*metrics.EvalMetrics)(nil)
var _ usecase.RunObserver = (*metrics.EvalMetrics)(nil)
var _ resilience.Observer = (*metrics.EvalMetrics)(nil)

// App holds the process-wide components. Model clients, pools and the
// vector store are built once and shared by both pipelines.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.EvalMetrics

	Service  *usecase.EvaluationService
	Index    *qdrant.Store
	Queue    ports.RunQueue
	Datasets *dataset.Loader

	closers []func()
}

type models struct {
	embedder  ports.Embedder
	generator ports.AnswerGenerator
	rewriter  ports.QueryRewriter
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, service string) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewEvalMetrics(service),
	}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	executor := resilience.NewExecutor(resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithObserver(app.Metrics),
	)
	httpClient := &http.Client{}

	m, err := buildModels(cfg, httpClient, executor)
	if err != nil {
		return nil, err
	}

	index, err := qdrant.New(cfg.QdrantGRPCURL, cfg.QdrantCollection, m.embedder, executor)
	if err != nil {
		return nil, fmt.Errorf("init qdrant: %w", err)
	}
	app.Index = index
	app.closers = append(app.closers, func() { _ = index.Close() })

	var scorer ports.RelevanceScorer = usecase.LexicalOverlapScorer{}
	judgeThreshold := 0.5
	if cfg.Scorer == "crossencoder" {
		scorer = crossencoder.New(cfg.RerankerURL, httpClient, executor)
		judgeThreshold = crossencoder.RelevanceThreshold
	}

	scorerPool, err := ants.NewPool(cfg.ScorerWorkers)
	if err != nil {
		return nil, fmt.Errorf("create scorer pool: %w", err)
	}
	app.closers = append(app.closers, scorerPool.Release)

	batch, err := usecase.NewBatchEvaluator(usecase.BatchConfig{
		Workers:         cfg.BatchWorkers,
		QuestionTimeout: cfg.QuestionTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, batch.Close)

	var judge usecase.ContextJudge
	switch cfg.ContextJudge {
	case "similarity":
		judge = usecase.SimilarityJudge{Embedder: m.embedder, Threshold: cfg.ContextSimilarityThreshold}
	case "scorer":
		judge = usecase.ScorerJudge{Scorer: scorer, Threshold: judgeThreshold}
	default:
		judge = usecase.KeywordJudge{}
	}
	evaluator := usecase.NewMetricsEvaluator(cfg.Metrics, judge, m.embedder, logger)

	baseline := buildBaseline(cfg, index, m, evaluator, app.Metrics, logger)
	enhanced := buildEnhanced(cfg, index, m, scorer, scorerPool, evaluator, app.Metrics, logger)

	store, err := buildRunStore(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	app.Datasets = dataset.NewLoader(cfg.DatasetDir)

	app.Service = usecase.NewEvaluationService(
		[]usecase.QuestionEvaluator{baseline, enhanced},
		batch,
		usecase.NewComparisonEngine(cfg.ThresholdPct, cfg.MinMetricsAchieved),
		store,
		app.Datasets,
		logger,
		usecase.WithRunObserver(app.Metrics),
	)

	if cfg.QueueEnabled {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init run queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
	}

	ok = true
	return app, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = resilience.AttemptsForRetries(cfg.RetryCount)
	rc.AttemptTimeout = cfg.TimeoutPerCall
	rc.RateLimit = cfg.RateLimit
	rc.RateBurst = cfg.RateBurst
	rc.BreakerEnabled = cfg.BreakerEnabled
	return rc
}

func buildModels(cfg config.Config, httpClient *http.Client, executor *resilience.Executor) (models, error) {
	if cfg.LLMProvider == "openai" {
		client, err := openaicompat.New(openaicompat.Config{
			BaseURL:        cfg.OpenAIBaseURL,
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIModel,
			EmbeddingModel: cfg.OpenAIEmbedModel,
			HTTPClient:     httpClient,
		}, executor)
		if err != nil {
			return models{}, fmt.Errorf("init openai-compatible client: %w", err)
		}
		return models{embedder: client, generator: client, rewriter: client}, nil
	}

	client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel,
		ollama.WithHTTPClient(httpClient),
		ollama.WithExecutor(executor),
	)
	return models{
		embedder:  ollama.NewEmbedder(client),
		generator: ollama.NewGenerator(client),
		rewriter:  ollama.NewQueryRewriter(client),
	}, nil
}

// buildBaseline is dense-only search of RerankTopK documents for the
// original question, answered from a plain prompt.
func buildBaseline(
	cfg config.Config,
	index *qdrant.Store,
	m models,
	evaluator *usecase.MetricsEvaluator,
	observer usecase.Observer,
	logger *slog.Logger,
) *usecase.Pipeline {
	rc := usecase.DefaultHybridRetrieverConfig()
	rc.Alpha = 1
	rc.TopKDense = cfg.RerankTopK
	rc.UnionCap = cfg.RerankTopK

	return usecase.NewPipeline(domain.PipelineBaseline, usecase.PipelineDeps{
		Retriever:  usecase.NewHybridRetriever(index, nil, nil, rc, observer, logger),
		RerankTopK: cfg.RerankTopK,
		Assembler:  usecase.NewPromptAssembler(usecase.PlainPromptConfig(cfg.PromptMaxLength)),
		Generator:  m.generator,
		Metrics:    evaluator,
		Observer:   observer,
		Logger:     logger,
	})
}

func buildEnhanced(
	cfg config.Config,
	index *qdrant.Store,
	m models,
	scorer ports.RelevanceScorer,
	scorerPool *ants.Pool,
	evaluator *usecase.MetricsEvaluator,
	observer usecase.Observer,
	logger *slog.Logger,
) *usecase.Pipeline {
	expander := usecase.NewQueryExpander(m.rewriter, usecase.ExpansionStrategy(cfg.ExpansionStrategy), cfg.ExpansionVariants,
		usecase.WithExpansionObserver(observer),
		usecase.WithExpansionLogger(logger),
	)

	var native ports.HybridSearcher
	if cfg.RetrievalMode == string(usecase.RetrievalNative) {
		native = index
	}
	retriever := usecase.NewHybridRetriever(index, index, native, usecase.HybridRetrieverConfig{
		Alpha:       cfg.Alpha,
		TopKDense:   cfg.TopKDense,
		TopKLexical: cfg.TopKLexical,
		UnionCap:    cfg.UnionCap,
		Mode:        usecase.RetrievalMode(cfg.RetrievalMode),
		Fusion:      usecase.FusionStrategy(cfg.FusionStrategy),
		RRFK:        cfg.FusionRRFK,
		MaxParallel: cfg.RetrievalFanOut,
	}, observer, logger)

	reranker := usecase.NewReranker(scorer, scorerPool, usecase.RerankerConfig{
		TopK:      cfg.RerankTopK,
		BatchSize: cfg.RerankBatchSize,
	}, observer, logger)

	return usecase.NewPipeline(domain.PipelineEnhanced, usecase.PipelineDeps{
		Expander:   expander,
		Retriever:  retriever,
		Reranker:   reranker,
		RerankTopK: cfg.RerankTopK,
		Assembler:  usecase.NewPromptAssembler(usecase.ExpertPromptConfig(cfg.PromptMaxLength)),
		Generator:  m.generator,
		Metrics:    evaluator,
		Observer:   observer,
		Logger:     logger,
	})
}

func buildRunStore(ctx context.Context, cfg config.Config, app *App) (ports.RunStore, error) {
	switch cfg.RunStore {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		repo := postgres.NewRunRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "objectstore":
		blobs, err := objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
		return artifacts.New(blobs), nil
	default:
		blobs, err := localfs.New(cfg.ArtifactDir)
		if err != nil {
			return nil, fmt.Errorf("init artifact dir: %w", err)
		}
		return artifacts.New(blobs), nil
	}
}

// Close releases resources in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
