package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

type RetrievalMode string

const (
	RetrievalCore   RetrievalMode = "core"
	RetrievalNative RetrievalMode = "native"
)

const (
	sourceDense   = "dense"
	sourceLexical = "lexical"
	sourceNative  = "native"
)

type HybridRetrieverConfig struct {
	Alpha       float64
	TopKDense   int
	TopKLexical int
	UnionCap    int
	Mode        RetrievalMode
	Fusion      FusionStrategy
	RRFK        int
	MaxParallel int
}

func DefaultHybridRetrieverConfig() HybridRetrieverConfig {
	return HybridRetrieverConfig{
		Alpha:       0.5,
		TopKDense:   15,
		TopKLexical: 15,
		UnionCap:    20,
		Mode:        RetrievalCore,
		Fusion:      FusionWeighted,
		RRFK:        defaultRRFK,
		MaxParallel: 8,
	}
}

func (c HybridRetrieverConfig) normalize() HybridRetrieverConfig {
	def := DefaultHybridRetrieverConfig()
	if c.Alpha < 0 || c.Alpha > 1 {
		c.Alpha = def.Alpha
	}
	if c.TopKDense <= 0 {
		c.TopKDense = def.TopKDense
	}
	if c.TopKLexical <= 0 {
		c.TopKLexical = def.TopKLexical
	}
	if c.UnionCap <= 0 {
		c.UnionCap = def.UnionCap
	}
	if c.Mode != RetrievalNative {
		c.Mode = RetrievalCore
	}
	if c.Fusion != FusionRRF {
		c.Fusion = FusionWeighted
	}
	if c.RRFK <= 0 {
		c.RRFK = def.RRFK
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = def.MaxParallel
	}
	return c
}

// SourceFailure records a single failed search call.
type SourceFailure struct {
	Variant int
	Source  string
	Err     error
}

type Retrieval struct {
	Candidates     []domain.RetrievalCandidate
	SourceFailures []SourceFailure
}

// HybridRetriever fans every query variant out to the dense and lexical
// sources concurrently and fuses the results once every call has finished.
type HybridRetriever struct {
	dense    ports.DenseSearcher
	lexical  ports.LexicalSearcher
	native   ports.HybridSearcher
	cfg      HybridRetrieverConfig
	observer Observer
	logger   *slog.Logger
}

func NewHybridRetriever(
	dense ports.DenseSearcher,
	lexical ports.LexicalSearcher,
	native ports.HybridSearcher,
	cfg HybridRetrieverConfig,
	observer Observer,
	logger *slog.Logger,
) *HybridRetriever {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridRetriever{
		dense:    dense,
		lexical:  lexical,
		native:   native,
		cfg:      cfg.normalize(),
		observer: observer,
		logger:   logger,
	}
}

func (r *HybridRetriever) Retrieve(ctx context.Context, variants []string) (Retrieval, error) {
	if len(variants) == 0 {
		return Retrieval{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("no query variants"))
	}
	if r.cfg.Mode == RetrievalNative && r.native != nil {
		return r.retrieveNative(ctx, variants)
	}
	return r.retrieveCore(ctx, variants)
}

func (r *HybridRetriever) retrieveCore(ctx context.Context, variants []string) (Retrieval, error) {
	// A source with zero weight cannot move the ranking, so it is not queried.
	useDense := r.cfg.Alpha > 0 && r.dense != nil
	useLexical := r.cfg.Alpha < 1 && r.lexical != nil
	if !useDense && !useLexical {
		return Retrieval{}, domain.WrapError(domain.ErrRetrieval, "retrieve", errors.New("no search source configured"))
	}

	hits := make([]variantHits, len(variants))
	denseErrs := make([]error, len(variants))
	lexicalErrs := make([]error, len(variants))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for i, variant := range variants {
		if useDense {
			g.Go(func() error {
				found, err := r.dense.DenseSearch(ctx, variant, r.cfg.TopKDense)
				if err != nil {
					denseErrs[i] = err
					return nil
				}
				hits[i].dense = found
				return nil
			})
		}
		if useLexical {
			g.Go(func() error {
				found, err := r.lexical.LexicalSearch(ctx, variant, r.cfg.TopKLexical)
				if err != nil {
					lexicalErrs[i] = err
					return nil
				}
				hits[i].lexical = found
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Retrieval{}, err
	}

	result := Retrieval{}
	docs := make(map[string]domain.Document)
	perVariant := make([]map[string]fusedScore, 0, len(variants))
	succeeded := 0
	for i := range variants {
		if denseErrs[i] != nil {
			result.SourceFailures = append(result.SourceFailures, r.sourceFailed(i, sourceDense, denseErrs[i]))
		} else if useDense {
			succeeded++
		}
		if lexicalErrs[i] != nil {
			result.SourceFailures = append(result.SourceFailures, r.sourceFailed(i, sourceLexical, lexicalErrs[i]))
		} else if useLexical {
			succeeded++
		}

		collectDocuments(docs, hits[i].dense)
		collectDocuments(docs, hits[i].lexical)
		if r.cfg.Fusion == FusionRRF {
			perVariant = append(perVariant, fuseVariantRRF(hits[i], r.cfg.Alpha, r.cfg.RRFK))
		} else {
			perVariant = append(perVariant, fuseVariantWeighted(hits[i], r.cfg.Alpha))
		}
	}

	if succeeded == 0 {
		return result, domain.WrapError(domain.ErrRetrieval, "retrieve", firstSourceError(result.SourceFailures))
	}

	result.Candidates = trimCandidates(mergeVariants(perVariant, docs), r.cfg.UnionCap)
	return result, nil
}

// retrieveNative uses the store's own hybrid query per variant and falls back
// to dense search for variants where it fails.
func (r *HybridRetriever) retrieveNative(ctx context.Context, variants []string) (Retrieval, error) {
	topK := r.cfg.TopKDense
	if r.cfg.TopKLexical > topK {
		topK = r.cfg.TopKLexical
	}

	hits := make([][]domain.SearchHit, len(variants))
	nativeErrs := make([]error, len(variants))
	fallbackErrs := make([]error, len(variants))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for i, variant := range variants {
		g.Go(func() error {
			found, err := r.native.HybridSearch(ctx, variant, topK, r.cfg.Alpha)
			if err == nil {
				hits[i] = found
				return nil
			}
			nativeErrs[i] = err
			if r.dense == nil {
				fallbackErrs[i] = err
				return nil
			}
			found, err = r.dense.DenseSearch(ctx, variant, r.cfg.TopKDense)
			if err != nil {
				fallbackErrs[i] = err
				return nil
			}
			hits[i] = found
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Retrieval{}, err
	}

	result := Retrieval{}
	docs := make(map[string]domain.Document)
	perVariant := make([]map[string]fusedScore, 0, len(variants))
	succeeded := 0
	for i := range variants {
		if nativeErrs[i] != nil {
			result.SourceFailures = append(result.SourceFailures, r.sourceFailed(i, sourceNative, nativeErrs[i]))
		}
		if fallbackErrs[i] != nil {
			if r.dense != nil {
				result.SourceFailures = append(result.SourceFailures, r.sourceFailed(i, sourceDense, fallbackErrs[i]))
			}
			continue
		}
		succeeded++
		collectDocuments(docs, hits[i])
		scores := make(map[string]fusedScore, len(hits[i]))
		for id, score := range normalizeHits(hits[i]) {
			scores[id] = fusedScore{fused: score}
		}
		perVariant = append(perVariant, scores)
	}

	if succeeded == 0 {
		return result, domain.WrapError(domain.ErrRetrieval, "retrieve", firstSourceError(result.SourceFailures))
	}

	result.Candidates = trimCandidates(mergeVariants(perVariant, docs), r.cfg.UnionCap)
	return result, nil
}

func (r *HybridRetriever) sourceFailed(variant int, source string, err error) SourceFailure {
	r.observer.RetrievalSourceFailed(source)
	r.logger.Warn("retrieval_source_failed",
		"variant", variant,
		"source", source,
		"error", err,
	)
	return SourceFailure{Variant: variant, Source: source, Err: err}
}

func firstSourceError(failures []SourceFailure) error {
	if len(failures) == 0 {
		return errors.New("all search sources failed")
	}
	f := failures[0]
	return fmt.Errorf("all search sources failed, first %s search for variant %d: %w", f.Source, f.Variant, f.Err)
}
