package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/ports"
)

type ExpansionStrategy string

const (
	ExpansionSynonym ExpansionStrategy = "synonym"
	ExpansionLLM     ExpansionStrategy = "llm"
	ExpansionBoth    ExpansionStrategy = "both"
)

const defaultExpansionVariants = 3

// Expansion is the ordered variant list for one query. Variants[0] is
// always the original query text.
type Expansion struct {
	Variants []string
	Degraded bool
	Err      error
}

type QueryExpander struct {
	rewriter ports.QueryRewriter
	synonyms SynonymTable
	strategy ExpansionStrategy
	variants int
	observer Observer
	logger   *slog.Logger
}

type QueryExpanderOption func(*QueryExpander)

func WithSynonymTable(table SynonymTable) QueryExpanderOption {
	return func(e *QueryExpander) { e.synonyms = table }
}

func WithExpansionObserver(observer Observer) QueryExpanderOption {
	return func(e *QueryExpander) {
		if observer != nil {
			e.observer = observer
		}
	}
}

func WithExpansionLogger(logger *slog.Logger) QueryExpanderOption {
	return func(e *QueryExpander) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewQueryExpander(rewriter ports.QueryRewriter, strategy ExpansionStrategy, variants int, opts ...QueryExpanderOption) *QueryExpander {
	if variants <= 0 {
		variants = defaultExpansionVariants
	}
	switch strategy {
	case ExpansionSynonym, ExpansionLLM, ExpansionBoth:
	default:
		strategy = ExpansionBoth
	}
	e := &QueryExpander{
		rewriter: rewriter,
		synonyms: MedicalSynonyms(),
		strategy: strategy,
		variants: variants,
		observer: noopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand never fails the pipeline. When the external rewrite call fails the
// result holds only the original query and Degraded is set.
func (e *QueryExpander) Expand(ctx context.Context, query domain.Query) Expansion {
	original := strings.TrimSpace(query.Text)

	var generated []string
	if e.strategy == ExpansionLLM || e.strategy == ExpansionBoth {
		alternatives, err := e.rewrite(ctx, original)
		if err != nil {
			e.observer.ExpansionDegraded()
			e.logger.Warn("query_expansion_degraded",
				"question_id", query.ID,
				"strategy", string(e.strategy),
				"error", err,
			)
			return Expansion{
				Variants: []string{original},
				Degraded: true,
				Err:      domain.WrapError(domain.ErrExpansion, "expand query", err),
			}
		}
		generated = append(generated, alternatives...)
	}
	if e.strategy == ExpansionSynonym || e.strategy == ExpansionBoth {
		generated = append(generated, e.synonyms.Variants(original)...)
	}

	return Expansion{Variants: dedupeVariants(original, generated, e.variants)}
}

func (e *QueryExpander) rewrite(ctx context.Context, original string) ([]string, error) {
	if e.rewriter == nil {
		return nil, errors.New("query rewriter is not configured")
	}
	return e.rewriter.ExpandQuery(ctx, original, e.variants)
}

// dedupeVariants keeps original first and at most limit alternatives,
// comparing case- and whitespace-normalized text.
func dedupeVariants(original string, alternatives []string, limit int) []string {
	out := make([]string, 0, limit+1)
	seen := make(map[string]struct{}, limit+1)
	out = append(out, original)
	seen[normalizeVariant(original)] = struct{}{}

	for _, alt := range alternatives {
		if len(out) > limit {
			break
		}
		alt = strings.TrimSpace(alt)
		key := normalizeVariant(alt)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, alt)
	}
	return out
}

func normalizeVariant(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
