package usecase

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func ranked(id, content string, rank int, score float64) domain.RankedResult {
	return domain.RankedResult{
		DocumentID:  id,
		Rank:        rank,
		RerankScore: score,
		Document:    domain.Document{ID: id, Content: content},
	}
}

func TestPromptAssemblerIncludesAllContextsWithinBudget(t *testing.T) {
	a := NewPromptAssembler(PlainPromptConfig(6000))
	got := a.Assemble("What is HTN?", []domain.RankedResult{
		ranked("d1", "first context", 1, 0.9),
		ranked("d2", "second context", 2, 0.8),
	})

	if got.Truncated {
		t.Fatalf("did not expect truncation")
	}
	if len(got.DocumentIDs) != 2 || got.DocumentIDs[0] != "d1" {
		t.Fatalf("unexpected included ids: %v", got.DocumentIDs)
	}
	if !strings.Contains(got.Text, "What is HTN?") || !strings.Contains(got.Text, "second context") {
		t.Fatalf("prompt is missing question or context: %q", got.Text)
	}
}

func TestPromptAssemblerDropsLowestRankedFirst(t *testing.T) {
	cfg := PlainPromptConfig(0)
	cfg.ContextChars = 0
	full := NewPromptAssembler(cfg).Assemble("q", []domain.RankedResult{
		ranked("d1", strings.Repeat("a", 100), 1, 0),
		ranked("d2", strings.Repeat("b", 100), 2, 0),
	})
	cfg.MaxLength = utf8.RuneCountInString(full.Text) - 50

	got := NewPromptAssembler(cfg).Assemble("q", []domain.RankedResult{
		ranked("d1", strings.Repeat("a", 100), 1, 0),
		ranked("d2", strings.Repeat("b", 100), 2, 0),
	})
	if !got.Truncated {
		t.Fatalf("expected truncation")
	}
	if len(got.DocumentIDs) != 1 || got.DocumentIDs[0] != "d1" {
		t.Fatalf("expected only top context kept, got %v", got.DocumentIDs)
	}
	if utf8.RuneCountInString(got.Text) > cfg.MaxLength {
		t.Fatalf("prompt exceeds budget: %d > %d", utf8.RuneCountInString(got.Text), cfg.MaxLength)
	}
}

func TestPromptAssemblerTruncatesTopContextInsteadOfDropping(t *testing.T) {
	cfg := PlainPromptConfig(150)
	cfg.ContextChars = 0
	got := NewPromptAssembler(cfg).Assemble("What are the symptoms?", []domain.RankedResult{
		ranked("d1", strings.Repeat("z", 1000), 1, 0),
	})

	if len(got.DocumentIDs) != 1 || got.DocumentIDs[0] != "d1" {
		t.Fatalf("top context must never be dropped, got %v", got.DocumentIDs)
	}
	if !strings.Contains(got.Text, "What are the symptoms?") {
		t.Fatalf("question must never be dropped")
	}
	if utf8.RuneCountInString(got.Text) != 150 {
		t.Fatalf("expected prompt to fill the budget exactly, got %d", utf8.RuneCountInString(got.Text))
	}
}

func TestPromptAssemblerExpertShowsRelevance(t *testing.T) {
	got := NewPromptAssembler(ExpertPromptConfig(6000)).Assemble("q", []domain.RankedResult{
		ranked("d1", "ctx", 1, 0.876),
	})
	if !strings.Contains(got.Text, "[Relevance: 0.88]") {
		t.Fatalf("expected relevance annotation, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "medical expert") {
		t.Fatalf("expected expert role in prompt")
	}
}

func TestPromptAssemblerCapsContextExcerpt(t *testing.T) {
	got := NewPromptAssembler(PlainPromptConfig(6000)).Assemble("q", []domain.RankedResult{
		ranked("d1", strings.Repeat("y", 400), 1, 0),
	})
	if strings.Contains(got.Text, strings.Repeat("y", 301)) {
		t.Fatalf("expected plain context to be capped at 300 characters")
	}
}

func TestPromptAssemblerWithoutContexts(t *testing.T) {
	got := NewPromptAssembler(PlainPromptConfig(6000)).Assemble("q", nil)
	if len(got.DocumentIDs) != 0 || !strings.Contains(got.Text, "Question: q") {
		t.Fatalf("unexpected prompt: %+v", got)
	}
}
