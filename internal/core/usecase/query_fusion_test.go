package usecase

import (
	"testing"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func TestNormalizeHitsSingleResultIsOne(t *testing.T) {
	norm := normalizeHits([]domain.SearchHit{hit("doc-1", 0.42)})
	if norm["doc-1"] != 1 {
		t.Fatalf("expected single result to normalize to 1, got %v", norm["doc-1"])
	}
}

func TestNormalizeHitsMinMax(t *testing.T) {
	norm := normalizeHits([]domain.SearchHit{hit("a", 10), hit("b", 5), hit("c", 0)})
	if norm["a"] != 1 || norm["b"] != 0.5 || norm["c"] != 0 {
		t.Fatalf("unexpected normalization: %+v", norm)
	}
}

func TestFuseVariantWeightedAbsentSideContributesZero(t *testing.T) {
	scores := fuseVariantWeighted(variantHits{
		dense:   []domain.SearchHit{hit("a", 0.9), hit("b", 0.1)},
		lexical: []domain.SearchHit{hit("c", 7)},
	}, 0.5)

	if got := scores["a"].fused; got != 0.5 {
		t.Fatalf("expected dense-only top doc fused=0.5, got %v", got)
	}
	if got := scores["c"].fused; got != 0.5 {
		t.Fatalf("expected lexical-only doc fused=0.5, got %v", got)
	}
	if got := scores["b"].fused; got != 0 {
		t.Fatalf("expected dense minimum fused=0, got %v", got)
	}
}

func TestMergeVariantsKeepsMaxAndDeduplicates(t *testing.T) {
	v1 := map[string]fusedScore{"a": {fused: 0.2}, "b": {fused: 0.9}}
	v2 := map[string]fusedScore{"a": {fused: 0.7}, "c": {fused: 0.1}}

	merged := mergeVariants([]map[string]fusedScore{v1, v2}, map[string]domain.Document{})
	if len(merged) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(merged))
	}
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if merged[i].DocumentID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, merged[i].DocumentID)
		}
	}
	if merged[1].FusedScore != 0.7 {
		t.Fatalf("expected max fused score across variants, got %v", merged[1].FusedScore)
	}
}

func TestMergeVariantsTieBreakByDocumentID(t *testing.T) {
	merged := mergeVariants([]map[string]fusedScore{{"doc-b": {fused: 0.5}, "doc-a": {fused: 0.5}}}, nil)
	if merged[0].DocumentID != "doc-a" {
		t.Fatalf("expected tie-break by document id, got first=%s", merged[0].DocumentID)
	}
}

func TestFuseVariantRRFDeduplicatesByDocument(t *testing.T) {
	scores := fuseVariantRRF(variantHits{
		dense:   []domain.SearchHit{hit("doc-1", 0.9), hit("doc-2", 0.8)},
		lexical: []domain.SearchHit{hit("doc-2", 1.0), hit("doc-3", 0.7)},
	}, 0.5, 60)

	if len(scores) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(scores))
	}
	merged := mergeVariants([]map[string]fusedScore{scores}, nil)
	if merged[0].DocumentID != "doc-2" {
		t.Fatalf("expected doc-2 first after RRF fusion, got %s", merged[0].DocumentID)
	}
}

func TestRankHitsKeepsBestDuplicate(t *testing.T) {
	ranked := rankHits([]domain.SearchHit{hit("a", 0.1), hit("b", 0.5), hit("a", 0.9)})
	if len(ranked) != 2 || ranked[0].Document.ID != "a" || ranked[0].Score != 0.9 {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
}
