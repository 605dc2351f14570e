package usecase

import (
	"sort"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

type FusionStrategy string

const (
	FusionWeighted FusionStrategy = "weighted"
	FusionRRF      FusionStrategy = "rrf"
)

const defaultRRFK = 60

// variantHits holds the per-source result lists for one query variant.
// A nil slice means the source was not queried or failed.
type variantHits struct {
	dense   []domain.SearchHit
	lexical []domain.SearchHit
}

type fusedScore struct {
	dense   float64
	lexical float64
	fused   float64
}

// fuseVariantWeighted min-max normalizes each source list independently and
// combines them as alpha*dense + (1-alpha)*lexical. A source that is absent
// for a document contributes 0.
func fuseVariantWeighted(hits variantHits, alpha float64) map[string]fusedScore {
	denseNorm := normalizeHits(hits.dense)
	lexicalNorm := normalizeHits(hits.lexical)

	out := make(map[string]fusedScore, len(denseNorm)+len(lexicalNorm))
	for id, score := range denseNorm {
		entry := out[id]
		entry.dense = score
		out[id] = entry
	}
	for id, score := range lexicalNorm {
		entry := out[id]
		entry.lexical = score
		out[id] = entry
	}
	for id, entry := range out {
		entry.fused = alpha*entry.dense + (1-alpha)*entry.lexical
		out[id] = entry
	}
	return out
}

// fuseVariantRRF is weighted reciprocal rank fusion over the two lists.
func fuseVariantRRF(hits variantHits, alpha float64, rrfK int) map[string]fusedScore {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	out := make(map[string]fusedScore, len(hits.dense)+len(hits.lexical))
	for rank, hit := range rankHits(hits.dense) {
		entry := out[hit.Document.ID]
		entry.dense = 1.0 / float64(rrfK+rank+1)
		out[hit.Document.ID] = entry
	}
	for rank, hit := range rankHits(hits.lexical) {
		entry := out[hit.Document.ID]
		entry.lexical = 1.0 / float64(rrfK+rank+1)
		out[hit.Document.ID] = entry
	}
	for id, entry := range out {
		entry.fused = alpha*entry.dense + (1-alpha)*entry.lexical
		out[id] = entry
	}
	return out
}

// normalizeHits maps document id to its min-max normalized score. A single
// result, or a list whose scores are all equal, normalizes to 1.0.
func normalizeHits(hits []domain.SearchHit) map[string]float64 {
	best := bestScorePerDocument(hits)
	if len(best) == 0 {
		return nil
	}

	first := true
	var minScore, maxScore float64
	for _, score := range best {
		if first {
			minScore, maxScore = score, score
			first = false
			continue
		}
		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}
	}

	rangeScore := maxScore - minScore
	out := make(map[string]float64, len(best))
	for id, score := range best {
		if rangeScore <= 0 {
			out[id] = 1
			continue
		}
		out[id] = (score - minScore) / rangeScore
	}
	return out
}

func bestScorePerDocument(hits []domain.SearchHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	for _, hit := range hits {
		id := hit.Document.ID
		if id == "" {
			continue
		}
		if current, ok := out[id]; !ok || hit.Score > current {
			out[id] = hit.Score
		}
	}
	return out
}

// rankHits dedupes hits by document and orders them by score desc, id asc.
func rankHits(hits []domain.SearchHit) []domain.SearchHit {
	seen := make(map[string]int, len(hits))
	out := make([]domain.SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Document.ID == "" {
			continue
		}
		if idx, ok := seen[hit.Document.ID]; ok {
			if hit.Score > out[idx].Score {
				out[idx] = hit
			}
			continue
		}
		seen[hit.Document.ID] = len(out)
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Document.ID < out[j].Document.ID
	})
	return out
}

// mergeVariants keeps the maximum fused score per document across variants
// and returns candidates ordered by fused score desc, document id asc.
func mergeVariants(perVariant []map[string]fusedScore, docs map[string]domain.Document) []domain.RetrievalCandidate {
	best := make(map[string]fusedScore)
	for _, scores := range perVariant {
		for id, score := range scores {
			current, ok := best[id]
			if !ok || score.fused > current.fused {
				best[id] = score
			}
		}
	}

	out := make([]domain.RetrievalCandidate, 0, len(best))
	for id, score := range best {
		out = append(out, domain.RetrievalCandidate{
			DocumentID:   id,
			DenseScore:   score.dense,
			LexicalScore: score.lexical,
			FusedScore:   score.fused,
			Document:     docs[id],
		})
	}
	sortCandidates(out)
	return out
}

func sortCandidates(candidates []domain.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].FusedScore != candidates[j].FusedScore {
			return candidates[i].FusedScore > candidates[j].FusedScore
		}
		return candidates[i].DocumentID < candidates[j].DocumentID
	})
}

func trimCandidates(candidates []domain.RetrievalCandidate, limit int) []domain.RetrievalCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// collectDocuments remembers the richest payload seen for each document id.
func collectDocuments(dst map[string]domain.Document, hits []domain.SearchHit) {
	for _, hit := range hits {
		id := hit.Document.ID
		if id == "" {
			continue
		}
		dst[id] = preferRicherDocument(dst[id], hit.Document)
	}
}

func preferRicherDocument(current, candidate domain.Document) domain.Document {
	if current.ID == "" {
		return candidate
	}
	if current.Content == "" && candidate.Content != "" {
		current.Content = candidate.Content
	}
	if current.Source == "" && candidate.Source != "" {
		current.Source = candidate.Source
	}
	if len(current.Metadata) == 0 && len(candidate.Metadata) > 0 {
		current.Metadata = candidate.Metadata
	}
	return current
}
