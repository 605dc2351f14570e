package qdrant

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// sparseVector is a hashed BM25 term vector for Qdrant's sparse index.
// Qdrant multiplies query weights by IDF because the sparse field is created
// with the idf modifier, so documents carry only the saturated tf part.
type sparseVector struct {
	Indices []uint32
	Values  []float32
}

const (
	bm25K1         = 1.2
	bm25B          = 0.75
	bm25AvgDocLen  = 256.0
	sourceBoost    = 1.5
	maxSparseTerms = 256
)

// question words dominate every query and match every abstract
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"can": {}, "do": {}, "does": {}, "for": {}, "from": {}, "how": {}, "in": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "what": {},
	"when": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

// encodeSparseDocument weights content terms with BM25 tf saturation and
// length normalization. Source tokens add boosted frequency but do not count
// toward document length.
func encodeSparseDocument(text, source string) sparseVector {
	content := contentTerms(text)
	tf := make(map[uint32]float64, len(content))
	for _, term := range content {
		tf[hashToken(term)]++
	}
	for _, term := range contentTerms(source) {
		tf[hashToken(term)] += sourceBoost
	}
	if len(tf) == 0 {
		return sparseVector{}
	}

	norm := 1 - bm25B + bm25B*float64(len(content))/bm25AvgDocLen
	weights := make(map[uint32]float64, len(tf))
	for idx, f := range tf {
		weights[idx] = f * (bm25K1 + 1) / (f + bm25K1*norm)
	}
	return toSparse(weights)
}

// encodeSparseQuery marks each distinct query term with weight 1.
func encodeSparseQuery(query string) sparseVector {
	weights := make(map[uint32]float64)
	for _, term := range contentTerms(query) {
		weights[hashToken(term)] = 1
	}
	return toSparse(weights)
}

// toSparse keeps the heaviest maxSparseTerms entries and returns them in
// index order, as Qdrant requires.
func toSparse(weights map[uint32]float64) sparseVector {
	if len(weights) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(weights))
	for idx := range weights {
		indices = append(indices, idx)
	}
	if len(indices) > maxSparseTerms {
		sort.Slice(indices, func(i, j int) bool {
			wi, wj := weights[indices[i]], weights[indices[j]]
			if wi != wj {
				return wi > wj
			}
			return indices[i] < indices[j]
		})
		indices = indices[:maxSparseTerms]
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	out := sparseVector{
		Indices: indices,
		Values:  make([]float32, len(indices)),
	}
	for i, idx := range indices {
		out.Values[i] = float32(weights[idx])
	}
	return out
}

func contentTerms(s string) []string {
	tokens := tokenizeAlphaNum(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// hashToken maps a term to a non-zero 32-bit index.
func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

func tokenizeAlphaNum(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
