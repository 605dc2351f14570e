package qdrant

import (
	"strings"
	"testing"
)

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	v1 := encodeSparseQuery("Risk level for DOC_0001")
	v2 := encodeSparseQuery("Risk level for DOC_0001")
	if len(v1.Indices) != len(v2.Indices) || len(v1.Values) != len(v2.Values) {
		t.Fatalf("vector sizes mismatch: v1=%d/%d v2=%d/%d", len(v1.Indices), len(v1.Values), len(v2.Indices), len(v2.Values))
	}
	for i := range v1.Indices {
		if v1.Indices[i] != v2.Indices[i] {
			t.Fatalf("indices mismatch at %d: %d vs %d", i, v1.Indices[i], v2.Indices[i])
		}
		if v1.Values[i] != v2.Values[i] {
			t.Fatalf("values mismatch at %d: %f vs %f", i, v1.Values[i], v2.Values[i])
		}
	}
}

func TestEncodeSparseQuerySortsIndices(t *testing.T) {
	v := encodeSparseQuery("zulu alpha beta gamma")
	if len(v.Indices) == 0 {
		t.Fatalf("expected non-empty sparse vector")
	}
	for i := 1; i < len(v.Indices); i++ {
		if v.Indices[i-1] > v.Indices[i] {
			t.Fatalf("indices not sorted at %d: %d > %d", i, v.Indices[i-1], v.Indices[i])
		}
	}
}

func TestEncodeSparseQueryEmptyNoiseInput(t *testing.T) {
	v := encodeSparseQuery("___---!!!")
	if len(v.Indices) != 0 || len(v.Values) != 0 {
		t.Fatalf("expected empty sparse vector, got %+v", v)
	}
}

func TestTokenizeAlphaNumUnicodeAndDigitsStability(t *testing.T) {
	tokens := tokenizeAlphaNum("Привет DOC_0001 версия-2")
	if len(tokens) == 0 {
		t.Fatalf("expected tokens, got empty")
	}
	foundDoc := false
	foundNum := false
	for _, tok := range tokens {
		if tok == "doc" {
			foundDoc = true
		}
		if tok == "0001" {
			foundNum = true
		}
	}
	if !foundDoc || !foundNum {
		t.Fatalf("expected doc and 0001 tokens, got %v", tokens)
	}
	if tokens[0] != "привет" {
		t.Fatalf("expected unicode letters to be kept, got %v", tokens)
	}
}

func TestEncodeSparseDocumentBoostsSource(t *testing.T) {
	plain := encodeSparseDocument("insulin resistance", "")
	boosted := encodeSparseDocument("insulin resistance", "insulin")
	idx := hashToken("insulin")
	if weightOf(boosted, idx) <= weightOf(plain, idx) {
		t.Fatalf("expected source term to be boosted: %v <= %v", weightOf(boosted, idx), weightOf(plain, idx))
	}
}

func TestToSparseKeepsHeaviestTerms(t *testing.T) {
	weights := make(map[uint32]float64, maxSparseTerms+10)
	for i := uint32(1); i <= maxSparseTerms+10; i++ {
		weights[i] = 1
	}
	weights[maxSparseTerms+10] = 5
	v := toSparse(weights)
	if len(v.Indices) != maxSparseTerms {
		t.Fatalf("expected %d terms, got %d", maxSparseTerms, len(v.Indices))
	}
	if v.Indices[len(v.Indices)-1] != maxSparseTerms+10 {
		t.Fatalf("expected heaviest term to survive truncation")
	}
}

func TestEncodeSparseQueryDropsStopwords(t *testing.T) {
	v := encodeSparseQuery("What are the symptoms of hypertension?")
	if len(v.Indices) != 2 {
		t.Fatalf("expected only content terms, got %d indices", len(v.Indices))
	}
	for _, w := range v.Values {
		if w != 1 {
			t.Fatalf("expected unit query weights, got %v", v.Values)
		}
	}
	if got := encodeSparseQuery("what is the"); len(got.Indices) != 0 {
		t.Fatalf("expected stopword-only query to be empty, got %+v", got)
	}
}

func TestEncodeSparseDocumentNormalizesLength(t *testing.T) {
	short := encodeSparseDocument("insulin therapy", "")
	long := encodeSparseDocument("insulin therapy "+strings.Repeat("filler ", 500), "")
	idx := hashToken("insulin")
	if weightOf(long, idx) >= weightOf(short, idx) {
		t.Fatalf("expected a term in a long document to weigh less: %v >= %v", weightOf(long, idx), weightOf(short, idx))
	}
	if w := weightOf(short, idx); w <= 0 || w >= bm25K1+1 {
		t.Fatalf("expected saturated weight in (0, k1+1), got %v", w)
	}
}

func weightOf(v sparseVector, idx uint32) float32 {
	for i, id := range v.Indices {
		if id == idx {
			return v.Values[i]
		}
	}
	return 0
}
