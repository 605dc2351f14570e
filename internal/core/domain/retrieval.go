package domain

// Query is one evaluated question.
type Query struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Document is owned by the external stores; the engine never mutates it.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SearchHit is one raw result row from a dense or lexical source.
type SearchHit struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// RetrievalCandidate is a fused candidate. A fused set holds at most one
// candidate per document id.
type RetrievalCandidate struct {
	DocumentID   string   `json:"document_id"`
	DenseScore   float64  `json:"dense_score"`
	LexicalScore float64  `json:"lexical_score"`
	FusedScore   float64  `json:"fused_score"`
	Document     Document `json:"-"`
}

// RankedResult is a reranked candidate. Rank is 1-based.
type RankedResult struct {
	DocumentID  string   `json:"document_id"`
	RerankScore float64  `json:"rerank_score"`
	Rank        int      `json:"rank"`
	FusedRank   int      `json:"fused_rank"`
	Document    Document `json:"-"`
}

// AssembledPrompt is the generation input plus the ids of the contexts that
// made it into the prompt, in rank order.
type AssembledPrompt struct {
	Text        string   `json:"text"`
	DocumentIDs []string `json:"document_ids"`
	Truncated   bool     `json:"truncated"`
}
