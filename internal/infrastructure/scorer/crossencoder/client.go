// Package crossencoder calls a cross-encoder reranking service that speaks
// the text-embeddings-inference /rerank protocol.
package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
)

// RelevanceThreshold is the score at which a candidate counts as relevant.
// Scores are requested sigmoid-normalized, so 0.5 is even odds.
const RelevanceThreshold = 0.5

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, httpClient *http.Client, executor *resilience.Executor) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		executor:   executor,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one score per candidate in input order.
func (c *Client) Score(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if len(candidates) == 0 {
		return []float64{}, nil
	}

	var results []rerankResult
	call := func(callCtx context.Context) error {
		out, err := c.post(callCtx, rerankRequest{Query: query, Texts: candidates, RawScores: false, Truncate: true})
		if err != nil {
			return err
		}
		results = out
		return nil
	}

	var err error
	if c.executor == nil {
		err = call(ctx)
	} else {
		err = c.executor.Execute(ctx, "crossencoder.rerank", call, resilience.ClassifyHTTP)
	}
	if err != nil {
		if resilience.ClassifyHTTP(err).Retryable || resilience.IsCircuitOpen(err) {
			return nil, domain.WrapError(domain.ErrTemporary, "crossencoder rerank", err)
		}
		return nil, err
	}

	scores := make([]float64, len(candidates))
	seen := make([]bool, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("crossencoder returned index %d for %d candidates", r.Index, len(candidates))
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("crossencoder returned no score for candidate %d", i)
		}
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, payload rerankRequest) ([]rerankResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crossencoder rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewStatusError("crossencoder", "rerank", resp)
	}
	var out []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return out, nil
}
