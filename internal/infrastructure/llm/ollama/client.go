package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rag-eval/internal/infrastructure/llm/llmtext"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
)

// GenerationOptions are passed through as the Ollama "options" object.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

var (
	answerOptions    = GenerationOptions{Temperature: 0.1, NumPredict: 200}
	expansionOptions = GenerationOptions{Temperature: 0.7, NumPredict: 100}
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithExecutor routes every call through the given retry, timeout and
// breaker policy.
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := embedRequest{Model: e.client.embedModel, Input: texts}
	var response embedResponse
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.client.generate(ctx, prompt, answerOptions, "generate")
}

// QueryRewriter asks the generative model for alternative phrasings.
type QueryRewriter struct {
	client *Client
}

func NewQueryRewriter(client *Client) *QueryRewriter {
	return &QueryRewriter{client: client}
}

func (r *QueryRewriter) ExpandQuery(ctx context.Context, query string, n int) ([]string, error) {
	raw, err := r.client.generate(ctx, llmtext.ExpansionPrompt(query, n), expansionOptions, "expand")
	if err != nil {
		return nil, err
	}
	return llmtext.ParseAlternatives(raw, n), nil
}

func (c *Client) generate(ctx context.Context, prompt string, options GenerationOptions, operation string) (string, error) {
	request := generateRequest{Model: c.genModel, Prompt: prompt, Options: options}
	var response generateResponse
	if err := c.call(ctx, "/api/generate", request, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
