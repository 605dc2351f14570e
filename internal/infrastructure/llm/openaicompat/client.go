// Package openaicompat talks to OpenAI-compatible chat and embedding
// endpoints (vLLM, LM Studio, llama.cpp server, hosted OpenAI).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/infrastructure/llm/llmtext"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	HTTPClient     *http.Client
}

type Client struct {
	llm      llms.Model
	embedder embeddings.Embedder
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("openai-compatible base url is required")
	}
	token := cfg.APIKey
	if token == "" {
		// Local servers ignore the token but the client requires one.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai-compatible client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create openai-compatible embedder: %w", err)
	}
	return &Client{
		llm:      llm,
		embedder: embedder,
		executor: executor,
		logger:   slog.Default().With("component", "openai-compatible"),
	}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "generate", prompt, llms.WithTemperature(0.1), llms.WithMaxTokens(200))
}

func (c *Client) ExpandQuery(ctx context.Context, query string, n int) ([]string, error) {
	raw, err := c.complete(ctx, "expand", llmtext.ExpansionPrompt(query, n), llms.WithTemperature(0.7), llms.WithMaxTokens(100))
	if err != nil {
		return nil, err
	}
	return llmtext.ParseAlternatives(raw, n), nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var vectors [][]float32
	err := c.execute(ctx, "embed", func(callCtx context.Context) error {
		out, err := c.embedder.EmbedDocuments(callCtx, texts)
		if err != nil {
			return err
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openai-compatible embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) complete(ctx context.Context, operation, prompt string, opts ...llms.CallOption) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}
	var text string
	err := c.execute(ctx, operation, func(callCtx context.Context) error {
		resp, err := c.llm.GenerateContent(callCtx, content, opts...)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices returned from model")
		}
		text = strings.TrimSpace(resp.Choices[0].Content)
		return nil
	})
	if err != nil {
		c.logger.Error("completion_failed", "operation", operation, "error", err)
		return "", err
	}
	return text, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	var err error
	if c.executor == nil {
		err = fn(ctx)
	} else {
		err = c.executor.Execute(ctx, "openai."+operation, fn, classify)
	}
	if err == nil {
		return nil
	}
	if classify(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "openai "+operation, err)
	}
	return err
}

// classify treats rate limiting and server errors reported by the client as
// transient. The client surfaces statuses only in error text.
func classify(err error) resilience.ErrorClassification {
	class := resilience.ClassifyHTTP(err)
	if class.Retryable || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return class
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "rate limit", "connection refused", "eof"} {
		if strings.Contains(msg, marker) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return class
}
