package ollama

import (
	"context"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
)

func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, c.postJSON(ctx, path, payload, out, operation))
	}
	err := c.executor.Execute(ctx, "ollama."+operation, func(callCtx context.Context) error {
		return c.postJSON(callCtx, path, payload, out, operation)
	}, resilience.ClassifyHTTP)
	return wrapTemporaryIfNeeded(operation, err)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}

	class := resilience.ClassifyHTTP(err)
	if class.Retryable || resilience.IsCircuitOpen(err) || domain.IsKind(err, resilience.ErrAttemptTimeout) {
		return domain.WrapError(domain.ErrTemporary, "ollama "+operation, err)
	}
	return err
}
