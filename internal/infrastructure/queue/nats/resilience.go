package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/infrastructure/resilience"
)

// connection-level failures; a publish may succeed once the client reconnects
var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
	nats.ErrNoResponders,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isTransientNATSError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, nats.ErrBadSubject), errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrInvalidMsg):
		return resilience.ErrorClassification{}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isTransientNATSError(err error) bool {
	for _, target := range transientNATSErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// publishError marks retry-exhausted transient failures as ErrTemporary so
// the API answers 503 instead of 500.
func publishError(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "publish run request", err)
	}
	return err
}
