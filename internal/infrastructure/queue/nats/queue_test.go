package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func TestRunRequestCodec(t *testing.T) {
	req := domain.RunRequest{RunID: "run-7", Pipeline: domain.PipelineEnhanced, DatasetPath: "datasets/medical.yaml"}
	payload, err := encodeRunRequest(req)
	if err != nil {
		t.Fatalf("encodeRunRequest() error = %v", err)
	}
	got, err := decodeRunRequest(payload)
	if err != nil {
		t.Fatalf("decodeRunRequest() error = %v", err)
	}
	if got != req {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestRunRequestCodecRejectsMissingPipeline(t *testing.T) {
	if _, err := encodeRunRequest(domain.RunRequest{RunID: "x"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on encode, got %v", err)
	}
	if _, err := decodeRunRequest([]byte(`{"run_id":"x"}`)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput on decode, got %v", err)
	}
	if _, err := decodeRunRequest([]byte(`not-json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestClassifyNATSError(t *testing.T) {
	if !classifyNATSError(nats.ErrTimeout).Retryable {
		t.Fatalf("timeout should be retryable")
	}
	if classifyNATSError(context.Canceled).Retryable {
		t.Fatalf("cancellation should not be retryable")
	}
	if classifyNATSError(errors.New("bad subject")).Retryable {
		t.Fatalf("unknown errors should not be retryable")
	}
	if class := classifyNATSError(nats.ErrMaxPayload); class.Retryable || class.RecordFailure {
		t.Fatalf("oversized payloads are caller errors, got %+v", class)
	}
	if !classifyNATSError(nats.ErrConnectionReconnecting).Retryable {
		t.Fatalf("reconnecting connection should be retryable")
	}
}

func TestPublishErrorMarksTransientFailuresTemporary(t *testing.T) {
	err := publishError(nats.ErrNoServers)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	plain := errors.New("permanent")
	if got := publishError(plain); got != plain {
		t.Fatalf("expected permanent error to pass through, got %v", got)
	}
}
