package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "runs/run-1.json", strings.NewReader(`{"run_id":"run-1"}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := store.Open(ctx, "runs/run-1.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"run_id":"run-1"}` {
		t.Fatalf("unexpected content: %s", data)
	}
}

func TestOpenMissingReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = store.Open(context.Background(), "runs/missing.json")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"../outside.json", "/etc/passwd", ""} {
		if err := store.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
