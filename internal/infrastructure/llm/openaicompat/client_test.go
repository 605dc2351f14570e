package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestClientGenerate(t *testing.T) {
	server := chatServer(t, " answer text ")
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Model: "test"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "answer text" {
		t.Fatalf("expected trimmed answer, got %q", got)
	}
}

func TestClientExpandQuery(t *testing.T) {
	server := chatServer(t, "- Hypertension warning signs\n- Clinical features of high blood pressure")
	defer server.Close()

	client, err := New(Config{BaseURL: server.URL, Model: "test"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	alts, err := client.ExpandQuery(context.Background(), "hypertension symptoms", 3)
	if err != nil {
		t.Fatalf("ExpandQuery() error = %v", err)
	}
	if len(alts) != 2 || alts[0] != "Hypertension warning signs" {
		t.Fatalf("unexpected alternatives: %v", alts)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error without base url")
	}
}

func TestClassifyMarksRateLimitRetryable(t *testing.T) {
	if !classify(errors.New("API returned unexpected status code: 429")).Retryable {
		t.Fatalf("expected 429 to be retryable")
	}
	if classify(errors.New("invalid request")).Retryable {
		t.Fatalf("expected generic error not to be retryable")
	}
}
