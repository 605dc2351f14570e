package chunking

import (
	"strings"
	"testing"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

func TestNewSplitterNormalizesSettings(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != 900 || s.Overlap != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap clamp to a quarter, got %d", s.Overlap)
	}
}

func TestSplitShortTextIsOneChunk(t *testing.T) {
	got := NewSplitter(50, 10).Split("  short text  ")
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("unexpected chunks: %q", got)
	}
	if got := NewSplitter(50, 10).Split("   "); got != nil {
		t.Fatalf("expected no chunks for blank text, got %q", got)
	}
}

func TestSplitBreaksOnWhitespaceWithOverlap(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 10)
	s := NewSplitter(40, 10)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 40 {
			t.Fatalf("chunk %d exceeds window: %q", i, c)
		}
		for _, w := range strings.Fields(c) {
			switch w {
			case "alpha", "beta", "gamma", "delta":
			default:
				t.Fatalf("chunk %d split a word: %q", i, c)
			}
		}
	}
}

func TestSplitUnbrokenTextStillProgresses(t *testing.T) {
	chunks := NewSplitter(10, 3).Split(strings.Repeat("x", 25))
	if len(chunks) != 4 {
		t.Fatalf("expected 4 windows, got %d: %q", len(chunks), chunks)
	}
}

func TestDocumentsChunksLongDocuments(t *testing.T) {
	docs := []domain.Document{
		{ID: "short", Content: "fits"},
		{ID: "long", Source: "cardiology", Content: strings.Repeat("pressure ", 20), Metadata: map[string]string{"year": "2020"}},
	}
	out := NewSplitter(40, 0).Documents(docs)
	if out[0].ID != "short" {
		t.Fatalf("short document should keep its id, got %q", out[0].ID)
	}
	if len(out) < 3 {
		t.Fatalf("expected long document to be chunked, got %d docs", len(out))
	}
	first := out[1]
	if first.ID != "long#0" || first.Source != "cardiology" {
		t.Fatalf("unexpected chunk: %+v", first)
	}
	if first.Metadata["parent_id"] != "long" || first.Metadata["chunk_index"] != "0" || first.Metadata["year"] != "2020" {
		t.Fatalf("unexpected chunk metadata: %+v", first.Metadata)
	}
	if docs[1].Metadata["parent_id"] != "" {
		t.Fatalf("input metadata must not be mutated")
	}
}
