package chunking

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

// Splitter cuts documents into overlapping rune windows before indexing.
// Windows end at the last whitespace inside the window when there is one.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.ChunkSize {
		return []string{string(runes)}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start:end]); cut > s.Overlap {
			end = start + cut
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - s.Overlap
		if next > 0 && !unicode.IsSpace(runes[next-1]) {
			if sp := firstSpace(runes[next:end]); sp >= 0 {
				next += sp + 1
			}
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// Documents splits every document. A document that fits in one window keeps
// its id; longer ones become <id>#<n> chunks carrying parent_id and
// chunk_index metadata.
func (s *Splitter) Documents(docs []domain.Document) []domain.Document {
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		chunks := s.Split(doc.Content)
		if len(chunks) <= 1 {
			out = append(out, doc)
			continue
		}
		for i, chunk := range chunks {
			meta := make(map[string]string, len(doc.Metadata)+2)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["parent_id"] = doc.ID
			meta["chunk_index"] = strconv.Itoa(i)
			out = append(out, domain.Document{
				ID:       fmt.Sprintf("%s#%d", doc.ID, i),
				Content:  chunk,
				Source:   doc.Source,
				Metadata: meta,
			})
		}
	}
	return out
}

func firstSpace(runes []rune) int {
	for i, r := range runes {
		if unicode.IsSpace(r) {
			return i
		}
	}
	return -1
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
