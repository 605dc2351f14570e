package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

type corpusFile struct {
	Documents []domain.Document `yaml:"documents"`
}

// LoadDocuments reads a corpus file for indexing: a YAML or JSON document
// list, or a .txt/.md file taken as one document. An empty path yields the
// built-in corpus.
func (l *Loader) LoadDocuments(_ context.Context, path string) ([]domain.Document, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return MedicalCorpus(), nil
	}
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "load documents", err)
		}
		return nil, fmt.Errorf("read documents %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		doc, err := plainTextDocument(path, data)
		if err != nil {
			return nil, err
		}
		return []domain.Document{doc}, nil
	}
	return ParseDocuments(data)
}

// plainTextDocument turns a text file into a single document named after
// the file. Binary content is rejected.
func plainTextDocument(path string, data []byte) (domain.Document, error) {
	if !utf8.Valid(data) {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "load documents", fmt.Errorf("%s is not UTF-8 text", path))
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return domain.Document{}, domain.WrapError(domain.ErrInvalidInput, "load documents", fmt.Errorf("%s is empty", path))
	}
	base := filepath.Base(path)
	return domain.Document{
		ID:       strings.TrimSuffix(base, filepath.Ext(base)),
		Content:  text,
		Source:   base,
		Metadata: map[string]string{"path": path},
	}, nil
}

// ParseDocuments decodes {documents: [...]}. Ids default to doc-<n> and
// duplicates are rejected, since they would overwrite each other in the
// index.
func ParseDocuments(data []byte) ([]domain.Document, error) {
	var corpus corpusFile
	if err := yaml.Unmarshal(data, &corpus); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse documents", err)
	}
	if len(corpus.Documents) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse documents", errors.New("no documents"))
	}
	seen := make(map[string]struct{}, len(corpus.Documents))
	out := make([]domain.Document, 0, len(corpus.Documents))
	for i, doc := range corpus.Documents {
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("doc-%d", i+1)
		}
		doc.Content = strings.TrimSpace(doc.Content)
		if doc.Content == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse documents", fmt.Errorf("document %q is empty", doc.ID))
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse documents", fmt.Errorf("duplicate document id %q", doc.ID))
		}
		seen[doc.ID] = struct{}{}
		out = append(out, doc)
	}
	return out, nil
}
