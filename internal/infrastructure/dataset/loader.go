package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/rag-eval/internal/core/domain"
	"github.com/kirillkom/rag-eval/internal/core/usecase"
)

// Loader reads datasets from YAML or JSON files. JSON is parsed by the YAML
// decoder, which accepts it as a subset.
type Loader struct {
	baseDir string
}

func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

func (l *Loader) Load(_ context.Context, path string) (*domain.Dataset, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Medical(), nil
	}
	path = l.resolve(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "load dataset", err)
		}
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	if ds.Name == "" {
		ds.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ds, nil
}

func (l *Loader) resolve(path string) string {
	if !filepath.IsAbs(path) && l.baseDir != "" {
		return filepath.Join(l.baseDir, path)
	}
	return path
}

// Parse decodes and validates a dataset document. Cases without an id get
// their 1-based position.
func Parse(data []byte) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse dataset", err)
	}
	for i := range ds.Cases {
		tc := &ds.Cases[i]
		tc.ID = strings.TrimSpace(tc.ID)
		if tc.ID == "" {
			tc.ID = fmt.Sprintf("q%d", i+1)
		}
		tc.Question = strings.TrimSpace(tc.Question)
		tc.Keywords = compactKeywords(tc.Keywords)
	}
	if err := usecase.ValidateDataset(&ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func compactKeywords(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
