package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

// Blobs is the byte-level backend the store writes through: the local
// filesystem or an object store bucket.
type Blobs interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store persists runs and comparisons as indented JSON documents, one per
// run and one per compared pair.
type Store struct {
	blobs Blobs
}

func New(blobs Blobs) *Store {
	return &Store{blobs: blobs}
}

func (s *Store) SaveRun(ctx context.Context, run *domain.RunResult) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("save run: %w: run id is required", domain.ErrInvalidInput)
	}
	return s.put(ctx, runKey(run.RunID), run)
}

func (s *Store) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	var run domain.RunResult
	if err := s.get(ctx, runKey(runID), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) SaveComparison(ctx context.Context, cmp *domain.ComparisonResult) error {
	if cmp == nil {
		return fmt.Errorf("save comparison: %w: comparison is nil", domain.ErrInvalidInput)
	}
	return s.put(ctx, comparisonKey(cmp.BaselineRunID, cmp.EnhancedRunID), cmp)
}

func (s *Store) GetComparison(ctx context.Context, baselineRunID, enhancedRunID string) (*domain.ComparisonResult, error) {
	var cmp domain.ComparisonResult
	if err := s.get(ctx, comparisonKey(baselineRunID, enhancedRunID), &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.blobs.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func runKey(runID string) string {
	return "runs/" + safeKey(runID) + ".json"
}

func comparisonKey(baselineRunID, enhancedRunID string) string {
	return "comparisons/" + safeKey(baselineRunID) + "_vs_" + safeKey(enhancedRunID) + ".json"
}

func safeKey(id string) string {
	clean := unsafeKeyChars.ReplaceAllString(id, "_")
	if clean == "" || clean == "." || clean == ".." {
		return "_"
	}
	return clean
}
